package engine

import (
	"testing"
	"time"

	"github.com/efreitasn/pairexchange/internal/domain"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// newOrder builds an active order created offset seconds after baseTime.
func newOrder(id int64, owner string, side domain.Side, price, qty int64, offset int) *domain.Order {
	return &domain.Order{
		ID:        id,
		PairID:    1,
		OwnerID:   owner,
		Side:      side,
		Price:     price,
		Quantity:  qty,
		Remaining: qty,
		Status:    domain.StatusOpen,
		CreatedAt: baseTime.Add(time.Duration(offset) * time.Second),
	}
}

func TestBuyLess_PriceDescending(t *testing.T) {
	a := entryOf(newOrder(1, "u", domain.SideBuy, 200, 1, 0))
	b := entryOf(newOrder(2, "u", domain.SideBuy, 100, 1, 0))
	if !buyLess(a, b) {
		t.Error("expected higher price to be less on buy side")
	}
	if buyLess(b, a) {
		t.Error("expected lower price to not be less on buy side")
	}
}

func TestSellLess_PriceAscending(t *testing.T) {
	a := entryOf(newOrder(1, "u", domain.SideSell, 100, 1, 0))
	b := entryOf(newOrder(2, "u", domain.SideSell, 200, 1, 0))
	if !sellLess(a, b) {
		t.Error("expected lower price to be less on sell side")
	}
	if sellLess(b, a) {
		t.Error("expected higher price to not be less on sell side")
	}
}

func TestLess_TimeThenID(t *testing.T) {
	for _, side := range []domain.Side{domain.SideBuy, domain.SideSell} {
		early := newOrder(5, "u", side, 100, 1, 0)
		late := newOrder(1, "u", side, 100, 1, 1)
		if !Less(side, early, late) {
			t.Errorf("%s: expected earlier time to win at same price", side)
		}
		sameTimeLowID := newOrder(2, "u", side, 100, 1, 0)
		if !Less(side, sameTimeLowID, early) {
			t.Errorf("%s: expected lower id to win at same price and time", side)
		}
	}
}

func TestBook_InsertBestRemove(t *testing.T) {
	b := NewBook()
	b.Insert(newOrder(1, "a", domain.SideBuy, 100, 5, 0))
	b.Insert(newOrder(2, "b", domain.SideBuy, 105, 5, 1))
	b.Insert(newOrder(3, "c", domain.SideSell, 110, 5, 2))
	b.Insert(newOrder(4, "d", domain.SideSell, 108, 5, 3))

	if best, _ := b.Best(domain.SideBuy); best.ID != 2 {
		t.Errorf("best buy = %d, want 2", best.ID)
	}
	if best, _ := b.Best(domain.SideSell); best.ID != 4 {
		t.Errorf("best sell = %d, want 4", best.ID)
	}

	if !b.Remove(2) {
		t.Error("Remove(2) should report true")
	}
	if b.Remove(2) {
		t.Error("second Remove(2) should report false")
	}
	if best, _ := b.Best(domain.SideBuy); best.ID != 1 {
		t.Errorf("best buy after removal = %d, want 1", best.ID)
	}
	if b.Len(domain.SideBuy) != 1 || b.Len(domain.SideSell) != 2 {
		t.Errorf("Len = %d/%d, want 1/2", b.Len(domain.SideBuy), b.Len(domain.SideSell))
	}
	if _, ok := b.Get(3); !ok {
		t.Error("Get(3) should find the resting sell")
	}
}

func TestBook_InsertReplacesSameID(t *testing.T) {
	b := NewBook()
	b.Insert(newOrder(1, "a", domain.SideBuy, 100, 5, 0))
	b.Insert(newOrder(1, "a", domain.SideBuy, 120, 5, 0))

	if b.Len(domain.SideBuy) != 1 {
		t.Fatalf("Len = %d, want 1", b.Len(domain.SideBuy))
	}
	if best, _ := b.Best(domain.SideBuy); best.Price != 120 {
		t.Errorf("best price = %d, want 120", best.Price)
	}
}

func TestBook_OrdersInPriorityOrder(t *testing.T) {
	b := NewBook()
	b.Insert(newOrder(1, "a", domain.SideSell, 101, 1, 2))
	b.Insert(newOrder(2, "a", domain.SideSell, 100, 1, 3))
	b.Insert(newOrder(3, "a", domain.SideSell, 101, 1, 1))

	got := b.Orders(domain.SideSell)
	want := []int64{2, 3, 1}
	if len(got) != len(want) {
		t.Fatalf("got %d orders, want %d", len(got), len(want))
	}
	for i, o := range got {
		if o.ID != want[i] {
			t.Errorf("orders[%d] = %d, want %d", i, o.ID, want[i])
		}
	}
	if _, ok := NewBook().Best(domain.SideBuy); ok {
		t.Error("empty book should have no best buy")
	}
}
