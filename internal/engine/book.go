package engine

import (
	"time"

	"github.com/efreitasn/pairexchange/internal/domain"
	"github.com/google/btree"
)

// bookEntry keys an order by the fields that define its priority. Those
// fields never change while an order is on the book, so the order's
// Remaining may be mutated in place.
type bookEntry struct {
	price     int64
	createdAt time.Time
	id        int64
	order     *domain.Order
}

// buyLess orders the buy side: price descending, then created_at
// ascending, then id ascending. Min() returns the best buy.
func buyLess(a, b bookEntry) bool {
	if a.price != b.price {
		return a.price > b.price
	}
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.id < b.id
}

// sellLess orders the sell side: price ascending, then created_at
// ascending, then id ascending. Min() returns the best sell.
func sellLess(a, b bookEntry) bool {
	if a.price != b.price {
		return a.price < b.price
	}
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.id < b.id
}

// Less reports whether a has priority over b on the given side. It is the
// sort contract every open-order snapshot must satisfy.
func Less(side domain.Side, a, b *domain.Order) bool {
	if side == domain.SideBuy {
		return buyLess(entryOf(a), entryOf(b))
	}
	return sellLess(entryOf(a), entryOf(b))
}

func entryOf(o *domain.Order) bookEntry {
	return bookEntry{price: o.Price, createdAt: o.CreatedAt, id: o.ID, order: o}
}

// Book holds the two sides of one pair in priority order using B-trees,
// with a secondary index for removal by order id. Book is not safe for
// concurrent use; callers serialize access.
type Book struct {
	buys  *btree.BTreeG[bookEntry]
	sells *btree.BTreeG[bookEntry]
	index map[int64]bookEntry
}

// NewBook creates an empty book.
func NewBook() *Book {
	const degree = 32
	return &Book{
		buys:  btree.NewG[bookEntry](degree, buyLess),
		sells: btree.NewG[bookEntry](degree, sellLess),
		index: make(map[int64]bookEntry),
	}
}

func (b *Book) side(s domain.Side) *btree.BTreeG[bookEntry] {
	if s == domain.SideBuy {
		return b.buys
	}
	return b.sells
}

// Insert adds an order to its side. An order already on the book with the
// same id is replaced.
func (b *Book) Insert(o *domain.Order) {
	b.Remove(o.ID)
	e := entryOf(o)
	b.side(o.Side).ReplaceOrInsert(e)
	b.index[o.ID] = e
}

// Remove deletes an order by id and reports whether it was present.
func (b *Book) Remove(id int64) bool {
	e, ok := b.index[id]
	if !ok {
		return false
	}
	delete(b.index, id)
	b.side(e.order.Side).Delete(e)
	return true
}

// Get returns the order with the given id.
func (b *Book) Get(id int64) (*domain.Order, bool) {
	e, ok := b.index[id]
	if !ok {
		return nil, false
	}
	return e.order, true
}

// Best returns the highest-priority order of a side.
func (b *Book) Best(s domain.Side) (*domain.Order, bool) {
	e, ok := b.side(s).Min()
	if !ok {
		return nil, false
	}
	return e.order, true
}

// Walk iterates a side in priority order until fn returns false.
func (b *Book) Walk(s domain.Side, fn func(*domain.Order) bool) {
	b.side(s).Ascend(func(e bookEntry) bool {
		return fn(e.order)
	})
}

// Len returns the number of orders on a side.
func (b *Book) Len(s domain.Side) int {
	return b.side(s).Len()
}

// Orders returns a side's orders in priority order.
func (b *Book) Orders(s domain.Side) []*domain.Order {
	out := make([]*domain.Order, 0, b.Len(s))
	b.Walk(s, func(o *domain.Order) bool {
		out = append(out, o)
		return true
	})
	return out
}
