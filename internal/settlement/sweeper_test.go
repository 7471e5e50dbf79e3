package settlement

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/efreitasn/pairexchange/internal/domain"
	"github.com/efreitasn/pairexchange/internal/lock"
)

type stubPairs struct {
	pairs []*domain.AssetPair
	err   error
}

func (s stubPairs) ListPairs(context.Context) ([]*domain.AssetPair, error) {
	return s.pairs, s.err
}

type stubSettler struct {
	mu       sync.Mutex
	settled  map[int64]int
	results  map[int64]error
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (s *stubSettler) Settle(ctx context.Context, pairID int64, reason string) (*Report, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if reason != ReasonSweep {
		return nil, errors.New("unexpected reason " + reason)
	}
	if s.settled == nil {
		s.settled = make(map[int64]int)
	}
	s.settled[pairID]++
	return &Report{PairID: pairID}, s.results[pairID]
}

func pairsN(n int) []*domain.AssetPair {
	out := make([]*domain.AssetPair, n)
	for i := range out {
		out[i] = &domain.AssetPair{ID: int64(i + 1), Primary: "AAA", Secondary: "BBB"}
	}
	return out
}

func TestSweepOnce_SettlesEveryPair(t *testing.T) {
	settler := &stubSettler{results: map[int64]error{
		2: domain.ErrLockHeld,
		3: &domain.SettlementFailure{PairID: 3, Err: domain.ErrInvalidState},
		4: errors.New("boom"),
	}}
	sw := NewSweeper(settler, stubPairs{pairs: pairsN(5)}, time.Hour, 2, discardLogger())

	if err := sw.SweepOnce(context.Background()); err != nil {
		t.Fatalf("expected failures to be absorbed, got %v", err)
	}
	for id := int64(1); id <= 5; id++ {
		if settler.settled[id] != 1 {
			t.Errorf("pair %d settled %d times, want 1", id, settler.settled[id])
		}
	}
}

func TestSweepOnce_BoundedConcurrency(t *testing.T) {
	settler := &stubSettler{delay: 5 * time.Millisecond}
	sw := NewSweeper(settler, stubPairs{pairs: pairsN(12)}, time.Hour, 3, discardLogger())

	if err := sw.SweepOnce(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if peak := settler.peak.Load(); peak > 3 {
		t.Fatalf("expected at most 3 concurrent passes, got %d", peak)
	}
}

func TestSweepOnce_ListError(t *testing.T) {
	sw := NewSweeper(&stubSettler{}, stubPairs{err: errors.New("db down")}, time.Hour, 1, discardLogger())
	if err := sw.SweepOnce(context.Background()); err == nil {
		t.Fatal("expected the list error")
	}
}

func TestSweeper_StartSettlesAndStops(t *testing.T) {
	h := newHarness(t)
	h.deposit("buyer", "USD", 100)
	h.deposit("seller", "BTC", 1)
	h.place("buyer", domain.SideBuy, 100, 1)
	h.place("seller", domain.SideSell, 100, 1)

	sw := NewSweeper(h.coord, h.store, 10*time.Millisecond, 2, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	sw.Start(ctx)

	deadline := time.After(2 * time.Second)
	for h.tradeCount() == 0 {
		select {
		case <-deadline:
			cancel()
			t.Fatal("expected the sweep to settle the pair")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-sw.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected the sweeper to stop")
	}

	cur, err := h.locks.Current(context.Background(), h.pair.ID)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if cur.Extra[domain.LeaseExtraReason] != ReasonSweep {
		t.Fatalf("expected a sweep lease, got %v", cur.Extra)
	}
}

var _ Locker = (*lock.Manager)(nil)
