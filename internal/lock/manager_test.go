package lock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/efreitasn/pairexchange/internal/domain"
	"pgregory.net/rapid"
)

// leaseTable is a minimal lease store keyed by pair.
type leaseTable struct {
	mu   sync.Mutex
	rows map[int64]*domain.Lease
}

func newLeaseTable() *leaseTable {
	return &leaseTable{rows: make(map[int64]*domain.Lease)}
}

func (t *leaseTable) GetLease(_ context.Context, pairID int64) (*domain.Lease, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.rows[pairID]
	if !ok {
		return nil, domain.ErrLeaseNotFound
	}
	return l.Clone(), nil
}

func (t *leaseTable) CreateLease(_ context.Context, l *domain.Lease) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[l.PairID]; ok {
		return domain.ErrLeaseExists
	}
	t.rows[l.PairID] = l.Clone()
	return nil
}

func (t *leaseTable) ReplaceLease(_ context.Context, expectedID string, next *domain.Lease) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.rows[next.PairID]
	if !ok || cur.ID != expectedID {
		return domain.ErrStaleLease
	}
	t.rows[next.PairID] = next.Clone()
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[Outcome]int
}

func (o *countingObserver) ObserveLock(outcome Outcome) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = make(map[Outcome]int)
	}
	o.counts[outcome]++
}

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(cfg Config) (*Manager, *leaseTable, *fakeClock, *countingObserver) {
	table := newLeaseTable()
	clock := &fakeClock{now: t0}
	obs := &countingObserver{}
	m := NewManager(table, cfg, discardLogger(), WithClock(clock.Now), WithObserver(obs))
	return m, table, clock, obs
}

func TestAcquire_FreshPair(t *testing.T) {
	m, _, _, obs := newTestManager(Config{StaleAfter: time.Minute})
	ctx := context.Background()

	l, err := m.Acquire(ctx, 1, AcquireOptions{Reason: "order_placed"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if l.ID == "" {
		t.Fatal("expected lease id")
	}
	if !l.AcquiredAt.Equal(t0) || !l.TradeAt.Equal(t0) {
		t.Fatalf("expected acquired_at and trade_at %v, got %v / %v", t0, l.AcquiredAt, l.TradeAt)
	}
	if l.Extra[domain.LeaseExtraReason] != "order_placed" {
		t.Fatalf("expected reason recorded, got %v", l.Extra)
	}
	if !l.Held() {
		t.Fatal("expected lease to be held")
	}
	if obs.counts[OutcomeAcquired] != 1 {
		t.Fatalf("expected 1 acquired observation, got %v", obs.counts)
	}
}

func TestAcquire_TradeAtDelay(t *testing.T) {
	m, _, _, _ := newTestManager(Config{StaleAfter: time.Minute, TradeAtDelay: 3 * time.Second})

	l, err := m.Acquire(context.Background(), 1, AcquireOptions{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if want := t0.Add(3 * time.Second); !l.TradeAt.Equal(want) {
		t.Fatalf("expected trade_at %v, got %v", want, l.TradeAt)
	}
}

func TestAcquire_HeldWithinWindow(t *testing.T) {
	m, _, clock, obs := newTestManager(Config{StaleAfter: time.Minute})
	ctx := context.Background()

	first, err := m.Acquire(ctx, 1, AcquireOptions{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	clock.Advance(time.Minute)
	_, err = m.Acquire(ctx, 1, AcquireOptions{})
	if !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld at exactly the threshold, got %v", err)
	}
	if obs.counts[OutcomeHeld] != 1 {
		t.Fatalf("expected 1 held observation, got %v", obs.counts)
	}

	cur, err := m.Current(ctx, 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cur.ID != first.ID {
		t.Fatalf("expected holder %s to be unchanged, got %s", first.ID, cur.ID)
	}
}

func TestAcquire_OtherPairsIndependent(t *testing.T) {
	m, _, _, _ := newTestManager(Config{StaleAfter: time.Minute})
	ctx := context.Background()

	if _, err := m.Acquire(ctx, 1, AcquireOptions{}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, err := m.Acquire(ctx, 2, AcquireOptions{}); err != nil {
		t.Fatalf("expected pair 2 to be free, got %v", err)
	}
}

func TestAcquire_AfterRelease(t *testing.T) {
	m, _, clock, _ := newTestManager(Config{StaleAfter: time.Minute})
	ctx := context.Background()

	first, err := m.Acquire(ctx, 1, AcquireOptions{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	clock.Advance(time.Second)
	if err := m.Release(ctx, first); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if first.Held() {
		t.Fatal("expected released lease to report not held")
	}

	clock.Advance(time.Second)
	second, err := m.Acquire(ctx, 1, AcquireOptions{})
	if err != nil {
		t.Fatalf("expected re-acquire after release, got %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a new lease id")
	}
	if _, ok := second.Extra[domain.LeaseExtraReclaimedLease]; ok {
		t.Fatal("expected a normal acquire, not a reclamation")
	}
}

// A holder crashed at t with trade_at t+5s; a newcomer reclaims after the
// threshold and must not execute earlier than the crashed holder would have.
func TestAcquire_ReclaimsStaleLease(t *testing.T) {
	m, _, clock, obs := newTestManager(Config{StaleAfter: 2 * time.Second})
	ctx := context.Background()

	crashed, err := m.Acquire(ctx, 1, AcquireOptions{TradeAt: t0.Add(5 * time.Second)})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	clock.Advance(3 * time.Second)
	got, err := m.Acquire(ctx, 1, AcquireOptions{})
	if err != nil {
		t.Fatalf("expected reclamation, got %v", err)
	}
	if want := t0.Add(5 * time.Second); !got.TradeAt.Equal(want) {
		t.Fatalf("expected trade_at carried forward to %v, got %v", want, got.TradeAt)
	}
	if got.Extra[domain.LeaseExtraReclaimedLease] != crashed.ID {
		t.Fatalf("expected reclaimed lease %s recorded, got %v", crashed.ID, got.Extra)
	}
	if got.Extra[domain.LeaseExtraReclaimedAcquiredAt] == "" {
		t.Fatal("expected reclaimed acquired_at recorded")
	}
	if obs.counts[OutcomeReclaimed] != 1 {
		t.Fatalf("expected 1 reclaimed observation, got %v", obs.counts)
	}

	if err := m.Release(ctx, crashed); !errors.Is(err, domain.ErrStaleLease) {
		t.Fatalf("expected ErrStaleLease for the crashed holder, got %v", err)
	}
	cur, _ := m.Current(ctx, 1)
	if cur.ID != got.ID || !cur.Held() {
		t.Fatal("expected the new holder to be untouched by the stale release")
	}
}

func TestAcquire_ReclaimAdvancesPastTradeAt(t *testing.T) {
	m, _, clock, _ := newTestManager(Config{StaleAfter: 2 * time.Second})
	ctx := context.Background()

	if _, err := m.Acquire(ctx, 1, AcquireOptions{TradeAt: t0.Add(5 * time.Second)}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	clock.Advance(10 * time.Second)
	got, err := m.Acquire(ctx, 1, AcquireOptions{})
	if err != nil {
		t.Fatalf("expected reclamation, got %v", err)
	}
	if want := t0.Add(10 * time.Second); !got.TradeAt.Equal(want) {
		t.Fatalf("expected trade_at %v, got %v", want, got.TradeAt)
	}
}

func TestAcquire_RequestedTradeAtNeverGoesBack(t *testing.T) {
	m, _, clock, _ := newTestManager(Config{StaleAfter: time.Minute})
	ctx := context.Background()

	first, err := m.Acquire(ctx, 1, AcquireOptions{TradeAt: t0.Add(time.Hour)})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := m.Release(ctx, first); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	clock.Advance(time.Second)
	second, err := m.Acquire(ctx, 1, AcquireOptions{TradeAt: t0})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !second.TradeAt.Equal(first.TradeAt) {
		t.Fatalf("expected trade_at %v, got %v", first.TradeAt, second.TradeAt)
	}
}

func TestRelease_Twice(t *testing.T) {
	m, _, _, _ := newTestManager(Config{StaleAfter: time.Minute})
	ctx := context.Background()

	l, err := m.Acquire(ctx, 1, AcquireOptions{})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := m.Release(ctx, l); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := m.Release(ctx, l); !errors.Is(err, domain.ErrStaleLease) {
		t.Fatalf("expected ErrStaleLease on second release, got %v", err)
	}
}

func TestRelease_Unknown(t *testing.T) {
	m, _, _, _ := newTestManager(Config{StaleAfter: time.Minute})

	err := m.Release(context.Background(), &domain.Lease{ID: "nope", PairID: 9})
	if !errors.Is(err, domain.ErrStaleLease) {
		t.Fatalf("expected ErrStaleLease, got %v", err)
	}
}

func TestCurrent_NeverLeased(t *testing.T) {
	m, _, _, _ := newTestManager(Config{StaleAfter: time.Minute})

	l, err := m.Current(context.Background(), 7)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if l != nil {
		t.Fatalf("expected nil lease, got %+v", l)
	}
}

func TestAcquire_ConcurrentMutualExclusion(t *testing.T) {
	m, _, _, _ := newTestManager(Config{StaleAfter: time.Hour})
	ctx := context.Background()

	const workers = 32
	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		start   = make(chan struct{})
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := m.Acquire(ctx, 1, AcquireOptions{})
			switch {
			case err == nil:
				winners.Add(1)
			case !errors.Is(err, domain.ErrLockHeld):
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := winners.Load(); got != 1 {
		t.Fatalf("expected exactly 1 winner, got %d", got)
	}
}

// TestProperty_TradeAtMonotonic drives random acquire/release/advance
// sequences and checks that successive leases never move trade_at back and
// that at most one lease is held at a time.
func TestProperty_TradeAtMonotonic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		stale := time.Duration(rapid.IntRange(1, 10).Draw(rt, "stale_s")) * time.Second
		m, _, clock, _ := newTestManager(Config{StaleAfter: stale})
		ctx := context.Background()

		var (
			held     *domain.Lease
			lastAt   time.Time
			acquired int
		)
		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 2).Draw(rt, "op") {
			case 0:
				var opts AcquireOptions
				if rapid.Bool().Draw(rt, "request_trade_at") {
					offset := rapid.IntRange(-20, 20).Draw(rt, "offset_s")
					opts.TradeAt = clock.Now().Add(time.Duration(offset) * time.Second)
				}
				l, err := m.Acquire(ctx, 1, opts)
				if errors.Is(err, domain.ErrLockHeld) {
					if held == nil {
						rt.Fatalf("lock reported held with no holder")
					}
					continue
				}
				if err != nil {
					rt.Fatalf("acquire: %v", err)
				}
				if held != nil && !held.Stale(clock.Now(), stale) {
					rt.Fatalf("acquired while %s was fresh", held.ID)
				}
				if acquired > 0 && l.TradeAt.Before(lastAt) {
					rt.Fatalf("trade_at went back from %v to %v", lastAt, l.TradeAt)
				}
				held, lastAt = l, l.TradeAt
				acquired++
			case 1:
				if held == nil {
					continue
				}
				if err := m.Release(ctx, held); err != nil {
					rt.Fatalf("release: %v", err)
				}
				held = nil
			case 2:
				clock.Advance(time.Duration(rapid.IntRange(0, 5).Draw(rt, "advance_s")) * time.Second)
			}
		}
	})
}
