// Package lock grants at most one settlement pass per asset pair at a time
// through a persisted lease row.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/pairexchange/internal/domain"
	"github.com/google/uuid"
)

// Store persists one lease row per pair. Implementations must make
// CreateLease and ReplaceLease atomic with respect to each other.
type Store interface {
	// GetLease returns the pair's lease row, or domain.ErrLeaseNotFound if
	// none was ever created.
	GetLease(ctx context.Context, pairID int64) (*domain.Lease, error)
	// CreateLease inserts the first lease for a pair. It fails with
	// domain.ErrLeaseExists if a row already exists.
	CreateLease(ctx context.Context, l *domain.Lease) error
	// ReplaceLease swaps the row whose id is expectedID for next. It fails
	// with domain.ErrStaleLease if the current row has another id.
	ReplaceLease(ctx context.Context, expectedID string, next *domain.Lease) error
}

// Outcome labels an Acquire attempt for observers.
type Outcome string

const (
	OutcomeAcquired  Outcome = "acquired"
	OutcomeReclaimed Outcome = "reclaimed"
	OutcomeHeld      Outcome = "held"
)

// Observer is notified of acquisition outcomes. It may be nil.
type Observer interface {
	ObserveLock(outcome Outcome)
}

// Config tunes lease behavior.
type Config struct {
	// StaleAfter is the age past which an unreleased lease may be
	// reclaimed.
	StaleAfter time.Duration
	// TradeAtDelay is added to now for a new lease's TradeAt.
	TradeAtDelay time.Duration
}

// AcquireOptions carries per-attempt parameters.
type AcquireOptions struct {
	// Reason is recorded in the lease's Extra (e.g. "order_placed", "sweep").
	Reason string
	// TradeAt requests a specific logical execution time. Zero means
	// now + TradeAtDelay. The lease never gets a TradeAt earlier than the
	// previous lease's.
	TradeAt time.Time
}

// Manager is the execution lock manager. It never blocks on contention:
// Acquire fails fast with domain.ErrLockHeld.
type Manager struct {
	store    Store
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
	observer Observer
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithObserver registers an acquisition observer.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// NewManager creates a Manager backed by store.
func NewManager(store Store, cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:  store,
		cfg:    cfg,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Acquire takes the pair's lease. A released or missing lease is taken
// directly; a held lease younger than StaleAfter yields domain.ErrLockHeld;
// an older one is reclaimed and its TradeAt carried forward.
func (m *Manager) Acquire(ctx context.Context, pairID int64, opts AcquireOptions) (*domain.Lease, error) {
	now := m.now()
	next := &domain.Lease{
		ID:         uuid.NewString(),
		PairID:     pairID,
		AcquiredAt: now,
		TradeAt:    opts.TradeAt,
		Extra:      map[string]string{},
	}
	if next.TradeAt.IsZero() {
		next.TradeAt = now.Add(m.cfg.TradeAtDelay)
	}
	if opts.Reason != "" {
		next.Extra[domain.LeaseExtraReason] = opts.Reason
	}

	current, err := m.store.GetLease(ctx, pairID)
	if errors.Is(err, domain.ErrLeaseNotFound) {
		if err := m.store.CreateLease(ctx, next); err != nil {
			if errors.Is(err, domain.ErrLeaseExists) {
				// Lost the race to create the first row.
				m.observe(OutcomeHeld)
				return nil, fmt.Errorf("pair %d: %w", pairID, domain.ErrLockHeld)
			}
			return nil, fmt.Errorf("create lease for pair %d: %w", pairID, err)
		}
		m.observe(OutcomeAcquired)
		return next, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lease for pair %d: %w", pairID, err)
	}

	outcome := OutcomeAcquired
	if current.Held() {
		if !current.Stale(now, m.cfg.StaleAfter) {
			m.observe(OutcomeHeld)
			return nil, fmt.Errorf("pair %d held by lease %s since %s: %w",
				pairID, current.ID, current.AcquiredAt.Format(time.RFC3339Nano), domain.ErrLockHeld)
		}
		outcome = OutcomeReclaimed
		next.Extra[domain.LeaseExtraReclaimedLease] = current.ID
		next.Extra[domain.LeaseExtraReclaimedAcquiredAt] = current.AcquiredAt.UTC().Format(time.RFC3339Nano)
	}
	if current.TradeAt.After(next.TradeAt) {
		next.TradeAt = current.TradeAt
	}

	if err := m.store.ReplaceLease(ctx, current.ID, next); err != nil {
		if errors.Is(err, domain.ErrStaleLease) {
			// Someone else took or reclaimed it between read and swap.
			m.observe(OutcomeHeld)
			return nil, fmt.Errorf("pair %d: %w", pairID, domain.ErrLockHeld)
		}
		return nil, fmt.Errorf("replace lease for pair %d: %w", pairID, err)
	}

	if outcome == OutcomeReclaimed {
		m.logger.Warn("reclaimed stale settlement lease",
			slog.Int64("pair_id", pairID),
			slog.String("stale_lease", current.ID),
			slog.Time("stale_acquired_at", current.AcquiredAt),
			slog.String("lease", next.ID),
			slog.Time("trade_at", next.TradeAt),
		)
	}
	m.observe(outcome)
	return next, nil
}

// Release frees the pair. It returns domain.ErrStaleLease if the lease was
// reclaimed or already released; the store is left untouched in that case.
func (m *Manager) Release(ctx context.Context, l *domain.Lease) error {
	current, err := m.store.GetLease(ctx, l.PairID)
	if errors.Is(err, domain.ErrLeaseNotFound) || (err == nil && (current.ID != l.ID || !current.Held())) {
		return fmt.Errorf("release lease %s for pair %d: %w", l.ID, l.PairID, domain.ErrStaleLease)
	}
	if err != nil {
		return fmt.Errorf("get lease for pair %d: %w", l.PairID, err)
	}

	released := l.Clone()
	at := m.now()
	released.ReleasedAt = &at
	if err := m.store.ReplaceLease(ctx, l.ID, released); err != nil {
		return fmt.Errorf("release lease %s for pair %d: %w", l.ID, l.PairID, err)
	}
	l.ReleasedAt = &at
	return nil
}

// Current returns the pair's lease row, or nil if the pair never had one.
func (m *Manager) Current(ctx context.Context, pairID int64) (*domain.Lease, error) {
	l, err := m.store.GetLease(ctx, pairID)
	if errors.Is(err, domain.ErrLeaseNotFound) {
		return nil, nil
	}
	return l, err
}

func (m *Manager) observe(o Outcome) {
	if m.observer != nil {
		m.observer.ObserveLock(o)
	}
}
