// Package settlement runs settlement passes: it takes a pair's lease,
// matches a snapshot of the pair's open orders and applies each fill as its
// own atomic unit.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/efreitasn/pairexchange/internal/domain"
	"github.com/efreitasn/pairexchange/internal/engine"
	"github.com/efreitasn/pairexchange/internal/lock"
)

// Reasons recorded on the lease of a pass.
const (
	ReasonOrderPlaced = "order_placed"
	ReasonSweep       = "sweep"
	ReasonManual      = "manual"
)

// Result labels a finished Settle call for observers.
type Result string

const (
	ResultSettled   Result = "settled"
	ResultContended Result = "contended"
	ResultFailed    Result = "failed"
)

// OrderBook is the part of the repository a pass reads from and writes to.
type OrderBook interface {
	OpenOrders(ctx context.Context, pairID int64, side domain.Side) iter.Seq2[*domain.Order, error]
	// ApplyFill fails with domain.ErrStaleLease once e.LeaseID no longer
	// holds the pair.
	ApplyFill(ctx context.Context, e *domain.Execution) (*domain.Trade, error)
}

// Locker grants per-pair leases.
type Locker interface {
	Acquire(ctx context.Context, pairID int64, opts lock.AcquireOptions) (*domain.Lease, error)
	Release(ctx context.Context, l *domain.Lease) error
}

// Observer is notified after every Settle call.
type Observer interface {
	ObserveSettlement(result Result, trades int, elapsed time.Duration)
}

// Report summarizes one settlement pass.
type Report struct {
	PairID   int64
	LeaseID  string
	TradeAt  time.Time
	Trades   []*domain.Trade
	Started  time.Time
	Finished time.Time
}

// Coordinator runs settlement passes.
type Coordinator struct {
	book     OrderBook
	locks    Locker
	logger   *slog.Logger
	observer Observer
	now      func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithObserver registers a settlement observer.
func WithObserver(o Observer) Option {
	return func(c *Coordinator) { c.observer = o }
}

// WithClock replaces time.Now for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(book OrderBook, locks Locker, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		book:   book,
		locks:  locks,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settle runs one pass over the pair. It returns domain.ErrLockHeld
// (wrapped) when another pass holds the pair. When a fill cannot be applied
// the pass stops and a *domain.SettlementFailure is returned together with
// the report of the fills committed before it.
func (c *Coordinator) Settle(ctx context.Context, pairID int64, reason string) (*Report, error) {
	started := c.now()

	lease, err := c.locks.Acquire(ctx, pairID, lock.AcquireOptions{Reason: reason})
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			c.observe(ResultContended, 0, started)
		} else {
			c.observe(ResultFailed, 0, started)
		}
		return nil, err
	}
	defer c.release(ctx, lease)

	report := &Report{
		PairID:  pairID,
		LeaseID: lease.ID,
		TradeAt: lease.TradeAt,
		Started: started,
	}

	err = c.run(ctx, lease, report)
	report.Finished = c.now()
	if err != nil {
		c.observe(ResultFailed, len(report.Trades), started)
		var failure *domain.SettlementFailure
		if errors.As(err, &failure) {
			c.logger.Error("settlement pass failed",
				slog.Int64("pair_id", pairID),
				slog.String("lease", lease.ID),
				slog.Int("fill_index", failure.FillIndex),
				slog.Int64("buy_order_id", failure.BuyOrderID),
				slog.Int64("sell_order_id", failure.SellOrderID),
				slog.Int("committed", len(report.Trades)),
				slog.String("error", failure.Err.Error()),
			)
		}
		return report, err
	}

	c.observe(ResultSettled, len(report.Trades), started)
	if len(report.Trades) > 0 {
		c.logger.Info("settled pair",
			slog.Int64("pair_id", pairID),
			slog.String("reason", reason),
			slog.Int("trades", len(report.Trades)),
			slog.Time("trade_at", report.TradeAt),
		)
	}
	return report, nil
}

func (c *Coordinator) run(ctx context.Context, lease *domain.Lease, report *Report) error {
	buys, err := c.snapshot(ctx, lease.PairID, domain.SideBuy)
	if err != nil {
		return err
	}
	sells, err := c.snapshot(ctx, lease.PairID, domain.SideSell)
	if err != nil {
		return err
	}

	for i, f := range engine.Match(buys, sells) {
		if err := ctx.Err(); err != nil {
			return err
		}
		trade, err := c.book.ApplyFill(ctx, &domain.Execution{
			PairID:      lease.PairID,
			BuyOrderID:  f.Buy.ID,
			SellOrderID: f.Sell.ID,
			Quantity:    f.Quantity,
			Price:       f.Price,
			Overpayment: f.Overpayment,
			TakerSide:   f.Taker,
			LeaseID:     lease.ID,
			TradeAt:     lease.TradeAt,
		})
		if err != nil {
			return &domain.SettlementFailure{
				PairID:      lease.PairID,
				FillIndex:   i,
				BuyOrderID:  f.Buy.ID,
				SellOrderID: f.Sell.ID,
				Err:         err,
			}
		}
		report.Trades = append(report.Trades, trade)
	}
	return nil
}

func (c *Coordinator) snapshot(ctx context.Context, pairID int64, side domain.Side) ([]*domain.Order, error) {
	var orders []*domain.Order
	for o, err := range c.book.OpenOrders(ctx, pairID, side) {
		if err != nil {
			return nil, fmt.Errorf("snapshot %s orders of pair %d: %w", side, pairID, err)
		}
		orders = append(orders, o)
	}
	return orders, nil
}

// release frees the lease even if ctx was cancelled mid-pass. A stale lease
// means the pass outlived the staleness threshold and was reclaimed.
func (c *Coordinator) release(ctx context.Context, lease *domain.Lease) {
	err := c.locks.Release(context.WithoutCancel(ctx), lease)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrStaleLease):
		c.logger.Warn("settlement lease was reclaimed before release",
			slog.Int64("pair_id", lease.PairID),
			slog.String("lease", lease.ID),
		)
	default:
		c.logger.Error("failed to release settlement lease",
			slog.Int64("pair_id", lease.PairID),
			slog.String("lease", lease.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Coordinator) observe(r Result, trades int, started time.Time) {
	if c.observer != nil {
		c.observer.ObserveSettlement(r, trades, c.now().Sub(started))
	}
}
