package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"time"

	"github.com/efreitasn/pairexchange/internal/domain"
	"github.com/efreitasn/pairexchange/internal/lock"
	"github.com/efreitasn/pairexchange/internal/settlement"
)

// Order events reported to observers.
const (
	OrderPlaced    = "placed"
	OrderCancelled = "cancelled"
)

// ReasonCancel is recorded on leases taken to cancel an order.
const ReasonCancel = "cancel"

const (
	cancelBackoffMin = 10 * time.Millisecond
	cancelBackoffMax = 200 * time.Millisecond
)

// OrderStore is the order book repository as seen by the service.
type OrderStore interface {
	ResolvePair(ctx context.Context, id int64) (*domain.AssetPair, error)
	PlaceOrder(ctx context.Context, o *domain.Order) (*domain.Order, error)
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrdersByOwner(ctx context.Context, owner string, f domain.OrderFilter) ([]*domain.Order, int, error)
	CancelOrder(ctx context.Context, orderID int64, requester string, at time.Time) (*domain.Order, error)
	ListTrades(ctx context.Context, pairID int64, since time.Time) iter.Seq2[*domain.Trade, error]
}

// OrderObserver is notified of order lifecycle events.
type OrderObserver interface {
	ObserveOrder(event string)
}

// PlaceOrderRequest represents the input for order placement. Price is in
// secondary minor units per primary unit; Quantity is in primary units.
type PlaceOrderRequest struct {
	OwnerID  string
	PairID   int64
	Side     domain.Side
	Price    int64
	Quantity int64
}

// ExchangeConfig tunes the exchange service.
type ExchangeConfig struct {
	// CancelRetryTimeout bounds how long a cancel waits for a settling pair.
	CancelRetryTimeout time.Duration
}

// ExchangeService places and cancels orders and triggers settlement.
type ExchangeService struct {
	store    OrderStore
	settler  settlement.Settler
	locks    settlement.Locker
	cfg      ExchangeConfig
	logger   *slog.Logger
	observer OrderObserver
	now      func() time.Time
}

// ExchangeOption configures an ExchangeService.
type ExchangeOption func(*ExchangeService)

// WithOrderObserver registers an order observer.
func WithOrderObserver(o OrderObserver) ExchangeOption {
	return func(s *ExchangeService) { s.observer = o }
}

// WithClock replaces time.Now for cancellation timestamps.
func WithClock(now func() time.Time) ExchangeOption {
	return func(s *ExchangeService) { s.now = now }
}

// NewExchangeService creates a new ExchangeService.
func NewExchangeService(
	store OrderStore,
	settler settlement.Settler,
	locks settlement.Locker,
	cfg ExchangeConfig,
	logger *slog.Logger,
	opts ...ExchangeOption,
) *ExchangeService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ExchangeService{
		store:   store,
		settler: settler,
		locks:   locks,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder validates the request, reserves funds and stores the order,
// then runs a settlement pass on the pair. Contention on the pair is not an
// error: a later pass will match the order. The returned order reflects
// that pass.
func (s *ExchangeService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	if err := validateUserID(req.OwnerID); err != nil {
		return nil, err
	}
	if !req.Side.Valid() {
		return nil, &domain.ValidationError{
			Message: "side must be 'BUY' or 'SELL'",
		}
	}
	if req.Price <= 0 {
		return nil, &domain.ValidationError{
			Message: "price must be greater than 0",
		}
	}
	if req.Quantity <= 0 {
		return nil, &domain.ValidationError{
			Message: "quantity must be greater than 0",
		}
	}
	if req.Price > math.MaxInt64/req.Quantity {
		return nil, &domain.ValidationError{
			Message: "price × quantity is too large",
		}
	}

	pair, err := s.store.ResolvePair(ctx, req.PairID)
	if errors.Is(err, domain.ErrPairNotFound) {
		return nil, fmt.Errorf("%w: pair %d does not exist", domain.ErrInvalidPair, req.PairID)
	}
	if err != nil {
		return nil, err
	}

	order, err := s.store.PlaceOrder(ctx, &domain.Order{
		PairID:   pair.ID,
		OwnerID:  req.OwnerID,
		Side:     req.Side,
		Price:    req.Price,
		Quantity: req.Quantity,
	})
	if err != nil {
		return nil, err
	}
	s.observe(OrderPlaced)
	s.logger.Info("order placed",
		slog.Int64("order_id", order.ID),
		slog.String("pair", pair.Symbol()),
		slog.String("side", string(order.Side)),
		slog.Int64("price", order.Price),
		slog.Int64("quantity", order.Quantity),
	)

	if _, err := s.settler.Settle(ctx, pair.ID, settlement.ReasonOrderPlaced); err != nil {
		if !errors.Is(err, domain.ErrLockHeld) {
			s.logger.Error("settlement after placement failed",
				slog.Int64("order_id", order.ID),
				slog.Int64("pair_id", pair.ID),
				slog.String("error", err.Error()),
			)
		}
		return order, nil
	}

	settled, err := s.store.GetOrder(ctx, order.ID)
	if err != nil {
		return order, nil
	}
	return settled, nil
}

// CancelOrder cancels an active order on behalf of its owner. The cancel
// runs under the pair's lease, so an order consumed by a settlement pass
// that took the lease first ends up FILLED and the cancel fails with
// domain.ErrInvalidState. While the pair is being settled the cancel backs
// off and retries until CancelRetryTimeout, then fails with
// domain.ErrLockHeld.
func (s *ExchangeService) CancelOrder(ctx context.Context, orderID int64, requester string) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.OwnerID != requester {
		return nil, fmt.Errorf("%w: order %d belongs to another owner", domain.ErrForbidden, orderID)
	}
	if !order.Status.Active() {
		return nil, fmt.Errorf("%w: order %d is %s", domain.ErrInvalidState, orderID, order.Status)
	}

	lease, err := s.acquireWithBackoff(ctx, order.PairID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.locks.Release(context.WithoutCancel(ctx), lease); err != nil {
			s.logger.Warn("failed to release cancel lease",
				slog.Int64("pair_id", lease.PairID),
				slog.String("lease", lease.ID),
				slog.String("error", err.Error()),
			)
		}
	}()

	cancelled, err := s.store.CancelOrder(ctx, orderID, requester, s.now())
	if err != nil {
		return nil, err
	}
	s.observe(OrderCancelled)
	s.logger.Info("order cancelled",
		slog.Int64("order_id", cancelled.ID),
		slog.Int64("remaining", cancelled.Remaining),
	)
	return cancelled, nil
}

func (s *ExchangeService) acquireWithBackoff(ctx context.Context, pairID int64) (*domain.Lease, error) {
	deadline := s.now().Add(s.cfg.CancelRetryTimeout)
	wait := cancelBackoffMin
	for {
		lease, err := s.locks.Acquire(ctx, pairID, lock.AcquireOptions{Reason: ReasonCancel})
		if err == nil {
			return lease, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) || !s.now().Add(wait).Before(deadline) {
			return nil, err
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		wait = min(wait*2, cancelBackoffMax)
	}
}

// Settle runs a settlement pass on the pair on demand.
func (s *ExchangeService) Settle(ctx context.Context, pairID int64) (*settlement.Report, error) {
	if _, err := s.store.ResolvePair(ctx, pairID); err != nil {
		return nil, err
	}
	return s.settler.Settle(ctx, pairID, settlement.ReasonManual)
}

// ListTrades yields the pair's trades executed at or after since. An
// unknown pair yields domain.ErrPairNotFound.
func (s *ExchangeService) ListTrades(ctx context.Context, pairID int64, since time.Time) iter.Seq2[*domain.Trade, error] {
	return func(yield func(*domain.Trade, error) bool) {
		if _, err := s.store.ResolvePair(ctx, pairID); err != nil {
			yield(nil, err)
			return
		}
		for t, err := range s.store.ListTrades(ctx, pairID, since) {
			if !yield(t, err) || err != nil {
				return
			}
		}
	}
}

// GetOrder returns one of the requester's orders.
func (s *ExchangeService) GetOrder(ctx context.Context, orderID int64, requester string) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.OwnerID != requester {
		return nil, fmt.Errorf("%w: order %d belongs to another owner", domain.ErrForbidden, orderID)
	}
	return order, nil
}

// ListOrders returns a page of the owner's orders, newest first, with
// optional pair and status filtering.
func (s *ExchangeService) ListOrders(ctx context.Context, owner string, f domain.OrderFilter) ([]*domain.Order, int, error) {
	if err := validateUserID(owner); err != nil {
		return nil, 0, err
	}
	if f.Status != nil {
		switch *f.Status {
		case domain.StatusOpen, domain.StatusPartiallyFilled, domain.StatusFilled, domain.StatusCancelled:
		default:
			return nil, 0, &domain.ValidationError{
				Message: fmt.Sprintf("Invalid status filter: '%s'. Must be one of: OPEN, PARTIALLY_FILLED, FILLED, CANCELLED", *f.Status),
			}
		}
	}
	if f.Page < 1 {
		return nil, 0, &domain.ValidationError{
			Message: "page must be >= 1",
		}
	}
	if f.Limit < 1 || f.Limit > 100 {
		return nil, 0, &domain.ValidationError{
			Message: "limit must be between 1 and 100",
		}
	}
	return s.store.ListOrdersByOwner(ctx, owner, f)
}

func (s *ExchangeService) observe(event string) {
	if s.observer != nil {
		s.observer.ObserveOrder(event)
	}
}
