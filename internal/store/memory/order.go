package memory

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/efreitasn/pairexchange/internal/domain"
)

// PlaceOrder reserves the order's funds and inserts it as OPEN in one step.
// The caller fills PairID, OwnerID, Side, Price and Quantity; the store
// assigns ID, Remaining, Status and CreatedAt. It returns
// domain.ErrInsufficientFunds without side effects if the owner's available
// balance cannot cover the reservation.
func (s *Store) PlaceOrder(_ context.Context, o *domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, ok := s.pairs[o.PairID]
	if !ok {
		return nil, domain.ErrPairNotFound
	}

	currency, amount := domain.ReservationFor(pair, o.Side, o.Price, o.Quantity)
	bal := s.balance(o.OwnerID, currency)
	if bal.Available < amount {
		return nil, fmt.Errorf("%w: %s needs %d %s, has %d available",
			domain.ErrInsufficientFunds, o.OwnerID, amount, currency, bal.Available)
	}
	bal.Available -= amount
	bal.Reserved += amount

	s.nextOrderID++
	placed := &domain.Order{
		ID:        s.nextOrderID,
		PairID:    o.PairID,
		OwnerID:   o.OwnerID,
		Side:      o.Side,
		Price:     o.Price,
		Quantity:  o.Quantity,
		Remaining: o.Quantity,
		Status:    domain.StatusOpen,
		CreatedAt: s.now(),
	}
	s.orders[placed.ID] = placed
	s.ownerOrders[placed.OwnerID] = append(s.ownerOrders[placed.OwnerID], placed.ID)
	s.book(placed.PairID).Insert(placed)

	return placed.Clone(), nil
}

// GetOrder retrieves an order by ID. It returns domain.ErrOrderNotFound if
// the order does not exist.
func (s *Store) GetOrder(_ context.Context, id int64) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

// ListOrdersByOwner returns an owner's orders newest first, filtered and
// paginated, along with the total number of matching orders.
func (s *Store) ListOrdersByOwner(_ context.Context, owner string, f domain.OrderFilter) ([]*domain.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.ownerOrders[owner]
	filtered := make([]*domain.Order, 0)
	for i := len(ids) - 1; i >= 0; i-- {
		o := s.orders[ids[i]]
		if f.Matches(o) {
			filtered = append(filtered, o)
		}
	}

	start, end := f.Bounds(len(filtered))
	out := make([]*domain.Order, 0, end-start)
	for _, o := range filtered[start:end] {
		out = append(out, o.Clone())
	}
	return out, len(filtered), nil
}

// OpenOrders yields the active orders of one side of a pair in priority
// order. The sequence iterates a snapshot taken when iteration starts, so
// ranging twice gives two consistent views.
func (s *Store) OpenOrders(ctx context.Context, pairID int64, side domain.Side) iter.Seq2[*domain.Order, error] {
	return func(yield func(*domain.Order, error) bool) {
		s.mu.RLock()
		var snapshot []*domain.Order
		if b, ok := s.books[pairID]; ok {
			snapshot = make([]*domain.Order, 0, b.Len(side))
			b.Walk(side, func(o *domain.Order) bool {
				snapshot = append(snapshot, o.Clone())
				return true
			})
		}
		s.mu.RUnlock()

		for _, o := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(o, nil) {
				return
			}
		}
	}
}

// CancelOrder cancels an active order owned by requester and releases its
// remaining reservation. It returns domain.ErrForbidden for another owner's
// order and domain.ErrInvalidState for a FILLED or CANCELLED one.
func (s *Store) CancelOrder(_ context.Context, orderID int64, requester string, at time.Time) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	if o.OwnerID != requester {
		return nil, fmt.Errorf("%w: order %d belongs to another owner", domain.ErrForbidden, orderID)
	}
	pair := s.pairs[o.PairID]

	reserved := o.ReservedAmount()
	if err := o.Cancel(at); err != nil {
		return nil, err
	}
	currency := pair.Primary
	if o.Side == domain.SideBuy {
		currency = pair.Secondary
	}
	bal := s.balance(o.OwnerID, currency)
	bal.Reserved -= reserved
	bal.Available += reserved

	s.book(o.PairID).Remove(o.ID)
	return o.Clone(), nil
}
