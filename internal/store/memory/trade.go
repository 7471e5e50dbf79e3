package memory

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/efreitasn/pairexchange/internal/domain"
)

// ApplyFill applies one execution atomically: the execution's lease must
// still hold the pair, both orders are re-read and checked, the ledger moves
// and order updates are staged, and everything is committed together with
// the trade record. On error nothing changes.
func (s *Store) ApplyFill(_ context.Context, e *domain.Execution) (*domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair, ok := s.pairs[e.PairID]
	if !ok {
		return nil, domain.ErrPairNotFound
	}
	if err := s.heldBy(pair.ID, e.LeaseID); err != nil {
		return nil, err
	}
	liveBuy, ok := s.orders[e.BuyOrderID]
	if !ok {
		return nil, fmt.Errorf("buy order %d: %w", e.BuyOrderID, domain.ErrOrderNotFound)
	}
	liveSell, ok := s.orders[e.SellOrderID]
	if !ok {
		return nil, fmt.Errorf("sell order %d: %w", e.SellOrderID, domain.ErrOrderNotFound)
	}
	if err := e.Validate(liveBuy, liveSell); err != nil {
		return nil, err
	}

	buy, sell := liveBuy.Clone(), liveSell.Clone()
	if err := buy.Fill(e.Quantity); err != nil {
		return nil, err
	}
	if err := sell.Fill(e.Quantity); err != nil {
		return nil, err
	}

	notional := e.Quantity * e.Price
	ledger := newLedgerTx(s)
	if err := ledger.move(buy.OwnerID, pair.Secondary, -e.Quantity*buy.Price, e.Overpayment); err != nil {
		return nil, err
	}
	if err := ledger.move(sell.OwnerID, pair.Secondary, 0, notional); err != nil {
		return nil, err
	}
	if err := ledger.move(sell.OwnerID, pair.Primary, -e.Quantity, 0); err != nil {
		return nil, err
	}
	if err := ledger.move(buy.OwnerID, pair.Primary, 0, e.Quantity); err != nil {
		return nil, err
	}

	ledger.commit()
	*liveBuy = *buy
	*liveSell = *sell
	book := s.book(pair.ID)
	for _, o := range []*domain.Order{liveBuy, liveSell} {
		if !o.Status.Active() {
			book.Remove(o.ID)
		}
	}

	s.nextTradeID++
	t := &domain.Trade{
		ID:          s.nextTradeID,
		PairID:      pair.ID,
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		BuyerID:     buy.OwnerID,
		SellerID:    sell.OwnerID,
		Quantity:    e.Quantity,
		Price:       e.Price,
		Overpayment: e.Overpayment,
		TakerSide:   e.TakerSide,
		LeaseID:     e.LeaseID,
		TradeAt:     e.TradeAt,
		CreatedAt:   s.now(),
	}
	s.trades[pair.ID] = append(s.trades[pair.ID], t)

	out := *t
	return &out, nil
}

// ListTrades yields the pair's trades with TradeAt at or after since, in
// execution order. A zero since yields every trade.
func (s *Store) ListTrades(ctx context.Context, pairID int64, since time.Time) iter.Seq2[*domain.Trade, error] {
	return func(yield func(*domain.Trade, error) bool) {
		s.mu.RLock()
		all := s.trades[pairID]
		snapshot := make([]domain.Trade, 0, len(all))
		for _, t := range all {
			if t.TradeAt.Before(since) {
				continue
			}
			snapshot = append(snapshot, *t)
		}
		s.mu.RUnlock()

		for i := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(&snapshot[i], nil) {
				return
			}
		}
	}
}

// ledgerTx stages balance changes so that a failed check leaves the ledger
// untouched.
type ledgerTx struct {
	s      *Store
	staged map[balanceKey]domain.Balance
}

func newLedgerTx(s *Store) *ledgerTx {
	return &ledgerTx{s: s, staged: make(map[balanceKey]domain.Balance)}
}

// move adds the deltas to the staged balance, rejecting a negative result.
func (l *ledgerTx) move(user, currency string, reservedDelta, availableDelta int64) error {
	k := balanceKey{user: user, currency: currency}
	b, ok := l.staged[k]
	if !ok {
		if live, found := l.s.balances[k]; found {
			b = *live
		} else {
			b = domain.Balance{Currency: currency}
		}
	}
	b.Reserved += reservedDelta
	b.Available += availableDelta
	if b.Reserved < 0 || b.Available < 0 {
		return fmt.Errorf("%w: %s %s would go negative (available %d, reserved %d)",
			domain.ErrInvalidState, user, currency, b.Available, b.Reserved)
	}
	l.staged[k] = b
	return nil
}

func (l *ledgerTx) commit() {
	for k, b := range l.staged {
		*l.s.balance(k.user, k.currency) = b
	}
}
