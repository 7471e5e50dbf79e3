package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/efreitasn/pairexchange/internal/domain"
	"github.com/jackc/pgx/v5"
)

const tradeColumns = "id, pair_id, buy_order_id, sell_order_id, buyer_id, seller_id, quantity, price, " +
	"overpayment, taker_side, lease_id, trade_at, created_at"

func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var (
		t     domain.Trade
		taker string
	)
	err := row.Scan(&t.ID, &t.PairID, &t.BuyOrderID, &t.SellOrderID, &t.BuyerID, &t.SellerID,
		&t.Quantity, &t.Price, &t.Overpayment, &taker, &t.LeaseID, &t.TradeAt, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.TakerSide = domain.Side(taker)
	return &t, nil
}

// ApplyFill applies one execution in a single transaction. The lease row is
// share-locked and must still name the execution's lease. Both orders are
// locked in id order and checked, the ledger rows are moved in key order, the
// orders are updated and the trade is inserted.
func (s *Store) ApplyFill(ctx context.Context, e *domain.Execution) (*domain.Trade, error) {
	var trade *domain.Trade
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		var primary, secondary string
		err := tx.QueryRow(ctx,
			"SELECT primary_currency, secondary_currency FROM asset_pairs WHERE id = $1", e.PairID).
			Scan(&primary, &secondary)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrPairNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get pair: %w", err)
		}
		if err := holdsLease(ctx, tx, e.PairID, e.LeaseID); err != nil {
			return err
		}

		rows, err := tx.Query(ctx,
			"SELECT "+orderColumns+" FROM exchange_orders WHERE id = ANY($1) ORDER BY id FOR UPDATE",
			[]int64{e.BuyOrderID, e.SellOrderID})
		if err != nil {
			return fmt.Errorf("failed to lock orders: %w", err)
		}
		locked := make(map[int64]*domain.Order, 2)
		for rows.Next() {
			o, err := scanOrder(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan order: %w", err)
			}
			locked[o.ID] = o
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to lock orders: %w", err)
		}

		buy, ok := locked[e.BuyOrderID]
		if !ok {
			return fmt.Errorf("buy order %d: %w", e.BuyOrderID, domain.ErrOrderNotFound)
		}
		sell, ok := locked[e.SellOrderID]
		if !ok {
			return fmt.Errorf("sell order %d: %w", e.SellOrderID, domain.ErrOrderNotFound)
		}
		if err := e.Validate(buy, sell); err != nil {
			return err
		}
		if err := buy.Fill(e.Quantity); err != nil {
			return err
		}
		if err := sell.Fill(e.Quantity); err != nil {
			return err
		}

		moves := []ledgerMove{
			{user: buy.OwnerID, currency: secondary, reserved: e.Quantity * buy.Price, available: e.Overpayment},
			{user: sell.OwnerID, currency: secondary, available: e.Quantity * e.Price},
			{user: sell.OwnerID, currency: primary, reserved: e.Quantity},
			{user: buy.OwnerID, currency: primary, available: e.Quantity},
		}
		if err := applyMoves(ctx, tx, moves); err != nil {
			return err
		}

		for _, o := range []*domain.Order{buy, sell} {
			if _, err := tx.Exec(ctx,
				"UPDATE exchange_orders SET remaining = $2, status = $3 WHERE id = $1",
				o.ID, o.Remaining, string(o.Status)); err != nil {
				return fmt.Errorf("failed to update order %d: %w", o.ID, err)
			}
		}

		trade, err = scanTrade(tx.QueryRow(ctx,
			"INSERT INTO trades (pair_id, buy_order_id, sell_order_id, buyer_id, seller_id, quantity, price, "+
				"overpayment, taker_side, lease_id, trade_at) "+
				"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING "+tradeColumns,
			e.PairID, buy.ID, sell.ID, buy.OwnerID, sell.OwnerID, e.Quantity, e.Price,
			e.Overpayment, string(e.TakerSide), e.LeaseID, e.TradeAt))
		if err != nil {
			if isCheckViolation(err) {
				return fmt.Errorf("%w: %v", domain.ErrInvalidState, err)
			}
			return fmt.Errorf("failed to create trade: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trade, nil
}

// holdsLease share-locks the pair's lease row and fails with
// domain.ErrStaleLease unless it still names leaseID and is unreleased.
func holdsLease(ctx context.Context, tx pgx.Tx, pairID int64, leaseID string) error {
	var (
		current  string
		released *time.Time
	)
	err := tx.QueryRow(ctx,
		"SELECT lease_id, released_at FROM order_processing_locks WHERE pair_id = $1 FOR SHARE", pairID).
		Scan(&current, &released)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: pair %d has no lease", domain.ErrStaleLease, pairID)
	}
	if err != nil {
		return fmt.Errorf("failed to check lease: %w", err)
	}
	if current != leaseID || released != nil {
		return fmt.Errorf("%w: lease %q does not hold pair %d", domain.ErrStaleLease, leaseID, pairID)
	}
	return nil
}

// ListTrades streams the pair's trades with trade_at at or after since, in
// execution order.
func (s *Store) ListTrades(ctx context.Context, pairID int64, since time.Time) iter.Seq2[*domain.Trade, error] {
	return func(yield func(*domain.Trade, error) bool) {
		rows, err := s.pool.Query(ctx,
			"SELECT "+tradeColumns+" FROM trades WHERE pair_id = $1 AND trade_at >= $2 ORDER BY id",
			pairID, since)
		if err != nil {
			yield(nil, fmt.Errorf("failed to query trades: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			t, err := scanTrade(rows)
			if err != nil {
				yield(nil, fmt.Errorf("failed to scan trade: %w", err))
				return
			}
			if !yield(t, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}
