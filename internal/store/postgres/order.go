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

const orderColumns = "id, pair_id, owner_id, side, price, quantity, remaining, status, created_at, cancelled_at"

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o            domain.Order
		side, status string
	)
	err := row.Scan(&o.ID, &o.PairID, &o.OwnerID, &side, &o.Price, &o.Quantity,
		&o.Remaining, &status, &o.CreatedAt, &o.CancelledAt)
	if err != nil {
		return nil, err
	}
	o.Side = domain.Side(side)
	o.Status = domain.Status(status)
	return &o, nil
}

// PlaceOrder reserves the order's funds and inserts it as OPEN in one
// transaction. It returns domain.ErrInsufficientFunds if the owner's
// available balance cannot cover the reservation.
func (s *Store) PlaceOrder(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	var placed *domain.Order
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		pair, err := scanPair(tx.QueryRow(ctx,
			"SELECT "+pairColumns+" FROM asset_pairs WHERE id = $1", o.PairID))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrPairNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get pair: %w", err)
		}

		currency, amount := domain.ReservationFor(pair, o.Side, o.Price, o.Quantity)
		tag, err := tx.Exec(ctx,
			"UPDATE balances SET available = available - $3, reserved = reserved + $3 "+
				"WHERE user_id = $1 AND currency = $2 AND available >= $3",
			o.OwnerID, currency, amount)
		if err != nil {
			return fmt.Errorf("failed to reserve funds: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s needs %d %s", domain.ErrInsufficientFunds, o.OwnerID, amount, currency)
		}

		placed, err = scanOrder(tx.QueryRow(ctx,
			"INSERT INTO exchange_orders (pair_id, owner_id, side, price, quantity, remaining, status) "+
				"VALUES ($1, $2, $3, $4, $5, $5, $6) RETURNING "+orderColumns,
			o.PairID, o.OwnerID, string(o.Side), o.Price, o.Quantity, string(domain.StatusOpen)))
		if err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

// GetOrder retrieves an order by ID or returns domain.ErrOrderNotFound.
func (s *Store) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx,
		"SELECT "+orderColumns+" FROM exchange_orders WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

// ListOrdersByOwner returns an owner's orders newest first, filtered and
// paginated, along with the total number of matching orders.
func (s *Store) ListOrdersByOwner(ctx context.Context, owner string, f domain.OrderFilter) ([]*domain.Order, int, error) {
	const where = " FROM exchange_orders WHERE owner_id = $1 " +
		"AND ($2::bigint = 0 OR pair_id = $2) AND ($3::text = '' OR status = $3)"

	var status string
	if f.Status != nil {
		status = string(*f.Status)
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT count(*)"+where, owner, f.PairID, status).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	start, end := f.Bounds(total)
	if start == end {
		return []*domain.Order{}, total, nil
	}
	rows, err := s.pool.Query(ctx,
		"SELECT "+orderColumns+where+" ORDER BY id DESC LIMIT $4 OFFSET $5",
		owner, f.PairID, status, end-start, start)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0, end-start)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, total, rows.Err()
}

// OpenOrders streams the active orders of one side of a pair in priority
// order. Each range runs a fresh query.
func (s *Store) OpenOrders(ctx context.Context, pairID int64, side domain.Side) iter.Seq2[*domain.Order, error] {
	order := "price ASC"
	if side == domain.SideBuy {
		order = "price DESC"
	}
	query := "SELECT " + orderColumns + " FROM exchange_orders " +
		"WHERE pair_id = $1 AND side = $2 AND status IN ('OPEN', 'PARTIALLY_FILLED') " +
		"ORDER BY " + order + ", created_at ASC, id ASC"

	return func(yield func(*domain.Order, error) bool) {
		rows, err := s.pool.Query(ctx, query, pairID, string(side))
		if err != nil {
			yield(nil, fmt.Errorf("failed to query open orders: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			o, err := scanOrder(rows)
			if err != nil {
				yield(nil, fmt.Errorf("failed to scan order: %w", err))
				return
			}
			if !yield(o, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// CancelOrder cancels an active order owned by requester and releases its
// remaining reservation in one transaction.
func (s *Store) CancelOrder(ctx context.Context, orderID int64, requester string, at time.Time) (*domain.Order, error) {
	var cancelled *domain.Order
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		o, err := scanOrder(tx.QueryRow(ctx,
			"SELECT "+orderColumns+" FROM exchange_orders WHERE id = $1 FOR UPDATE", orderID))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get order: %w", err)
		}
		if o.OwnerID != requester {
			return fmt.Errorf("%w: order %d belongs to another owner", domain.ErrForbidden, orderID)
		}

		reserved := o.ReservedAmount()
		if err := o.Cancel(at); err != nil {
			return err
		}

		column := "primary_currency"
		if o.Side == domain.SideBuy {
			column = "secondary_currency"
		}
		var currency string
		if err := tx.QueryRow(ctx, "SELECT "+column+" FROM asset_pairs WHERE id = $1", o.PairID).Scan(&currency); err != nil {
			return fmt.Errorf("failed to get pair: %w", err)
		}
		if err := release(ctx, tx, o.OwnerID, currency, reserved); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			"UPDATE exchange_orders SET status = $2, cancelled_at = $3 WHERE id = $1",
			o.ID, string(o.Status), o.CancelledAt); err != nil {
			return fmt.Errorf("failed to cancel order: %w", err)
		}
		cancelled = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}
