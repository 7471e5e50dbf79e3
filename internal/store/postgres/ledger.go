package postgres

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/efreitasn/pairexchange/internal/domain"
	"github.com/jackc/pgx/v5"
)

// Deposit credits amount to the user's available balance in currency and
// returns the updated balance.
func (s *Store) Deposit(ctx context.Context, user, currency string, amount int64) (domain.Balance, error) {
	if amount <= 0 {
		return domain.Balance{}, &domain.ValidationError{Message: fmt.Sprintf("deposit amount %d must be positive", amount)}
	}

	b := domain.Balance{Currency: currency}
	err := s.pool.QueryRow(ctx,
		"INSERT INTO balances (user_id, currency, available) VALUES ($1, $2, $3) "+
			"ON CONFLICT (user_id, currency) DO UPDATE SET available = balances.available + EXCLUDED.available "+
			"RETURNING available, reserved",
		user, currency, amount).Scan(&b.Available, &b.Reserved)
	if isOutOfRange(err) {
		return domain.Balance{}, &domain.ValidationError{Message: fmt.Sprintf("deposit of %d overflows the %s balance", amount, currency)}
	}
	if err != nil {
		return domain.Balance{}, fmt.Errorf("failed to deposit: %w", err)
	}
	return b, nil
}

// Balances returns all of a user's balances sorted by currency. It returns
// domain.ErrAccountNotFound for a user that never held anything.
func (s *Store) Balances(ctx context.Context, user string) ([]domain.Balance, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT currency, available, reserved FROM balances WHERE user_id = $1 ORDER BY currency", user)
	if err != nil {
		return nil, fmt.Errorf("failed to get balances: %w", err)
	}
	defer rows.Close()

	var out []domain.Balance
	for rows.Next() {
		var b domain.Balance
		if err := rows.Scan(&b.Currency, &b.Available, &b.Reserved); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, domain.ErrAccountNotFound
	}
	return out, nil
}

// release moves amount from reserved back to available.
func release(ctx context.Context, tx pgx.Tx, user, currency string, amount int64) error {
	return settleReserved(ctx, tx, user, currency, amount, amount)
}

// settleReserved takes amount out of reserved and credits refund to
// available on the same row. The row must hold at least amount in reserve.
func settleReserved(ctx context.Context, tx pgx.Tx, user, currency string, amount, refund int64) error {
	tag, err := tx.Exec(ctx,
		"UPDATE balances SET reserved = reserved - $3, available = available + $4 "+
			"WHERE user_id = $1 AND currency = $2 AND reserved >= $3",
		user, currency, amount, refund)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s has less than %d %s reserved", domain.ErrInvalidState, user, amount, currency)
	}
	return nil
}

// credit adds amount to available, creating the row if needed.
func credit(ctx context.Context, tx pgx.Tx, user, currency string, amount int64) error {
	_, err := tx.Exec(ctx,
		"INSERT INTO balances (user_id, currency, available) VALUES ($1, $2, $3) "+
			"ON CONFLICT (user_id, currency) DO UPDATE SET available = balances.available + EXCLUDED.available",
		user, currency, amount)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	return nil
}

// ledgerMove is one balance row change inside a fill. A non-zero reserved
// amount is taken out of reserve and available is credited.
type ledgerMove struct {
	user      string
	currency  string
	reserved  int64
	available int64
}

// applyMoves applies the moves sorted by (user, currency) so that concurrent
// fills on different pairs lock shared balance rows in the same order.
func applyMoves(ctx context.Context, tx pgx.Tx, moves []ledgerMove) error {
	slices.SortFunc(moves, func(a, b ledgerMove) int {
		return cmp.Or(cmp.Compare(a.user, b.user), cmp.Compare(a.currency, b.currency))
	})
	for _, m := range moves {
		var err error
		if m.reserved > 0 {
			err = settleReserved(ctx, tx, m.user, m.currency, m.reserved, m.available)
		} else {
			err = credit(ctx, tx, m.user, m.currency, m.available)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
