package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/efreitasn/pairexchange/internal/domain"
	"github.com/jackc/pgx/v5"
)

// GetLease returns the pair's lease row or domain.ErrLeaseNotFound.
func (s *Store) GetLease(ctx context.Context, pairID int64) (*domain.Lease, error) {
	l := &domain.Lease{PairID: pairID}
	err := s.pool.QueryRow(ctx,
		"SELECT lease_id, acquired_at, trade_at, extra, released_at FROM order_processing_locks WHERE pair_id = $1",
		pairID).Scan(&l.ID, &l.AcquiredAt, &l.TradeAt, &l.Extra, &l.ReleasedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrLeaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lease: %w", err)
	}
	return l, nil
}

// CreateLease inserts the pair's first lease row. A concurrent insert for
// the same pair yields domain.ErrLeaseExists.
func (s *Store) CreateLease(ctx context.Context, l *domain.Lease) error {
	tag, err := s.pool.Exec(ctx,
		"INSERT INTO order_processing_locks (pair_id, lease_id, acquired_at, trade_at, extra, released_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (pair_id) DO NOTHING",
		l.PairID, l.ID, l.AcquiredAt, l.TradeAt, extraOf(l), l.ReleasedAt)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLeaseExists
	}
	return nil
}

// ReplaceLease overwrites the pair's row with next only while the row still
// carries expectedID.
func (s *Store) ReplaceLease(ctx context.Context, expectedID string, next *domain.Lease) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE order_processing_locks SET lease_id = $3, acquired_at = $4, trade_at = $5, extra = $6, released_at = $7 "+
			"WHERE pair_id = $1 AND lease_id = $2",
		next.PairID, expectedID, next.ID, next.AcquiredAt, next.TradeAt, extraOf(next), next.ReleasedAt)
	if err != nil {
		return fmt.Errorf("failed to replace lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleLease
	}
	return nil
}

func extraOf(l *domain.Lease) map[string]string {
	if l.Extra == nil {
		return map[string]string{}
	}
	return l.Extra
}
