package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/efreitasn/pairexchange/internal/domain"
	"github.com/jackc/pgx/v5"
)

const pairColumns = "id, primary_currency, secondary_currency, created_at"

func scanPair(row pgx.Row) (*domain.AssetPair, error) {
	p := &domain.AssetPair{}
	if err := row.Scan(&p.ID, &p.Primary, &p.Secondary, &p.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// GetOrCreatePair returns the pair for the two currencies in either order,
// creating it if needed. The boolean reports whether a pair was created.
func (s *Store) GetOrCreatePair(ctx context.Context, primary, secondary string) (*domain.AssetPair, bool, error) {
	p, err := scanPair(s.pool.QueryRow(ctx,
		"INSERT INTO asset_pairs (primary_currency, secondary_currency) VALUES ($1, $2) "+
			"ON CONFLICT DO NOTHING RETURNING "+pairColumns,
		primary, secondary))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to create pair: %w", err)
	}

	p, err = scanPair(s.pool.QueryRow(ctx,
		"SELECT "+pairColumns+" FROM asset_pairs "+
			"WHERE LEAST(primary_currency, secondary_currency) = LEAST($1::text, $2::text) "+
			"AND GREATEST(primary_currency, secondary_currency) = GREATEST($1::text, $2::text)",
		primary, secondary))
	if err != nil {
		return nil, false, fmt.Errorf("failed to get pair: %w", err)
	}
	return p, false, nil
}

// ResolvePair returns the pair by id or domain.ErrPairNotFound.
func (s *Store) ResolvePair(ctx context.Context, id int64) (*domain.AssetPair, error) {
	p, err := scanPair(s.pool.QueryRow(ctx,
		"SELECT "+pairColumns+" FROM asset_pairs WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPairNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pair: %w", err)
	}
	return p, nil
}

// ListPairs returns every registered pair in creation order.
func (s *Store) ListPairs(ctx context.Context) ([]*domain.AssetPair, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+pairColumns+" FROM asset_pairs ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list pairs: %w", err)
	}
	defer rows.Close()

	var pairs []*domain.AssetPair
	for rows.Next() {
		p, err := scanPair(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	return pairs, rows.Err()
}
