package service

import (
	"context"

	"github.com/efreitasn/pairexchange/internal/domain"
)

// PairStore persists asset pairs.
type PairStore interface {
	GetOrCreatePair(ctx context.Context, primary, secondary string) (*domain.AssetPair, bool, error)
	ResolvePair(ctx context.Context, id int64) (*domain.AssetPair, error)
	ListPairs(ctx context.Context) ([]*domain.AssetPair, error)
}

// PairService is the asset pair registry.
type PairService struct {
	store PairStore
}

// NewPairService creates a new PairService.
func NewPairService(store PairStore) *PairService {
	return &PairService{store: store}
}

// GetOrCreatePair validates both currency codes and returns the pair for
// them, creating it if needed. (A, B) and (B, A) resolve to the same pair.
// The boolean reports whether the pair was created by this call.
func (s *PairService) GetOrCreatePair(ctx context.Context, primary, secondary string) (*domain.AssetPair, bool, error) {
	if err := domain.ValidateCurrencies(primary, secondary); err != nil {
		return nil, false, err
	}
	return s.store.GetOrCreatePair(ctx, primary, secondary)
}

// ResolvePair returns the pair by id or domain.ErrPairNotFound.
func (s *PairService) ResolvePair(ctx context.Context, id int64) (*domain.AssetPair, error) {
	return s.store.ResolvePair(ctx, id)
}

// ListPairs returns every registered pair.
func (s *PairService) ListPairs(ctx context.Context) ([]*domain.AssetPair, error) {
	return s.store.ListPairs(ctx)
}
