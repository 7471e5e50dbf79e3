package memory

import (
	"context"

	"github.com/efreitasn/pairexchange/internal/domain"
)

// GetOrCreatePair returns the pair for the two currencies, creating it if
// needed. The lookup is direction-independent: (USD, BTC) resolves to an
// existing BTC/USD pair. The boolean reports whether a pair was created.
func (s *Store) GetOrCreatePair(_ context.Context, primary, secondary string) (*domain.AssetPair, bool, error) {
	key := domain.PairKey(primary, secondary)

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.pairKeys[key]; ok {
		p := *s.pairs[id]
		return &p, false, nil
	}

	s.nextPairID++
	p := &domain.AssetPair{
		ID:        s.nextPairID,
		Primary:   primary,
		Secondary: secondary,
		CreatedAt: s.now(),
	}
	s.pairs[p.ID] = p
	s.pairKeys[key] = p.ID
	s.pairOrder = append(s.pairOrder, p.ID)

	out := *p
	return &out, true, nil
}

// ResolvePair returns the pair by id or domain.ErrPairNotFound.
func (s *Store) ResolvePair(_ context.Context, id int64) (*domain.AssetPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pairs[id]
	if !ok {
		return nil, domain.ErrPairNotFound
	}
	out := *p
	return &out, nil
}

// ListPairs returns every registered pair in creation order.
func (s *Store) ListPairs(_ context.Context) ([]*domain.AssetPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.AssetPair, 0, len(s.pairOrder))
	for _, id := range s.pairOrder {
		p := *s.pairs[id]
		out = append(out, &p)
	}
	return out, nil
}
