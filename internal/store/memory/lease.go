package memory

import (
	"context"
	"fmt"

	"github.com/efreitasn/pairexchange/internal/domain"
)

// GetLease returns a copy of the pair's lease row.
func (s *Store) GetLease(_ context.Context, pairID int64) (*domain.Lease, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.leases[pairID]
	if !ok {
		return nil, domain.ErrLeaseNotFound
	}
	return l.Clone(), nil
}

// CreateLease inserts the pair's first lease row.
func (s *Store) CreateLease(_ context.Context, l *domain.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.leases[l.PairID]; ok {
		return domain.ErrLeaseExists
	}
	s.leases[l.PairID] = l.Clone()
	return nil
}

// ReplaceLease swaps the pair's row for next if the current row's id is
// expectedID.
func (s *Store) ReplaceLease(_ context.Context, expectedID string, next *domain.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leases[next.PairID]
	if !ok || cur.ID != expectedID {
		return domain.ErrStaleLease
	}
	s.leases[next.PairID] = next.Clone()
	return nil
}

// heldBy reports domain.ErrStaleLease unless leaseID is the pair's current
// unreleased lease. The caller holds s.mu.
func (s *Store) heldBy(pairID int64, leaseID string) error {
	cur, ok := s.leases[pairID]
	if !ok || cur.ID != leaseID || !cur.Held() {
		return fmt.Errorf("%w: lease %q does not hold pair %d", domain.ErrStaleLease, leaseID, pairID)
	}
	return nil
}
