package memory

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/efreitasn/pairexchange/internal/domain"
)

// Deposit credits amount to the user's available balance in currency and
// returns the updated balance.
func (s *Store) Deposit(_ context.Context, user, currency string, amount int64) (domain.Balance, error) {
	if amount <= 0 {
		return domain.Balance{}, &domain.ValidationError{Message: fmt.Sprintf("deposit amount %d must be positive", amount)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.balance(user, currency)
	if b.Available > math.MaxInt64-amount {
		return domain.Balance{}, &domain.ValidationError{Message: fmt.Sprintf("deposit of %d overflows the %s balance", amount, currency)}
	}
	b.Available += amount
	return *b, nil
}

// Balances returns all of a user's balances sorted by currency. It returns
// domain.ErrAccountNotFound for a user that never held anything.
func (s *Store) Balances(_ context.Context, user string) ([]domain.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Balance
	for k, b := range s.balances {
		if k.user == user {
			out = append(out, *b)
		}
	}
	if len(out) == 0 {
		return nil, domain.ErrAccountNotFound
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}
