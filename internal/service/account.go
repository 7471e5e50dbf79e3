package service

import (
	"context"
	"fmt"
	"regexp"

	"github.com/efreitasn/pairexchange/internal/domain"
)

var (
	userIDRegex   = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	currencyRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,9}$`)
)

// AccountStore holds per-user, per-currency balances.
type AccountStore interface {
	Deposit(ctx context.Context, user, currency string, amount int64) (domain.Balance, error)
	Balances(ctx context.Context, user string) ([]domain.Balance, error)
}

// AccountService credits deposits and reports balances.
type AccountService struct {
	store AccountStore
}

// NewAccountService creates a new AccountService.
func NewAccountService(store AccountStore) *AccountService {
	return &AccountService{store: store}
}

// Deposit validates and credits amount minor units of currency to the user.
func (s *AccountService) Deposit(ctx context.Context, user, currency string, amount int64) (domain.Balance, error) {
	if err := validateUserID(user); err != nil {
		return domain.Balance{}, err
	}
	if !currencyRegex.MatchString(currency) {
		return domain.Balance{}, &domain.ValidationError{
			Message: fmt.Sprintf("currency must match %s", currencyRegex),
		}
	}
	if amount <= 0 {
		return domain.Balance{}, &domain.ValidationError{
			Message: "amount must be greater than 0",
		}
	}
	return s.store.Deposit(ctx, user, currency, amount)
}

// Balances returns every balance the user holds.
func (s *AccountService) Balances(ctx context.Context, user string) ([]domain.Balance, error) {
	if err := validateUserID(user); err != nil {
		return nil, err
	}
	return s.store.Balances(ctx, user)
}

func validateUserID(user string) error {
	if !userIDRegex.MatchString(user) {
		return &domain.ValidationError{
			Message: fmt.Sprintf("user id must match %s", userIDRegex),
		}
	}
	return nil
}
