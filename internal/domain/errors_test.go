package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "price must be greater than 0"}
	if err.Error() != "price must be greater than 0" {
		t.Errorf("Error() = %q, want %q", err.Error(), "price must be greater than 0")
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	errs := []error{
		ErrInvalidPair,
		ErrPairNotFound,
		ErrOrderNotFound,
		ErrAccountNotFound,
		ErrForbidden,
		ErrInvalidState,
		ErrInsufficientFunds,
		ErrLockHeld,
		ErrStaleLease,
		ErrLeaseExists,
		ErrLeaseNotFound,
	}
	for i := 0; i < len(errs); i++ {
		for j := i + 1; j < len(errs); j++ {
			if errors.Is(errs[i], errs[j]) {
				t.Errorf("sentinel errors %d and %d should be distinct", i, j)
			}
		}
	}
}

func TestSettlementFailure_Unwrap(t *testing.T) {
	err := error(&SettlementFailure{
		PairID:      3,
		FillIndex:   1,
		BuyOrderID:  10,
		SellOrderID: 11,
		Err:         ErrInsufficientFunds,
	})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Error("SettlementFailure should unwrap to its cause")
	}
	var sf *SettlementFailure
	if !errors.As(err, &sf) || sf.FillIndex != 1 {
		t.Errorf("errors.As = %+v, want fill index 1", sf)
	}
	if !strings.Contains(err.Error(), "pair 3") {
		t.Errorf("Error() = %q, want it to name the pair", err.Error())
	}
}
