package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrInvalidPair       = errors.New("invalid_pair")
	ErrPairNotFound      = errors.New("pair_not_found")
	ErrOrderNotFound     = errors.New("order_not_found")
	ErrAccountNotFound   = errors.New("account_not_found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidState      = errors.New("invalid_state")
	ErrInsufficientFunds = errors.New("insufficient_funds")

	// ErrLockHeld is a contention error: another settlement pass holds a
	// fresh lease on the pair. Callers back off and retry.
	ErrLockHeld = errors.New("lock_held")
	// ErrStaleLease is returned when a lease no longer matches the current
	// holder, usually because it was reclaimed.
	ErrStaleLease = errors.New("stale_lease")
	// ErrLeaseExists is returned by lease stores when a row for the pair
	// was created concurrently.
	ErrLeaseExists = errors.New("lease_exists")
	// ErrLeaseNotFound is returned by lease stores for a pair that never
	// had a lease.
	ErrLeaseNotFound = errors.New("lease_not_found")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// SettlementFailure reports a consistency error that halted a settlement
// pass. Fills committed before FillIndex stay committed.
type SettlementFailure struct {
	PairID      int64
	FillIndex   int
	BuyOrderID  int64
	SellOrderID int64
	Err         error
}

func (e *SettlementFailure) Error() string {
	return fmt.Sprintf("settlement of pair %d failed at fill %d (buy %d, sell %d): %v",
		e.PairID, e.FillIndex, e.BuyOrderID, e.SellOrderID, e.Err)
}

func (e *SettlementFailure) Unwrap() error {
	return e.Err
}
