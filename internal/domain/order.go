package domain

import (
	"fmt"
	"time"
)

// Side indicates whether an order buys or sells the primary currency.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Status represents the lifecycle state of an order.
type Status string

const (
	StatusOpen            Status = "OPEN"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
)

// Active reports whether an order in this status may still match.
func (s Status) Active() bool {
	return s == StatusOpen || s == StatusPartiallyFilled
}

// CanTransition reports whether moving from s to next is allowed.
// FILLED and CANCELLED are terminal.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusOpen:
		return next == StatusPartiallyFilled || next == StatusFilled || next == StatusCancelled
	case StatusPartiallyFilled:
		return next == StatusPartiallyFilled || next == StatusFilled || next == StatusCancelled
	}
	return false
}

// Order is a limit order on an asset pair. Price is in secondary minor units
// per primary unit; Quantity and Remaining are in primary units.
//
// Invariants: 0 <= Remaining <= Quantity, Status == FILLED iff Remaining == 0.
type Order struct {
	ID          int64
	PairID      int64
	OwnerID     string
	Side        Side
	Price       int64
	Quantity    int64
	Remaining   int64
	Status      Status
	CreatedAt   time.Time
	CancelledAt *time.Time
}

// Filled returns the quantity executed so far.
func (o *Order) Filled() int64 {
	return o.Quantity - o.Remaining
}

// ReservedAmount returns the amount held in reservation for the unfilled
// part of the order: secondary units for buys, primary units for sells.
func (o *Order) ReservedAmount() int64 {
	if o.Side == SideBuy {
		return o.Price * o.Remaining
	}
	return o.Remaining
}

// Fill applies an execution of qty against the order and derives the new
// status.
func (o *Order) Fill(qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("%w: fill quantity %d must be positive", ErrInvalidState, qty)
	}
	if !o.Status.Active() {
		return fmt.Errorf("%w: order %d is %s", ErrInvalidState, o.ID, o.Status)
	}
	if qty > o.Remaining {
		return fmt.Errorf("%w: fill %d exceeds remaining %d of order %d", ErrInvalidState, qty, o.Remaining, o.ID)
	}
	o.Remaining -= qty
	if o.Remaining == 0 {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
	return nil
}

// Cancel marks the order cancelled at the given time.
func (o *Order) Cancel(at time.Time) error {
	if !o.Status.CanTransition(StatusCancelled) {
		return fmt.Errorf("%w: order %d is %s", ErrInvalidState, o.ID, o.Status)
	}
	o.Status = StatusCancelled
	o.CancelledAt = &at
	return nil
}

// OlderThan reports whether o has time priority over other: earlier
// creation time, then lower id.
func (o *Order) OlderThan(other *Order) bool {
	if !o.CreatedAt.Equal(other.CreatedAt) {
		return o.CreatedAt.Before(other.CreatedAt)
	}
	return o.ID < other.ID
}

// Clone returns a deep copy.
func (o *Order) Clone() *Order {
	c := *o
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

// OrderFilter narrows an owner's order listing. Zero values mean no filter.
// Page is 1-based.
type OrderFilter struct {
	PairID int64
	Status *Status
	Page   int
	Limit  int
}

// Matches reports whether o passes the pair and status filters.
func (f OrderFilter) Matches(o *Order) bool {
	if f.PairID != 0 && o.PairID != f.PairID {
		return false
	}
	return f.Status == nil || o.Status == *f.Status
}

// Bounds returns the [start, end) slice bounds of the requested page over
// total items.
func (f OrderFilter) Bounds(total int) (int, int) {
	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		return 0, total
	}
	start := (page - 1) * limit
	if start >= total {
		return total, total
	}
	return start, min(start+limit, total)
}
