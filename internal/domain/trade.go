package domain

import (
	"fmt"
	"time"
)

// Trade is the immutable record of one executed fill between a buy and a
// sell order.
type Trade struct {
	ID          int64
	PairID      int64
	BuyOrderID  int64
	SellOrderID int64
	BuyerID     string
	SellerID    string
	Quantity    int64
	Price       int64 // execution price, the maker's limit
	Overpayment int64 // refunded to the taker buyer
	TakerSide   Side
	LeaseID     string
	TradeAt     time.Time // logical execution time from the lease
	CreatedAt   time.Time
}

// Notional returns quantity × price in secondary minor units.
func (t *Trade) Notional() int64 {
	return t.Quantity * t.Price
}

// Execution is the settlement command for one fill: everything a store
// needs to apply the fill as a single atomic unit.
type Execution struct {
	PairID      int64
	BuyOrderID  int64
	SellOrderID int64
	Quantity    int64
	Price       int64
	Overpayment int64
	TakerSide   Side
	LeaseID     string
	TradeAt     time.Time
}

// Refund returns what the buyer gets back from its reservation: the
// reserved buyPrice × quantity minus the notional actually paid.
func (e *Execution) Refund(buyPrice int64) int64 {
	return e.Quantity*buyPrice - e.Quantity*e.Price
}

// Validate checks an execution against the two orders it fills.
func (e *Execution) Validate(buy, sell *Order) error {
	switch {
	case e.Quantity <= 0:
		return fmt.Errorf("%w: execution quantity %d must be positive", ErrInvalidState, e.Quantity)
	case buy.Side != SideBuy || sell.Side != SideSell:
		return fmt.Errorf("%w: orders %d/%d are not a buy/sell pair", ErrInvalidState, buy.ID, sell.ID)
	case buy.PairID != e.PairID || sell.PairID != e.PairID:
		return fmt.Errorf("%w: orders %d/%d do not belong to pair %d", ErrInvalidState, buy.ID, sell.ID, e.PairID)
	case buy.OwnerID == sell.OwnerID:
		return fmt.Errorf("%w: orders %d/%d share owner %s", ErrInvalidState, buy.ID, sell.ID, buy.OwnerID)
	case e.Price > buy.Price || e.Price < sell.Price:
		return fmt.Errorf("%w: price %d outside [%d, %d]", ErrInvalidState, e.Price, sell.Price, buy.Price)
	case e.Overpayment != e.Refund(buy.Price):
		return fmt.Errorf("%w: overpayment %d does not match refund %d", ErrInvalidState, e.Overpayment, e.Refund(buy.Price))
	}
	return nil
}
