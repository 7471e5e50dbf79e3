package domain

// Balance is a user's position in a single currency. Reserved is held by
// active orders and cannot be spent elsewhere.
type Balance struct {
	Currency  string
	Available int64
	Reserved  int64
}

// Total returns available plus reserved.
func (b Balance) Total() int64 {
	return b.Available + b.Reserved
}

// ReservationFor returns the currency and amount an order must reserve at
// placement: price × quantity of the secondary currency for a buy, the
// quantity of the primary currency for a sell.
func ReservationFor(pair *AssetPair, side Side, price, quantity int64) (string, int64) {
	if side == SideBuy {
		return pair.Secondary, price * quantity
	}
	return pair.Primary, quantity
}
