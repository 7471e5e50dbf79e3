package engine

import "github.com/efreitasn/pairexchange/internal/domain"

// Fill is one proposed execution between a buy and a sell order.
type Fill struct {
	Buy         *domain.Order // as passed in the snapshot, not mutated
	Sell        *domain.Order
	Quantity    int64
	Price       int64 // the maker's limit price
	Overpayment int64 // reservation refund owed to a taker buyer
	Taker       domain.Side
}

// Maker returns the order whose limit set the execution price.
func (f Fill) Maker() *domain.Order {
	if f.Taker == domain.SideBuy {
		return f.Sell
	}
	return f.Buy
}

// Notional returns quantity × price.
func (f Fill) Notional() int64 {
	return f.Quantity * f.Price
}

// Match runs one continuous double auction pass over a snapshot of a pair's
// open orders and returns the fills in execution order. It is pure: the
// input orders are copied, never mutated, and the same snapshot always
// yields the same fills.
//
// Orders are prioritized by price then age (see Less). The best buy and
// best sell cross iff buy.Price >= sell.Price. The older of the two is the
// maker and sets the price. When the best buy and best sell share an owner,
// the older one is kept as anchor and the younger yields: the anchor is
// paired with the next crossing order of a different owner on the
// younger's side, or dropped from the pass if there is none.
func Match(buys, sells []*domain.Order) []Fill {
	book := NewBook()
	origin := make(map[int64]*domain.Order, len(buys)+len(sells))
	load := func(orders []*domain.Order, side domain.Side) {
		for _, o := range orders {
			if o == nil || o.Side != side || !o.Status.Active() || o.Remaining <= 0 {
				continue
			}
			c := *o
			origin[o.ID] = o
			book.Insert(&c)
		}
	}
	load(buys, domain.SideBuy)
	load(sells, domain.SideSell)

	var fills []Fill
	for {
		buy, ok := book.Best(domain.SideBuy)
		if !ok {
			break
		}
		sell, ok := book.Best(domain.SideSell)
		if !ok {
			break
		}
		if buy.Price < sell.Price {
			break
		}

		if buy.OwnerID == sell.OwnerID {
			anchor, younger := buy, sell
			if sell.OlderThan(buy) {
				anchor, younger = sell, buy
			}
			partner := counterparty(book, anchor, younger.Side)
			if partner == nil {
				book.Remove(anchor.ID)
				continue
			}
			if anchor.Side == domain.SideBuy {
				buy, sell = anchor, partner
			} else {
				buy, sell = partner, anchor
			}
		}

		f := execute(buy, sell)
		f.Buy = origin[buy.ID]
		f.Sell = origin[sell.ID]
		fills = append(fills, f)

		if buy.Remaining == 0 {
			book.Remove(buy.ID)
		}
		if sell.Remaining == 0 {
			book.Remove(sell.ID)
		}
	}
	return fills
}

// counterparty returns the highest-priority order on side that crosses the
// anchor and belongs to another owner.
func counterparty(book *Book, anchor *domain.Order, side domain.Side) *domain.Order {
	var found *domain.Order
	book.Walk(side, func(o *domain.Order) bool {
		if !crosses(anchor, o) {
			return false
		}
		if o.OwnerID != anchor.OwnerID {
			found = o
			return false
		}
		return true
	})
	return found
}

func crosses(a, b *domain.Order) bool {
	if a.Side == domain.SideBuy {
		return a.Price >= b.Price
	}
	return b.Price >= a.Price
}

// execute computes the fill between two crossing working copies and
// decrements their remaining quantities.
func execute(buy, sell *domain.Order) Fill {
	qty := min(buy.Remaining, sell.Remaining)

	maker, taker := buy, sell
	if sell.OlderThan(buy) {
		maker, taker = sell, buy
	}

	f := Fill{
		Quantity: qty,
		Price:    maker.Price,
		Taker:    taker.Side,
	}
	if taker.Side == domain.SideBuy {
		f.Overpayment = qty * (buy.Price - maker.Price)
	}

	buy.Remaining -= qty
	sell.Remaining -= qty
	return f
}
