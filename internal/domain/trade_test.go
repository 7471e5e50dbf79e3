package domain

import (
	"errors"
	"testing"
)

func TestExecution_Validate(t *testing.T) {
	buy := &Order{ID: 1, PairID: 1, OwnerID: "a", Side: SideBuy, Price: 11}
	sell := &Order{ID: 2, PairID: 1, OwnerID: "b", Side: SideSell, Price: 9}

	valid := Execution{PairID: 1, Quantity: 3, Price: 9, Overpayment: 6}
	if err := valid.Validate(buy, sell); err != nil {
		t.Fatalf("expected valid execution, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(e *Execution, buy, sell *Order)
	}{
		{"zero quantity", func(e *Execution, _, _ *Order) { e.Quantity = 0 }},
		{"sides swapped", func(_ *Execution, buy, _ *Order) { buy.Side = SideSell }},
		{"wrong pair", func(e *Execution, _, _ *Order) { e.PairID = 2 }},
		{"same owner", func(_ *Execution, _, sell *Order) { sell.OwnerID = "a" }},
		{"price above buy limit", func(e *Execution, _, _ *Order) { e.Price = 12; e.Overpayment = -3 }},
		{"price below sell limit", func(e *Execution, _, _ *Order) { e.Price = 8; e.Overpayment = 9 }},
		{"overpayment mismatch", func(e *Execution, _, _ *Order) { e.Overpayment = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid
			b, s := *buy, *sell
			tt.mutate(&e, &b, &s)
			if err := e.Validate(&b, &s); !errors.Is(err, ErrInvalidState) {
				t.Errorf("expected ErrInvalidState, got %v", err)
			}
		})
	}
}
