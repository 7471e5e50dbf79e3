package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string such as "95.50" to integer minor
// units with the given number of decimal places. More precision than scale
// allows is rejected rather than rounded.
func ParseAmount(s string, scale int32) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not a decimal number", s)
	}
	shifted := d.Shift(scale)
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %q must have at most %d decimal places", s, scale)
	}
	if shifted.Abs().GreaterThan(decimal.NewFromInt(1 << 62)) {
		return 0, fmt.Errorf("amount %q is out of range", s)
	}
	return shifted.IntPart(), nil
}

// FormatAmount renders minor units back to a fixed-point string.
func FormatAmount(minor int64, scale int32) string {
	return decimal.New(minor, -scale).StringFixed(scale)
}
