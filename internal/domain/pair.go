package domain

import (
	"fmt"
	"regexp"
	"time"
)

var currencyRegex = regexp.MustCompile(`^[A-Z][A-Z0-9]{1,9}$`)

// AssetPair is a tradable combination of two currencies. Prices on the pair
// are quoted in secondary units per primary unit. Pairs are immutable and
// never deleted.
type AssetPair struct {
	ID        int64
	Primary   string
	Secondary string
	CreatedAt time.Time
}

// Symbol returns the conventional PRIMARY/SECONDARY notation.
func (p *AssetPair) Symbol() string {
	return p.Primary + "/" + p.Secondary
}

// ValidateCurrencies checks both currency codes and rejects a pair of a
// currency with itself.
func ValidateCurrencies(primary, secondary string) error {
	if !currencyRegex.MatchString(primary) {
		return &ValidationError{Message: fmt.Sprintf("primary currency %q must match %s", primary, currencyRegex)}
	}
	if !currencyRegex.MatchString(secondary) {
		return &ValidationError{Message: fmt.Sprintf("secondary currency %q must match %s", secondary, currencyRegex)}
	}
	if primary == secondary {
		return fmt.Errorf("%w: %s cannot trade against itself", ErrInvalidPair, primary)
	}
	return nil
}

// PairKey returns the direction-independent identity of a currency
// combination. PairKey(a, b) == PairKey(b, a).
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}
