package domain

import (
	"testing"

	"pgregory.net/rapid"
)

func TestProperty_AmountRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		minor := rapid.Int64Range(-99_999_999_999, 99_999_999_999).Draw(t, "minor")
		scale := int32(rapid.IntRange(0, 8).Draw(t, "scale"))

		s := FormatAmount(minor, scale)
		got, err := ParseAmount(s, scale)
		if err != nil {
			t.Fatalf("ParseAmount(%q, %d): %v", s, scale, err)
		}
		if got != minor {
			t.Fatalf("round-trip failed: %d -> %q -> %d", minor, s, got)
		}
	})
}
