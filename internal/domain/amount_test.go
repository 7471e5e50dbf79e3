package domain

import "testing"

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		scale   int32
		want    int64
		wantErr bool
	}{
		{"zero", "0", 2, 0, false},
		{"whole", "100", 2, 10000, false},
		{"one decimal place", "1.5", 2, 150, false},
		{"two decimal places", "95.50", 2, 9550, false},
		{"trailing zeros beyond scale", "1.100", 2, 110, false},
		{"scale zero", "42", 0, 42, false},
		{"negative", "-50.25", 2, -5025, false},
		{"three decimal places", "1.234", 2, 0, true},
		{"not a number", "abc", 2, 0, true},
		{"empty", "", 2, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.input, tt.scale)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseAmount(%q) expected error, got %d", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAmount(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseAmount(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(9550, 2); got != "95.50" {
		t.Errorf("FormatAmount(9550, 2) = %q, want 95.50", got)
	}
	if got := FormatAmount(7, 0); got != "7" {
		t.Errorf("FormatAmount(7, 0) = %q, want 7", got)
	}
}
