package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		want  string
		err   error
	}{
		{"10", "10", nil},
		{"10.5", "10.5", nil},
		{"10.55", "10.55", nil},
		{" -3.20 ", "-3.2", nil},
		{"+7", "7", nil},
		{".75", "0.75", nil},
		{"10.555", "", ErrTooManyDecimals},
		{"", "", ErrInvalidAmount},
		{"abc", "", ErrInvalidAmount},
		{"1e3", "", ErrInvalidAmount},
		{"--1", "", ErrInvalidAmount},
		{".", "", ErrInvalidAmount},
		{"1.2a", "", ErrInvalidAmount},
	}
	for _, tt := range tests {
		got, err := Parse(tt.input)
		if err != tt.err {
			t.Errorf("Parse(%q) error = %v, want %v", tt.input, err, tt.err)
			continue
		}
		if err == nil && !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("Parse(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestParsePositive(t *testing.T) {
	if _, err := ParsePositive("0"); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := ParsePositive("-1.00"); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if v, err := ParsePositive("0.01"); err != nil || !v.Equal(decimal.RequireFromString("0.01")) {
		t.Fatalf("unexpected result: %s %v", v, err)
	}
}

func TestFormat(t *testing.T) {
	if got := Format(decimal.RequireFromString("1300")); got != "1300.00" {
		t.Fatalf("unexpected format: %s", got)
	}
	if got := Format(decimal.RequireFromString("-0.5")); got != "-0.50" {
		t.Fatalf("unexpected format: %s", got)
	}
}

func TestRound(t *testing.T) {
	if got := Round(decimal.RequireFromString("833.335")); !got.Equal(decimal.RequireFromString("833.34")) {
		t.Fatalf("unexpected rounding: %s", got)
	}
	if got := Round(decimal.RequireFromString("833.345")); !got.Equal(decimal.RequireFromString("833.34")) {
		t.Fatalf("unexpected rounding: %s", got)
	}
}
