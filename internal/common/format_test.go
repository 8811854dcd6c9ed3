package common

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestShortId(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "none"},
		{"abc", "abc"},
		{"0123456789", "01234567..."},
	}
	for _, tt := range tests {
		if got := ShortId(tt.in); got != tt.want {
			t.Errorf("ShortId(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{"12.5", "12.50 EUR"},
		{"100", "100.00 EUR"},
		{"0.12345", "0.12345 EUR"},
		{"-3", "-3.00 EUR"},
	}
	for _, tt := range tests {
		if got := FormatAmount(decimal.RequireFromString(tt.amount), "EUR"); got != tt.want {
			t.Errorf("FormatAmount(%s) = %q, want %q", tt.amount, got, tt.want)
		}
	}
}

func TestLockLabel(t *testing.T) {
	if LockLabel(true) != "LOCKED" || LockLabel(false) != "active" {
		t.Error("unexpected lock labels")
	}
}
