package models

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

var koin = Token{Symbol: "KOIN", Name: "Koin", Address: "0x00000000000000000000000000000000000000aa", Decimals: 8, Network: "mainnet"}

func TestNewSpendDescriptorScaling(t *testing.T) {
	tests := []struct {
		name     string
		token    Token
		amount   string
		expected string
	}{
		{"koin whole", koin, "500", "50000000000"},
		{"koin one", koin, "1", "100000000"},
		{"koin fractional", koin, "0.00000001", "1"},
		{"six decimals", Token{Symbol: "USDT", Decimals: 6}, "12.5", "12500000"},
		{"zero decimals", Token{Symbol: "RAW", Decimals: 0}, "42", "42"},
		{"max int64 and beyond", koin, "92233720368547758.07", "9223372036854775807"},
		{"past int64", koin, "92233720368547758.08", "9223372036854775808"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, err := decimal.NewFromString(tt.amount)
			if err != nil {
				t.Fatalf("bad test amount %q: %v", tt.amount, err)
			}
			spend, err := NewSpendDescriptor(tt.token, "0xowner", "0xspender", amount)
			if err != nil {
				t.Fatalf("NewSpendDescriptor(%s): %v", tt.amount, err)
			}
			want, _ := new(big.Int).SetString(tt.expected, 10)
			if spend.Required.Cmp(want) != 0 {
				t.Errorf("Required = %s, want %s", spend.Required, want)
			}
			if spend.Display != amount.String() {
				t.Errorf("Display = %q, want %q", spend.Display, amount.String())
			}
		})
	}
}

func TestNewSpendDescriptorRejects(t *testing.T) {
	tests := []struct {
		name    string
		token   Token
		owner   string
		spender string
		amount  string
	}{
		{"zero amount", koin, "0xowner", "0xspender", "0"},
		{"negative amount", koin, "0xowner", "0xspender", "-1"},
		{"too many decimal places", koin, "0xowner", "0xspender", "0.000000001"},
		{"fraction of zero-decimal token", Token{Symbol: "RAW", Decimals: 0}, "0xowner", "0xspender", "0.5"},
		{"missing owner", koin, "", "0xspender", "1"},
		{"missing spender", koin, "0xowner", "", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount, err := decimal.NewFromString(tt.amount)
			if err != nil {
				t.Fatalf("bad test amount %q: %v", tt.amount, err)
			}
			if _, err := NewSpendDescriptor(tt.token, tt.owner, tt.spender, amount); err == nil {
				t.Errorf("NewSpendDescriptor(%s) should have failed", tt.name)
			}
		})
	}
}

func TestSpendDescriptorKey(t *testing.T) {
	amount := decimal.NewFromInt(5)
	a, _ := NewSpendDescriptor(koin, "0xowner", "0xspender", amount)
	b, _ := NewSpendDescriptor(koin, "0xowner", "0xspender", decimal.NewFromInt(900))
	c, _ := NewSpendDescriptor(koin, "0xother", "0xspender", amount)

	if a.Key() != b.Key() {
		t.Errorf("same (owner, spender, token) must share a key: %q vs %q", a.Key(), b.Key())
	}
	if a.Key() == c.Key() {
		t.Errorf("different owners must not share a key: %q", a.Key())
	}
}
