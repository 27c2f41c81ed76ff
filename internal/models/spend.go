package models

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// SpendDescriptor captures one token spend: who pays, who is allowed to pull,
// and how much in the token's smallest unit. Constructed fresh per operation,
// never persisted.
type SpendDescriptor struct {
	Token    Token    `json:"token"`
	Owner    string   `json:"owner"`
	Spender  string   `json:"spender"`
	Required *big.Int `json:"required"` // smallest units
	Display  string   `json:"display"`  // human units as entered
}

// NewSpendDescriptor is the single scaling path from a human amount to
// smallest units: amount * 10^decimals. Amounts with more fractional digits
// than the token carries are rejected rather than silently truncated.
func NewSpendDescriptor(token Token, owner, spender string, amount decimal.Decimal) (*SpendDescriptor, error) {
	if owner == "" {
		return nil, fmt.Errorf("spend owner is required")
	}
	if spender == "" {
		return nil, fmt.Errorf("spend spender is required")
	}
	if token.Decimals < 0 {
		return nil, fmt.Errorf("token %s has negative decimals", token.Symbol)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("spend amount must be positive, got %s", amount)
	}

	scaled := amount.Shift(int32(token.Decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", amount, token.Decimals)
	}

	return &SpendDescriptor{
		Token:    token,
		Owner:    owner,
		Spender:  spender,
		Required: scaled.BigInt(),
		Display:  amount.String(),
	}, nil
}

// Key identifies the serialization domain for concurrent runs: two
// operations sharing it must not race through approval/primary together.
func (s *SpendDescriptor) Key() string {
	return s.Owner + "|" + s.Spender + "|" + s.Token.Address
}
