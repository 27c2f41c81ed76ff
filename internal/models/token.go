package models

import (
	"time"

	"github.com/google/uuid"
)

// Token describes a spendable token on one network. Decimals must match the
// token contract or amount scaling is wrong by orders of magnitude.
type Token struct {
	ID        uuid.UUID `json:"id,omitempty"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Decimals  int       `json:"decimals"`
	Network   string    `json:"network"` // mainnet / sepolia
	CreatedAt time.Time `json:"created_at,omitempty"`
}
