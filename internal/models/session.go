package models

import "time"

// WalletSession tracks the active account and network. Address is non-empty
// only while the network is in the supported set; the wallet service enforces
// that on connect, restore and network change.
type WalletSession struct {
	Address     string    `json:"address"`
	ChainID     int64     `json:"chain_id"`
	Network     string    `json:"network"`
	ConnectedAt time.Time `json:"connected_at"`
}
