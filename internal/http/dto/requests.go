package dto

type RestoreSessionRequest struct {
	Address string `json:"address"`
}

type NetworkChangedRequest struct {
	ChainID int64 `json:"chain_id"`
}

type LendRequest struct {
	Amount string `json:"amount"`
}

type ClaimRequest struct {
	RecordID   string `json:"record_id"`
	ContractID string `json:"contract_id"`
}

type BorrowRequest struct {
	Amount          string `json:"amount"`
	CollateralToken string `json:"collateral_token,omitempty"` // empty = default for network
}

type QuoteRequest struct {
	Amount          string `json:"amount"`
	CollateralToken string `json:"collateral_token,omitempty"`
}

type RepayRequest struct {
	RecordID   string `json:"record_id"`
	ContractID string `json:"contract_id"`
	Amount     string `json:"amount"`
}

type ApproveRequest struct {
	Token   string `json:"token"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
	// Client is the address the approval link was issued for; the
	// connected wallet must match it.
	Client string `json:"client"`
}

type ProcessDealRequest struct {
	Client      string `json:"client"`
	Token       string `json:"token"`
	Amount      string `json:"amount"`
	ClientEmail string `json:"client_email,omitempty"`
}

type SetPausedRequest struct {
	Market string `json:"market"` // lending / borrow
	Paused bool   `json:"paused"`
}

type SetRateRequest struct {
	Market string `json:"market"`
	Rate   int64  `json:"rate"`
}

type AddTokenRequest struct {
	Address string `json:"address"`
}
