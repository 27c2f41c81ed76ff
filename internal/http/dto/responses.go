package dto

import "github.com/koinlend/backend/internal/models"

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type SessionResponse struct {
	Token   string                `json:"token,omitempty"`
	Session *models.WalletSession `json:"session"`
}

type OperationResponse struct {
	Operation *models.Operation `json:"operation"`
}

type MarketResponse struct {
	LendingRate int64 `json:"lending_rate"`
	BorrowRate  int64 `json:"borrow_rate"`
	Paused      bool  `json:"paused"`
}

type QuoteResponse struct {
	CollateralAmount string `json:"collateral_amount"`
	TokenAddress     string `json:"token_address"`
	TokenSymbol      string `json:"token_symbol"`
}

type DashboardResponse struct {
	Lends   []models.LedgerRecord `json:"lends"`
	Borrows []models.LedgerRecord `json:"borrows"`
}

type ApprovalRequiredResponse struct {
	Error        string `json:"error"`
	ApprovalLink string `json:"approval_link"`
}

type AllowanceResponse struct {
	Token     string `json:"token"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}
