package models

// Ledger record kinds
const (
	LoanKindLend   = "lend_contract"
	LoanKindBorrow = "borrow_contract"
)

// Ledger record statuses
const (
	LoanStatusActive    = "Active"
	LoanStatusCompleted = "Completed"
)

// LedgerRecord mirrors an on-chain position in the off-chain ledger service.
// It may lag on-chain truth under partial failure but must never claim a
// transaction that did not happen.
type LedgerRecord struct {
	ID          string `json:"id"` // on-chain contract id
	Kind        string `json:"kind"`
	Token       string `json:"token,omitempty"` // collateral token symbol, borrow only
	Amount      string `json:"amount"`          // human units, numeric as string
	Rate        int    `json:"roi"`             // rate at creation, percent
	Status      string `json:"status"`
	DueDate     string `json:"due_date"` // due (borrow) or return (lend) date, YYYY-MM-DD
	TxID        string `json:"tx_id"`
	Participant string `json:"participant"` // lender or borrower address
}

// CollateralQuote is the ledger backend's answer to a borrow request:
// how much of which token must be locked up front.
type CollateralQuote struct {
	CollateralAmount string `json:"collateral_amount"`
	TokenAddress     string `json:"token_address"`
}
