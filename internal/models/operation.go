package models

import (
	"time"

	"github.com/google/uuid"
)

// Operation kinds
const (
	OpKindLend        = "lend"
	OpKindBorrow      = "borrow"
	OpKindRepay       = "repay"
	OpKindClaim       = "claim"
	OpKindProcessDeal = "process_deal"
	OpKindApprove     = "approve"
	OpKindSetPaused   = "set_paused"
	OpKindSetRate     = "set_rate"
)

// Operation states
const (
	OpStateIdle               = "idle"
	OpStateCheckingAllowance  = "checking_allowance"
	OpStateSubmittingApproval = "submitting_approval"
	OpStateAwaitingApproval   = "awaiting_approval_confirmation"
	OpStateExecutingPrimary   = "executing_primary"
	OpStateAwaitingPrimary    = "awaiting_primary_confirmation"
	OpStateSyncingLedger      = "syncing_ledger"
	OpStateCompleted          = "completed"
	OpStateFailed             = "failed"
	OpStatePartiallyFailed    = "partially_failed"
)

// Failure stages recorded on failed / partially_failed operations
const (
	StageAllowance  = "allowance"
	StageApproval   = "approval"
	StagePrimary    = "primary"
	StageLedgerSync = "ledger_sync"
)

// Valid state transitions: from -> []to.
// Operations without a spend descriptor skip the allowance leg; operations
// without a ledger effect complete straight out of the confirmation wait.
// partially_failed re-enters syncing_ledger on a ledger-only retry.
var ValidOperationTransitions = map[string][]string{
	OpStateIdle:               {OpStateCheckingAllowance, OpStateExecutingPrimary},
	OpStateCheckingAllowance:  {OpStateSubmittingApproval, OpStateExecutingPrimary, OpStateFailed},
	OpStateSubmittingApproval: {OpStateAwaitingApproval, OpStateFailed},
	OpStateAwaitingApproval:   {OpStateExecutingPrimary, OpStateFailed},
	OpStateExecutingPrimary:   {OpStateAwaitingPrimary, OpStateFailed},
	OpStateAwaitingPrimary:    {OpStateSyncingLedger, OpStateCompleted, OpStateFailed},
	OpStateSyncingLedger:      {OpStateCompleted, OpStatePartiallyFailed},
	OpStatePartiallyFailed:    {OpStateSyncingLedger},
	OpStateCompleted:          {},
	OpStateFailed:             {},
}

func IsValidTransition(from, to string) bool {
	allowed, ok := ValidOperationTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalState reports whether an operation in this state will make no
// further progress on its own. partially_failed is terminal for the on-chain
// part only; a ledger retry can still move it to completed.
func IsTerminalState(state string) bool {
	return state == OpStateCompleted || state == OpStateFailed || state == OpStatePartiallyFailed
}

// Operation is the in-flight record of one orchestrated run. It is held in
// memory until terminal and acknowledged; only its effect (a ledger record
// and the submitted tx hashes) is durable. Ambiguous marks a failure where
// the submitted transaction was never observed mined or reverted and may
// still land on chain.
type Operation struct {
	ID             uuid.UUID        `json:"id"`
	Kind           string           `json:"kind"`
	Owner          string           `json:"owner"`
	State          string           `json:"state"`
	Stage          string           `json:"stage,omitempty"` // failing stage
	Ambiguous      bool             `json:"ambiguous,omitempty"`
	Spend          *SpendDescriptor `json:"spend,omitempty"`
	ApprovalTxHash string           `json:"approval_tx_hash,omitempty"`
	PrimaryTxHash  string           `json:"primary_tx_hash,omitempty"`
	RecordID       string           `json:"record_id,omitempty"`
	Error          string           `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (o *Operation) Terminal() bool {
	return IsTerminalState(o.State)
}
