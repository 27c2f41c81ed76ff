package models

import (
	"time"

	"github.com/google/uuid"
)

// Submission outcomes
const (
	SubmissionPending   = "pending"
	SubmissionConfirmed = "confirmed"
	SubmissionReverted  = "reverted"
)

// Submission legs
const (
	SubmissionLegApproval = "approval"
	SubmissionLegPrimary  = "primary"
)

// Submission is the durable trace of one submitted transaction. It outlives
// the in-memory operation so an abandoned confirmation wait can be
// reconciled on a later pass instead of assumed void.
type Submission struct {
	ID           uuid.UUID  `json:"id"`
	OperationID  uuid.UUID  `json:"operation_id"`
	Kind         string     `json:"kind"`
	Leg          string     `json:"leg"`
	Owner        string     `json:"owner"`
	TxHash       string     `json:"tx_hash"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ReconciledAt *time.Time `json:"reconciled_at,omitempty"`
}
