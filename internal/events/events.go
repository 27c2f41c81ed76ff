package events

import "context"

// Stream carrying operation lifecycle events.
const StreamOperations = "events:operation"

// Event types
const (
	EventOperationStateChanged = "operation_state_changed"
	EventOperationCompleted    = "operation_completed"
	EventOperationFailed       = "operation_failed"
	EventLedgerSyncFailed      = "ledger_sync_failed"
	EventSubmissionReconciled  = "submission_reconciled"
	EventSessionChanged        = "session_changed"
)

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}
