package models

import "testing"

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path with approval leg
		{OpStateIdle, OpStateCheckingAllowance, true},
		{OpStateCheckingAllowance, OpStateSubmittingApproval, true},
		{OpStateSubmittingApproval, OpStateAwaitingApproval, true},
		{OpStateAwaitingApproval, OpStateExecutingPrimary, true},
		{OpStateExecutingPrimary, OpStateAwaitingPrimary, true},
		{OpStateAwaitingPrimary, OpStateSyncingLedger, true},
		{OpStateSyncingLedger, OpStateCompleted, true},

		// Sufficient allowance skips the approval leg
		{OpStateCheckingAllowance, OpStateExecutingPrimary, true},

		// No spend descriptor skips the allowance check entirely
		{OpStateIdle, OpStateExecutingPrimary, true},

		// No ledger effect completes straight from the confirmation wait
		{OpStateAwaitingPrimary, OpStateCompleted, true},

		// Failure paths
		{OpStateCheckingAllowance, OpStateFailed, true},
		{OpStateSubmittingApproval, OpStateFailed, true},
		{OpStateAwaitingApproval, OpStateFailed, true},
		{OpStateExecutingPrimary, OpStateFailed, true},
		{OpStateAwaitingPrimary, OpStateFailed, true},
		{OpStateSyncingLedger, OpStatePartiallyFailed, true},

		// Ledger-only retry
		{OpStatePartiallyFailed, OpStateSyncingLedger, true},

		// Invalid transitions
		{OpStateIdle, OpStateSubmittingApproval, false},
		{OpStateIdle, OpStateCompleted, false},
		{OpStateCheckingAllowance, OpStateAwaitingPrimary, false},
		{OpStateSubmittingApproval, OpStateExecutingPrimary, false},
		{OpStateAwaitingApproval, OpStateSubmittingApproval, false},
		{OpStateExecutingPrimary, OpStateExecutingPrimary, false},
		{OpStateAwaitingPrimary, OpStatePartiallyFailed, false},
		{OpStateSyncingLedger, OpStateFailed, false},
		{OpStateCompleted, OpStateSyncingLedger, false},
		{OpStateFailed, OpStateExecutingPrimary, false},
		{OpStatePartiallyFailed, OpStateCompleted, false},
		{"nonexistent", OpStateCompleted, false},
		{OpStateIdle, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAllStatesHaveTransitionEntry(t *testing.T) {
	allStates := []string{
		OpStateIdle, OpStateCheckingAllowance, OpStateSubmittingApproval,
		OpStateAwaitingApproval, OpStateExecutingPrimary, OpStateAwaitingPrimary,
		OpStateSyncingLedger, OpStateCompleted, OpStateFailed, OpStatePartiallyFailed,
	}

	for _, state := range allStates {
		if _, ok := ValidOperationTransitions[state]; !ok {
			t.Errorf("state %q missing from ValidOperationTransitions map", state)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	for _, state := range []string{OpStateCompleted, OpStateFailed, OpStatePartiallyFailed} {
		if !IsTerminalState(state) {
			t.Errorf("state %q should be terminal", state)
		}
	}

	// completed and failed are dead ends; partially_failed only re-enters the
	// ledger sync.
	if n := len(ValidOperationTransitions[OpStateCompleted]); n != 0 {
		t.Errorf("completed should have no transitions, got %d", n)
	}
	if n := len(ValidOperationTransitions[OpStateFailed]); n != 0 {
		t.Errorf("failed should have no transitions, got %d", n)
	}
	got := ValidOperationTransitions[OpStatePartiallyFailed]
	if len(got) != 1 || got[0] != OpStateSyncingLedger {
		t.Errorf("partially_failed should only re-enter syncing_ledger, got %v", got)
	}

	for _, state := range []string{OpStateIdle, OpStateAwaitingPrimary, OpStateSyncingLedger} {
		if IsTerminalState(state) {
			t.Errorf("state %q should not be terminal", state)
		}
	}
}
