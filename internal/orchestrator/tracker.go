package orchestrator

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/koinlend/backend/internal/models"
)

// trackedOp pairs an operation with its ledger closure so a ledger-only
// retry can re-run the sync without rebuilding the request.
type trackedOp struct {
	op     *models.Operation
	ledger LedgerFunc
}

// tracker holds operations in memory from creation until they are
// acknowledged, and owns all synchronization over their fields: the
// pipeline mutates through mutate(), readers get copies. The live
// *models.Operation never leaves the package.
type tracker struct {
	mu  sync.RWMutex
	ops map[uuid.UUID]*trackedOp
}

func newTracker() *tracker {
	return &tracker{ops: make(map[uuid.UUID]*trackedOp)}
}

func (t *tracker) put(op *models.Operation, ledger LedgerFunc) {
	t.mu.Lock()
	t.ops[op.ID] = &trackedOp{op: op, ledger: ledger}
	t.mu.Unlock()
}

func (t *tracker) get(id uuid.UUID) (*trackedOp, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.ops[id]
	return tr, ok
}

// mutate applies fn to an operation under the write lock. All pipeline
// writes to operation fields go through here.
func (t *tracker) mutate(fn func()) {
	t.mu.Lock()
	fn()
	t.mu.Unlock()
}

// snapshot returns a copy of one tracked operation. The Spend pointer is
// shared; a SpendDescriptor is immutable once constructed.
func (t *tracker) snapshot(id uuid.UUID) (*models.Operation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.ops[id]
	if !ok {
		return nil, false
	}
	op := *tr.op
	return &op, true
}

func (t *tracker) state(id uuid.UUID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tr, ok := t.ops[id]
	if !ok {
		return "", false
	}
	return tr.op.State, true
}

func (t *tracker) remove(id uuid.UUID) {
	t.mu.Lock()
	delete(t.ops, id)
	t.mu.Unlock()
}

func (t *tracker) listByOwner(owner string) []*models.Operation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*models.Operation
	for _, tr := range t.ops {
		if strings.EqualFold(tr.op.Owner, owner) {
			op := *tr.op
			out = append(out, &op)
		}
	}
	return out
}
