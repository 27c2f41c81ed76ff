package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/koinlend/backend/internal/chain"
	"github.com/koinlend/backend/internal/events"
	"github.com/koinlend/backend/internal/models"
)

var (
	// ErrOperationInProgress: another run is active for the same
	// owner/spender/token key. The caller must wait for it to finish.
	ErrOperationInProgress = errors.New("operation already in progress")

	ErrOperationNotFound   = errors.New("operation not found")
	ErrNotRetryable        = errors.New("operation has no retryable ledger sync")
	ErrOperationNotStarted = errors.New("invalid operation request")
)

// ChainBackend is the slice of the chain client the orchestrator drives
// directly. Primary calls are closures so each operation kind packs its
// own contract call.
type ChainBackend interface {
	Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error)
	Approve(ctx context.Context, token, owner, spender string, amount *big.Int) (string, error)
	WaitMined(ctx context.Context, txHash string) (*chain.Receipt, error)
}

// SubmissionStore persists submitted transaction hashes so abandoned
// confirmation waits can be reconciled later.
type SubmissionStore interface {
	Create(ctx context.Context, s *models.Submission) error
	MarkOutcome(ctx context.Context, txHash, status string) error
}

// Recorder receives operation metrics. A nil Recorder is valid.
type Recorder interface {
	OperationFinished(kind, state string)
	ObserveStage(stage string, d time.Duration)
	LedgerSync(outcome string)
	TxSubmitted(leg string)
}

// PrimaryFunc submits the operation's main transaction and returns its hash.
type PrimaryFunc func(ctx context.Context) (txHash string, err error)

// LedgerFunc records the confirmed operation off-chain and returns the
// created or updated record id.
type LedgerFunc func(ctx context.Context, txHash string) (recordID string, err error)

// Request describes one orchestrated run. A nil Spend skips the allowance
// and approval legs; a nil Ledger completes straight out of confirmation.
type Request struct {
	Kind    string
	Owner   string
	Spend   *models.SpendDescriptor
	Primary PrimaryFunc
	Ledger  LedgerFunc
}

func (r *Request) key() string {
	if r.Spend != nil {
		return r.Spend.Key()
	}
	return r.Owner + "|" + r.Kind
}

// Orchestrator runs the allowance -> approve -> primary -> ledger pipeline
// and owns the lifecycle of every in-flight operation. Runs sharing an
// owner/spender/token key are serialized by rejection, never queued.
// Callers only ever see operation copies; the live records stay inside
// the tracker.
type Orchestrator struct {
	chain   ChainBackend
	subs    SubmissionStore
	pub     events.Publisher
	rec     Recorder
	log     *zap.Logger
	tracker *tracker
	locks   *keyLocks
}

func New(backend ChainBackend, subs SubmissionStore, pub events.Publisher, rec Recorder, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		chain:   backend,
		subs:    subs,
		pub:     pub,
		rec:     rec,
		log:     log,
		tracker: newTracker(),
		locks:   newKeyLocks(),
	}
}

// Run executes a request to a terminal state and returns a copy of the
// operation. The error return covers request problems only (validation,
// a duplicate in-flight run); pipeline failures are reported on the
// operation itself.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*models.Operation, error) {
	if req.Kind == "" || req.Owner == "" || req.Primary == nil {
		return nil, fmt.Errorf("%w: kind, owner and primary are required", ErrOperationNotStarted)
	}

	key := req.key()
	if !o.locks.tryAcquire(key) {
		return nil, fmt.Errorf("%w: %s", ErrOperationInProgress, key)
	}
	defer o.locks.release(key)

	now := time.Now().UTC()
	op := &models.Operation{
		ID:        uuid.New(),
		Kind:      req.Kind,
		Owner:     req.Owner,
		State:     models.OpStateIdle,
		Spend:     req.Spend,
		CreatedAt: now,
		UpdatedAt: now,
	}
	o.tracker.put(op, req.Ledger)

	if req.Spend != nil {
		if !o.runAllowanceLeg(ctx, op, req.Spend) {
			return o.result(op)
		}
	}
	if !o.runPrimaryLeg(ctx, op, req.Primary) {
		return o.result(op)
	}
	if req.Ledger != nil {
		o.runLedgerLeg(ctx, op, req.Ledger)
	} else {
		o.complete(ctx, op)
	}
	return o.result(op)
}

func (o *Orchestrator) result(op *models.Operation) (*models.Operation, error) {
	snap, ok := o.tracker.snapshot(op.ID)
	if !ok {
		return nil, ErrOperationNotFound
	}
	return snap, nil
}

// runAllowanceLeg checks the current allowance and, when short, submits a
// single approval for exactly the required amount and waits for it to
// confirm. Returns false if the operation failed.
func (o *Orchestrator) runAllowanceLeg(ctx context.Context, op *models.Operation, spend *models.SpendDescriptor) bool {
	start := time.Now()
	o.transition(ctx, op, models.OpStateCheckingAllowance)

	current, err := o.chain.Allowance(ctx, spend.Token.Address, spend.Owner, spend.Spender)
	if err != nil {
		o.fail(ctx, op, models.StageAllowance, err, false)
		return false
	}
	o.observe(models.StageAllowance, start)

	if current.Cmp(spend.Required) >= 0 {
		// Standing allowance already covers the spend.
		return true
	}

	approveStart := time.Now()
	o.transition(ctx, op, models.OpStateSubmittingApproval)

	txHash, err := o.chain.Approve(ctx, spend.Token.Address, spend.Owner, spend.Spender, spend.Required)
	if err != nil {
		o.fail(ctx, op, models.StageApproval, err, false)
		return false
	}
	o.tracker.mutate(func() { op.ApprovalTxHash = txHash })
	o.recordSubmission(ctx, op, models.SubmissionLegApproval, txHash)

	o.transition(ctx, op, models.OpStateAwaitingApproval)
	rcpt, err := o.chain.WaitMined(ctx, txHash)
	if err != nil {
		// The submission row stays pending; the reconciliation worker
		// resolves its real outcome later.
		o.fail(ctx, op, models.StageApproval, err, true)
		return false
	}
	if !rcpt.Success {
		o.markSubmission(ctx, txHash, models.SubmissionReverted)
		o.fail(ctx, op, models.StageApproval, errors.New("approval transaction reverted"), false)
		return false
	}
	o.markSubmission(ctx, txHash, models.SubmissionConfirmed)
	o.observe(models.StageApproval, approveStart)
	return true
}

func (o *Orchestrator) runPrimaryLeg(ctx context.Context, op *models.Operation, primary PrimaryFunc) bool {
	start := time.Now()
	o.transition(ctx, op, models.OpStateExecutingPrimary)

	txHash, err := primary(ctx)
	if err != nil {
		o.fail(ctx, op, models.StagePrimary, err, false)
		return false
	}
	o.tracker.mutate(func() { op.PrimaryTxHash = txHash })
	o.recordSubmission(ctx, op, models.SubmissionLegPrimary, txHash)

	o.transition(ctx, op, models.OpStateAwaitingPrimary)
	rcpt, err := o.chain.WaitMined(ctx, txHash)
	if err != nil {
		// The transaction was submitted and may still land. Never
		// resubmit; the reconciliation pass resolves the real outcome.
		o.fail(ctx, op, models.StagePrimary, fmt.Errorf("outcome unknown, transaction may still confirm: %w", err), true)
		return false
	}
	if !rcpt.Success {
		o.markSubmission(ctx, txHash, models.SubmissionReverted)
		o.fail(ctx, op, models.StagePrimary, errors.New("primary transaction reverted"), false)
		return false
	}
	o.markSubmission(ctx, txHash, models.SubmissionConfirmed)
	o.observe(models.StagePrimary, start)
	return true
}

func (o *Orchestrator) runLedgerLeg(ctx context.Context, op *models.Operation, ledger LedgerFunc) {
	start := time.Now()
	o.transition(ctx, op, models.OpStateSyncingLedger)

	recordID, err := ledger(ctx, op.PrimaryTxHash)
	if err != nil {
		o.tracker.mutate(func() {
			op.Stage = models.StageLedgerSync
			op.Error = err.Error()
		})
		o.transition(ctx, op, models.OpStatePartiallyFailed)
		if o.rec != nil {
			o.rec.LedgerSync("failed")
			o.rec.OperationFinished(op.Kind, op.State)
		}
		o.publish(ctx, events.EventLedgerSyncFailed, op)
		o.log.Error("ledger sync failed, chain state is final",
			zap.String("operation_id", op.ID.String()),
			zap.String("tx_hash", op.PrimaryTxHash),
			zap.Error(err))
		return
	}
	o.tracker.mutate(func() { op.RecordID = recordID })
	if o.rec != nil {
		o.rec.LedgerSync("ok")
	}
	o.observe(models.StageLedgerSync, start)
	o.complete(ctx, op)
}

// RetryLedger re-runs only the ledger sync of a partially failed
// operation. The on-chain work is final and is never repeated.
func (o *Orchestrator) RetryLedger(ctx context.Context, id uuid.UUID) (*models.Operation, error) {
	tr, ok := o.tracker.get(id)
	if !ok {
		return nil, ErrOperationNotFound
	}

	key := "retry|" + id.String()
	if !o.locks.tryAcquire(key) {
		return nil, ErrOperationInProgress
	}
	defer o.locks.release(key)

	state, _ := o.tracker.state(id)
	if state != models.OpStatePartiallyFailed || tr.ledger == nil {
		return nil, ErrNotRetryable
	}

	o.tracker.mutate(func() {
		tr.op.Stage = ""
		tr.op.Error = ""
	})
	o.runLedgerLeg(ctx, tr.op, tr.ledger)
	return o.result(tr.op)
}

// Get returns a copy of a tracked operation by id.
func (o *Orchestrator) Get(id uuid.UUID) (*models.Operation, error) {
	snap, ok := o.tracker.snapshot(id)
	if !ok {
		return nil, ErrOperationNotFound
	}
	return snap, nil
}

// ListByOwner returns copies of every tracked operation for a wallet
// address.
func (o *Orchestrator) ListByOwner(owner string) []*models.Operation {
	return o.tracker.listByOwner(owner)
}

// Acknowledge drops a terminal operation from tracking.
func (o *Orchestrator) Acknowledge(id uuid.UUID) error {
	state, ok := o.tracker.state(id)
	if !ok {
		return ErrOperationNotFound
	}
	if !models.IsTerminalState(state) {
		return fmt.Errorf("operation %s is still running", id)
	}
	o.tracker.remove(id)
	return nil
}

func (o *Orchestrator) transition(ctx context.Context, op *models.Operation, to string) {
	if !models.IsValidTransition(op.State, to) {
		// Transition table and pipeline are maintained together; a miss
		// here is a programming error.
		panic(fmt.Sprintf("invalid operation transition %s -> %s", op.State, to))
	}
	o.tracker.mutate(func() {
		op.State = to
		op.UpdatedAt = time.Now().UTC()
	})
	o.publish(ctx, events.EventOperationStateChanged, op)
}

// fail records the failing stage. ambiguous marks a confirmation wait
// that ended without an observed receipt: the transaction may still land
// and must not be presented as a definite revert.
func (o *Orchestrator) fail(ctx context.Context, op *models.Operation, stage string, err error, ambiguous bool) {
	o.tracker.mutate(func() {
		op.Stage = stage
		op.Error = err.Error()
		op.Ambiguous = ambiguous
	})
	o.transition(ctx, op, models.OpStateFailed)
	if o.rec != nil {
		o.rec.OperationFinished(op.Kind, op.State)
	}
	o.publish(ctx, events.EventOperationFailed, op)
	o.log.Warn("operation failed",
		zap.String("operation_id", op.ID.String()),
		zap.String("kind", op.Kind),
		zap.String("stage", stage),
		zap.Bool("ambiguous", ambiguous),
		zap.Error(err))
}

func (o *Orchestrator) complete(ctx context.Context, op *models.Operation) {
	o.transition(ctx, op, models.OpStateCompleted)
	if o.rec != nil {
		o.rec.OperationFinished(op.Kind, op.State)
	}
	o.publish(ctx, events.EventOperationCompleted, op)
	o.log.Info("operation completed",
		zap.String("operation_id", op.ID.String()),
		zap.String("kind", op.Kind),
		zap.String("tx_hash", op.PrimaryTxHash))
}

func (o *Orchestrator) recordSubmission(ctx context.Context, op *models.Operation, leg, txHash string) {
	if o.rec != nil {
		o.rec.TxSubmitted(leg)
	}
	if o.subs == nil {
		return
	}
	sub := &models.Submission{
		OperationID: op.ID,
		Kind:        op.Kind,
		Leg:         leg,
		Owner:       op.Owner,
		TxHash:      txHash,
		Status:      models.SubmissionPending,
	}
	if err := o.subs.Create(ctx, sub); err != nil {
		o.log.Error("submission record failed", zap.String("tx_hash", txHash), zap.Error(err))
	}
}

func (o *Orchestrator) markSubmission(ctx context.Context, txHash, status string) {
	if o.subs == nil {
		return
	}
	if err := o.subs.MarkOutcome(ctx, txHash, status); err != nil {
		o.log.Error("submission outcome update failed", zap.String("tx_hash", txHash), zap.Error(err))
	}
}

func (o *Orchestrator) publish(ctx context.Context, eventType string, op *models.Operation) {
	if o.pub == nil {
		return
	}
	payload := map[string]any{
		"operation_id": op.ID.String(),
		"kind":         op.Kind,
		"owner":        op.Owner,
		"state":        op.State,
	}
	if op.Stage != "" {
		payload["stage"] = op.Stage
	}
	if op.Ambiguous {
		payload["ambiguous"] = true
	}
	if op.Error != "" {
		payload["error"] = op.Error
	}
	if op.PrimaryTxHash != "" {
		payload["tx_hash"] = op.PrimaryTxHash
	}
	if op.RecordID != "" {
		payload["record_id"] = op.RecordID
	}
	if err := o.pub.Publish(ctx, events.StreamOperations, events.Event{Type: eventType, Payload: payload}); err != nil {
		o.log.Warn("operation event publish failed", zap.Error(err))
	}
}

func (o *Orchestrator) observe(stage string, start time.Time) {
	if o.rec != nil {
		o.rec.ObserveStage(stage, time.Since(start))
	}
}

// keyLocks serializes runs per spend key without queuing: a second caller
// is rejected rather than made to wait behind the first.
type keyLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newKeyLocks() *keyLocks {
	return &keyLocks{held: make(map[string]struct{})}
}

func (k *keyLocks) tryAcquire(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, busy := k.held[key]; busy {
		return false
	}
	k.held[key] = struct{}{}
	return true
}

func (k *keyLocks) release(key string) {
	k.mu.Lock()
	delete(k.held, key)
	k.mu.Unlock()
}
