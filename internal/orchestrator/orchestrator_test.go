package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/koinlend/backend/internal/chain"
	"github.com/koinlend/backend/internal/models"
)

type fakeBackend struct {
	mu             sync.Mutex
	allowance      *big.Int
	allowanceErr   error
	approveCalls   int
	approvedAmount *big.Int
	approveErr     error
	revertHashes   map[string]bool
	waitErr        error
	waitGate       chan struct{} // when set, WaitMined blocks until closed
	waitEntered    chan struct{} // when set, signalled once WaitMined is reached
}

func (f *fakeBackend) Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	if f.allowanceErr != nil {
		return nil, f.allowanceErr
	}
	if f.allowance == nil {
		return big.NewInt(0), nil
	}
	return f.allowance, nil
}

func (f *fakeBackend) Approve(ctx context.Context, token, owner, spender string, amount *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.approveErr != nil {
		return "", f.approveErr
	}
	f.approveCalls++
	f.approvedAmount = new(big.Int).Set(amount)
	return "0xapprove", nil
}

func (f *fakeBackend) WaitMined(ctx context.Context, txHash string) (*chain.Receipt, error) {
	if f.waitEntered != nil {
		select {
		case f.waitEntered <- struct{}{}:
		default:
		}
	}
	if f.waitGate != nil {
		select {
		case <-f.waitGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.waitErr != nil {
		return nil, f.waitErr
	}
	return &chain.Receipt{TxHash: txHash, Success: !f.revertHashes[txHash]}, nil
}

type memSubmissions struct {
	mu       sync.Mutex
	created  []models.Submission
	outcomes map[string]string
}

func newMemSubmissions() *memSubmissions {
	return &memSubmissions{outcomes: make(map[string]string)}
}

func (m *memSubmissions) Create(ctx context.Context, s *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, *s)
	return nil
}

func (m *memSubmissions) MarkOutcome(ctx context.Context, txHash, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[txHash] = status
	return nil
}

func koinSpend(t *testing.T, amount string) *models.SpendDescriptor {
	t.Helper()
	koin := models.Token{Symbol: "KOIN", Address: "0xkoin", Decimals: 8}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		t.Fatal(err)
	}
	spend, err := models.NewSpendDescriptor(koin, "0xowner", "0xlending", amt)
	if err != nil {
		t.Fatal(err)
	}
	return spend
}

func newTestOrchestrator(backend ChainBackend, subs SubmissionStore) *Orchestrator {
	return New(backend, subs, nil, nil, zap.NewNop())
}

func countPrimary(txHash string) (PrimaryFunc, *int) {
	calls := new(int)
	return func(ctx context.Context) (string, error) {
		*calls++
		return txHash, nil
	}, calls
}

func TestSufficientAllowanceSkipsApproval(t *testing.T) {
	spend := koinSpend(t, "500")
	backend := &fakeBackend{allowance: new(big.Int).Set(spend.Required)}
	o := newTestOrchestrator(backend, newMemSubmissions())

	primary, calls := countPrimary("0xprimary")
	op, err := o.Run(context.Background(), Request{
		Kind: models.OpKindLend, Owner: "0xowner", Spend: spend, Primary: primary,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if op.State != models.OpStateCompleted {
		t.Fatalf("state = %s (stage %s, err %s)", op.State, op.Stage, op.Error)
	}
	if backend.approveCalls != 0 {
		t.Errorf("approve called %d times, want 0", backend.approveCalls)
	}
	if op.ApprovalTxHash != "" {
		t.Errorf("unexpected approval tx %s", op.ApprovalTxHash)
	}
	if *calls != 1 {
		t.Errorf("primary called %d times, want 1", *calls)
	}
}

func TestShortAllowanceApprovesExactAmount(t *testing.T) {
	spend := koinSpend(t, "500")
	backend := &fakeBackend{allowance: big.NewInt(1)}
	subs := newMemSubmissions()
	o := newTestOrchestrator(backend, subs)

	primary, _ := countPrimary("0xprimary")
	op, err := o.Run(context.Background(), Request{
		Kind: models.OpKindLend, Owner: "0xowner", Spend: spend, Primary: primary,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if op.State != models.OpStateCompleted {
		t.Fatalf("state = %s (stage %s, err %s)", op.State, op.Stage, op.Error)
	}
	if backend.approveCalls != 1 {
		t.Fatalf("approve called %d times, want 1", backend.approveCalls)
	}
	// 500 KOIN at 8 decimals.
	if backend.approvedAmount.String() != "50000000000" {
		t.Errorf("approved %s, want 50000000000", backend.approvedAmount)
	}
	if op.ApprovalTxHash != "0xapprove" {
		t.Errorf("approval tx = %s", op.ApprovalTxHash)
	}
	if subs.outcomes["0xapprove"] != models.SubmissionConfirmed {
		t.Errorf("approval submission outcome = %s", subs.outcomes["0xapprove"])
	}
	if len(subs.created) != 2 {
		t.Errorf("recorded %d submissions, want 2", len(subs.created))
	}
}

func TestNilSpendSkipsAllowanceLeg(t *testing.T) {
	backend := &fakeBackend{allowanceErr: errors.New("must not be called")}
	o := newTestOrchestrator(backend, newMemSubmissions())

	primary, _ := countPrimary("0xset")
	op, err := o.Run(context.Background(), Request{
		Kind: models.OpKindSetPaused, Owner: "0xadmin", Primary: primary,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if op.State != models.OpStateCompleted {
		t.Fatalf("state = %s (stage %s, err %s)", op.State, op.Stage, op.Error)
	}
}

func TestRevertedApprovalFailsBeforePrimary(t *testing.T) {
	spend := koinSpend(t, "10")
	backend := &fakeBackend{revertHashes: map[string]bool{"0xapprove": true}}
	subs := newMemSubmissions()
	o := newTestOrchestrator(backend, subs)

	primary, calls := countPrimary("0xprimary")
	op, err := o.Run(context.Background(), Request{
		Kind: models.OpKindLend, Owner: "0xowner", Spend: spend, Primary: primary,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if op.State != models.OpStateFailed || op.Stage != models.StageApproval {
		t.Fatalf("state/stage = %s/%s, want failed/approval", op.State, op.Stage)
	}
	if *calls != 0 {
		t.Errorf("primary called %d times after failed approval", *calls)
	}
	if subs.outcomes["0xapprove"] != models.SubmissionReverted {
		t.Errorf("approval submission outcome = %s", subs.outcomes["0xapprove"])
	}
}

func TestRevertedPrimarySkipsLedger(t *testing.T) {
	backend := &fakeBackend{revertHashes: map[string]bool{"0xprimary": true}}
	o := newTestOrchestrator(backend, newMemSubmissions())

	ledgerCalls := 0
	primary, _ := countPrimary("0xprimary")
	op, err := o.Run(context.Background(), Request{
		Kind: models.OpKindClaim, Owner: "0xowner", Primary: primary,
		Ledger: func(ctx context.Context, txHash string) (string, error) {
			ledgerCalls++
			return "rec-1", nil
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if op.State != models.OpStateFailed || op.Stage != models.StagePrimary {
		t.Fatalf("state/stage = %s/%s, want failed/primary", op.State, op.Stage)
	}
	if op.Ambiguous {
		t.Error("observed revert must not be marked ambiguous")
	}
	if ledgerCalls != 0 {
		t.Errorf("ledger called %d times after failed primary", ledgerCalls)
	}
}

func TestLedgerFailureIsPartialThenRetryable(t *testing.T) {
	backend := &fakeBackend{}
	o := newTestOrchestrator(backend, newMemSubmissions())

	ledgerErr := errors.New("ledger down")
	ledgerCalls := 0
	primary, primaryCalls := countPrimary("0xprimary")
	op, err := o.Run(context.Background(), Request{
		Kind: models.OpKindLend, Owner: "0xowner", Primary: primary,
		Ledger: func(ctx context.Context, txHash string) (string, error) {
			ledgerCalls++
			if ledgerCalls == 1 {
				return "", ledgerErr
			}
			if txHash != "0xprimary" {
				t.Errorf("ledger got tx %s", txHash)
			}
			return "rec-42", nil
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if op.State != models.OpStatePartiallyFailed || op.Stage != models.StageLedgerSync {
		t.Fatalf("state/stage = %s/%s, want partially_failed/ledger_sync", op.State, op.Stage)
	}

	retried, err := o.RetryLedger(context.Background(), op.ID)
	if err != nil {
		t.Fatalf("RetryLedger: %v", err)
	}
	if retried.State != models.OpStateCompleted {
		t.Fatalf("state after retry = %s (err %s)", retried.State, retried.Error)
	}
	if retried.RecordID != "rec-42" {
		t.Errorf("record id = %s", retried.RecordID)
	}
	if *primaryCalls != 1 {
		t.Errorf("primary called %d times across retry, want 1", *primaryCalls)
	}
}

func TestRetryRequiresPartialFailure(t *testing.T) {
	backend := &fakeBackend{}
	o := newTestOrchestrator(backend, newMemSubmissions())

	primary, _ := countPrimary("0xprimary")
	op, _ := o.Run(context.Background(), Request{
		Kind: models.OpKindLend, Owner: "0xowner", Primary: primary,
	})
	if _, err := o.RetryLedger(context.Background(), op.ID); !errors.Is(err, ErrNotRetryable) {
		t.Errorf("want ErrNotRetryable, got %v", err)
	}
}

func TestConcurrentSameKeyRejected(t *testing.T) {
	spend := koinSpend(t, "500")
	gate := make(chan struct{})
	backend := &fakeBackend{
		allowance:   new(big.Int).Set(spend.Required),
		waitGate:    gate,
		waitEntered: make(chan struct{}, 1),
	}
	o := newTestOrchestrator(backend, newMemSubmissions())

	primary, _ := countPrimary("0xprimary")
	done := make(chan *models.Operation, 1)
	go func() {
		op, _ := o.Run(context.Background(), Request{
			Kind: models.OpKindLend, Owner: "0xowner", Spend: spend, Primary: primary,
		})
		done <- op
	}()
	<-backend.waitEntered

	// Second run with the same owner/spender/token while the first is
	// stuck waiting for its receipt.
	second := koinSpend(t, "500")
	_, rejected := o.Run(context.Background(), Request{
		Kind: models.OpKindLend, Owner: "0xowner", Spend: second,
		Primary: func(ctx context.Context) (string, error) { return "0xother", nil },
	})
	if !errors.Is(rejected, ErrOperationInProgress) {
		t.Errorf("want ErrOperationInProgress, got %v", rejected)
	}

	close(gate)
	op := <-done
	if op.State != models.OpStateCompleted {
		t.Fatalf("first run state = %s", op.State)
	}

	// Key is free again after the first run finished.
	third := koinSpend(t, "500")
	op2, err := o.Run(context.Background(), Request{
		Kind: models.OpKindLend, Owner: "0xowner", Spend: third,
		Primary: func(ctx context.Context) (string, error) { return "0xthird", nil },
	})
	if err != nil {
		t.Fatalf("run after release: %v", err)
	}
	if op2.State != models.OpStateCompleted {
		t.Errorf("state = %s", op2.State)
	}
}

func TestAbandonedWaitLeavesSubmissionPending(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	backend := &fakeBackend{waitGate: gate}
	subs := newMemSubmissions()
	o := newTestOrchestrator(backend, subs)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	primary, _ := countPrimary("0xprimary")
	op, err := o.Run(ctx, Request{Kind: models.OpKindLend, Owner: "0xowner", Primary: primary})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if op.State != models.OpStateFailed || op.Stage != models.StagePrimary {
		t.Fatalf("state/stage = %s/%s", op.State, op.Stage)
	}
	if !op.Ambiguous {
		t.Error("wait failure without a receipt must be marked ambiguous")
	}
	if _, marked := subs.outcomes["0xprimary"]; marked {
		t.Error("abandoned submission must stay pending for reconciliation")
	}
}

// Readers marshal operation copies while the pipeline is still mutating
// state; run under -race this fails if live records ever escape.
func TestConcurrentReadsDuringRun(t *testing.T) {
	spend := koinSpend(t, "500")
	gate := make(chan struct{})
	backend := &fakeBackend{
		allowance:   big.NewInt(1),
		waitGate:    gate,
		waitEntered: make(chan struct{}, 1),
	}
	o := newTestOrchestrator(backend, newMemSubmissions())

	primary, _ := countPrimary("0xprimary")
	done := make(chan *models.Operation, 1)
	go func() {
		op, _ := o.Run(context.Background(), Request{
			Kind: models.OpKindLend, Owner: "0xowner", Spend: spend, Primary: primary,
		})
		done <- op
	}()
	<-backend.waitEntered

	stop := make(chan struct{})
	var readers sync.WaitGroup
	for i := 0; i < 4; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, op := range o.ListByOwner("0xowner") {
					if _, err := json.Marshal(op); err != nil {
						t.Errorf("marshal: %v", err)
					}
					if snap, err := o.Get(op.ID); err == nil {
						if _, err := json.Marshal(snap); err != nil {
							t.Errorf("marshal: %v", err)
						}
					}
				}
			}
		}()
	}

	close(gate)
	op := <-done
	close(stop)
	readers.Wait()

	if op.State != models.OpStateCompleted {
		t.Fatalf("state = %s (stage %s, err %s)", op.State, op.Stage, op.Error)
	}
}

func TestReturnedOperationIsACopy(t *testing.T) {
	backend := &fakeBackend{}
	o := newTestOrchestrator(backend, newMemSubmissions())

	primary, _ := countPrimary("0xprimary")
	op, err := o.Run(context.Background(), Request{Kind: models.OpKindLend, Owner: "0xowner", Primary: primary})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	op.State = "scribbled"
	op.Error = "scribbled"

	tracked, err := o.Get(op.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if tracked.State != models.OpStateCompleted || tracked.Error != "" {
		t.Errorf("tracked state mutated through returned copy: %s / %q", tracked.State, tracked.Error)
	}
}

func TestAcknowledgeRemovesTerminalOnly(t *testing.T) {
	backend := &fakeBackend{}
	o := newTestOrchestrator(backend, newMemSubmissions())

	primary, _ := countPrimary("0xprimary")
	op, _ := o.Run(context.Background(), Request{Kind: models.OpKindLend, Owner: "0xowner", Primary: primary})

	if err := o.Acknowledge(op.ID); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	if _, err := o.Get(op.ID); !errors.Is(err, ErrOperationNotFound) {
		t.Errorf("want ErrOperationNotFound after ack, got %v", err)
	}
}

func TestListByOwner(t *testing.T) {
	backend := &fakeBackend{}
	o := newTestOrchestrator(backend, newMemSubmissions())

	primary, _ := countPrimary("0xprimary")
	o.Run(context.Background(), Request{Kind: models.OpKindLend, Owner: "0xOwner", Primary: primary})

	if got := o.ListByOwner("0xowner"); len(got) != 1 {
		t.Errorf("ListByOwner matched %d ops, want 1 (case-insensitive)", len(got))
	}
	if got := o.ListByOwner("0xother"); len(got) != 0 {
		t.Errorf("ListByOwner for stranger matched %d ops", len(got))
	}
}
