package services

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeAllowanceReader struct {
	allowance *big.Int
	err       error
	calls     int
}

func (f *fakeAllowanceReader) Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.allowance, nil
}

func TestApproveSpendWalletMismatch(t *testing.T) {
	// The mismatch check runs before any chain or registry access, so a
	// service without backends is enough to exercise it.
	s := &EscrowService{log: zap.NewNop()}

	_, err := s.ApproveSpend(context.Background(), "0xconnected", "0xclient", "mainnet", "0xtoken", "0xescrow", decimal.NewFromInt(10))
	if !errors.Is(err, ErrWalletMismatch) {
		t.Fatalf("want ErrWalletMismatch, got %v", err)
	}
}

func TestApproveSpendClientMatchIsCaseInsensitive(t *testing.T) {
	s := &EscrowService{log: zap.NewNop()}

	// Same wallet in different checksum casing must pass the mismatch
	// check and fail later on the missing spender instead.
	_, err := s.ApproveSpend(context.Background(), "0xABCDef", "0xabcdEF", "mainnet", "0xtoken", "", decimal.NewFromInt(10))
	if errors.Is(err, ErrWalletMismatch) {
		t.Fatal("case-differing same wallet rejected as mismatch")
	}
	if err == nil || !strings.Contains(err.Error(), "spender") {
		t.Fatalf("want spender validation error, got %v", err)
	}
}

func TestVerifyAllowanceCoversSpend(t *testing.T) {
	reader := &fakeAllowanceReader{allowance: big.NewInt(100)}

	if err := verifyAllowance(context.Background(), reader, "0xtoken", "0xclient", "0xescrow", big.NewInt(100)); err != nil {
		t.Fatalf("verifyAllowance: %v", err)
	}
	if reader.calls != 1 {
		t.Errorf("allowance read %d times, want 1", reader.calls)
	}
}

func TestVerifyAllowanceRejectsRevokedAllowance(t *testing.T) {
	reader := &fakeAllowanceReader{allowance: big.NewInt(0)}

	err := verifyAllowance(context.Background(), reader, "0xtoken", "0xclient", "0xescrow", big.NewInt(100))
	if err == nil {
		t.Fatal("revoked allowance must fail the deal")
	}
	if !strings.Contains(err.Error(), "dropped below") {
		t.Errorf("error = %v", err)
	}
}

func TestVerifyAllowanceWrapsReadError(t *testing.T) {
	readErr := errors.New("rpc down")
	reader := &fakeAllowanceReader{err: readErr}

	err := verifyAllowance(context.Background(), reader, "0xtoken", "0xclient", "0xescrow", big.NewInt(100))
	if !errors.Is(err, readErr) {
		t.Fatalf("want wrapped read error, got %v", err)
	}
}
