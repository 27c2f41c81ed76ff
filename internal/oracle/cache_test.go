package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeReader struct {
	rate       int64
	rateErr    error
	paused     bool
	pausedErr  error
	rateCalls  int
	pauseCalls int
}

func (f *fakeReader) ReadRate(ctx context.Context, contract, method string) (int64, error) {
	f.rateCalls++
	return f.rate, f.rateErr
}

func (f *fakeReader) ReadPaused(ctx context.Context, contract string) (bool, error) {
	f.pauseCalls++
	return f.paused, f.pausedErr
}

func TestRateCached(t *testing.T) {
	r := &fakeReader{rate: 7}
	o := New(r, time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		got, err := o.LendingRate(context.Background(), "0xlend")
		if err != nil {
			t.Fatalf("LendingRate: %v", err)
		}
		if got != 7 {
			t.Fatalf("rate = %d, want 7", got)
		}
	}
	if r.rateCalls != 1 {
		t.Errorf("reader called %d times, want 1", r.rateCalls)
	}
}

func TestRateAndBorrowRateCachedSeparately(t *testing.T) {
	r := &fakeReader{rate: 5}
	o := New(r, time.Minute, zap.NewNop())

	o.LendingRate(context.Background(), "0xc")
	o.BorrowRate(context.Background(), "0xc")
	if r.rateCalls != 2 {
		t.Errorf("reader called %d times, want 2 (one per method)", r.rateCalls)
	}
}

func TestReadFailureIsError(t *testing.T) {
	r := &fakeReader{rateErr: errors.New("rpc down"), pausedErr: errors.New("rpc down")}
	o := New(r, time.Minute, zap.NewNop())

	if _, err := o.LendingRate(context.Background(), "0xlend"); !errors.Is(err, ErrOracleUnavailable) {
		t.Errorf("want ErrOracleUnavailable, got %v", err)
	}
	if _, err := o.Paused(context.Background(), "0xlend"); !errors.Is(err, ErrOracleUnavailable) {
		t.Errorf("want ErrOracleUnavailable, got %v", err)
	}
}

func TestInvalidateAllForcesRefetch(t *testing.T) {
	r := &fakeReader{rate: 3, paused: true}
	o := New(r, time.Minute, zap.NewNop())

	o.LendingRate(context.Background(), "0xlend")
	o.Paused(context.Background(), "0xlend")
	o.InvalidateAll()

	o.LendingRate(context.Background(), "0xlend")
	paused, err := o.Paused(context.Background(), "0xlend")
	if err != nil {
		t.Fatalf("Paused: %v", err)
	}
	if !paused {
		t.Error("paused flag should survive refetch")
	}
	if r.rateCalls != 2 || r.pauseCalls != 2 {
		t.Errorf("calls after invalidate = %d/%d, want 2/2", r.rateCalls, r.pauseCalls)
	}
}

func TestExpiredEntryRefetched(t *testing.T) {
	r := &fakeReader{rate: 9}
	o := New(r, time.Millisecond, zap.NewNop())

	o.LendingRate(context.Background(), "0xlend")
	time.Sleep(5 * time.Millisecond)
	o.LendingRate(context.Background(), "0xlend")
	if r.rateCalls != 2 {
		t.Errorf("reader called %d times, want 2 after TTL expiry", r.rateCalls)
	}
}
