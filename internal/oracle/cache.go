package oracle

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrOracleUnavailable: a rate or pause flag could not be read and no
// fresh cached value exists. Callers must surface this instead of
// treating the value as zero.
var ErrOracleUnavailable = errors.New("market oracle unavailable")

// Reader reads market parameters from the lending contracts.
type Reader interface {
	ReadRate(ctx context.Context, contract, method string) (int64, error)
	ReadPaused(ctx context.Context, contract string) (bool, error)
}

type rateEntry struct {
	value     int64
	fetchedAt time.Time
}

type pausedEntry struct {
	value     bool
	fetchedAt time.Time
}

// Oracle caches per-contract market reads with a TTL. Values are never
// defaulted: a failed read with a stale cache is an error, so a paused
// market can never look open and an unknown rate can never look like 0%.
type Oracle struct {
	reader Reader
	ttl    time.Duration
	log    *zap.Logger

	mu     sync.Mutex
	rates  map[string]rateEntry
	paused map[string]pausedEntry
}

func New(reader Reader, ttl time.Duration, log *zap.Logger) *Oracle {
	return &Oracle{
		reader: reader,
		ttl:    ttl,
		log:    log,
		rates:  make(map[string]rateEntry),
		paused: make(map[string]pausedEntry),
	}
}

// LendingRate returns the current lending APR in percent.
func (o *Oracle) LendingRate(ctx context.Context, contract string) (int64, error) {
	return o.rate(ctx, contract, "getLendingRate")
}

// BorrowRate returns the current borrowing APR in percent.
func (o *Oracle) BorrowRate(ctx context.Context, contract string) (int64, error) {
	return o.rate(ctx, contract, "getBorrowRate")
}

func (o *Oracle) rate(ctx context.Context, contract, method string) (int64, error) {
	key := contract + "/" + method

	o.mu.Lock()
	if e, ok := o.rates[key]; ok && time.Since(e.fetchedAt) < o.ttl {
		o.mu.Unlock()
		return e.value, nil
	}
	o.mu.Unlock()

	value, err := o.reader.ReadRate(ctx, contract, method)
	if err != nil {
		o.log.Warn("rate read failed",
			zap.String("contract", contract),
			zap.String("method", method),
			zap.Error(err))
		return 0, ErrOracleUnavailable
	}

	o.mu.Lock()
	o.rates[key] = rateEntry{value: value, fetchedAt: time.Now()}
	o.mu.Unlock()
	return value, nil
}

// Paused reports whether a market contract is paused.
func (o *Oracle) Paused(ctx context.Context, contract string) (bool, error) {
	o.mu.Lock()
	if e, ok := o.paused[contract]; ok && time.Since(e.fetchedAt) < o.ttl {
		o.mu.Unlock()
		return e.value, nil
	}
	o.mu.Unlock()

	value, err := o.reader.ReadPaused(ctx, contract)
	if err != nil {
		o.log.Warn("paused read failed", zap.String("contract", contract), zap.Error(err))
		return false, ErrOracleUnavailable
	}

	o.mu.Lock()
	o.paused[contract] = pausedEntry{value: value, fetchedAt: time.Now()}
	o.mu.Unlock()
	return value, nil
}

// InvalidateAll flushes every cached value. Called after admin writes
// and after the session switches networks.
func (o *Oracle) InvalidateAll() {
	o.mu.Lock()
	o.rates = make(map[string]rateEntry)
	o.paused = make(map[string]pausedEntry)
	o.mu.Unlock()
}
