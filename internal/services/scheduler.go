package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"zbudget/internal/core"
	"zbudget/internal/storage"
)

// RecalcFunc is the authoritative recompute the scheduler drives.
type RecalcFunc func(ctx context.Context, budgetID string, month core.Month) (core.MonthlyData, error)

// SchedulerConfig holds timing knobs for the recalculation scheduler.
type SchedulerConfig struct {
	// Debounce is how long after the last allocation edit a recompute fires.
	Debounce time.Duration

	// Timeout bounds a single recompute attempt.
	Timeout time.Duration

	// MaxAttempts is the number of tries per dispatch before the error is
	// surfaced (default: 3).
	MaxAttempts int

	// BackoffBase and BackoffCap shape the exponential retry delay
	// (base, 2*base, 4*base, ... capped).
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// DefaultSchedulerConfig returns sensible defaults
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Debounce:    500 * time.Millisecond,
		Timeout:     10 * time.Second,
		MaxAttempts: 3,
		BackoffBase: time.Second,
		BackoffCap:  8 * time.Second,
	}
}

const (
	stateIdle = iota
	statePendingDebounce
	stateInFlight
)

type keyState struct {
	state int

	// editSeq counts allocation edits for the key; dispatchedSeq is the value
	// captured when a recompute was sent. A result whose dispatchedSeq is
	// behind editSeq was superseded and is discarded.
	editSeq       int64
	dispatchedSeq int64

	timer *time.Timer

	// runMu serializes recompute invocations for the key, including manual
	// ones, so two recomputes never run concurrently for the same document.
	runMu sync.Mutex
}

// RecalcScheduler owns the consistency protocol between allocation edits and
// the authoritative recompute: per-key debounce, single-flight, retry with
// backoff and stale-result discard. Keys are independent; months open in two
// tabs recompute concurrently.
type RecalcScheduler struct {
	recalc RecalcFunc
	cfg    SchedulerConfig

	// OnResult receives every fresh authoritative result (nil to ignore).
	OnResult func(md core.MonthlyData)

	// OnError receives the final error after retries are exhausted; the
	// optimistic allocation stays in place, only the derived figures remain
	// stale (nil to ignore).
	OnError func(budgetID string, month core.Month, err error)

	mu     sync.Mutex
	keys   map[string]*keyState
	closed bool
	wg     sync.WaitGroup
}

func NewRecalcScheduler(recalc RecalcFunc, cfg SchedulerConfig) *RecalcScheduler {
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap < cfg.BackoffBase {
		cfg.BackoffCap = cfg.BackoffBase
	}
	return &RecalcScheduler{
		recalc: recalc,
		cfg:    cfg,
		keys:   make(map[string]*keyState),
	}
}

func schedulerKey(budgetID string, month core.Month) string {
	return budgetID + "/" + month.String()
}

// AllocationWritten records a successful allocation edit and (re)arms the
// debounce window. Bursts of edits within the window collapse into one
// recompute; edits during an in-flight recompute mark its result stale.
func (s *RecalcScheduler) AllocationWritten(budgetID string, month core.Month) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	ks := s.keyLocked(budgetID, month)
	ks.editSeq++

	switch ks.state {
	case stateIdle:
		ks.state = statePendingDebounce
		s.armLocked(ks, budgetID, month, s.cfg.Debounce)
	case statePendingDebounce:
		ks.timer.Reset(s.cfg.Debounce)
	case stateInFlight:
		// The seq bump is enough: the in-flight result will be discarded and
		// the key re-armed when it lands.
	}
}

// RecalculateNow runs the recompute synchronously, serialized against any
// in-flight scheduled run for the same key. Used by the manual retry
// affordance and the recompute endpoint.
func (s *RecalcScheduler) RecalculateNow(ctx context.Context, budgetID string, month core.Month) (core.MonthlyData, error) {
	s.mu.Lock()
	ks := s.keyLocked(budgetID, month)
	s.mu.Unlock()

	ks.runMu.Lock()
	defer ks.runMu.Unlock()
	return s.recalc(ctx, budgetID, month)
}

// Stop disarms all timers and waits for in-flight work to finish.
func (s *RecalcScheduler) Stop() {
	s.mu.Lock()
	s.closed = true
	for _, ks := range s.keys {
		if ks.timer != nil {
			ks.timer.Stop()
		}
		ks.state = stateIdle
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *RecalcScheduler) keyLocked(budgetID string, month core.Month) *keyState {
	key := schedulerKey(budgetID, month)
	ks, ok := s.keys[key]
	if !ok {
		ks = &keyState{}
		s.keys[key] = ks
	}
	return ks
}

func (s *RecalcScheduler) armLocked(ks *keyState, budgetID string, month core.Month, d time.Duration) {
	if ks.timer != nil {
		ks.timer.Stop()
	}
	ks.timer = time.AfterFunc(d, func() { s.fire(budgetID, month) })
}

func (s *RecalcScheduler) fire(budgetID string, month core.Month) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	ks := s.keyLocked(budgetID, month)
	if ks.state != statePendingDebounce {
		s.mu.Unlock()
		return
	}
	ks.state = stateInFlight
	ks.dispatchedSeq = ks.editSeq
	dispatched := ks.dispatchedSeq
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ks, budgetID, month, dispatched)
}

func (s *RecalcScheduler) run(ks *keyState, budgetID string, month core.Month, dispatched int64) {
	defer s.wg.Done()

	ks.runMu.Lock()
	md, err := s.attempt(budgetID, month)
	ks.runMu.Unlock()

	s.mu.Lock()
	superseded := ks.editSeq > dispatched
	if superseded || errors.Is(err, storage.ErrStaleVersion) {
		// A newer edit won the race. Discard whatever happened and schedule a
		// fresh recompute; no error surfaces for staleness.
		ks.state = statePendingDebounce
		if !s.closed {
			s.armLocked(ks, budgetID, month, s.cfg.Debounce)
		}
		s.mu.Unlock()
		slog.Debug("Discarded superseded recalculation",
			"budget_id", budgetID,
			"month", month.String())
		return
	}
	ks.state = stateIdle
	s.mu.Unlock()

	if err != nil {
		slog.Error("Recalculation failed after retries",
			"budget_id", budgetID,
			"month", month.String(),
			"attempts", s.cfg.MaxAttempts,
			"error", err)
		if s.OnError != nil {
			s.OnError(budgetID, month, err)
		}
		return
	}

	if s.OnResult != nil {
		s.OnResult(md)
	}
}

// attempt runs the recompute with per-attempt timeout and exponential backoff
// on transient failures. Stale-version failures abort immediately; the caller
// reschedules.
func (s *RecalcScheduler) attempt(budgetID string, month core.Month) (core.MonthlyData, error) {
	var lastErr error
	for i := 0; i < s.cfg.MaxAttempts; i++ {
		if i > 0 {
			time.Sleep(s.backoff(i - 1))
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		md, err := s.recalc(ctx, budgetID, month)
		cancel()

		if err == nil {
			return md, nil
		}
		if errors.Is(err, storage.ErrStaleVersion) {
			return core.MonthlyData{}, err
		}
		lastErr = err
		slog.Warn("Recalculation attempt failed",
			"budget_id", budgetID,
			"month", month.String(),
			"attempt", i+1,
			"error", err)
	}
	return core.MonthlyData{}, fmt.Errorf("recalculate %s/%s: %w", budgetID, month, lastErr)
}

func (s *RecalcScheduler) backoff(attempt int) time.Duration {
	d := s.cfg.BackoffBase << attempt
	if d > s.cfg.BackoffCap || d <= 0 {
		return s.cfg.BackoffCap
	}
	return d
}
