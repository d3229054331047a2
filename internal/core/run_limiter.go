package core

// run_limiter.go guards against overlapping submission runs.
//
// The remote service is addressed strictly sequentially: one run at a time,
// one request in flight. The limiter is a one-slot semaphore; a second
// StartRun while a run is active fails immediately with ErrRunInProgress.
// WaitForDrain supports graceful shutdown by blocking until the active run
// finishes.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRunInProgress is returned when a submission run is already active.
var ErrRunInProgress = errors.New("a submission run is already in progress")

// RunLimiter allows at most one active submission run.
type RunLimiter struct {
	semaphore chan struct{}

	mu     sync.RWMutex
	active int
}

// NewRunLimiter creates a limiter with a single run slot.
func NewRunLimiter() *RunLimiter {
	return &RunLimiter{
		semaphore: make(chan struct{}, 1),
	}
}

// TryAcquire attempts to claim the run slot without blocking.
// The caller MUST call Release when the run completes (use defer).
func (l *RunLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release frees the run slot. Must be called exactly once per successful
// TryAcquire.
func (l *RunLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of currently active runs (0 or 1).
func (l *RunLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until the active run completes or ctx is cancelled.
// Used during shutdown so an in-flight run can finish its current record.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}
