package core

// run_limiter.go implements concurrency control for datasheet runs.
//
// Two guards apply. A semaphore restricts the number of runs performing at
// once; requests that cannot get a slot within maxWait fail with
// ErrTooManyRuns. A per-run lock set makes sure a single run is never
// performed twice at the same time; a second attempt fails with ErrRunBusy.
//
// WaitForDrain blocks until all active runs complete, for graceful shutdown.

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTooManyRuns is returned when all run slots are occupied and the wait
// timeout expires. Clients should retry after a short delay.
var ErrTooManyRuns = errors.New("too many datasheets processing, please try again later")

// ErrRunBusy is returned when the run is already being performed.
var ErrRunBusy = errors.New("datasheet is already being processed")

// DefaultMaxConcurrentRuns is the default limit for parallel runs.
const DefaultMaxConcurrentRuns = 2

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// RunLimiter controls concurrent run processing.
type RunLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu      sync.RWMutex
	active  int
	running map[uuid.UUID]struct{}
}

// NewRunLimiter creates a limiter that allows at most maxConcurrent
// simultaneous runs. Requests that cannot acquire a slot within maxWait
// receive ErrTooManyRuns.
func NewRunLimiter(maxConcurrent int, maxWait time.Duration) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &RunLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
		running:   make(map[uuid.UUID]struct{}),
	}
}

// Acquire claims run id and a processing slot.
// Returns ErrRunBusy if id is already claimed, ErrTooManyRuns if the wait
// expires. The caller MUST call Release(id) after a nil return (use defer).
func (l *RunLimiter) Acquire(ctx context.Context, id uuid.UUID) error {
	if !l.claim(id) {
		return ErrRunBusy
	}

	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		l.unclaim(id)
		// Original context cancelled vs timeout
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyRuns
	}
}

// TryAcquire claims run id and a slot without blocking.
func (l *RunLimiter) TryAcquire(id uuid.UUID) bool {
	if !l.claim(id) {
		return false
	}

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		l.unclaim(id)
		return false
	}
}

// Release frees the slot and the claim on id.
// Must be called exactly once for each successful Acquire/TryAcquire.
func (l *RunLimiter) Release(id uuid.UUID) {
	l.mu.Lock()
	l.active--
	delete(l.running, id)
	l.mu.Unlock()

	<-l.semaphore
}

func (l *RunLimiter) claim(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.running[id]; busy {
		return false
	}
	l.running[id] = struct{}{}
	return true
}

func (l *RunLimiter) unclaim(id uuid.UUID) {
	l.mu.Lock()
	delete(l.running, id)
	l.mu.Unlock()
}

// Running reports whether run id currently holds a claim.
func (l *RunLimiter) Running(id uuid.UUID) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.running[id]
	return ok
}

// ActiveCount returns the number of runs currently holding a slot.
func (l *RunLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// MaxConcurrent returns the maximum allowed concurrent runs.
func (l *RunLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// Available returns the number of free slots.
func (l *RunLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until all active runs complete or ctx is cancelled.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunLimiterStatus is a snapshot of the limiter's state.
type RunLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *RunLimiter) Status() RunLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return RunLimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
