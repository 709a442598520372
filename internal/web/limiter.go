package web

// limiter.go caps how many escape requests are processed at once.
//
// The limiter uses a semaphore so a burst of large payloads cannot exhaust
// memory. When all slots are occupied, new requests wait up to maxWait
// before failing with ErrBusy. WaitForDrain lets shutdown finish in-flight
// work before the listener closes.

import (
	"context"
	"sync"
	"time"

	"gitlab.com/tozd/go/errors"
)

// ErrBusy is returned when every processing slot is taken and the wait
// timeout expires. Clients should retry after a short delay.
var ErrBusy = errors.New("too many requests in progress, please try again later")

// DefaultMaxConcurrent is the default number of requests processed at once.
const DefaultMaxConcurrent = 8

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 10 * time.Second

// ProcessLimiter controls concurrent request processing.
type ProcessLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewProcessLimiter creates a limiter that allows at most maxConcurrent requests.
// Requests that cannot acquire a slot within maxWait receive ErrBusy.
func NewProcessLimiter(maxConcurrent int, maxWait time.Duration) *ProcessLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &ProcessLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire waits for a processing slot.
// Returns nil on success, ErrBusy if the wait times out, or the context's
// error if ctx ends first. The caller must call Release after a nil return.
func (l *ProcessLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil

	case <-waitCtx.Done():
		// Distinguish the caller going away from our own timeout
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.WithStack(ErrBusy)
	}
}

// TryAcquire attempts to acquire a slot without blocking.
func (l *ProcessLimiter) TryAcquire() bool {
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

// Release releases a previously acquired slot.
// Must be called exactly once for each successful Acquire/TryAcquire.
func (l *ProcessLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of requests currently being processed.
func (l *ProcessLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// Available returns the number of free slots.
func (l *ProcessLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until all active requests complete or ctx is cancelled.
func (l *ProcessLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
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

// LimiterStatus is a snapshot of the limiter's state.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for health checks.
func (l *ProcessLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: cap(l.semaphore),
	}
}
