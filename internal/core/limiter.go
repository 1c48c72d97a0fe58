package core

// limiter.go bounds how many imports parse and resolve at the same time.
//
// Parsing a large workbook holds the whole file and its entity graph in
// memory, so only a fixed number of imports may run at once. Requests that
// cannot get a slot within maxWait fail with ErrTooManyImports. The commit
// step is serialized separately by DatasetReplacer.

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTooManyImports is returned when all import slots stay occupied for the
// whole wait period. Clients should retry after a short delay.
var ErrTooManyImports = errors.New("too many concurrent imports, please try again later")

const (
	DefaultMaxConcurrentImports = 4
	DefaultMaxWaitTime          = 10 * time.Second
)

// ImportLimiter is a weighted semaphore with drain support.
type ImportLimiter struct {
	sem     *semaphore.Weighted
	size    int
	maxWait time.Duration

	mu     sync.Mutex
	active int
	idle   chan struct{} // closed while active == 0
}

// ImportLimiterStatus is a snapshot of limiter occupancy.
type ImportLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// NewImportLimiter allows maxConcurrent simultaneous imports.
func NewImportLimiter(maxConcurrent int, maxWait time.Duration) *ImportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	idle := make(chan struct{})
	close(idle)
	return &ImportLimiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		size:    maxConcurrent,
		maxWait: maxWait,
		idle:    idle,
	}
}

// Acquire waits for a free slot. It returns ctx.Err() when ctx ends first
// and ErrTooManyImports when the wait period expires. Every successful
// Acquire must be paired with Release.
func (l *ImportLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyImports
	}
	l.enter()
	return nil
}

// tryAcquire takes a slot only if one is free right now.
func (l *ImportLimiter) tryAcquire() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.enter()
	return true
}

// Release frees a slot taken by Acquire or tryAcquire.
func (l *ImportLimiter) Release() {
	l.mu.Lock()
	l.active--
	if l.active == 0 {
		close(l.idle)
	}
	l.mu.Unlock()
	l.sem.Release(1)
}

func (l *ImportLimiter) enter() {
	l.mu.Lock()
	if l.active == 0 {
		l.idle = make(chan struct{})
	}
	l.active++
	l.mu.Unlock()
}

// WaitForDrain blocks until no import holds a slot or ctx ends.
func (l *ImportLimiter) WaitForDrain(ctx context.Context) error {
	l.mu.Lock()
	idle := l.idle
	l.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current occupancy.
func (l *ImportLimiter) Status() ImportLimiterStatus {
	l.mu.Lock()
	active := l.active
	l.mu.Unlock()
	return ImportLimiterStatus{
		Active:        active,
		Available:     l.size - active,
		MaxConcurrent: l.size,
	}
}
