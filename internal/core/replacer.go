package core

// replacer.go publishes new dataset generations.
//
// Commits are serialized by a single-slot lock. The store writes the new
// generation atomically (a database transaction for Postgres) and only
// then is the in-process pointer swapped, so readers of Current always see
// one complete generation. A failed store write leaves both the stored and
// the in-process generation untouched.

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DatasetStore persists generations.
type DatasetStore interface {
	// ReplaceDataset makes gen the only stored dataset, atomically. On error
	// the previously stored dataset must be intact.
	ReplaceDataset(ctx context.Context, gen *Generation) error

	// LoadGeneration returns the latest committed generation, or nil when
	// nothing has been committed yet.
	LoadGeneration(ctx context.Context) (*Generation, error)
}

// DatasetReplacer owns the current generation handle.
type DatasetReplacer struct {
	store   DatasetStore
	lock    chan struct{}
	current atomic.Pointer[Generation]
	metrics *Metrics
	now     func() time.Time
}

// NewDatasetReplacer creates a replacer with no current generation; call
// Load to restore the stored one.
func NewDatasetReplacer(store DatasetStore, metrics *Metrics) *DatasetReplacer {
	return &DatasetReplacer{
		store:   store,
		lock:    make(chan struct{}, 1),
		metrics: metrics,
		now:     time.Now,
	}
}

// Load restores the latest stored generation as current.
func (r *DatasetReplacer) Load(ctx context.Context) error {
	gen, err := r.store.LoadGeneration(ctx)
	if err != nil {
		return fmt.Errorf("load committed generation: %w", err)
	}
	if gen != nil {
		r.current.Store(gen)
		r.metrics.setGeneration(gen)
	}
	return nil
}

// Current returns the latest committed generation, or nil.
func (r *DatasetReplacer) Current() *Generation {
	return r.current.Load()
}

// Commit stores ds as the next generation. Waiting for the commit lock
// honors ctx; once the store write starts, cancellation is ignored and the
// write either completes or fails as a whole.
func (r *DatasetReplacer) Commit(ctx context.Context, runID uuid.UUID, ds *Dataset) (*Generation, error) {
	select {
	case r.lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-r.lock }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var next int64 = 1
	if prev := r.current.Load(); prev != nil {
		next = prev.Number + 1
	}
	gen := &Generation{
		Number:      next,
		RunID:       runID,
		CommittedAt: r.now().UTC(),
		Dataset:     ds,
	}

	start := time.Now()
	err := r.store.ReplaceDataset(context.WithoutCancel(ctx), gen)
	r.metrics.observeCommit(time.Since(start))
	if err != nil {
		return nil, &CommitFailedError{Err: err}
	}

	r.current.Store(gen)
	r.metrics.setGeneration(gen)
	return gen, nil
}
