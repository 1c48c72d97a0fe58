// Package memstore keeps the committed dataset and import runs in memory.
//
// It satisfies core.DatasetStore and core.RunStore and is used by tests and
// by STORAGE_DRIVER=memory deployments, where data is lost on restart.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JonMunkholm/usageimport/internal/core"
)

// Store is safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	gen  *core.Generation
	runs []core.ImportRun

	commitErr error
	commits   int
	beforeOp  func()
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// FailCommits makes every following ReplaceDataset return err until it is
// called again with nil.
func (s *Store) FailCommits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

// BeforeCommit installs a hook run at the start of ReplaceDataset, before
// any lock is taken. Tests use it to hold a commit open.
func (s *Store) BeforeCommit(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeOp = fn
}

// Commits returns the number of successful dataset replacements.
func (s *Store) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

// ReplaceDataset swaps the stored generation in one step.
func (s *Store) ReplaceDataset(ctx context.Context, gen *core.Generation) error {
	s.mu.RLock()
	hook := s.beforeOp
	s.mu.RUnlock()
	if hook != nil {
		hook()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commitErr != nil {
		return s.commitErr
	}
	s.gen = gen
	s.commits++
	return nil
}

// LoadGeneration returns the stored generation or nil.
func (s *Store) LoadGeneration(ctx context.Context) (*core.Generation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen, nil
}

// InsertImportRun stores a copy of run.
func (s *Store) InsertImportRun(ctx context.Context, run *core.ImportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	if run.Entities != nil {
		counts := *run.Entities
		cp.Entities = &counts
	}
	s.runs = append(s.runs, cp)
	return nil
}

// ListImportRuns returns up to limit runs, newest first.
func (s *Store) ListImportRuns(ctx context.Context, limit int) ([]core.ImportRun, error) {
	s.mu.RLock()
	out := make([]core.ImportRun, len(s.runs))
	copy(out, s.runs)
	s.mu.RUnlock()

	// Reverse insertion order first so equal timestamps stay newest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PruneImportRuns removes runs that started before cutoff.
func (s *Store) PruneImportRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.runs[:0]
	var pruned int64
	for _, r := range s.runs {
		if r.StartedAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, r)
	}
	s.runs = kept
	return pruned, nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}
