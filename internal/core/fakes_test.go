package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeStore is an in-memory DatasetStore and RunStore for package tests.
type fakeStore struct {
	mu         sync.Mutex
	gen        *Generation
	runs       []ImportRun
	replaceErr error
	insertErr  error
	loadErr    error
	replaced   int
	onReplace  func()
}

func (f *fakeStore) ReplaceDataset(ctx context.Context, gen *Generation) error {
	if f.onReplace != nil {
		f.onReplace()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.gen = gen
	f.replaced++
	return nil
}

func (f *fakeStore) LoadGeneration(ctx context.Context) (*Generation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gen, f.loadErr
}

func (f *fakeStore) InsertImportRun(ctx context.Context, run *ImportRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.runs = append(f.runs, *run)
	return nil
}

func (f *fakeStore) ListImportRuns(ctx context.Context, limit int) ([]ImportRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ImportRun, 0, len(f.runs))
	for i := len(f.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.runs[i])
	}
	return out, nil
}

func (f *fakeStore) PruneImportRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.runs[:0]
	var pruned int64
	for _, r := range f.runs {
		if r.StartedAt.Before(cutoff) {
			pruned++
			continue
		}
		kept = append(kept, r)
	}
	f.runs = kept
	return pruned, nil
}

func (f *fakeStore) storedRuns() []ImportRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ImportRun(nil), f.runs...)
}

var errStoreDown = errors.New("store down")

func testDataset() *Dataset {
	return &Dataset{
		Partners:  []Partner{{PartnerID: "P1"}},
		Customers: []Customer{{CustomerID: "C1"}},
		Products:  []Product{{ProductID: "X1"}},
		Usages:    []Usage{{PartnerID: "P1", CustomerID: "C1", ProductID: "X1"}},
	}
}
