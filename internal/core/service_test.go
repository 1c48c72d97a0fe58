package core_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/usageimport/internal/core"
	"github.com/JonMunkholm/usageimport/internal/storage/memstore"
)

const scenarioCSV = "partner_id,customer_id,product_id,usage_date,quantity,unit_price\n" +
	"P001,C001,PRD001,2024-01-15,10.5,25.50\n"

func testConfig() core.ServiceConfig {
	return core.ServiceConfig{
		MaxConcurrent:         2,
		MaxWait:               time.Second,
		Timeout:               time.Minute,
		MaxFileSize:           1 << 20,
		MaxReportedRejections: 100,
	}
}

func newTestService(t *testing.T, cfg core.ServiceConfig, opts ...core.Option) (*core.Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	svc := core.NewService(st, st, cfg, opts...)
	require.NoError(t, svc.Start(context.Background()))
	return svc, st
}

func importCSV(svc *core.Service, name, body string) (*core.ImportResult, error) {
	return svc.Import(context.Background(), core.ImportRequest{FileName: name, Body: strings.NewReader(body)})
}

func listRuns(t *testing.T, svc *core.Service) []core.ImportRun {
	t.Helper()
	runs, err := svc.ImportRuns(context.Background(), 100)
	require.NoError(t, err)
	return runs
}

// ============================================================================
// Import Tests
// ============================================================================

func TestImport_SingleRow(t *testing.T) {
	svc, st := newTestService(t, testConfig())

	res, err := importCSV(svc, "usage.csv", scenarioCSV)
	require.NoError(t, err)

	assert.Equal(t, core.EntityCounts{Partners: 1, Customers: 1, Products: 1, Usages: 1}, res.Counts)
	assert.Equal(t, int64(1), res.Generation)
	assert.Empty(t, res.Rejections)
	assert.Equal(t, 1, res.Run.RowsRead)
	assert.Equal(t, 1, st.Commits())

	gen := svc.Current()
	require.NotNil(t, gen)
	assert.Equal(t, res.Run.ID, gen.RunID)
	assert.Equal(t, "267.75", gen.Dataset.Usages[0].PreTaxTotal.StringFixed(2))

	runs := listRuns(t, svc)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
	assert.Equal(t, "usage.csv", runs[0].FileName)
	require.NotNil(t, runs[0].Entities)
	assert.Equal(t, res.Counts, *runs[0].Entities)
}

func TestImport_ReuploadReplacesDataset(t *testing.T) {
	svc, _ := newTestService(t, testConfig())

	first, err := importCSV(svc, "usage.csv", scenarioCSV)
	require.NoError(t, err)
	second, err := importCSV(svc, "usage.csv", scenarioCSV)
	require.NoError(t, err)

	assert.Equal(t, first.Counts, second.Counts, "the same file yields the same dataset")
	assert.Equal(t, int64(2), second.Generation)
	assert.Equal(t, core.EntityCounts{Partners: 1, Customers: 1, Products: 1, Usages: 1}, svc.Current().Dataset.Counts())
}

func TestImport_NewFileFullyReplacesOld(t *testing.T) {
	svc, _ := newTestService(t, testConfig())

	_, err := importCSV(svc, "a.csv", scenarioCSV)
	require.NoError(t, err)

	_, err = importCSV(svc, "b.csv", "partner_id,customer_id,product_id,usage_date,quantity,unit_price\n"+
		"P9,C9,X9,2024-02-01,1,1\n"+
		"P9,C8,X9,2024-02-02,2,1\n")
	require.NoError(t, err)

	ds := svc.Current().Dataset
	require.Len(t, ds.Partners, 1)
	assert.Equal(t, "P9", ds.Partners[0].PartnerID)
	assert.Len(t, ds.Customers, 2)
	assert.Len(t, ds.Usages, 2)
}

func TestImport_MixedRows(t *testing.T) {
	cfg := testConfig()
	cfg.MaxReportedRejections = 1
	svc, _ := newTestService(t, cfg)

	body := "partner_id;customer_id;product_id;usage_date;quantity;unit_price\n" +
		";C1;X1;2024-01-01;1;1\n" +
		"P1;C1;X1;15/01/2024;1,5;2,00\n" +
		"P1;C1;X1;bad;1;1\n" +
		"P1;C1;X1;2024-01-01;;1\n"

	res, err := importCSV(svc, "mixed.csv", body)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Run.RowsRead)
	assert.Equal(t, 1, res.Run.RowsAccepted)
	assert.Equal(t, 3, res.Run.RowsRejected)
	require.Len(t, res.Rejections, 1, "reported rejections are capped")
	assert.Equal(t, 2, res.Rejections[0].Line)
	assert.Equal(t, "partner_id: required value is missing", res.Rejections[0].Reason)

	u := svc.Current().Dataset.Usages[0]
	assert.Equal(t, "3", u.PreTaxTotal.String())
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), u.UsageDate)
}

func TestImport_Failures(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		body     string
		maxSize  int64
		wantKind string
	}{
		{"empty file", "empty.csv", "", 0, core.KindEmptyFile},
		{"header only", "header.csv", "partner_id,customer_id\n", 0, core.KindEmptyFile},
		{"unsupported extension", "usage.txt", scenarioCSV, 0, core.KindMalformedFile},
		{"not a workbook", "usage.xlsx", scenarioCSV, 0, core.KindMalformedFile},
		{"no valid rows", "bad.csv", "partner_id,customer_id\nP1,C1\n", 0, core.KindNoValidRows},
		{"too large", "big.csv", scenarioCSV + strings.Repeat("P001,C001,PRD001,2024-01-15,10.5,25.50\n", 10), 200, core.KindFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			if tt.maxSize > 0 {
				cfg.MaxFileSize = tt.maxSize
			}
			svc, st := newTestService(t, cfg)

			_, err := importCSV(svc, "seed.csv", scenarioCSV)
			require.NoError(t, err)
			before := svc.Current()

			res, err := importCSV(svc, tt.fileName, tt.body)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.wantKind, core.ErrorKind(err))

			assert.Same(t, before, svc.Current(), "a failed import leaves the dataset untouched")
			assert.Equal(t, 1, st.Commits())

			runs := listRuns(t, svc)
			require.Len(t, runs, 2)
			failed := runs[0]
			assert.Equal(t, tt.fileName, failed.FileName)
			assert.False(t, failed.Success)
			assert.Equal(t, tt.wantKind, failed.FailureKind)
			assert.NotEmpty(t, failed.FailureReason)
			assert.Nil(t, failed.Entities)
		})
	}
}

func TestImport_CommitFailureKeepsPreviousGeneration(t *testing.T) {
	svc, st := newTestService(t, testConfig())

	_, err := importCSV(svc, "usage.csv", scenarioCSV)
	require.NoError(t, err)
	before := svc.Current()

	st.FailCommits(errors.New("disk full"))
	_, err = importCSV(svc, "usage.csv", scenarioCSV)

	var commitErr *core.CommitFailedError
	require.ErrorAs(t, err, &commitErr)
	assert.Same(t, before, svc.Current())

	st.FailCommits(nil)
	res, err := importCSV(svc, "usage.csv", scenarioCSV)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Generation)

	runs := listRuns(t, svc)
	require.Len(t, runs, 3)
	assert.True(t, runs[0].Success)
	assert.Equal(t, core.KindCommitFailed, runs[1].FailureKind)
}

func TestImport_Cancelled(t *testing.T) {
	svc, st := newTestService(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Import(ctx, core.ImportRequest{FileName: "usage.csv", Body: strings.NewReader(scenarioCSV)})
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, svc.Current())
	assert.Zero(t, st.Commits())

	runs := listRuns(t, svc)
	require.Len(t, runs, 1)
	assert.Equal(t, core.KindCancelled, runs[0].FailureKind)
}

func TestImport_BusyWhenAllSlotsTaken(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	cfg.MaxWait = 20 * time.Millisecond
	svc, st := newTestService(t, cfg)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	st.BeforeCommit(func() {
		once.Do(func() { close(entered) })
		<-release
	})

	done := make(chan error, 1)
	go func() {
		_, err := importCSV(svc, "slow.csv", scenarioCSV)
		done <- err
	}()
	<-entered

	assert.Equal(t, 1, svc.LimiterStatus().Active)

	_, err := importCSV(svc, "second.csv", scenarioCSV)
	assert.ErrorIs(t, err, core.ErrTooManyImports)

	close(release)
	require.NoError(t, <-done)

	runs := listRuns(t, svc)
	require.Len(t, runs, 2)
	kinds := map[string]string{}
	for _, r := range runs {
		kinds[r.FileName] = r.FailureKind
	}
	assert.Equal(t, core.KindBusy, kinds["second.csv"])
	assert.Empty(t, kinds["slow.csv"])

	require.NoError(t, svc.Close(context.Background()))
}

func TestImport_RecordsSource(t *testing.T) {
	svc, _ := newTestService(t, testConfig())

	ctx := core.ContextWithSource(context.Background(), "192.0.2.10", "test-agent")
	_, err := svc.Import(ctx, core.ImportRequest{FileName: "usage.csv", Body: strings.NewReader(scenarioCSV)})
	require.NoError(t, err)

	runs := listRuns(t, svc)
	require.Len(t, runs, 1)
	assert.Equal(t, "192.0.2.10", runs[0].SourceIP)
	assert.Equal(t, "test-agent", runs[0].UserAgent)
}

func TestImport_ClockStampsCustomers(t *testing.T) {
	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	svc, _ := newTestService(t, testConfig(), core.WithClock(func() time.Time { return at }))

	res, err := importCSV(svc, "usage.csv", scenarioCSV)
	require.NoError(t, err)

	gen := svc.Current()
	assert.Equal(t, at, gen.CommittedAt)
	assert.Equal(t, at, gen.Dataset.Customers[0].CreatedAt)
	assert.Equal(t, at, res.Run.StartedAt)
}

func TestService_StartRestoresStoredGeneration(t *testing.T) {
	st := memstore.New()
	first := core.NewService(st, st, testConfig())
	require.NoError(t, first.Start(context.Background()))
	_, err := importCSV(first, "usage.csv", scenarioCSV)
	require.NoError(t, err)

	restarted := core.NewService(st, st, testConfig())
	require.NoError(t, restarted.Start(context.Background()))

	gen := restarted.Current()
	require.NotNil(t, gen)
	assert.Equal(t, int64(1), gen.Number)

	res, err := importCSV(restarted, "usage.csv", scenarioCSV)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Generation)
}

// ============================================================================
// Import Run History Tests
// ============================================================================

func TestImportRuns_NewestFirst(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	svc, _ := newTestService(t, testConfig(), core.WithClock(clock))

	for _, name := range []string{"one.csv", "two.csv", "three.csv"} {
		_, err := importCSV(svc, name, scenarioCSV)
		require.NoError(t, err)
	}

	runs, err := svc.ImportRuns(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "three.csv", runs[0].FileName)
	assert.Equal(t, "two.csv", runs[1].FileName)
}

func TestRetentionScheduler_PrunesOldRuns(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	setNow := func(t time.Time) {
		mu.Lock()
		now = t
		mu.Unlock()
	}

	svc, _ := newTestService(t, testConfig(), core.WithClock(clock))

	setNow(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	_, err := importCSV(svc, "old.csv", scenarioCSV)
	require.NoError(t, err)

	setNow(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	_, err = importCSV(svc, "new.csv", scenarioCSV)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		svc.StartRetentionScheduler(ctx, core.RetentionConfig{MaxAge: 7 * 24 * time.Hour, Interval: time.Hour})
		close(stopped)
	}()

	require.Eventually(t, func() bool {
		runs, err := svc.ImportRuns(context.Background(), 100)
		return err == nil && len(runs) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-stopped

	runs := listRuns(t, svc)
	assert.Equal(t, "new.csv", runs[0].FileName)
	assert.NotNil(t, svc.Current(), "pruning runs never touches the dataset")
}

func TestRetentionScheduler_DisabledReturns(t *testing.T) {
	svc, _ := newTestService(t, testConfig())

	done := make(chan struct{})
	go func() {
		svc.StartRetentionScheduler(context.Background(), core.RetentionConfig{})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler with zero MaxAge should return immediately")
	}
}

// ============================================================================
// Bootstrap Tests
// ============================================================================

func TestBootstrap_LoadsSeedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed.csv"), []byte(scenarioCSV), 0o644))

	svc, _ := newTestService(t, testConfig())

	res, err := svc.Bootstrap(context.Background(), core.BootstrapOptions{
		FileName:    "seed.csv",
		SearchPaths: []string{filepath.Join(dir, "missing"), dir},
	})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, int64(1), res.Generation)
	assert.Equal(t, "seed.csv", res.Run.FileName)

	again, err := svc.Bootstrap(context.Background(), core.BootstrapOptions{FileName: "seed.csv", SearchPaths: []string{dir}})
	require.NoError(t, err)
	assert.Nil(t, again, "seed is skipped once a generation exists")
	assert.Equal(t, int64(1), svc.Current().Number)
}

func TestBootstrap_AbsolutePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.csv")
	require.NoError(t, os.WriteFile(path, []byte(scenarioCSV), 0o644))

	svc, _ := newTestService(t, testConfig())

	res, err := svc.Bootstrap(context.Background(), core.BootstrapOptions{FileName: path})
	require.NoError(t, err)
	require.NotNil(t, res)
}

func TestBootstrap_MissingFileIsSkipped(t *testing.T) {
	svc, _ := newTestService(t, testConfig())

	res, err := svc.Bootstrap(context.Background(), core.BootstrapOptions{
		FileName:    "Reconfile fornecedores.xlsx",
		SearchPaths: []string{t.TempDir()},
	})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Nil(t, svc.Current())
	assert.Empty(t, listRuns(t, svc))
}

func TestBootstrap_InvalidSeedReturnsError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "seed.csv"), nil, 0o644))

	svc, _ := newTestService(t, testConfig())

	_, err := svc.Bootstrap(context.Background(), core.BootstrapOptions{FileName: "seed.csv", SearchPaths: []string{dir}})
	var empty *core.EmptyFileError
	require.ErrorAs(t, err, &empty)
	assert.Nil(t, svc.Current())
}
