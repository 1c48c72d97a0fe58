package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/usageimport/internal/logging"
)

// recordTimeout bounds persisting one import run.
const recordTimeout = 5 * time.Second

// RunStore persists import runs.
type RunStore interface {
	InsertImportRun(ctx context.Context, run *ImportRun) error
	// ListImportRuns returns up to limit runs, newest first.
	ListImportRuns(ctx context.Context, limit int) ([]ImportRun, error)
	// PruneImportRuns deletes runs that started before cutoff.
	PruneImportRuns(ctx context.Context, cutoff time.Time) (int64, error)
}

// MetricsRecorder wraps a pipeline invocation and always records one
// ImportRun for it, whatever the outcome.
type MetricsRecorder struct {
	runs    RunStore
	metrics *Metrics
	now     func() time.Time
}

// NewMetricsRecorder creates a recorder writing to runs.
func NewMetricsRecorder(runs RunStore, metrics *Metrics) *MetricsRecorder {
	return &MetricsRecorder{runs: runs, metrics: metrics, now: time.Now}
}

// Record stamps the start time, runs fn, stamps the end time and persists
// the run. fn fills in row and entity counts on the run it receives.
// Record returns fn's error unchanged; failures to persist are only logged.
func (m *MetricsRecorder) Record(ctx context.Context, fileName string, fn func(ctx context.Context, run *ImportRun) error) error {
	ip, ua := SourceFromContext(ctx)
	run := &ImportRun{
		ID:        uuid.New(),
		FileName:  fileName,
		SourceIP:  ip,
		UserAgent: ua,
		StartedAt: m.now().UTC(),
	}

	err := fn(ctx, run)

	run.FinishedAt = m.now().UTC()
	if err != nil {
		run.Success = false
		run.Entities = nil
		run.Generation = 0
		run.FailureKind = ErrorKind(err)
		run.FailureReason = MapError(err).Message
	} else {
		run.Success = true
	}

	m.persist(ctx, run)
	return err
}

func (m *MetricsRecorder) persist(ctx context.Context, run *ImportRun) {
	logger := logging.WithFields(ctx, "run_id", run.ID, "file", run.FileName)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("import run recording panicked", "panic", r)
		}
	}()

	m.metrics.observeRun(run)

	if m.runs == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := m.runs.InsertImportRun(saveCtx, run); err != nil {
		logger.Error("failed to record import run", "error", err)
		return
	}
	logger.Log(ctx, logLevel(run), "import run recorded",
		"success", run.Success,
		"failure_kind", run.FailureKind,
		"rows_read", run.RowsRead,
		"rows_accepted", run.RowsAccepted,
		"rows_rejected", run.RowsRejected,
		"duration_ms", run.Duration().Milliseconds(),
	)
}

func logLevel(run *ImportRun) slog.Level {
	if run.Success {
		return slog.LevelInfo
	}
	return slog.LevelWarn
}
