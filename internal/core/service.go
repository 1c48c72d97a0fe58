package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/usageimport/internal/logging"
)

// ContextCheckInterval is how many rows are read between cancellation checks.
const ContextCheckInterval = 100

// ServiceConfig holds the import tuning knobs.
type ServiceConfig struct {
	MaxConcurrent         int
	MaxWait               time.Duration
	Timeout               time.Duration
	MaxFileSize           int64
	MaxReportedRejections int
}

// Service is the entry point for imports and for reading the committed dataset.
type Service struct {
	cfg      ServiceConfig
	schema   []FieldSpec
	limiter  *ImportLimiter
	replacer *DatasetReplacer
	recorder *MetricsRecorder
	runs     RunStore
	datasets DatasetStore
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithMetrics records pipeline metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.replacer.metrics = m
		s.recorder.metrics = m
	}
}

// WithClock replaces time.Now for timestamps stored on entities and runs.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
		s.replacer.now = now
		s.recorder.now = now
	}
}

// NewService wires the pipeline stages to their stores.
func NewService(datasets DatasetStore, runs RunStore, cfg ServiceConfig, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		schema:   UsageSchema,
		limiter:  NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		replacer: NewDatasetReplacer(datasets, nil),
		recorder: NewMetricsRecorder(runs, nil),
		runs:     runs,
		datasets: datasets,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start restores the committed generation from storage.
func (s *Service) Start(ctx context.Context) error {
	return s.replacer.Load(ctx)
}

// ImportRequest is one uploaded file.
type ImportRequest struct {
	FileName string
	Body     io.Reader
}

// Import runs the whole pipeline for one file: read, normalize, validate,
// resolve and commit. The dataset is replaced only if every step succeeds.
func (s *Service) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	var (
		result   *ImportResult
		recorded *ImportRun
	)

	err := s.recorder.Record(ctx, req.FileName, func(ctx context.Context, run *ImportRun) error {
		recorded = run

		if err := s.limiter.Acquire(ctx); err != nil {
			return err
		}
		defer s.limiter.Release()

		if s.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
			defer cancel()
		}

		res, err := s.runPipeline(ctx, req, run)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Run = *recorded
	return result, nil
}

func (s *Service) runPipeline(ctx context.Context, req ImportRequest, run *ImportRun) (*ImportResult, error) {
	logger := logging.WithImport(ctx, run.ID.String(), req.FileName)

	format, err := DetectFormat(req.FileName)
	if err != nil {
		return nil, err
	}

	counter := NewCountingReader(newSizeLimitReader(req.Body, s.cfg.MaxFileSize))
	rd, err := OpenReader(counter, format, req.FileName)
	if err != nil {
		return nil, err
	}
	defer rd.Close()

	validator := NewRowValidator(s.schema)
	report := NewValidationReport(s.cfg.MaxReportedRejections)
	resolver := NewEntityResolver(s.now())

	for {
		raw, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			run.RowsRead, run.RowsRejected = report.RowsRead(), report.RowsRejected()
			return nil, err
		}

		kept, rej := validator.Check(Normalize(raw, s.schema))
		if rej != nil {
			report.Reject(*rej)
		} else {
			report.Accept()
			resolver.Add(kept)
		}

		if report.RowsRead()%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}

	run.RowsRead = report.RowsRead()
	run.RowsAccepted = report.RowsAccepted()
	run.RowsRejected = report.RowsRejected()

	logger.Info("file parsed",
		"format", format.String(),
		"bytes_read", counter.BytesRead(),
		"rows_read", run.RowsRead,
		"rows_accepted", run.RowsAccepted,
		"rows_rejected", run.RowsRejected,
	)

	if err := report.Err(); err != nil {
		return nil, err
	}

	ds, err := resolver.Dataset()
	if err != nil {
		logger.Error("entity resolution failed", "error", err)
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	gen, err := s.replacer.Commit(ctx, run.ID, ds)
	if err != nil {
		logger.Error("dataset commit failed", "error", err)
		return nil, err
	}

	counts := ds.Counts()
	run.Entities = &counts
	run.Generation = gen.Number

	logger.Info("dataset committed",
		"generation", gen.Number,
		"partners", counts.Partners,
		"customers", counts.Customers,
		"products", counts.Products,
		"usages", counts.Usages,
	)

	return &ImportResult{
		Run:        *run,
		Counts:     counts,
		Generation: gen.Number,
		Rejections: report.Rejected,
	}, nil
}

// Current returns the latest committed generation, or nil before the first commit.
func (s *Service) Current() *Generation {
	return s.replacer.Current()
}

// ImportRuns returns up to limit import runs, newest first.
func (s *Service) ImportRuns(ctx context.Context, limit int) ([]ImportRun, error) {
	if s.runs == nil {
		return nil, nil
	}
	runs, err := s.runs.ListImportRuns(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list import runs: %w", err)
	}
	return runs, nil
}

// LimiterStatus reports import slot occupancy.
func (s *Service) LimiterStatus() ImportLimiterStatus {
	return s.limiter.Status()
}

// Close waits for in-flight imports to finish or ctx to end.
func (s *Service) Close(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks the dataset store when it supports health checks.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.datasets.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
