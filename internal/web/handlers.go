package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/usageimport/internal/core"
	"github.com/JonMunkholm/usageimport/internal/web/templates"
)

const (
	// multipartOverhead is allowed on top of the file size limit for
	// boundaries and part headers.
	multipartOverhead = 1 << 20

	defaultRunsLimit = 50
	maxRunsLimit     = 500

	healthTimeout = 2 * time.Second
)

var errNoFilePart = errors.New("no file part")

// UploadResponse is the JSON body of a successful upload.
type UploadResponse struct {
	Success      bool              `json:"success"`
	Message      string            `json:"message"`
	Data         core.EntityCounts `json:"data"`
	RunID        string            `json:"run_id"`
	Generation   int64             `json:"generation"`
	RowsRead     int               `json:"rows_read"`
	RowsRejected int               `json:"rows_rejected"`
	Rejections   []core.Rejection  `json:"rejections,omitempty"`
}

// handleUpload streams the "file" part of a multipart upload into the
// import pipeline without buffering it on disk.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, msgInvalidForm)
		return
	}

	part, err := nextFilePart(mr)
	if err != nil {
		var maxBytes *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytes):
			s.respondError(w, r, err)
		case errors.Is(err, errNoFilePart):
			writeError(w, r, http.StatusBadRequest, msgNoFile)
		default:
			writeError(w, r, http.StatusBadRequest, msgInvalidForm)
		}
		return
	}
	defer part.Close()

	ctx := WithRequestMetadata(r.Context(), r)
	result, err := s.service.Import(ctx, core.ImportRequest{
		FileName: part.FileName(),
		Body:     bodyLimitReader{part},
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		templates.ImportSummary(result).Render(r.Context(), w)
		return
	}
	writeJSON(w, http.StatusOK, toUploadResponse(result))
}

// bodyLimitReader reports the request body limit as core.ErrFileTooLarge,
// so the recorded run fails the same way the response does.
type bodyLimitReader struct {
	r io.Reader
}

func (b bodyLimitReader) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		err = fmt.Errorf("%w: %w", core.ErrFileTooLarge, err)
	}
	return n, err
}

// nextFilePart skips form fields until the "file" part.
func nextFilePart(mr *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, errNoFilePart
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

func toUploadResponse(result *core.ImportResult) UploadResponse {
	return UploadResponse{
		Success:      true,
		Message:      "File processed successfully",
		Data:         result.Counts,
		RunID:        result.Run.ID.String(),
		Generation:   result.Generation,
		RowsRead:     result.Run.RowsRead,
		RowsRejected: result.Run.RowsRejected,
		Rejections:   result.Rejections,
	}
}

// ProcessingMetric is one import run as served by /api/metrics/processing.
type ProcessingMetric struct {
	ID            string    `json:"id"`
	FileName      string    `json:"file_name"`
	CreatedAt     time.Time `json:"created_at"`
	FinishedAt    time.Time `json:"finished_at"`
	DurationMs    int64     `json:"duration_ms"`
	RecordsCount  int       `json:"records_count"`
	RowsAccepted  int       `json:"rows_accepted"`
	RowsRejected  int       `json:"rows_rejected"`
	Partners      *int      `json:"partners"`
	Customers     *int      `json:"customers"`
	Products      *int      `json:"products"`
	Usages        *int      `json:"usages"`
	Generation    *int64    `json:"generation,omitempty"`
	Success       bool      `json:"success"`
	FailureKind   string    `json:"failure_kind,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

func toProcessingMetric(run core.ImportRun) ProcessingMetric {
	m := ProcessingMetric{
		ID:            run.ID.String(),
		FileName:      run.FileName,
		CreatedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
		DurationMs:    run.Duration().Milliseconds(),
		RecordsCount:  run.RowsRead,
		RowsAccepted:  run.RowsAccepted,
		RowsRejected:  run.RowsRejected,
		Success:       run.Success,
		FailureKind:   run.FailureKind,
		FailureReason: run.FailureReason,
	}
	if e := run.Entities; e != nil {
		m.Partners, m.Customers, m.Products, m.Usages = &e.Partners, &e.Customers, &e.Products, &e.Usages
	}
	if run.Generation > 0 {
		g := run.Generation
		m.Generation = &g
	}
	return m
}

// handleProcessingMetrics lists import runs, newest first.
func (s *Server) handleProcessingMetrics(w http.ResponseWriter, r *http.Request) {
	limit := min(parseIntParam(r, "limit", defaultRunsLimit), maxRunsLimit)

	runs, err := s.service.ImportRuns(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		templates.ImportRunsTable(runs).Render(r.Context(), w)
		return
	}

	metrics := make([]ProcessingMetric, 0, len(runs))
	for _, run := range runs {
		metrics = append(metrics, toProcessingMetric(run))
	}
	writeJSON(w, http.StatusOK, metrics)
}

// DatasetResponse summarizes the committed generation.
type DatasetResponse struct {
	Generation  int64             `json:"generation"`
	RunID       string            `json:"run_id,omitempty"`
	CommittedAt *time.Time        `json:"committed_at"`
	Data        core.EntityCounts `json:"data"`
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	var resp DatasetResponse
	if gen := s.service.Current(); gen != nil {
		committed := gen.CommittedAt
		resp = DatasetResponse{
			Generation:  gen.Number,
			RunID:       gen.RunID.String(),
			CommittedAt: &committed,
			Data:        gen.Dataset.Counts(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status     string                   `json:"status"`
	Storage    string                   `json:"storage"`
	Generation int64                    `json:"generation"`
	Imports    core.ImportLimiterStatus `json:"imports"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:  "ok",
		Storage: "ok",
		Imports: s.service.LimiterStatus(),
	}
	if gen := s.service.Current(); gen != nil {
		resp.Generation = gen.Number
	}

	status := http.StatusOK
	if err := s.service.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Storage = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}
