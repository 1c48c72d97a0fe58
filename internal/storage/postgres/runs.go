package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/usageimport/internal/core"
)

// InsertImportRun stores one import run.
func (s *Store) InsertImportRun(ctx context.Context, run *core.ImportRun) error {
	var partners, customers, products, usages pgtype.Int4
	if run.Entities != nil {
		partners = pgtype.Int4{Int32: int32(run.Entities.Partners), Valid: true}
		customers = pgtype.Int4{Int32: int32(run.Entities.Customers), Valid: true}
		products = pgtype.Int4{Int32: int32(run.Entities.Products), Valid: true}
		usages = pgtype.Int4{Int32: int32(run.Entities.Usages), Valid: true}
	}
	generation := pgtype.Int8{Int64: run.Generation, Valid: run.Generation > 0}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO import_runs (
			id, file_name, source_ip, user_agent, started_at, finished_at, duration_ms,
			rows_read, rows_accepted, rows_rejected,
			partners, customers, products, usages, generation,
			success, failure_kind, failure_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		run.ID, run.FileName, run.SourceIP, run.UserAgent,
		run.StartedAt, run.FinishedAt, run.Duration().Milliseconds(),
		run.RowsRead, run.RowsAccepted, run.RowsRejected,
		partners, customers, products, usages, generation,
		run.Success, run.FailureKind, run.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("insert import run: %w", err)
	}
	return nil
}

// ListImportRuns returns up to limit runs, newest first.
func (s *Store) ListImportRuns(ctx context.Context, limit int) ([]core.ImportRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, file_name, source_ip, user_agent, started_at, finished_at,
		       rows_read, rows_accepted, rows_rejected,
		       partners, customers, products, usages, generation,
		       success, failure_kind, failure_reason
		FROM import_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query import runs: %w", err)
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.ImportRun, error) {
		var (
			r                                     core.ImportRun
			partners, customers, products, usages pgtype.Int4
			generation                            pgtype.Int8
		)
		err := row.Scan(
			&r.ID, &r.FileName, &r.SourceIP, &r.UserAgent, &r.StartedAt, &r.FinishedAt,
			&r.RowsRead, &r.RowsAccepted, &r.RowsRejected,
			&partners, &customers, &products, &usages, &generation,
			&r.Success, &r.FailureKind, &r.FailureReason,
		)
		if err != nil {
			return r, err
		}
		r.StartedAt = r.StartedAt.UTC()
		r.FinishedAt = r.FinishedAt.UTC()
		if partners.Valid {
			r.Entities = &core.EntityCounts{
				Partners:  int(partners.Int32),
				Customers: int(customers.Int32),
				Products:  int(products.Int32),
				Usages:    int(usages.Int32),
			}
		}
		if generation.Valid {
			r.Generation = generation.Int64
		}
		return r, nil
	})
}

// PruneImportRuns deletes runs that started before cutoff.
func (s *Store) PruneImportRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM import_runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune import runs: %w", err)
	}
	return tag.RowsAffected(), nil
}
