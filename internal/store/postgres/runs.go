package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/datasheets/internal/core"
)

const runColumns = `id, file_name, file_path, content_type, file_size,
	failed_queries, failed_records, matched_records, updated_records,
	attempts, last_error, processed_at, deleted_at, created_at, updated_at`

// CreateRun inserts a new run and fills its timestamps.
func (s *Store) CreateRun(ctx context.Context, run *core.ImportRun) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO product_datasheets (id, file_name, file_path, content_type, file_size)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		toPgUUID(run.ID), run.FileName, run.FilePath, run.ContentType, run.FileSize,
	).Scan(&run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun returns the run with id, or core.ErrNotFound.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*core.ImportRun, error) {
	run, err := scanRun(s.pool.QueryRow(ctx,
		"SELECT "+runColumns+" FROM product_datasheets WHERE id = $1", toPgUUID(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the runs in scope, newest first.
func (s *Store) ListRuns(ctx context.Context, scope core.RunScope) ([]core.ImportRun, error) {
	where := ""
	switch scope {
	case core.ScopeDeleted:
		where = " WHERE deleted_at IS NOT NULL"
	case core.ScopeAll:
	default:
		where = " WHERE deleted_at IS NULL"
	}

	return s.queryRuns(ctx, "SELECT "+runColumns+" FROM product_datasheets"+where+" ORDER BY created_at DESC")
}

// PendingRuns returns up to limit unprocessed, undeleted runs below
// maxAttempts failures, fewest attempts then oldest first.
func (s *Store) PendingRuns(ctx context.Context, limit, maxAttempts int) ([]core.ImportRun, error) {
	return s.queryRuns(ctx, `SELECT `+runColumns+` FROM product_datasheets
		WHERE processed_at IS NULL AND deleted_at IS NULL
			AND ($2 <= 0 OR attempts < $2)
		ORDER BY attempts, created_at
		LIMIT $1`, limit, maxAttempts)
}

// RecordRunFailure counts a failed attempt on the run.
func (s *Store) RecordRunFailure(ctx context.Context, id uuid.UUID, msg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE product_datasheets SET
			attempts = attempts + 1,
			last_error = $2,
			updated_at = now()
		WHERE id = $1`,
		toPgUUID(id), msg,
	)
	if err != nil {
		return fmt.Errorf("record run failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", id, core.ErrNotFound)
	}
	return nil
}

// SaveRun persists the run's counters and timestamps.
func (s *Store) SaveRun(ctx context.Context, run *core.ImportRun) error {
	err := s.pool.QueryRow(ctx, `
		UPDATE product_datasheets SET
			failed_queries = $2,
			failed_records = $3,
			matched_records = $4,
			updated_records = $5,
			processed_at = $6,
			deleted_at = $7,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		toPgUUID(run.ID),
		run.Stats.QueriesFailed,
		run.Stats.RecordsFailed,
		run.Stats.RecordsMatched,
		run.Stats.RecordsUpdated,
		toPgTimestamp(run.ProcessedAt),
		toPgTimestamp(run.DeletedAt),
	).Scan(&run.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("run %s: %w", run.ID, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (s *Store) queryRuns(ctx context.Context, query string, args ...any) ([]core.ImportRun, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []core.ImportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return runs, nil
}

func scanRun(row pgx.Row) (*core.ImportRun, error) {
	var (
		run         core.ImportRun
		id          pgtype.UUID
		processedAt pgtype.Timestamptz
		deletedAt   pgtype.Timestamptz
	)

	err := row.Scan(
		&id, &run.FileName, &run.FilePath, &run.ContentType, &run.FileSize,
		&run.Stats.QueriesFailed, &run.Stats.RecordsFailed,
		&run.Stats.RecordsMatched, &run.Stats.RecordsUpdated,
		&run.Attempts, &run.LastError,
		&processedAt, &deletedAt, &run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	run.ID = uuid.UUID(id.Bytes)
	run.ProcessedAt = fromPgTimestamp(processedAt)
	run.DeletedAt = fromPgTimestamp(deletedAt)
	return &run, nil
}

func toPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func toPgTimestamp(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func fromPgTimestamp(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}
