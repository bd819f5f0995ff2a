// Package postgres implements the core stores on PostgreSQL with pgx.
//
// Record attributes travel as text and are cast server-side to the column's
// type, so the datasheet never needs to know column types. Constraint and
// cast failures come back as *core.ValidationError; anything else is returned
// wrapped.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/datasheets/internal/core"
)

//go:embed schema.sql
var schema string

// tables maps entity kinds to their tables.
var tables = map[core.EntityKind]string{
	core.KindProduct: "products",
	core.KindVariant: "variants",
}

// Store implements core.RecordStore, core.TaxonomyStore and core.RunStore.
type Store struct {
	pool *pgxpool.Pool

	mu      sync.RWMutex
	columns map[core.EntityKind]map[string]string // column name -> SQL type
}

// New returns a store backed by pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:    pool,
		columns: make(map[core.EntityKind]map[string]string),
	}
}

// Stores returns s wired as every core store.
func (s *Store) Stores() core.Stores {
	return core.Stores{Records: s, Taxonomies: s, Runs: s}
}

// Migrate creates missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// quoteIdentifier quotes a SQL identifier to prevent injection.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// SQLSTATE codes reported as record-level validation failures.
var validationCodes = map[string]bool{
	"23502": true, // not_null_violation
	"23503": true, // foreign_key_violation
	"23505": true, // unique_violation
	"23514": true, // check_violation
	"22001": true, // string_data_right_truncation
	"22003": true, // numeric_value_out_of_range
	"22007": true, // invalid_datetime_format
	"22008": true, // datetime_field_overflow
	"22P02": true, // invalid_text_representation
	"42703": true, // undefined_column
}

// classify turns record-level PostgreSQL errors into *core.ValidationError
// and wraps anything else with op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && validationCodes[pgErr.Code] {
		msg := pgErr.Message
		if pgErr.Detail != "" {
			msg += ": " + pgErr.Detail
		}
		return &core.ValidationError{Field: pgErr.ColumnName, Message: msg}
	}
	return fmt.Errorf("%s: %w", op, err)
}
