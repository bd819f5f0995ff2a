package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/datasheets/internal/core"
)

const taxonColumns = "id, taxonomy_id, parent_id, name, permalink"

// FindTaxonomyByName returns the taxonomy with its root taxon, or
// core.ErrNotFound.
func (s *Store) FindTaxonomyByName(ctx context.Context, name string) (core.Taxonomy, error) {
	const query = `
		SELECT t.id, t.name, r.id, r.taxonomy_id, r.parent_id, r.name, r.permalink
		FROM taxonomies t
		JOIN taxons r ON r.taxonomy_id = t.id AND r.parent_id IS NULL
		WHERE t.name = $1`

	var t core.Taxonomy
	var parent pgtype.Int8
	err := s.pool.QueryRow(ctx, query, name).Scan(
		&t.ID, &t.Name,
		&t.Root.ID, &t.Root.TaxonomyID, &parent, &t.Root.Name, &t.Root.Permalink,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Taxonomy{}, fmt.Errorf("taxonomy %q: %w", name, core.ErrNotFound)
	}
	if err != nil {
		return core.Taxonomy{}, fmt.Errorf("find taxonomy: %w", err)
	}
	return t, nil
}

// CreateTaxonomy creates the taxonomy and its root taxon in one transaction.
// When another caller created it first, the existing taxonomy is returned.
func (s *Store) CreateTaxonomy(ctx context.Context, name, rootPermalink string) (core.Taxonomy, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return core.Taxonomy{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO taxonomies (name) VALUES ($1)
		ON CONFLICT (name) DO NOTHING
		RETURNING id`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		tx.Rollback(ctx)
		return s.FindTaxonomyByName(ctx, name)
	}
	if err != nil {
		return core.Taxonomy{}, fmt.Errorf("insert taxonomy: %w", err)
	}

	root, err := scanTaxon(tx.QueryRow(ctx, `
		INSERT INTO taxons (taxonomy_id, name, permalink) VALUES ($1, $2, $3)
		RETURNING `+taxonColumns, id, name, rootPermalink))
	if err != nil {
		return core.Taxonomy{}, fmt.Errorf("insert root taxon: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return core.Taxonomy{}, fmt.Errorf("commit: %w", err)
	}
	return core.Taxonomy{ID: id, Name: name, Root: root}, nil
}

// FindOrCreateTaxon looks the child up first and inserts it only when
// missing. The insert is an upsert on (parent_id, name), so a concurrent
// creator's row is returned instead of a duplicate.
func (s *Store) FindOrCreateTaxon(ctx context.Context, parent core.Taxon, name, permalink string) (core.Taxon, error) {
	taxon, err := scanTaxon(s.pool.QueryRow(ctx,
		"SELECT "+taxonColumns+" FROM taxons WHERE parent_id = $1 AND name = $2",
		parent.ID, name))
	if err == nil {
		return taxon, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return core.Taxon{}, fmt.Errorf("find taxon: %w", err)
	}

	taxon, err = scanTaxon(s.pool.QueryRow(ctx, `
		INSERT INTO taxons (taxonomy_id, parent_id, name, permalink)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (parent_id, name) WHERE parent_id IS NOT NULL
		DO UPDATE SET name = EXCLUDED.name
		RETURNING `+taxonColumns,
		parent.TaxonomyID, parent.ID, name, permalink))
	if err != nil {
		return core.Taxon{}, classify("insert taxon", err)
	}
	return taxon, nil
}

func scanTaxon(row pgx.Row) (core.Taxon, error) {
	var t core.Taxon
	var parent pgtype.Int8
	if err := row.Scan(&t.ID, &t.TaxonomyID, &parent, &t.Name, &t.Permalink); err != nil {
		return core.Taxon{}, err
	}
	if parent.Valid {
		t.ParentID = parent.Int64
	}
	return t, nil
}
