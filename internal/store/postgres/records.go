package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/datasheets/internal/core"
)

// AttributeNames reads the columns of the kind's table from the catalog and
// caches their types for later casts.
func (s *Store) AttributeNames(ctx context.Context, kind core.EntityKind) (core.AttributeSet, error) {
	cols, err := s.loadColumns(ctx, kind)
	if err != nil {
		return nil, err
	}

	set := make(core.AttributeSet, len(cols))
	for name := range cols {
		set[name] = struct{}{}
	}
	return set, nil
}

func (s *Store) loadColumns(ctx context.Context, kind core.EntityKind) (map[string]string, error) {
	table, ok := tables[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	const query = `
		SELECT a.attname, format_type(a.atttypid, a.atttypmod)
		FROM pg_attribute a
		WHERE a.attrelid = $1::regclass AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY a.attnum`

	rows, err := s.pool.Query(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("read %s columns: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, fmt.Errorf("scan %s column: %w", table, err)
		}
		cols[name] = typ
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	s.mu.Lock()
	s.columns[kind] = cols
	s.mu.Unlock()
	return cols, nil
}

// columnTypes returns the cached columns of kind, loading them on first use.
func (s *Store) columnTypes(ctx context.Context, kind core.EntityKind) (map[string]string, error) {
	s.mu.RLock()
	cols, ok := s.columns[kind]
	s.mu.RUnlock()
	if ok {
		return cols, nil
	}
	return s.loadColumns(ctx, kind)
}

// FindBy returns every record of kind whose attr equals value, by id.
func (s *Store) FindBy(ctx context.Context, kind core.EntityKind, attr, value string) ([]core.Record, error) {
	cols, err := s.columnTypes(ctx, kind)
	if err != nil {
		return nil, err
	}
	typ, ok := cols[attr]
	if !ok {
		return nil, fmt.Errorf("column %q does not exist on %s", attr, tables[kind])
	}

	names := sortedColumns(cols)
	selects := make([]string, len(names))
	for i, name := range names {
		selects[i] = quoteIdentifier(name) + "::text"
	}

	query := fmt.Sprintf(
		"SELECT id, %s FROM %s WHERE %s = $1::text::%s ORDER BY id",
		strings.Join(selects, ", "),
		quoteIdentifier(tables[kind]),
		quoteIdentifier(attr),
		typ,
	)

	rows, err := s.pool.Query(ctx, query, value)
	if err != nil {
		return nil, classify("find records", err)
	}
	defer rows.Close()

	var records []core.Record
	for rows.Next() {
		var id int64
		values := make([]pgtype.Text, len(names))
		dest := make([]any, 0, len(names)+1)
		dest = append(dest, &id)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}

		attrs := make(core.Attributes, len(names))
		for i, name := range names {
			if values[i].Valid && name != core.AttrID {
				attrs[name] = values[i].String
			}
		}
		records = append(records, core.Record{Kind: kind, ID: id, Attrs: attrs})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return records, nil
}

// Save inserts rec when it is new and updates it otherwise, replacing its
// taxon links in the same transaction when they were assigned.
func (s *Store) Save(ctx context.Context, rec *core.Record) error {
	return s.write(ctx, rec, rec.Attrs)
}

// Update applies attrs to rec and persists it.
func (s *Store) Update(ctx context.Context, rec *core.Record, attrs core.Attributes) error {
	if rec.IsNew() {
		return fmt.Errorf("update %s: record has not been saved", rec.Kind)
	}
	return s.write(ctx, rec, attrs)
}

func (s *Store) write(ctx context.Context, rec *core.Record, attrs core.Attributes) error {
	cols, err := s.columnTypes(ctx, rec.Kind)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(attrs))
	for _, name := range attrs.Keys() {
		if name == core.AttrID {
			continue
		}
		if _, ok := cols[name]; !ok {
			return &core.ValidationError{Field: name, Message: "unknown attribute"}
		}
		names = append(names, name)
	}
	if rec.TaxonsAssigned && rec.Kind != core.KindProduct {
		return &core.ValidationError{Field: core.TaxonsColumn, Message: "only products carry taxons"}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if already committed

	table := tables[rec.Kind]
	args := make([]any, 0, len(names)+1)
	for _, name := range names {
		args = append(args, attrs[name])
	}

	if rec.IsNew() {
		query := insertSQL(table, names, cols)
		var id int64
		if err := tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
			return classify("insert "+table, err)
		}
		rec.ID = id
	} else {
		query := updateSQL(table, names, cols)
		args = append(args, rec.ID)
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return classify("update "+table, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%s %d: %w", rec.Kind, rec.ID, core.ErrNotFound)
		}
	}

	if rec.TaxonsAssigned {
		if err := replaceTaxons(ctx, tx, rec.ID, rec.Taxons); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	if rec.Attrs == nil {
		rec.Attrs = make(core.Attributes, len(names))
	}
	for _, name := range names {
		rec.Attrs[name] = attrs[name]
	}
	rec.TaxonsAssigned = false
	return nil
}

// insertSQL builds an INSERT for names with text parameters cast to each
// column's type.
func insertSQL(table string, names []string, cols map[string]string) string {
	if len(names) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING id", quoteIdentifier(table))
	}

	quoted := make([]string, len(names))
	params := make([]string, len(names))
	for i, name := range names {
		quoted[i] = quoteIdentifier(name)
		params[i] = fmt.Sprintf("$%d::text::%s", i+1, cols[name])
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		quoteIdentifier(table),
		strings.Join(quoted, ", "),
		strings.Join(params, ", "),
	)
}

// updateSQL builds an UPDATE of names by id, bumping updated_at unless it is
// set explicitly. The id is the last parameter.
func updateSQL(table string, names []string, cols map[string]string) string {
	sets := make([]string, 0, len(names)+1)
	explicitStamp := false
	for i, name := range names {
		sets = append(sets, fmt.Sprintf("%s = $%d::text::%s", quoteIdentifier(name), i+1, cols[name]))
		if name == "updated_at" {
			explicitStamp = true
		}
	}
	if _, ok := cols["updated_at"]; ok && !explicitStamp {
		sets = append(sets, `"updated_at" = now()`)
	}
	if len(sets) == 0 {
		sets = append(sets, `"id" = "id"`)
	}
	return fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = $%d",
		quoteIdentifier(table),
		strings.Join(sets, ", "),
		len(names)+1,
	)
}

func replaceTaxons(ctx context.Context, tx pgx.Tx, productID int64, taxons []core.Taxon) error {
	if _, err := tx.Exec(ctx, "DELETE FROM products_taxons WHERE product_id = $1", productID); err != nil {
		return classify("clear product taxons", err)
	}
	if len(taxons) == 0 {
		return nil
	}

	ids := make([]int64, len(taxons))
	for i, t := range taxons {
		ids[i] = t.ID
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO products_taxons (product_id, taxon_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING`, productID, ids)
	return classify("link product taxons", err)
}

func sortedColumns(cols map[string]string) []string {
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
