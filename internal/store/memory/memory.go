// Package memory implements the core stores in process memory.
//
// It mirrors the constraints of the Postgres store closely enough for the
// engine to behave the same against both: unknown attributes, missing product
// names, duplicate permalinks, dangling variant product ids and non-numeric
// values in numeric columns are rejected with *core.ValidationError, taxonomy
// names and (parent, name) taxons are unique.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/datasheets/internal/core"
)

// ProductAttributes are the default product columns.
var ProductAttributes = []string{
	"id", "name", "description", "sku", "price", "permalink", "available_on",
	"meta_description", "meta_keywords", "deleted_at", "created_at", "updated_at",
}

// VariantAttributes are the default variant columns.
var VariantAttributes = []string{
	"id", "product_id", "sku", "price", "cost_price", "weight", "height",
	"width", "depth", "is_master", "count_on_hand", "deleted_at", "created_at",
	"updated_at",
}

// numeric lists columns whose values must parse as numbers.
var numeric = map[string]bool{
	"product_id":    true,
	"price":         true,
	"cost_price":    true,
	"weight":        true,
	"height":        true,
	"width":         true,
	"depth":         true,
	"count_on_hand": true,
}

type recordKey struct {
	kind core.EntityKind
	id   int64
}

type taxonKey struct {
	taxonomyID int64
	parentID   int64
	name       string
}

// Store implements core.RecordStore, core.TaxonomyStore and core.RunStore.
// It is safe for concurrent use.
type Store struct {
	mu sync.Mutex

	schemas map[core.EntityKind]core.AttributeSet
	records map[recordKey]core.Attributes
	nextID  map[core.EntityKind]int64
	links   map[int64][]int64 // product id -> taxon ids
	fail    map[recordKey]error

	taxonomies   map[string]core.Taxonomy
	taxons       map[int64]core.Taxon
	taxonIndex   map[taxonKey]int64
	lastTaxon    int64
	lastTaxonomy int64

	runs map[uuid.UUID]core.ImportRun

	now func() time.Time
}

// New returns an empty store with the default product and variant schemas.
func New() *Store {
	return &Store{
		schemas: map[core.EntityKind]core.AttributeSet{
			core.KindProduct: core.NewAttributeSet(ProductAttributes...),
			core.KindVariant: core.NewAttributeSet(VariantAttributes...),
		},
		records:    make(map[recordKey]core.Attributes),
		nextID:     make(map[core.EntityKind]int64),
		links:      make(map[int64][]int64),
		fail:       make(map[recordKey]error),
		taxonomies: make(map[string]core.Taxonomy),
		taxons:     make(map[int64]core.Taxon),
		taxonIndex: make(map[taxonKey]int64),
		runs:       make(map[uuid.UUID]core.ImportRun),
		now:        time.Now,
	}
}

// Stores returns s wired as every core store.
func (s *Store) Stores() core.Stores {
	return core.Stores{Records: s, Taxonomies: s, Runs: s}
}

// SetSchema replaces the attribute names of kind.
func (s *Store) SetSchema(kind core.EntityKind, names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schemas[kind] = core.NewAttributeSet(names...)
}

// FailWrites makes every Save or Update of the record (kind, id) return err.
// An id of zero applies to inserts of new records of kind.
func (s *Store) FailWrites(kind core.EntityKind, id int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[recordKey{kind, id}] = err
}

// =============================================================================
// Records
// =============================================================================

// AttributeNames returns a copy of the schema for kind.
func (s *Store) AttributeNames(_ context.Context, kind core.EntityKind) (core.AttributeSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schema, ok := s.schemas[kind]
	if !ok {
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	out := make(core.AttributeSet, len(schema))
	for name := range schema {
		out[name] = struct{}{}
	}
	return out, nil
}

// FindBy returns the records of kind whose attr equals value, by id.
func (s *Store) FindBy(_ context.Context, kind core.EntityKind, attr, value string) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.schemas[kind].Has(attr) {
		return nil, fmt.Errorf("column %q does not exist on %s", attr, kind)
	}

	var out []core.Record
	for _, key := range s.keys(kind) {
		attrs := s.records[key]
		got, ok := attrs[attr]
		if attr == core.AttrID {
			got, ok = strconv.FormatInt(key.id, 10), true
		}
		if ok && got == value {
			out = append(out, core.Record{Kind: kind, ID: key.id, Attrs: attrs.Clone()})
		}
	}
	return out, nil
}

// Save inserts rec when it is new and persists its attributes otherwise.
func (s *Store) Save(_ context.Context, rec *core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{rec.Kind, rec.ID}
	if err := s.fail[key]; err != nil {
		return err
	}
	if !rec.IsNew() {
		if _, ok := s.records[key]; !ok {
			return fmt.Errorf("%s %d: %w", rec.Kind, rec.ID, core.ErrNotFound)
		}
	}

	attrs := rec.Attrs.Clone()
	delete(attrs, core.AttrID)
	if err := s.validate(rec.Kind, rec.ID, attrs); err != nil {
		return err
	}
	if err := s.validateTaxons(rec); err != nil {
		return err
	}

	if rec.IsNew() {
		s.nextID[rec.Kind]++
		rec.ID = s.nextID[rec.Kind]
		key.id = rec.ID
	}
	s.write(key, rec, attrs)
	return nil
}

// Update merges attrs into rec and persists it.
func (s *Store) Update(_ context.Context, rec *core.Record, attrs core.Attributes) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{rec.Kind, rec.ID}
	if err := s.fail[key]; err != nil {
		return err
	}
	stored, ok := s.records[key]
	if !ok {
		return fmt.Errorf("%s %d: %w", rec.Kind, rec.ID, core.ErrNotFound)
	}

	merged := stored.Clone()
	for name, value := range attrs {
		if name == core.AttrID {
			continue
		}
		merged[name] = value
	}
	if err := s.validate(rec.Kind, rec.ID, merged); err != nil {
		return err
	}
	if err := s.validateTaxons(rec); err != nil {
		return err
	}

	s.write(key, rec, merged)
	return nil
}

func (s *Store) write(key recordKey, rec *core.Record, attrs core.Attributes) {
	stamp := s.now().UTC().Format(time.RFC3339)
	schema := s.schemas[key.kind]
	if schema.Has("updated_at") {
		attrs["updated_at"] = stamp
	}
	if _, ok := attrs["created_at"]; !ok && schema.Has("created_at") {
		attrs["created_at"] = stamp
	}

	s.records[key] = attrs
	rec.Attrs = attrs.Clone()

	if rec.TaxonsAssigned && key.kind == core.KindProduct {
		ids := make([]int64, 0, len(rec.Taxons))
		for _, t := range rec.Taxons {
			ids = append(ids, t.ID)
		}
		s.links[key.id] = ids
		rec.TaxonsAssigned = false
	}
}

func (s *Store) validate(kind core.EntityKind, id int64, attrs core.Attributes) error {
	schema := s.schemas[kind]
	for name, value := range attrs {
		if !schema.Has(name) {
			return &core.ValidationError{Field: name, Message: "unknown attribute"}
		}
		if numeric[name] {
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				return &core.ValidationError{Field: name, Value: value, Message: "is not a number"}
			}
		}
	}

	switch kind {
	case core.KindProduct:
		if attrs[core.AttrName] == "" {
			return &core.ValidationError{Field: core.AttrName, Message: "can't be blank"}
		}
		if permalink := attrs[core.AttrPermalink]; permalink != "" {
			for key, other := range s.records {
				if key.kind == core.KindProduct && key.id != id && other[core.AttrPermalink] == permalink {
					return &core.ValidationError{Field: core.AttrPermalink, Value: permalink, Message: "has already been taken"}
				}
			}
		}
	case core.KindVariant:
		productID, err := strconv.ParseInt(attrs[core.AttrProductID], 10, 64)
		if err != nil {
			return &core.ValidationError{Field: core.AttrProductID, Value: attrs[core.AttrProductID], Message: "can't be blank"}
		}
		if _, ok := s.records[recordKey{core.KindProduct, productID}]; !ok {
			return &core.ValidationError{Field: core.AttrProductID, Value: attrs[core.AttrProductID], Message: "product does not exist"}
		}
	}
	return nil
}

func (s *Store) validateTaxons(rec *core.Record) error {
	if !rec.TaxonsAssigned {
		return nil
	}
	if rec.Kind != core.KindProduct {
		return &core.ValidationError{Field: core.TaxonsColumn, Message: "only products carry taxons"}
	}
	for _, t := range rec.Taxons {
		if _, ok := s.taxons[t.ID]; !ok {
			return fmt.Errorf("taxon %d: %w", t.ID, core.ErrNotFound)
		}
	}
	return nil
}

// keys returns the record keys of kind in id order. Callers hold s.mu.
func (s *Store) keys(kind core.EntityKind) []recordKey {
	var keys []recordKey
	for key := range s.records {
		if key.kind == kind {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].id < keys[j].id })
	return keys
}

// Records returns every stored record of kind in id order.
func (s *Store) Records(kind core.EntityKind) []core.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Record
	for _, key := range s.keys(kind) {
		out = append(out, core.Record{Kind: kind, ID: key.id, Attrs: s.records[key].Clone()})
	}
	return out
}

// TaxonsOf returns the taxons linked to the product.
func (s *Store) TaxonsOf(productID int64) []core.Taxon {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Taxon
	for _, id := range s.links[productID] {
		out = append(out, s.taxons[id])
	}
	return out
}

// =============================================================================
// Taxonomies
// =============================================================================

// FindTaxonomyByName returns core.ErrNotFound when no taxonomy has name.
func (s *Store) FindTaxonomyByName(_ context.Context, name string) (core.Taxonomy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.taxonomies[name]
	if !ok {
		return core.Taxonomy{}, fmt.Errorf("taxonomy %q: %w", name, core.ErrNotFound)
	}
	return t, nil
}

// CreateTaxonomy creates the taxonomy and its root, or returns the existing one.
func (s *Store) CreateTaxonomy(_ context.Context, name, rootPermalink string) (core.Taxonomy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.taxonomies[name]; ok {
		return t, nil
	}

	s.lastTaxonomy++
	t := core.Taxonomy{ID: s.lastTaxonomy, Name: name}
	t.Root = s.insertTaxon(core.Taxon{TaxonomyID: t.ID, Name: name, Permalink: rootPermalink})
	s.taxonomies[name] = t
	return t, nil
}

// FindOrCreateTaxon returns the child of parent called name.
func (s *Store) FindOrCreateTaxon(_ context.Context, parent core.Taxon, name, permalink string) (core.Taxon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.taxons[parent.ID]; !ok {
		return core.Taxon{}, fmt.Errorf("parent taxon %d: %w", parent.ID, core.ErrNotFound)
	}

	key := taxonKey{parent.TaxonomyID, parent.ID, name}
	if id, ok := s.taxonIndex[key]; ok {
		return s.taxons[id], nil
	}
	return s.insertTaxon(core.Taxon{
		TaxonomyID: parent.TaxonomyID,
		ParentID:   parent.ID,
		Name:       name,
		Permalink:  permalink,
	}), nil
}

func (s *Store) insertTaxon(t core.Taxon) core.Taxon {
	s.lastTaxon++
	t.ID = s.lastTaxon
	s.taxons[t.ID] = t
	s.taxonIndex[taxonKey{t.TaxonomyID, t.ParentID, t.Name}] = t.ID
	return t
}

// Taxons returns every taxon in id order.
func (s *Store) Taxons() []core.Taxon {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Taxon, 0, len(s.taxons))
	for _, t := range s.taxons {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Taxonomies returns the number of taxonomies.
func (s *Store) Taxonomies() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.taxonomies)
}

// =============================================================================
// Runs
// =============================================================================

// CreateRun stores a new run.
func (s *Store) CreateRun(_ context.Context, run *core.ImportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("duplicate key: run %s already exists", run.ID)
	}
	now := s.now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now
	s.runs[run.ID] = *run
	return nil
}

// GetRun returns a copy of the run.
func (s *Store) GetRun(_ context.Context, id uuid.UUID) (*core.ImportRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, core.ErrNotFound)
	}
	return &run, nil
}

// ListRuns returns the runs in scope, newest first.
func (s *Store) ListRuns(_ context.Context, scope core.RunScope) ([]core.ImportRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.ImportRun
	for _, run := range s.runs {
		if scope.Includes(&run) {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// PendingRuns returns up to limit unprocessed, undeleted runs below
// maxAttempts failures, fewest attempts then oldest first.
func (s *Store) PendingRuns(_ context.Context, limit, maxAttempts int) ([]core.ImportRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.ImportRun
	for _, run := range s.runs {
		if run.Processed() || run.Deleted() {
			continue
		}
		if maxAttempts > 0 && run.Attempts >= maxAttempts {
			continue
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Attempts != out[j].Attempts {
			return out[i].Attempts < out[j].Attempts
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveRun persists the run's statistics and timestamps.
func (s *Store) SaveRun(_ context.Context, run *core.ImportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.runs[run.ID]
	if !ok {
		return fmt.Errorf("run %s: %w", run.ID, core.ErrNotFound)
	}
	stored.Stats = run.Stats
	stored.ProcessedAt = run.ProcessedAt
	stored.DeletedAt = run.DeletedAt
	stored.UpdatedAt = s.now().UTC()
	run.UpdatedAt = stored.UpdatedAt
	s.runs[run.ID] = stored
	return nil
}

// RecordRunFailure counts a failed attempt on the run.
func (s *Store) RecordRunFailure(_ context.Context, id uuid.UUID, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("run %s: %w", id, core.ErrNotFound)
	}
	stored.Attempts++
	stored.LastError = msg
	stored.UpdatedAt = s.now().UTC()
	s.runs[id] = stored
	return nil
}
