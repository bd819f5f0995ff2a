package core

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// EntityKind identifies one of the two record collections a datasheet is
// reconciled against.
type EntityKind string

const (
	KindProduct EntityKind = "product"
	KindVariant EntityKind = "variant"
)

// Attribute names the engine treats specially.
const (
	AttrID        = "id"
	AttrProductID = "product_id"
	AttrSKU       = "sku"
	AttrName      = "name"
	AttrPermalink = "permalink"

	// TaxonsColumn is the header marking the category path column.
	TaxonsColumn = "taxons"
)

// Attributes maps attribute names to cell text. Values are always strings;
// the record store is responsible for type coercion.
type Attributes map[string]string

// Clone returns a shallow copy of a.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Keys returns the attribute names in sorted order.
func (a Attributes) Keys() []string {
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AttributeSet is the set of attribute names recognized for an entity kind.
type AttributeSet map[string]struct{}

// NewAttributeSet builds a set from names.
func NewAttributeSet(names ...string) AttributeSet {
	s := make(AttributeSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is in the set.
func (s AttributeSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Record is a product or variant as seen by the engine.
type Record struct {
	Kind  EntityKind
	ID    int64 // zero until the record has been saved
	Attrs Attributes

	// Taxons replaces the record's taxon links on the next Save when
	// TaxonsAssigned is set. Only products carry taxons.
	Taxons         []Taxon
	TaxonsAssigned bool
}

// NewRecord builds an unsaved record of kind from attrs.
func NewRecord(kind EntityKind, attrs Attributes) *Record {
	return &Record{Kind: kind, Attrs: attrs.Clone()}
}

// IsNew reports whether the record has not been persisted yet.
func (r *Record) IsNew() bool { return r.ID == 0 }

// AssignTaxons sets the taxons to link on the next Save.
func (r *Record) AssignTaxons(taxons []Taxon) {
	r.Taxons = append([]Taxon(nil), taxons...)
	r.TaxonsAssigned = true
}

// Taxonomy is a named classification tree with a single root taxon.
type Taxonomy struct {
	ID   int64
	Name string
	Root Taxon
}

// Taxon is one node of a taxonomy. ParentID is zero for the root.
type Taxon struct {
	ID         int64  `json:"id"`
	TaxonomyID int64  `json:"taxonomy_id"`
	ParentID   int64  `json:"parent_id,omitempty"`
	Name       string `json:"name"`
	Permalink  string `json:"permalink"`
}

// RunStats are the persisted outcome counters of an import run.
type RunStats struct {
	QueriesFailed  int `json:"failed_queries"`
	RecordsFailed  int `json:"failed_records"`
	RecordsMatched int `json:"matched_records"`
	RecordsUpdated int `json:"updated_records"`
}

// ImportRun is one uploaded datasheet and the outcome of processing it.
type ImportRun struct {
	ID          uuid.UUID  `json:"id"`
	FileName    string     `json:"file_name"`
	FilePath    string     `json:"-"`
	ContentType string     `json:"content_type"`
	FileSize    int64      `json:"file_size"`
	ProcessedAt *time.Time `json:"processed_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	Stats       RunStats   `json:"stats"`
	Attempts    int        `json:"attempts"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Processed reports whether the run has completed a pass.
func (r *ImportRun) Processed() bool { return r.ProcessedAt != nil }

// Deleted reports whether the run has been soft deleted.
func (r *ImportRun) Deleted() bool { return r.DeletedAt != nil }

// RunScope selects runs by their soft-delete state.
type RunScope string

const (
	ScopeNotDeleted RunScope = "not_deleted"
	ScopeDeleted    RunScope = "deleted"
	ScopeAll        RunScope = "all"
)

// ParseRunScope converts a query value to a RunScope. Unknown and empty
// values select ScopeNotDeleted.
func ParseRunScope(s string) RunScope {
	switch RunScope(s) {
	case ScopeDeleted:
		return ScopeDeleted
	case ScopeAll:
		return ScopeAll
	default:
		return ScopeNotDeleted
	}
}

// Includes reports whether run belongs to the scope.
func (s RunScope) Includes(run *ImportRun) bool {
	switch s {
	case ScopeAll:
		return true
	case ScopeDeleted:
		return run.Deleted()
	default:
		return !run.Deleted()
	}
}
