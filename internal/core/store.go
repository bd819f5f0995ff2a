package core

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned by stores when a lookup has no result.
var ErrNotFound = errors.New("not found")

// Schema reports the attribute names recognized for each entity kind.
type Schema interface {
	AttributeNames(ctx context.Context, kind EntityKind) (AttributeSet, error)
}

// RecordStore persists products and variants.
//
// Save and Update return a *ValidationError when the record itself is
// rejected (constraint, cast or unknown attribute) and any other error for
// infrastructure failures.
type RecordStore interface {
	Schema

	// FindBy returns every record of kind whose attr equals value.
	FindBy(ctx context.Context, kind EntityKind, attr, value string) ([]Record, error)

	// Save inserts a new record or persists an existing one, replacing its
	// taxon links when rec.TaxonsAssigned is set. rec.ID is filled on insert.
	Save(ctx context.Context, rec *Record) error

	// Update applies attrs to an existing record and persists it, replacing
	// its taxon links when rec.TaxonsAssigned is set.
	Update(ctx context.Context, rec *Record, attrs Attributes) error
}

// TaxonomyStore persists taxonomies and taxons. Implementations enforce
// unique taxonomy names and unique (parent, name) taxons so that concurrent
// find-or-create calls converge on one node.
type TaxonomyStore interface {
	// FindTaxonomyByName returns ErrNotFound when no taxonomy has name.
	FindTaxonomyByName(ctx context.Context, name string) (Taxonomy, error)

	// CreateTaxonomy creates a taxonomy and its root taxon of the same name.
	// If the taxonomy already exists it is returned unchanged.
	CreateTaxonomy(ctx context.Context, name, rootPermalink string) (Taxonomy, error)

	// FindOrCreateTaxon returns the child of parent called name, creating it
	// with permalink when absent.
	FindOrCreateTaxon(ctx context.Context, parent Taxon, name, permalink string) (Taxon, error)
}

// RunStore persists import runs.
type RunStore interface {
	CreateRun(ctx context.Context, run *ImportRun) error

	// GetRun returns ErrNotFound for unknown ids.
	GetRun(ctx context.Context, id uuid.UUID) (*ImportRun, error)

	// ListRuns returns runs in the scope, newest first.
	ListRuns(ctx context.Context, scope RunScope) ([]ImportRun, error)

	// PendingRuns returns up to limit runs that are neither processed nor
	// deleted and have failed fewer than maxAttempts times. Runs with fewer
	// failed attempts come first, then oldest first. maxAttempts <= 0
	// disables the attempt filter.
	PendingRuns(ctx context.Context, limit, maxAttempts int) ([]ImportRun, error)

	// SaveRun persists statistics, processed and deleted timestamps.
	SaveRun(ctx context.Context, run *ImportRun) error

	// RecordRunFailure increments the run's failed attempts and stores msg
	// as its last error.
	RecordRunFailure(ctx context.Context, id uuid.UUID, msg string) error
}

// Stores groups the persistence collaborators of the engine and service.
type Stores struct {
	Records    RecordStore
	Taxonomies TaxonomyStore
	Runs       RunStore
}
