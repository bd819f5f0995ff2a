package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/datasheets/internal/slug"
)

const (
	// CategorySeparator separates taxon names in the taxons column.
	CategorySeparator = ";"

	// DefaultTaxonomyName is used when no categories taxonomy is configured.
	DefaultTaxonomyName = "Kategorie"
)

// TaxonResolver turns category path cells into taxons under the root of the
// categories taxonomy. The taxonomy is looked up, or created, on first use
// and cached for the lifetime of the resolver.
type TaxonResolver struct {
	store TaxonomyStore
	name  string
	root  *Taxonomy
}

// NewTaxonResolver returns a resolver for the taxonomy called name, or
// DefaultTaxonomyName when name is empty.
func NewTaxonResolver(store TaxonomyStore, name string) *TaxonResolver {
	if name == "" {
		name = DefaultTaxonomyName
	}
	return &TaxonResolver{store: store, name: name}
}

// EnsureTaxonomy returns the categories taxonomy, creating it together with
// its root taxon when it does not exist.
func (r *TaxonResolver) EnsureTaxonomy(ctx context.Context) (Taxonomy, error) {
	if r.root != nil {
		return *r.root, nil
	}

	t, err := r.store.FindTaxonomyByName(ctx, r.name)
	if errors.Is(err, ErrNotFound) {
		t, err = r.store.CreateTaxonomy(ctx, r.name, slug.Make(r.name))
	}
	if err != nil {
		return Taxonomy{}, fmt.Errorf("ensure taxonomy %q: %w", r.name, err)
	}

	r.root = &t
	return t, nil
}

// Resolve consumes the TaxonsColumn entry of attrs. It reports present=false
// and leaves attrs untouched when there is no such entry. Otherwise the entry
// is deleted from attrs and each named taxon is found or created as a child
// of the taxonomy root. Duplicate names resolve to a single taxon.
func (r *TaxonResolver) Resolve(ctx context.Context, attrs Attributes) (taxons []Taxon, present bool, err error) {
	path, ok := attrs[TaxonsColumn]
	if !ok {
		return nil, false, nil
	}
	delete(attrs, TaxonsColumn)

	names := SplitCategoryPath(path)
	if len(names) == 0 {
		return nil, true, nil
	}

	taxonomy, err := r.EnsureTaxonomy(ctx)
	if err != nil {
		return nil, true, err
	}

	seen := make(map[int64]bool, len(names))
	for _, name := range names {
		taxon, err := r.store.FindOrCreateTaxon(ctx, taxonomy.Root, name, slug.Make(name))
		if err != nil {
			return nil, true, fmt.Errorf("resolve taxon %q: %w", name, err)
		}
		if seen[taxon.ID] {
			continue
		}
		seen[taxon.ID] = true
		taxons = append(taxons, taxon)
	}

	return taxons, true, nil
}

// SplitCategoryPath splits a taxons cell on CategorySeparator, trimming each
// segment and dropping empty ones.
func SplitCategoryPath(path string) []string {
	var names []string
	for _, part := range strings.Split(path, CategorySeparator) {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}
