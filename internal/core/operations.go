package core

import (
	"context"
	"log/slog"
	"strings"

	"github.com/JonMunkholm/datasheets/internal/slug"
)

// createProduct inserts a product built from attrs.
//
// A failed save counts as a failed query rather than a failed record. Product
// creation has always been reported that way and the counters keep it.
func (p *pass) createProduct(ctx context.Context, log *slog.Logger, attrs Attributes) {
	if sku, ok := attrs[AttrSKU]; ok {
		attrs[AttrSKU] = TruncateSKU(sku)
	}

	taxons, present, err := p.taxons.Resolve(ctx, attrs)
	if err != nil {
		log.Warn("taxon resolution failed", "error", err)
		p.acc.QueryFailed()
		return
	}

	rec := NewRecord(KindProduct, attrs)
	if _, ok := rec.Attrs[AttrPermalink]; !ok && p.product.Has(AttrPermalink) {
		if name := rec.Attrs[AttrName]; name != "" {
			rec.Attrs[AttrPermalink] = slug.Make(name)
		}
	}
	if present && len(taxons) > 0 {
		rec.AssignTaxons(taxons)
	}

	if outcome := p.write(log, p.records.Save(ctx, rec)); outcome != OutcomeSaved {
		p.acc.QueryFailed()
		return
	}
	log.Debug("product created", "product_id", rec.ID, "taxons", len(rec.Taxons))
}

// createVariant inserts a variant built from attrs. attrs must carry the
// owning product's id.
func (p *pass) createVariant(ctx context.Context, log *slog.Logger, attrs Attributes) {
	delete(attrs, TaxonsColumn)

	rec := NewRecord(KindVariant, attrs)
	if outcome := p.write(log, p.records.Save(ctx, rec)); outcome != OutcomeSaved {
		p.acc.QueryFailed()
		return
	}
	log.Debug("variant created", "variant_id", rec.ID, "product_id", attrs[AttrProductID])
}

// updateProducts applies attrs to every product whose key equals value.
// Taxons are resolved once for the row. Each match is saved with its new
// taxons first and then updated, so the links stay even when the attribute
// update is rejected.
func (p *pass) updateProducts(ctx context.Context, log *slog.Logger, key, value string, attrs Attributes) {
	matches, ok := p.find(ctx, log, KindProduct, key, value)
	if !ok {
		return
	}

	taxons, present, err := p.taxons.Resolve(ctx, attrs)
	if err != nil {
		log.Warn("taxon resolution failed", "error", err)
		p.acc.QueryFailed()
		return
	}

	for i := range matches {
		rec := &matches[i]
		if present && len(taxons) > 0 {
			rec.AssignTaxons(taxons)
			if outcome := p.write(log.With("record_id", rec.ID), p.records.Save(ctx, rec)); outcome != OutcomeSaved {
				p.acc.RecordFailed()
				continue
			}
		}
		p.update(ctx, log, rec, attrs)
	}

	if len(matches) == 0 {
		p.acc.QueryFailed()
	}
}

// updateVariants applies attrs to every variant whose key equals value.
func (p *pass) updateVariants(ctx context.Context, log *slog.Logger, key, value string, attrs Attributes) {
	delete(attrs, TaxonsColumn)

	matches, ok := p.find(ctx, log, KindVariant, key, value)
	if !ok {
		return
	}
	for i := range matches {
		p.update(ctx, log, &matches[i], attrs)
	}

	if len(matches) == 0 {
		p.acc.QueryFailed()
	}
}

// find looks up the records to update and counts them as matched. A failed
// lookup counts as a failed query and reports ok=false.
func (p *pass) find(ctx context.Context, log *slog.Logger, kind EntityKind, key, value string) ([]Record, bool) {
	matches, err := p.records.FindBy(ctx, kind, key, value)
	if err != nil {
		log.Warn("lookup failed", "kind", kind, "key", key, "error", err)
		p.acc.QueryFailed()
		return nil, false
	}
	if len(matches) == 0 {
		log.Debug("no records matched", "kind", kind, "key", key, "value", value)
	}
	p.acc.Matched(len(matches))
	return matches, true
}

func (p *pass) update(ctx context.Context, log *slog.Logger, rec *Record, attrs Attributes) {
	if outcome := p.write(log.With("record_id", rec.ID), p.records.Update(ctx, rec, attrs)); outcome != OutcomeSaved {
		p.acc.RecordFailed()
		return
	}
	p.acc.RecordUpdated()
}

// write classifies a store write result and logs failures at a level that
// matches their cause.
func (p *pass) write(log *slog.Logger, err error) Outcome {
	outcome := OutcomeOf(err)
	switch outcome {
	case OutcomeInvalid:
		log.Debug("record rejected", "error", err)
	case OutcomeFailed:
		log.Warn("record write failed", "error", err)
	}
	return outcome
}

// TruncateSKU drops everything from the first "." on. Spreadsheet programs
// tend to turn numeric SKUs into decimals such as "1234.0".
func TruncateSKU(sku string) string {
	if i := strings.IndexByte(sku, '.'); i >= 0 {
		return sku[:i]
	}
	return sku
}
