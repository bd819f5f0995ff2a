package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/datasheets/internal/logging"
	"github.com/JonMunkholm/datasheets/internal/sheet"
)

// ErrDatasheetUnreadable is returned by Perform when the run's file cannot be
// opened or parsed. Nothing is written in that case.
var ErrDatasheetUnreadable = errors.New("datasheet cannot be opened")

// Engine reconciles datasheets against the product catalog.
type Engine struct {
	records      RecordStore
	taxonomies   TaxonomyStore
	runs         RunStore
	taxonomyName string

	open sheet.Opener
	now  func() time.Time
}

// NewEngine creates an engine that files new taxons under the taxonomy
// called taxonomyName.
func NewEngine(stores Stores, taxonomyName string) *Engine {
	return &Engine{
		records:      stores.Records,
		taxonomies:   stores.Taxonomies,
		runs:         stores.Runs,
		taxonomyName: taxonomyName,
		open:         sheet.Open,
		now:          time.Now,
	}
}

// Perform runs one pass over the run's datasheet.
//
// The header row decides the column mapping and the search key, then each
// data row is dispatched to a create or update operation. Row and record
// failures are counted, never returned. On completion the counters and the
// processed timestamp are written to the run and persisted.
func (e *Engine) Perform(ctx context.Context, run *ImportRun) error {
	log := logging.WithFields(ctx, "run_id", run.ID, "file", run.FileName)

	ws, err := e.open(run.FilePath)
	if err != nil {
		log.Error("failed to open datasheet", "error", err)
		return fmt.Errorf("%w: %w", ErrDatasheetUnreadable, err)
	}
	defer ws.Close()

	p, err := e.newPass(ctx, log)
	if err != nil {
		return err
	}

	first, end := ws.Dimensions()
	mapping := ClassifyHeaders(ws.Row(0), first, end, p.product, p.variant)
	searchKey := mapping.SearchKey()

	log.Info("run started",
		"rows", ws.Len()-1,
		"columns", end-first,
		"recognized_columns", mapping.Recognized(),
		"search_key", searchKey,
	)
	start := time.Now()

	for i := 1; i < ws.Len(); i++ {
		if err := ctx.Err(); err != nil {
			log.Warn("run interrupted", "row", i, "error", err)
			return fmt.Errorf("run interrupted at row %d: %w", i, err)
		}
		p.row(ctx, i, ws.Row(i), mapping, searchKey)
	}

	processedAt := e.now()
	run.Stats = p.acc.Stats()
	run.ProcessedAt = &processedAt
	if err := e.runs.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	log.Info("run completed",
		"failed_queries", run.Stats.QueriesFailed,
		"failed_records", run.Stats.RecordsFailed,
		"matched_records", run.Stats.RecordsMatched,
		"updated_records", run.Stats.RecordsUpdated,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// pass holds the state of one Perform call.
type pass struct {
	records RecordStore
	taxons  *TaxonResolver
	product AttributeSet
	variant AttributeSet
	acc     *RunAccumulator
	log     *slog.Logger
}

func (e *Engine) newPass(ctx context.Context, log *slog.Logger) (*pass, error) {
	product, err := e.records.AttributeNames(ctx, KindProduct)
	if err != nil {
		return nil, fmt.Errorf("load product attributes: %w", err)
	}
	variant, err := e.records.AttributeNames(ctx, KindVariant)
	if err != nil {
		return nil, fmt.Errorf("load variant attributes: %w", err)
	}

	return &pass{
		records: e.records,
		taxons:  NewTaxonResolver(e.taxonomies, e.taxonomyName),
		product: product,
		variant: variant,
		acc:     &RunAccumulator{},
		log:     log,
	}, nil
}

// row dispatches a single data row.
func (p *pass) row(ctx context.Context, index int, cells []string, m ColumnMapping, searchKey string) {
	attrs := BuildAttributes(cells, m)
	keyCell := KeyCell(cells)

	op := Classify(searchKey, keyCell, attrs, p.product, p.variant)
	log := p.log.With("row", index, "op", op.String())

	switch op {
	case OpCreateVariant:
		p.createVariant(ctx, log, attrs)
	case OpCreateProduct:
		p.createProduct(ctx, log, attrs)
	case OpUpdateProducts:
		p.updateProducts(ctx, log, searchKey, keyCell, attrs)
	case OpUpdateVariants:
		p.updateVariants(ctx, log, searchKey, keyCell, attrs)
	default:
		log.Debug("row skipped, no operation for search key", "search_key", searchKey)
		p.acc.QueryFailed()
	}
}
