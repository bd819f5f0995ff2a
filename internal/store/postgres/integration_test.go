package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/datasheets/internal/core"
)

// testStore connects to DATASHEETS_TEST_DATABASE_URL inside a throwaway
// schema. Tests are skipped when the variable is unset.
func testStore(t *testing.T) *Store {
	t.Helper()

	url := os.Getenv("DATASHEETS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("DATASHEETS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	admin, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	schemaName := fmt.Sprintf("datasheets_test_%d", time.Now().UnixNano())
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+quoteIdentifier(schemaName)); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		admin.Exec(context.Background(), "DROP SCHEMA "+quoteIdentifier(schemaName)+" CASCADE")
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schemaName
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	store := New(pool)
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return store
}

func TestIntegration_Records(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	attrs, err := store.AttributeNames(ctx, core.KindProduct)
	if err != nil {
		t.Fatalf("AttributeNames() error = %v", err)
	}
	for _, name := range []string{"id", "name", "sku", "price", "permalink"} {
		if !attrs.Has(name) {
			t.Errorf("product attributes missing %q", name)
		}
	}

	rec := core.NewRecord(core.KindProduct, core.Attributes{"name": "Chair", "sku": "S-1", "price": "10", "permalink": "chair"})
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	found, err := store.FindBy(ctx, core.KindProduct, "price", "10.00")
	if err != nil || len(found) != 1 {
		t.Fatalf("FindBy(price) = %v, %v, want one match", found, err)
	}
	if err := store.Update(ctx, &found[0], core.Attributes{"price": "12.5"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	dup := core.NewRecord(core.KindProduct, core.Attributes{"name": "Other", "permalink": "chair"})
	if err := store.Save(ctx, dup); !core.IsValidation(err) {
		t.Errorf("duplicate permalink error = %v, want validation error", err)
	}
	bad := core.NewRecord(core.KindProduct, core.Attributes{"name": "Bad", "price": "cheap"})
	if err := store.Save(ctx, bad); !core.IsValidation(err) {
		t.Errorf("bad price error = %v, want validation error", err)
	}
	orphan := core.NewRecord(core.KindVariant, core.Attributes{"product_id": "999999"})
	if err := store.Save(ctx, orphan); !core.IsValidation(err) {
		t.Errorf("orphan variant error = %v, want validation error", err)
	}
}

func TestIntegration_Taxonomy(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if _, err := store.FindTaxonomyByName(ctx, "Kategorie"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("FindTaxonomyByName() error = %v, want ErrNotFound", err)
	}
	tx, err := store.CreateTaxonomy(ctx, "Kategorie", "kategorie")
	if err != nil {
		t.Fatalf("CreateTaxonomy() error = %v", err)
	}
	again, err := store.CreateTaxonomy(ctx, "Kategorie", "kategorie")
	if err != nil || again.Root.ID != tx.Root.ID {
		t.Errorf("second CreateTaxonomy() = %+v, %v, want same root", again, err)
	}

	a, err := store.FindOrCreateTaxon(ctx, tx.Root, "Seating", "seating")
	if err != nil {
		t.Fatalf("FindOrCreateTaxon() error = %v", err)
	}
	b, _ := store.FindOrCreateTaxon(ctx, tx.Root, "Seating", "seating")
	if a.ID != b.ID {
		t.Errorf("duplicate taxon created: %d != %d", a.ID, b.ID)
	}

	rec := core.NewRecord(core.KindProduct, core.Attributes{"name": "Chair"})
	rec.AssignTaxons([]core.Taxon{a})
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save() with taxons error = %v", err)
	}
	var links int
	store.pool.QueryRow(ctx, "SELECT count(*) FROM products_taxons WHERE product_id = $1", rec.ID).Scan(&links)
	if links != 1 {
		t.Errorf("products_taxons rows = %d, want 1", links)
	}
}

func TestIntegration_Runs(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	run := &core.ImportRun{ID: uuid.New(), FileName: "sheet.csv", FilePath: "/tmp/sheet.csv"}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	pending, _ := store.PendingRuns(ctx, 10, 2)
	if len(pending) != 1 {
		t.Errorf("PendingRuns() = %d, want 1", len(pending))
	}

	for i := 0; i < 2; i++ {
		if err := store.RecordRunFailure(ctx, run.ID, "open datasheet: zip: not a valid zip file"); err != nil {
			t.Fatalf("RecordRunFailure() error = %v", err)
		}
	}
	if pending, _ := store.PendingRuns(ctx, 10, 2); len(pending) != 0 {
		t.Errorf("PendingRuns(maxAttempts=2) = %d, want 0 after two failures", len(pending))
	}
	failed, _ := store.GetRun(ctx, run.ID)
	if failed.Attempts != 2 || failed.LastError == "" {
		t.Errorf("Attempts = %d, LastError = %q, want 2 and the error", failed.Attempts, failed.LastError)
	}
	if err := store.RecordRunFailure(ctx, uuid.New(), "x"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("RecordRunFailure(unknown) error = %v, want ErrNotFound", err)
	}

	now := time.Now()
	run.ProcessedAt = &now
	run.Stats = core.RunStats{QueriesFailed: 1, RecordsMatched: 2, RecordsUpdated: 2}
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	got, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Stats != run.Stats || !got.Processed() {
		t.Errorf("GetRun() = %+v, want saved stats and processed", got)
	}
	if _, err := store.GetRun(ctx, uuid.New()); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetRun(unknown) error = %v, want ErrNotFound", err)
	}

	deleted, _ := store.ListRuns(ctx, core.ScopeDeleted)
	if len(deleted) != 0 {
		t.Errorf("ListRuns(deleted) = %d, want 0", len(deleted))
	}
}
