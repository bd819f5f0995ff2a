package core_test

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/datasheets/internal/core"
	"github.com/JonMunkholm/datasheets/internal/store/memory"
)

// writeSheet writes rows as a CSV datasheet and returns its path.
func writeSheet(t testing.TB, rows ...[]string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "datasheet.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

// perform runs one pass over rows against store and returns the stored run.
func perform(t *testing.T, store *memory.Store, rows ...[]string) *core.ImportRun {
	t.Helper()
	ctx := context.Background()

	run := &core.ImportRun{ID: uuid.New(), FileName: "datasheet.csv", FilePath: writeSheet(t, rows...)}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	engine := core.NewEngine(store.Stores(), core.DefaultTaxonomyName)
	if err := engine.Perform(ctx, run); err != nil {
		t.Fatalf("Perform() error = %v", err)
	}

	stored, err := store.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	return stored
}

func seedProduct(t *testing.T, store *memory.Store, attrs core.Attributes) int64 {
	t.Helper()
	rec := core.NewRecord(core.KindProduct, attrs)
	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return rec.ID
}

func taxonNames(taxons []core.Taxon) map[string]bool {
	names := make(map[string]bool, len(taxons))
	for _, t := range taxons {
		names[t.Name] = true
	}
	return names
}

func TestPerform_CreateProductWithTaxons(t *testing.T) {
	store := memory.New()

	run := perform(t, store,
		[]string{"id", "name", "taxons"},
		[]string{"", "Chair", "Furniture;Seating"},
	)

	if run.Stats != (core.RunStats{}) {
		t.Errorf("Stats = %+v, want all zero", run.Stats)
	}
	if !run.Processed() {
		t.Error("run should be processed")
	}

	products := store.Records(core.KindProduct)
	if len(products) != 1 {
		t.Fatalf("products = %d, want 1", len(products))
	}
	chair := products[0]
	if chair.Attrs["name"] != "Chair" {
		t.Errorf("name = %q, want Chair", chair.Attrs["name"])
	}
	if chair.Attrs["permalink"] != "chair" {
		t.Errorf("permalink = %q, want chair", chair.Attrs["permalink"])
	}
	if _, ok := chair.Attrs["taxons"]; ok {
		t.Error("taxons marker should not be stored as an attribute")
	}

	linked := taxonNames(store.TaxonsOf(chair.ID))
	if len(linked) != 2 || !linked["Furniture"] || !linked["Seating"] {
		t.Errorf("linked taxons = %v, want Furniture and Seating", linked)
	}

	ctx := context.Background()
	taxonomy, err := store.FindTaxonomyByName(ctx, core.DefaultTaxonomyName)
	if err != nil {
		t.Fatalf("categories taxonomy not created: %v", err)
	}
	for _, taxon := range store.TaxonsOf(chair.ID) {
		if taxon.ParentID != taxonomy.Root.ID {
			t.Errorf("taxon %q parent = %d, want root %d", taxon.Name, taxon.ParentID, taxonomy.Root.ID)
		}
	}
}

func TestPerform_UpdateTwoMatchesWithOneFailure(t *testing.T) {
	store := memory.New()
	first := seedProduct(t, store, core.Attributes{"name": "Chair", "sku": "S-1", "price": "10"})
	second := seedProduct(t, store, core.Attributes{"name": "Stool", "sku": "S-1", "price": "10"})
	store.FailWrites(core.KindProduct, second, errors.New("connection reset by peer"))

	run := perform(t, store,
		[]string{"sku", "price"},
		[]string{"S-1", "12.5"},
	)

	want := core.RunStats{RecordsMatched: 2, RecordsUpdated: 1, RecordsFailed: 1}
	if run.Stats != want {
		t.Errorf("Stats = %+v, want %+v", run.Stats, want)
	}

	for _, p := range store.Records(core.KindProduct) {
		wantPrice := "10"
		if p.ID == first {
			wantPrice = "12.5"
		}
		if p.Attrs["price"] != wantPrice {
			t.Errorf("product %d price = %q, want %q", p.ID, p.Attrs["price"], wantPrice)
		}
	}
}

func TestPerform_ValidationFailureCountsAsRecordFailure(t *testing.T) {
	store := memory.New()
	seedProduct(t, store, core.Attributes{"name": "Chair", "sku": "S-1"})

	run := perform(t, store,
		[]string{"sku", "price"},
		[]string{"S-1", "twelve"},
	)

	want := core.RunStats{RecordsMatched: 1, RecordsFailed: 1}
	if run.Stats != want {
		t.Errorf("Stats = %+v, want %+v", run.Stats, want)
	}
}

func TestPerform_TaxonsPersistWhenUpdateRejected(t *testing.T) {
	store := memory.New()
	id := seedProduct(t, store, core.Attributes{"name": "Chair", "sku": "S-1", "price": "10"})

	run := perform(t, store,
		[]string{"sku", "price", "taxons"},
		[]string{"S-1", "twelve", "Furniture"},
	)

	want := core.RunStats{RecordsMatched: 1, RecordsFailed: 1}
	if run.Stats != want {
		t.Errorf("Stats = %+v, want %+v", run.Stats, want)
	}

	linked := taxonNames(store.TaxonsOf(id))
	if len(linked) != 1 || !linked["Furniture"] {
		t.Errorf("linked taxons = %v, want Furniture", linked)
	}
	if got := store.Records(core.KindProduct)[0].Attrs["price"]; got != "10" {
		t.Errorf("price = %q, want unchanged 10", got)
	}
}

func TestPerform_TaxonSaveFailureSkipsUpdate(t *testing.T) {
	store := memory.New()
	id := seedProduct(t, store, core.Attributes{"name": "Chair", "sku": "S-1", "price": "10"})
	store.FailWrites(core.KindProduct, id, errors.New("connection reset by peer"))

	run := perform(t, store,
		[]string{"sku", "price", "taxons"},
		[]string{"S-1", "12", "Furniture"},
	)

	want := core.RunStats{RecordsMatched: 1, RecordsFailed: 1}
	if run.Stats != want {
		t.Errorf("Stats = %+v, want %+v", run.Stats, want)
	}
	if linked := store.TaxonsOf(id); len(linked) != 0 {
		t.Errorf("linked taxons = %v, want none", linked)
	}
}

func TestPerform_WhitespaceKeyCellUpdatesByID(t *testing.T) {
	store := memory.New()

	run := perform(t, store,
		[]string{"id", "name"},
		[]string{"  ", "Chair"},
	)

	if got := len(store.Records(core.KindProduct)); got != 0 {
		t.Errorf("products = %d, want 0", got)
	}
	want := core.RunStats{QueriesFailed: 1}
	if run.Stats != want {
		t.Errorf("Stats = %+v, want %+v", run.Stats, want)
	}
}

func TestPerform_UnknownColumn(t *testing.T) {
	store := memory.New()

	run := perform(t, store,
		[]string{"unknown_col"},
		[]string{"a"},
		[]string{"b"},
		[]string{"c"},
	)

	if run.Stats.QueriesFailed != 3 {
		t.Errorf("QueriesFailed = %d, want 3", run.Stats.QueriesFailed)
	}
	if run.Stats.RecordsMatched != 0 || run.Stats.RecordsUpdated != 0 {
		t.Errorf("Stats = %+v, want no matches or updates", run.Stats)
	}
	if got := len(store.Records(core.KindProduct)); got != 0 {
		t.Errorf("products = %d, want 0", got)
	}
	if got := store.Taxonomies(); got != 0 {
		t.Errorf("taxonomies = %d, want 0", got)
	}
}

func TestPerform_TaxonsAreIdempotent(t *testing.T) {
	store := memory.New()

	perform(t, store,
		[]string{"id", "name", "taxons"},
		[]string{"", "Chair", "Furniture;Seating"},
	)
	before := len(store.Taxons())

	run := perform(t, store,
		[]string{"name", "taxons"},
		[]string{"Chair", "Seating; Furniture ;Seating"},
	)

	if got := len(store.Taxons()); got != before {
		t.Errorf("taxons after second run = %d, want %d", got, before)
	}
	if before != 3 {
		t.Errorf("taxons after first run = %d, want 3 (root, Furniture, Seating)", before)
	}
	want := core.RunStats{RecordsMatched: 1, RecordsUpdated: 1}
	if run.Stats != want {
		t.Errorf("Stats = %+v, want %+v", run.Stats, want)
	}
	if got := store.Taxonomies(); got != 1 {
		t.Errorf("taxonomies = %d, want 1", got)
	}
}

func TestPerform_CreateVariantVersusProduct(t *testing.T) {
	store := memory.New()
	parent := seedProduct(t, store, core.Attributes{"name": "Chair"})

	run := perform(t, store,
		[]string{"id", "product_id", "name", "sku"},
		[]string{"", "1", "", "V-1"},
		[]string{"", "", "Lamp", "1234.0"},
	)

	if run.Stats != (core.RunStats{}) {
		t.Errorf("Stats = %+v, want all zero", run.Stats)
	}

	variants := store.Records(core.KindVariant)
	if len(variants) != 1 {
		t.Fatalf("variants = %d, want 1", len(variants))
	}
	if variants[0].Attrs["product_id"] != "1" || variants[0].Attrs["sku"] != "V-1" {
		t.Errorf("variant attrs = %v", variants[0].Attrs)
	}

	products := store.Records(core.KindProduct)
	if len(products) != 2 {
		t.Fatalf("products = %d, want 2", len(products))
	}
	lamp := products[1]
	if lamp.ID == parent || lamp.Attrs["name"] != "Lamp" {
		t.Fatalf("second product = %+v, want Lamp", lamp)
	}
	if lamp.Attrs["sku"] != "1234" {
		t.Errorf("sku = %q, want 1234", lamp.Attrs["sku"])
	}
}

func TestPerform_CreateFailuresCountAsQueries(t *testing.T) {
	store := memory.New()

	run := perform(t, store,
		[]string{"id", "name", "sku", "product_id"},
		[]string{"", "", "NO-NAME", ""},
		[]string{"", "", "", "42"},
	)

	want := core.RunStats{QueriesFailed: 2}
	if run.Stats != want {
		t.Errorf("Stats = %+v, want %+v", run.Stats, want)
	}
}

func TestPerform_ZeroMatchUpdate(t *testing.T) {
	store := memory.New()
	seedProduct(t, store, core.Attributes{"name": "Chair", "sku": "S-1"})

	run := perform(t, store,
		[]string{"sku", "price"},
		[]string{"NOPE", "1"},
	)

	want := core.RunStats{QueriesFailed: 1}
	if run.Stats != want {
		t.Errorf("Stats = %+v, want %+v", run.Stats, want)
	}
}

func TestPerform_UpdateVariants(t *testing.T) {
	store := memory.New()
	seedProduct(t, store, core.Attributes{"name": "Chair"})
	ctx := context.Background()
	for _, cost := range []string{"5", "5", "7"} {
		v := core.NewRecord(core.KindVariant, core.Attributes{"product_id": "1", "cost_price": cost})
		if err := store.Save(ctx, v); err != nil {
			t.Fatalf("seed variant: %v", err)
		}
	}

	run := perform(t, store,
		[]string{"cost_price", "weight", "taxons"},
		[]string{"5", "2.5", "Ignored"},
	)

	want := core.RunStats{RecordsMatched: 2, RecordsUpdated: 2}
	if run.Stats != want {
		t.Errorf("Stats = %+v, want %+v", run.Stats, want)
	}
	if got := store.Taxonomies(); got != 0 {
		t.Errorf("taxonomies = %d, want 0 for variant updates", got)
	}
}

func TestPerform_UnreadableFileIsFatal(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	run := &core.ImportRun{
		ID:       uuid.New(),
		FileName: "missing.csv",
		FilePath: filepath.Join(t.TempDir(), "missing.csv"),
	}
	store.CreateRun(ctx, run)

	err := core.NewEngine(store.Stores(), "").Perform(ctx, run)
	if !errors.Is(err, core.ErrDatasheetUnreadable) {
		t.Fatalf("Perform() error = %v, want ErrDatasheetUnreadable", err)
	}

	stored, _ := store.GetRun(ctx, run.ID)
	if stored.Processed() {
		t.Error("run should not be marked processed")
	}
	if stored.Stats != (core.RunStats{}) {
		t.Errorf("Stats = %+v, want nothing committed", stored.Stats)
	}
}

func TestPerform_CancelledContext(t *testing.T) {
	store := memory.New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := &core.ImportRun{
		ID:       uuid.New(),
		FilePath: writeSheet(t, []string{"sku"}, []string{"S-1"}),
	}
	store.CreateRun(context.Background(), run)

	err := core.NewEngine(store.Stores(), "").Perform(ctx, run)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Perform() error = %v, want context.Canceled", err)
	}
	stored, _ := store.GetRun(context.Background(), run.ID)
	if stored.Processed() {
		t.Error("interrupted run should not be marked processed")
	}
}

func TestPerform_RerunResetsCounters(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	run := &core.ImportRun{
		ID:       uuid.New(),
		FilePath: writeSheet(t, []string{"unknown_col"}, []string{"a"}),
	}
	store.CreateRun(ctx, run)
	engine := core.NewEngine(store.Stores(), "")

	for i := 0; i < 2; i++ {
		loaded, _ := store.GetRun(ctx, run.ID)
		if err := engine.Perform(ctx, loaded); err != nil {
			t.Fatalf("Perform() #%d error = %v", i+1, err)
		}
	}

	stored, _ := store.GetRun(ctx, run.ID)
	if stored.Stats.QueriesFailed != 1 {
		t.Errorf("QueriesFailed = %d, want 1 after rerun", stored.Stats.QueriesFailed)
	}
	if stored.ProcessedAt == nil || time.Since(*stored.ProcessedAt) > time.Minute {
		t.Errorf("ProcessedAt = %v, want recent", stored.ProcessedAt)
	}
}

// BenchmarkPerform_UpdateBySKU benchmarks a full pass that updates 100
// products through 1000 rows keyed by sku.
func BenchmarkPerform_UpdateBySKU(b *testing.B) {
	store := memory.New()
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		rec := core.NewRecord(core.KindProduct, core.Attributes{
			"name": fmt.Sprintf("Product %d", i),
			"sku":  fmt.Sprintf("SKU-%d", i),
		})
		if err := store.Save(ctx, rec); err != nil {
			b.Fatal(err)
		}
	}

	rows := [][]string{{"sku", "price", "meta_keywords"}}
	for i := 0; i < 1000; i++ {
		rows = append(rows, []string{fmt.Sprintf("SKU-%d", i%100), fmt.Sprintf("%d.95", i), "bench"})
	}
	run := &core.ImportRun{ID: uuid.New(), FileName: "bench.csv", FilePath: writeSheet(b, rows...)}
	if err := store.CreateRun(ctx, run); err != nil {
		b.Fatal(err)
	}
	engine := core.NewEngine(store.Stores(), core.DefaultTaxonomyName)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := engine.Perform(ctx, run); err != nil {
			b.Fatal(err)
		}
	}
}
