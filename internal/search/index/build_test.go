package index

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kamusis/curricula/internal/domain"
	"github.com/kamusis/curricula/internal/embeddings/embeddingstest"
)

func testDocs() []Document {
	return []Document{
		{Name: "Algorithms", Text: "Algorithms\nАннотация: sorting"},
		{Name: "Empty", Text: "  "},
		{Name: "Databases", Text: "Databases\nАннотация: SQL"},
		{Name: "Algorithms", Text: "Algorithms\nАннотация: graphs"},
	}
}

func testOpts(dir string) ExtractOptions {
	return ExtractOptions{
		Catalog:        "subjects",
		EmbeddingsPath: filepath.Join(dir, "embeddings.safetensors"),
		NamesPath:      filepath.Join(dir, "names.csv"),
	}
}

func TestExtract_SecondCallUsesCache(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	fake := embeddingstest.New("m", 4)

	first, err := Extract(ctx, fake, "m", testDocs(), testOpts(dir))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if fake.Calls() != 3 {
		t.Fatalf("first call encoded %d texts, want 3", fake.Calls())
	}
	wantNames := []string{"Algorithms", "Databases", "Algorithms"}
	if !reflect.DeepEqual(first.Names, wantNames) {
		t.Fatalf("names = %v, want %v", first.Names, wantNames)
	}
	if _, err := os.Stat(filepath.Join(dir, "embeddings_m.safetensors")); err != nil {
		t.Fatalf("embeddings artifact not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "names_m.csv")); err != nil {
		t.Fatalf("names artifact not written: %v", err)
	}

	second, err := Extract(ctx, fake, "m", testDocs(), testOpts(dir))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if fake.Calls() != 3 {
		t.Fatalf("second call encoded again: %d", fake.Calls())
	}
	if !reflect.DeepEqual(first.Names, second.Names) || !reflect.DeepEqual(first.Vectors, second.Vectors) {
		t.Fatalf("cached index differs from built index")
	}

	// the fast path does not need an encoder at all
	if _, err := Extract(ctx, nil, "m", testDocs(), testOpts(dir)); err != nil {
		t.Fatalf("Extract without provider on warm cache: %v", err)
	}
}

func TestExtract_ForceReloadIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	opts := testOpts(dir)
	opts.ForceReload = true

	fake := embeddingstest.New("m", 4)
	a, err := Extract(ctx, fake, "m", testDocs(), opts)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Extract(ctx, fake, "m", testDocs(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if fake.Calls() != 6 {
		t.Fatalf("force reload should re-encode: calls=%d", fake.Calls())
	}
	if !reflect.DeepEqual(a.Names, b.Names) || !reflect.DeepEqual(a.Vectors, b.Vectors) {
		t.Fatalf("force reload not deterministic")
	}
}

func TestExtract_ModelsDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	if _, err := Extract(ctx, embeddingstest.New("a", 2), "a", testDocs(), testOpts(dir)); err != nil {
		t.Fatal(err)
	}
	fb := embeddingstest.New("b", 3)
	idx, err := Extract(ctx, fb, "b", testDocs(), testOpts(dir))
	if err != nil {
		t.Fatal(err)
	}
	if fb.Calls() != 3 || idx.Dim != 3 {
		t.Fatalf("model b reused model a artifacts: calls=%d dim=%d", fb.Calls(), idx.Dim)
	}
}

func TestExtract_LimitTruncatesCache(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	fake := embeddingstest.New("m", 2)
	if _, err := Extract(ctx, fake, "m", testDocs(), testOpts(dir)); err != nil {
		t.Fatal(err)
	}

	opts := testOpts(dir)
	opts.Limit = 3
	idx, err := Extract(ctx, fake, "m", testDocs(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if fake.Calls() != 3 {
		t.Fatalf("limit within cache should not re-encode: calls=%d", fake.Calls())
	}
	if !reflect.DeepEqual(idx.Names, []string{"Algorithms", "Databases"}) {
		t.Fatalf("names = %v", idx.Names)
	}
}

func TestExtract_StaleNamesRebuild(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	fake := embeddingstest.New("m", 2)
	if _, err := Extract(ctx, fake, "m", testDocs(), testOpts(dir)); err != nil {
		t.Fatal(err)
	}
	docs := testDocs()
	docs[0].Name = "Algorithms II"
	idx, err := Extract(ctx, fake, "m", docs, testOpts(dir))
	if err != nil {
		t.Fatal(err)
	}
	if fake.Calls() != 6 || idx.Names[0] != "Algorithms II" {
		t.Fatalf("stale cache served: calls=%d names=%v", fake.Calls(), idx.Names)
	}
}

func TestExtract_InvalidCacheRebuilds(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	fake := embeddingstest.New("m", 2)
	opts := testOpts(dir)
	if _, err := Extract(ctx, fake, "m", testDocs(), opts); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(WithModelSuffix(opts.NamesPath, "m"), []byte("names\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	idx, err := Extract(ctx, fake, "m", testDocs(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if fake.Calls() != 6 || idx.Len() != 3 {
		t.Fatalf("invalid cache not rebuilt: calls=%d len=%d", fake.Calls(), idx.Len())
	}
}

func TestExtract_NoValidDocuments(t *testing.T) {
	dir := t.TempDir()
	docs := []Document{{Name: "a", Text: ""}, {Name: "b", Text: " \n"}}
	idx, err := Extract(context.Background(), nil, "m", docs, testOpts(dir))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if idx.Len() != 0 || idx.Valid() {
		t.Fatalf("expected empty index, got %d rows", idx.Len())
	}
	if Exists(WithModelSuffix(testOpts(dir).EmbeddingsPath, "m"), WithModelSuffix(testOpts(dir).NamesPath, "m")) {
		t.Fatalf("empty index must not be persisted")
	}
}

func TestExtract_EncoderUnavailable(t *testing.T) {
	_, err := Extract(context.Background(), nil, "m", testDocs(), testOpts(t.TempDir()))
	if !errors.Is(err, domain.ErrEncoderUnavailable) {
		t.Fatalf("err = %v, want ErrEncoderUnavailable", err)
	}
}

func TestExtract_BatchPreservesOrder(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	single := embeddingstest.New("m", 3)
	a, err := Extract(ctx, single, "m", testDocs(), testOpts(dir))
	if err != nil {
		t.Fatal(err)
	}

	batch := &embeddingstest.Batch{Fake: embeddingstest.New("m", 3)}
	opts := testOpts(dir)
	opts.ForceReload = true
	opts.BatchSize = 2
	b, err := Extract(ctx, batch, "m", testDocs(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if batch.Batches() != 2 {
		t.Fatalf("batches = %d, want 2", batch.Batches())
	}
	if !reflect.DeepEqual(a.Vectors, b.Vectors) || !reflect.DeepEqual(a.Names, b.Names) {
		t.Fatalf("batched build differs from sequential build")
	}
}

func TestExtract_NormalizeStoresUnitRows(t *testing.T) {
	dir := t.TempDir()
	fake := embeddingstest.New("m", 2).
		Set(testDocs()[0].Text, 3, 4).
		Set(testDocs()[2].Text, 0, 0)
	opts := testOpts(dir)
	opts.Normalize = true

	idx, err := Extract(context.Background(), fake, "m", testDocs(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if got := idx.Vector(0); !near(got[0], 0.6) || !near(got[1], 0.8) {
		t.Fatalf("row 0 = %v, want [0.6 0.8]", got)
	}
	if got := idx.Vector(1); got[0] != 0 || got[1] != 0 {
		t.Fatalf("zero row changed: %v", got)
	}
}

func TestNormalizeL2(t *testing.T) {
	in := []float32{3, 4}
	out := NormalizeL2(in)
	if !near(out[0], 0.6) || !near(out[1], 0.8) {
		t.Fatalf("NormalizeL2 = %v", out)
	}
	if in[0] != 3 {
		t.Fatalf("input modified: %v", in)
	}
	if z := NormalizeL2([]float32{0, 0}); z[0] != 0 || z[1] != 0 {
		t.Fatalf("zero vector = %v", z)
	}
}

func near(a float32, b float64) bool {
	return math.Abs(float64(a)-b) < 1e-6
}
