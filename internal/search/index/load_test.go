package index

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kamusis/curricula/internal/domain"
)

func TestLoad_IndexHappyPath(t *testing.T) {
	dir := t.TempDir()
	emb := filepath.Join(dir, "emb.safetensors")
	names := filepath.Join(dir, "names.csv")

	in := &Index{Model: "m", Dim: 2, Vectors: []float32{1, 0, 0, 1}, Names: []string{"a", "b, with comma"}}
	if err := Write(in, emb, names); err != nil {
		t.Fatalf("Write: %v", err)
	}

	idx, err := Load(emb, names)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if idx.Dim != 2 {
		t.Fatalf("dim mismatch")
	}
	if idx.Model != "m" {
		t.Fatalf("model mismatch: %q", idx.Model)
	}
	if len(idx.Names) != 2 || idx.Names[1] != "b, with comma" {
		t.Fatalf("names mismatch: %v", idx.Names)
	}
	if len(idx.Vectors) != 4 || idx.Vector(1)[1] != 1 {
		t.Fatalf("vectors mismatch")
	}
}

func TestLoad_CountMismatchIsInvalid(t *testing.T) {
	dir := t.TempDir()
	emb := filepath.Join(dir, "emb.safetensors")
	names := filepath.Join(dir, "names.csv")

	in := &Index{Model: "m", Dim: 2, Vectors: []float32{1, 0, 0, 1}, Names: []string{"a", "b"}}
	if err := Write(in, emb, names); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(names, []byte("names\na\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(emb, names)
	if !errors.Is(err, domain.ErrCacheInvalid) {
		t.Fatalf("err = %v, want ErrCacheInvalid", err)
	}
}

func TestLoad_BadNamesHeader(t *testing.T) {
	dir := t.TempDir()
	emb := filepath.Join(dir, "emb.safetensors")
	names := filepath.Join(dir, "names.csv")
	if err := Write(&Index{Dim: 1, Vectors: []float32{1}, Names: []string{"a"}}, emb, names); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(names, []byte("title\na\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(emb, names); !errors.Is(err, domain.ErrCacheInvalid) {
		t.Fatalf("err = %v, want ErrCacheInvalid", err)
	}
}

func TestWrite_SkipsEmpty(t *testing.T) {
	dir := t.TempDir()
	emb := filepath.Join(dir, "emb.safetensors")
	names := filepath.Join(dir, "names.csv")
	if err := Write(Empty("m"), emb, names); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if Exists(emb, names) {
		t.Fatalf("empty index should not be written")
	}
}

func TestWithModelSuffix(t *testing.T) {
	tests := []struct {
		path, model, want string
	}{
		{"data/embeddings.safetensors", "sbert", "data/embeddings_sbert.safetensors"},
		{"data/names.csv", "ai-forever/sbert_large_nlu_ru", "data/names_ai-forever_sbert_large_nlu_ru.csv"},
		{"noext", "m:1", "noext_m_1"},
	}
	for _, tt := range tests {
		if got := WithModelSuffix(tt.path, tt.model); got != tt.want {
			t.Errorf("WithModelSuffix(%q, %q) = %q, want %q", tt.path, tt.model, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	idx := &Index{Dim: 1, Vectors: []float32{1, 2, 3}, Names: []string{"a", "b", "c"}}
	if got := idx.Truncate(2); got.Len() != 2 || len(got.Vectors) != 2 {
		t.Fatalf("Truncate(2) len=%d", got.Len())
	}
	if got := idx.Truncate(0); got != idx {
		t.Fatalf("Truncate(0) should return the same index")
	}
	if got := idx.Truncate(10); got != idx {
		t.Fatalf("Truncate(10) should return the same index")
	}
}

func TestCosineAll(t *testing.T) {
	idx := &Index{Dim: 2, Vectors: []float32{1, 0, 0, 2, 0, 0}, Names: []string{"x", "y", "z"}}
	got, err := CosineAll([]float32{3, 0}, idx)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 1 || got[1] != 0 || got[2] != 0 {
		t.Fatalf("CosineAll = %v", got)
	}
	if _, err := CosineAll([]float32{1}, idx); !errors.Is(err, ErrVectorLengthMismatch) {
		t.Fatalf("err = %v, want ErrVectorLengthMismatch", err)
	}
}
