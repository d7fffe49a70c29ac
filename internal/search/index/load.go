package index

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kamusis/curricula/internal/domain"
	"github.com/kamusis/curricula/internal/safetensors"
)

// TensorKey is the fixed tensor name of the embeddings blob.
const TensorKey = "embeddings"

// NamesHeader is the single column header of the names table.
const NamesHeader = "names"

// Load reads the embeddings blob and the parallel names table. An index whose
// counts disagree or that is empty is reported as domain.ErrCacheInvalid.
func Load(embeddingsPath, namesPath string) (*Index, error) {
	f, err := safetensors.ReadFile(embeddingsPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read embeddings %s: %w", embeddingsPath, err)
	}
	t, ok := f.Tensors[TensorKey]
	if !ok {
		return nil, fmt.Errorf("%w: tensor %q not found in %s", domain.ErrCacheInvalid, TensorKey, embeddingsPath)
	}
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("%w: expected 2D tensor, got shape %v", domain.ErrCacheInvalid, t.Shape)
	}

	names, err := loadNames(namesPath)
	if err != nil {
		return nil, err
	}

	idx := &Index{
		Model:   f.Metadata["model"],
		Dim:     t.Shape[1],
		Vectors: t.Data,
		Names:   names,
	}
	if t.Shape[0] != len(names) || !idx.Valid() {
		return nil, fmt.Errorf("%w: %d vectors, %d names", domain.ErrCacheInvalid, t.Shape[0], len(names))
	}
	return idx, nil
}

// Exists reports whether both artifacts are present on disk.
func Exists(embeddingsPath, namesPath string) bool {
	for _, p := range []string{embeddingsPath, namesPath} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

func loadNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open names file %s: %w", path, err)
	}
	defer f.Close()
	return readNames(f)
}

func readNames(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read names header: %v", domain.ErrCacheInvalid, err)
	}
	if len(header) != 1 || header[0] != NamesHeader {
		return nil, fmt.Errorf("%w: unexpected names header %v", domain.ErrCacheInvalid, header)
	}

	var out []string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: cannot read names: %v", domain.ErrCacheInvalid, err)
		}
		if len(rec) == 0 {
			continue
		}
		out = append(out, rec[0])
	}
	return out, nil
}
