package index

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kamusis/curricula/internal/safetensors"
)

// Write persists idx to the two artifact paths. Each file is written to a
// temporary sibling and renamed into place. A file whose content would be
// empty is not written.
func Write(idx *Index, embeddingsPath, namesPath string) error {
	if idx.Len() == 0 {
		return nil
	}
	if !idx.Valid() {
		return fmt.Errorf("vector length mismatch: got %d want %d", len(idx.Vectors), idx.Len()*idx.Dim)
	}

	meta := map[string]string{
		"model":      idx.Model,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	err := writeAtomic(embeddingsPath, func(w *bufio.Writer) error {
		return safetensors.Encode(w, map[string]safetensors.Tensor{
			TensorKey: {Shape: []int{idx.Len(), idx.Dim}, Data: idx.Vectors},
		}, meta)
	})
	if err != nil {
		return fmt.Errorf("cannot write embeddings: %w", err)
	}

	err = writeAtomic(namesPath, func(w *bufio.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{NamesHeader}); err != nil {
			return err
		}
		for _, n := range idx.Names {
			if err := cw.Write([]string{n}); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return fmt.Errorf("cannot write names: %w", err)
	}
	return nil
}

func writeAtomic(path string, fill func(w *bufio.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create dir for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := fill(bw); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
