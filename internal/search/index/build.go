package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/kamusis/curricula/internal/domain"
	"github.com/kamusis/curricula/internal/embeddings"
	"github.com/kamusis/curricula/internal/observability"
)

// ExtractOptions controls Extract.
type ExtractOptions struct {
	// Catalog labels logs and metrics.
	Catalog string
	// EmbeddingsPath and NamesPath are base artifact paths; the model name is
	// inserted before their extensions.
	EmbeddingsPath string
	NamesPath      string
	// Limit caps the number of documents considered. Zero means all.
	Limit       int
	ForceReload bool
	BatchSize   int
	// Normalize stores unit-length rows. Cosine scores are unchanged.
	Normalize   bool
	// LockTimeout bounds the wait for the rebuild lock. Zero means 30s.
	LockTimeout time.Duration
}

// Extract returns the embedding index of docs for model. A valid on-disk
// cache whose names match docs is returned without calling prov. Otherwise
// every document with non-empty text is encoded in order and the result is
// persisted. Zero valid documents yield an empty index and no error.
func Extract(ctx context.Context, prov embeddings.Provider, model string, docs []Document, opts ExtractOptions) (*Index, error) {
	if opts.EmbeddingsPath == "" || opts.NamesPath == "" {
		return nil, fmt.Errorf("%w: artifact paths are required", domain.ErrConfiguration)
	}
	embPath := WithModelSuffix(opts.EmbeddingsPath, model)
	namesPath := WithModelSuffix(opts.NamesPath, model)

	candidates := docs
	if opts.Limit > 0 && opts.Limit < len(candidates) {
		candidates = candidates[:opts.Limit]
	}
	var valid []Document
	for _, d := range candidates {
		if strings.TrimSpace(d.Text) == "" {
			slog.Debug("document without text skipped", "catalog", opts.Catalog, "name", d.Name)
			continue
		}
		valid = append(valid, d)
	}

	if !opts.ForceReload {
		if idx, ok := loadCached(embPath, namesPath, valid, opts.Catalog); ok {
			return idx, nil
		}
	}

	if len(valid) == 0 {
		slog.Info("no documents to embed", "catalog", opts.Catalog, "model", model)
		return Empty(model), nil
	}
	if prov == nil {
		return nil, fmt.Errorf("%w: cannot build %s index for %s", domain.ErrEncoderUnavailable, opts.Catalog, model)
	}

	timeout := opts.LockTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if err := os.MkdirAll(filepath.Dir(embPath), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create artifact dir: %w", err)
	}
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	lock := flock.New(lockPath(embPath))
	locked, err := lock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err == nil && !locked {
		err = errors.New("lock busy")
	}
	if err != nil {
		return nil, fmt.Errorf("cannot lock %s: %w", lock.Path(), err)
	}
	defer func() { _ = lock.Unlock() }()

	// another process may have finished the same rebuild while we waited
	if !opts.ForceReload {
		if idx, ok := loadCached(embPath, namesPath, valid, opts.Catalog); ok {
			return idx, nil
		}
	}

	observability.ObserveCache(opts.Catalog, observability.CacheRebuild)
	start := time.Now()
	texts := make([]string, len(valid))
	for i, d := range valid {
		texts[i] = d.Text
	}
	vecs, err := embeddings.EmbedAll(ctx, prov, texts, opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("embed %s documents: %w", opts.Catalog, err)
	}

	idx := &Index{Model: model, Names: make([]string, 0, len(valid))}
	for i, v := range vecs {
		if idx.Dim == 0 {
			idx.Dim = len(v)
		}
		if len(v) != idx.Dim {
			return nil, fmt.Errorf("%w: got %d want %d", ErrDimensionChanged, len(v), idx.Dim)
		}
		if opts.Normalize {
			v = NormalizeL2(v)
		}
		idx.Vectors = append(idx.Vectors, v...)
		idx.Names = append(idx.Names, valid[i].Name)
	}

	if err := Write(idx, embPath, namesPath); err != nil {
		return nil, err
	}
	slog.Info("embedding index rebuilt",
		"catalog", opts.Catalog, "model", model, "rows", idx.Len(), "dim", idx.Dim,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return idx, nil
}

// loadCached returns the cached index when it is valid and its names match
// the expected documents. A cache built without a limit serves a limited
// request by truncation.
func loadCached(embPath, namesPath string, want []Document, catalog string) (*Index, bool) {
	if !Exists(embPath, namesPath) {
		return nil, false
	}
	idx, err := Load(embPath, namesPath)
	if err != nil {
		slog.Warn("embedding cache invalid, rebuilding", "catalog", catalog, "path", embPath, "err", err)
		observability.ObserveCache(catalog, observability.CacheInvalid)
		return nil, false
	}
	if idx.Len() < len(want) || (len(want) == 0 && idx.Len() > 0) {
		slog.Info("embedding cache stale, rebuilding", "catalog", catalog, "cached", idx.Len(), "want", len(want))
		observability.ObserveCache(catalog, observability.CacheInvalid)
		return nil, false
	}
	for i, d := range want {
		if idx.Names[i] != d.Name {
			slog.Info("embedding cache names differ, rebuilding", "catalog", catalog, "row", i)
			observability.ObserveCache(catalog, observability.CacheInvalid)
			return nil, false
		}
	}
	observability.ObserveCache(catalog, observability.CacheHit)
	slog.Debug("embedding cache hit", "catalog", catalog, "path", embPath, "rows", len(want))
	return idx.Truncate(len(want)), true
}
