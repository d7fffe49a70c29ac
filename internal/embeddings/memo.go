package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
)

// Store is a shared text -> vector cache keyed by model.
type Store interface {
	Get(ctx context.Context, model, key string) ([]float32, bool, error)
	Set(ctx context.Context, model, key string, vec []float32) error
}

// Memo wraps a Provider and caches vectors by text hash. Misses are looked up
// in the optional Store before the provider is called. It is safe for
// concurrent use.
type Memo struct {
	base      Provider
	store     Store
	batchSize int
	capacity  int

	mu  sync.RWMutex
	m   map[string][]float32
	ord []string
}

// NewMemo wraps base. capacity <= 0 keeps every entry.
func NewMemo(base Provider, store Store, capacity, batchSize int) *Memo {
	return &Memo{
		base:      base,
		store:     store,
		batchSize: batchSize,
		capacity:  capacity,
		m:         make(map[string][]float32),
	}
}

func (c *Memo) ModelID() string {
	if c.base == nil {
		return ""
	}
	return c.base.ModelID()
}

func (c *Memo) Dim() int {
	if c.base == nil {
		return 0
	}
	return c.base.Dim()
}

// Len returns the number of locally cached vectors.
func (c *Memo) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

// Embed returns the cached vector of text or computes it.
func (c *Memo) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch resolves every text, encoding only the misses in one pass.
func (c *Memo) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	res := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, t := range texts {
		if v, ok := c.lookup(ctx, t); ok {
			res[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}
	if len(missIdx) == 0 {
		return res, nil
	}

	uniq := dedupeTexts(missTexts)
	vecs, err := EmbedAll(ctx, c.base, uniq, c.batchSize)
	if err != nil {
		return nil, err
	}
	byText := make(map[string][]float32, len(vecs))
	for i, t := range uniq {
		byText[t] = vecs[i]
		c.put(ctx, t, vecs[i], true)
	}
	for j, idx := range missIdx {
		res[idx] = byText[missTexts[j]]
	}
	return res, nil
}

// Seed stores precomputed vectors: row i of flat (dim floats) is the vector of texts[i].
func (c *Memo) Seed(texts []string, dim int, flat []float32) {
	if dim <= 0 || len(flat) < len(texts)*dim {
		return
	}
	for i, t := range texts {
		c.put(context.Background(), t, flat[i*dim:(i+1)*dim], false)
	}
}

func (c *Memo) lookup(ctx context.Context, text string) ([]float32, bool) {
	k := TextHash(text)
	c.mu.RLock()
	v, ok := c.m[k]
	c.mu.RUnlock()
	if ok {
		return v, true
	}
	if c.store == nil {
		return nil, false
	}
	v, ok, err := c.store.Get(ctx, c.ModelID(), k)
	if err != nil {
		slog.Debug("embedding store get failed", "err", err)
		return nil, false
	}
	if ok {
		c.put(ctx, text, v, false)
	}
	return v, ok
}

func (c *Memo) put(ctx context.Context, text string, vec []float32, share bool) {
	k := TextHash(text)
	c.mu.Lock()
	if _, exists := c.m[k]; !exists {
		if c.capacity > 0 && len(c.ord) >= c.capacity {
			old := c.ord[0]
			c.ord = c.ord[1:]
			delete(c.m, old)
		}
		c.ord = append(c.ord, k)
	}
	c.m[k] = vec
	c.mu.Unlock()

	if share && c.store != nil {
		if err := c.store.Set(ctx, c.ModelID(), k, vec); err != nil {
			slog.Debug("embedding store set failed", "err", err)
		}
	}
}

// TextHash returns a sha256 hash (hex) of text.
func TextHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func dedupeTexts(texts []string) []string {
	seen := make(map[string]struct{}, len(texts))
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
