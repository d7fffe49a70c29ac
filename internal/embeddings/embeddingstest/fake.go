// Package embeddingstest provides a deterministic in-memory provider for tests.
package embeddingstest

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// Fake returns fixed vectors for known texts and a hash-derived vector for
// anything else. It counts every text it encodes.
type Fake struct {
	Model   string
	Size    int
	Vectors map[string][]float32
	Err     error

	mu      sync.Mutex
	encoded []string
	calls   atomic.Int64
}

// New returns a Fake of the given dimension.
func New(model string, dim int) *Fake {
	return &Fake{Model: model, Size: dim, Vectors: map[string][]float32{}}
}

// Set registers the vector of text.
func (f *Fake) Set(text string, vec ...float32) *Fake {
	f.Vectors[text] = vec
	return f
}

func (f *Fake) ModelID() string { return f.Model }

func (f *Fake) Dim() int { return f.Size }

func (f *Fake) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	if text == "" {
		return nil, errors.New("cannot embed empty text")
	}
	f.calls.Add(1)
	f.mu.Lock()
	f.encoded = append(f.encoded, text)
	f.mu.Unlock()

	if v, ok := f.Vectors[text]; ok {
		out := make([]float32, len(v))
		copy(out, v)
		return out, nil
	}
	return hashVector(text, f.Size), nil
}

// Calls returns the number of encoded texts.
func (f *Fake) Calls() int { return int(f.calls.Load()) }

// Encoded returns the encoded texts in call order.
func (f *Fake) Encoded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.encoded...)
}

// Batch wraps a Fake with an EmbedBatch method and counts batch calls.
type Batch struct {
	*Fake
	batches atomic.Int64
}

func (b *Batch) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	b.batches.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := b.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Batches returns the number of EmbedBatch calls.
func (b *Batch) Batches() int { return int(b.batches.Load()) }

func hashVector(text string, dim int) []float32 {
	if dim <= 0 {
		dim = 4
	}
	out := make([]float32, dim)
	for i := range out {
		h := fnv.New32a()
		_, _ = h.Write([]byte{byte(i)})
		_, _ = h.Write([]byte(text))
		out[i] = float32(h.Sum32()%1000)/500 - 1
	}
	return out
}
