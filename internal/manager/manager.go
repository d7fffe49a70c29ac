// Package manager owns the active embedding model and the per-catalog
// indexes built with it. Readers take a Snapshot; switches and rebuilds run
// one at a time and publish a new State only after it is complete.
package manager

import (
	"container/list"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kamusis/curricula/internal/domain"
	"github.com/kamusis/curricula/internal/embeddings"
	"github.com/kamusis/curricula/internal/observability"
	"github.com/kamusis/curricula/internal/search/index"
)

// Source is the input of one catalog kind.
type Source struct {
	Documents      []index.Document
	EmbeddingsPath string
	NamesPath      string
}

// Options configures a Manager.
type Options struct {
	Factory embeddings.Factory
	Sources map[domain.Kind]Source
	// CacheSize is the number of loaded providers kept resident. Minimum 1.
	CacheSize   int
	BatchSize   int
	Limit       int
	Normalize   bool
	Lightweight bool
}

// State is one published, immutable view of the manager.
type State struct {
	Model    string
	Provider embeddings.Provider
	Indexes  map[domain.Kind]*index.Index
}

// Index returns the index of kind, or an empty one when it is not built.
func (s *State) Index(kind domain.Kind) *index.Index {
	if s == nil {
		return index.Empty("")
	}
	if idx, ok := s.Indexes[kind]; ok && idx != nil {
		return idx
	}
	return index.Empty(s.Model)
}

type cached struct {
	name string
	prov embeddings.Provider
}

// Manager is safe for concurrent use.
type Manager struct {
	opts Options

	switchMu sync.Mutex
	state    atomic.Pointer[State]

	cacheMu sync.Mutex
	lru     *list.List
	byName  map[string]*list.Element
}

// New returns a Manager with nothing loaded.
func New(opts Options) *Manager {
	if opts.CacheSize < 1 {
		opts.CacheSize = 1
	}
	m := &Manager{
		opts:   opts,
		lru:    list.New(),
		byName: make(map[string]*list.Element),
	}
	m.state.Store(&State{Indexes: map[domain.Kind]*index.Index{}})
	return m
}

// Lightweight reports whether heavy models are disabled.
func (m *Manager) Lightweight() bool { return m.opts.Lightweight }

// Snapshot returns the current published state. It never changes afterwards.
func (m *Manager) Snapshot() *State { return m.state.Load() }

// Index returns the current index of kind; empty when absent.
func (m *Manager) Index(kind domain.Kind) *index.Index { return m.Snapshot().Index(kind) }

// LoadModel returns the provider of name, loading it when it is not cached.
// It does not change the published state.
func (m *Manager) LoadModel(ctx context.Context, name string) (embeddings.Provider, error) {
	if m.opts.Lightweight {
		return nil, domain.ErrLightweightMode
	}
	if name == "" {
		return nil, fmt.Errorf("%w: model name is empty", domain.ErrInvalidArgument)
	}

	m.cacheMu.Lock()
	if el, ok := m.byName[name]; ok {
		m.lru.MoveToFront(el)
		p := el.Value.(*cached).prov
		m.cacheMu.Unlock()
		return p, nil
	}
	m.cacheMu.Unlock()

	if m.opts.Factory == nil {
		return nil, fmt.Errorf("%w: no model factory", domain.ErrEncoderUnavailable)
	}
	start := time.Now()
	p, err := m.opts.Factory(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", name, err)
	}
	slog.Info("model loaded", "model", name, "dim", p.Dim(), "elapsed", time.Since(start).Round(time.Millisecond))

	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if el, ok := m.byName[name]; ok {
		// loaded concurrently; keep the first one
		closeProvider(p)
		m.lru.MoveToFront(el)
		return el.Value.(*cached).prov, nil
	}
	m.byName[name] = m.lru.PushFront(&cached{name: name, prov: p})
	m.evictLocked(name)
	return p, nil
}

// evictLocked drops least recently used providers beyond CacheSize. The
// active model and keep are never evicted.
func (m *Manager) evictLocked(keep string) {
	active := m.Snapshot().Model
	for el := m.lru.Back(); el != nil && m.lru.Len() > m.opts.CacheSize; {
		prev := el.Prev()
		c := el.Value.(*cached)
		if c.name != active && c.name != keep {
			m.lru.Remove(el)
			delete(m.byName, c.name)
			closeProvider(c.prov)
			slog.Debug("model evicted", "model", c.name)
		}
		el = prev
	}
}

// UpdateEmbeddings rebuilds or reloads the index of kind for the active model
// and publishes it.
func (m *Manager) UpdateEmbeddings(ctx context.Context, kind domain.Kind, force bool) (*index.Index, error) {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	cur := m.Snapshot()
	if cur.Provider == nil {
		if m.opts.Lightweight {
			return index.Empty(""), domain.ErrLightweightMode
		}
		return nil, fmt.Errorf("%w: no model loaded", domain.ErrEncoderUnavailable)
	}
	idx, err := m.build(ctx, cur.Provider, cur.Model, kind, force)
	if err != nil {
		return nil, err
	}

	next := &State{Model: cur.Model, Provider: cur.Provider, Indexes: make(map[domain.Kind]*index.Index, len(cur.Indexes)+1)}
	for k, v := range cur.Indexes {
		next.Indexes[k] = v
	}
	next.Indexes[kind] = idx
	m.state.Store(next)
	return idx, nil
}

// ChangeModel loads name and builds the indexes of kinds (every configured
// source when none are given), then publishes them together. Readers keep
// seeing the previous state until the switch completes. In lightweight mode
// nothing happens and ErrLightweightMode is returned.
func (m *Manager) ChangeModel(ctx context.Context, name string, kinds ...domain.Kind) (*State, error) {
	return m.changeModel(ctx, name, false, kinds)
}

// RebuildModel is ChangeModel that ignores the on-disk caches: every index
// of kinds is encoded again, once.
func (m *Manager) RebuildModel(ctx context.Context, name string, kinds ...domain.Kind) (*State, error) {
	return m.changeModel(ctx, name, true, kinds)
}

func (m *Manager) changeModel(ctx context.Context, name string, force bool, kinds []domain.Kind) (*State, error) {
	if m.opts.Lightweight {
		slog.Info("model switch skipped in lightweight mode", "model", name)
		return m.Snapshot(), domain.ErrLightweightMode
	}

	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	p, err := m.LoadModel(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(kinds) == 0 {
		for _, k := range domain.Kinds() {
			if _, ok := m.opts.Sources[k]; ok {
				kinds = append(kinds, k)
			}
		}
	}

	next := &State{Model: name, Provider: p, Indexes: make(map[domain.Kind]*index.Index, len(kinds))}
	for _, k := range kinds {
		idx, err := m.build(ctx, p, name, k, force)
		if err != nil {
			return nil, err
		}
		next.Indexes[k] = idx
	}
	m.state.Store(next)
	observability.ModelSwitchTotal.WithLabelValues(name).Inc()
	slog.Info("model switched", "model", name, "kinds", len(kinds), "rebuilt", force)

	m.cacheMu.Lock()
	m.evictLocked(name)
	m.cacheMu.Unlock()
	return next, nil
}

func (m *Manager) build(ctx context.Context, p embeddings.Provider, model string, kind domain.Kind, force bool) (*index.Index, error) {
	src, ok := m.opts.Sources[kind]
	if !ok {
		return nil, fmt.Errorf("%w: no catalog configured for %s", domain.ErrInvalidArgument, kind)
	}
	return index.Extract(ctx, p, model, src.Documents, index.ExtractOptions{
		Catalog:        string(kind),
		EmbeddingsPath: src.EmbeddingsPath,
		NamesPath:      src.NamesPath,
		Limit:          m.opts.Limit,
		ForceReload:    force,
		BatchSize:      m.opts.BatchSize,
		Normalize:      m.opts.Normalize,
	})
}

// Close releases every cached provider and clears the published state.
func (m *Manager) Close() error {
	m.switchMu.Lock()
	defer m.switchMu.Unlock()
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	for el := m.lru.Front(); el != nil; el = el.Next() {
		closeProvider(el.Value.(*cached).prov)
	}
	m.lru.Init()
	m.byName = make(map[string]*list.Element)
	m.state.Store(&State{Indexes: map[domain.Kind]*index.Index{}})
	return nil
}

func closeProvider(p embeddings.Provider) {
	if c, ok := p.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("closing model failed", "model", p.ModelID(), "err", err)
		}
	}
}
