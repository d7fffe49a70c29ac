package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/kamusis/curricula/internal/domain"
	"github.com/kamusis/curricula/internal/observability"
)

type openAIProvider struct {
	model      string
	apiKey     string
	baseURL    string
	client     *http.Client
	limiter    *rate.Limiter
	maxElapsed time.Duration

	mu  sync.RWMutex
	dim int
}

// NewOpenAI constructs an OpenAI-compatible embeddings provider.
//
// It uses the REST endpoint:
//
//	POST {baseURL}/embeddings
//
// with JSON body:
//
//	{"model": "...", "input": ["...", ...]}
func NewOpenAI(cfg *Config) BatchProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	maxElapsed := cfg.MaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = time.Minute
	}
	return &openAIProvider{
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		client:     &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		maxElapsed: maxElapsed,
	}
}

func (p *openAIProvider) ModelID() string {
	return "openai:" + p.model
}

func (p *openAIProvider) Dim() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dim
}

func (p *openAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (p *openAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if p.model == "" {
		return nil, fmt.Errorf("%w: embeddings model is not configured", domain.ErrConfiguration)
	}
	if p.apiKey == "" {
		return nil, fmt.Errorf("%w: embeddings API key is not configured (set CURRICULA_OPENAI_API_KEY)", domain.ErrConfiguration)
	}
	if len(texts) == 0 {
		return nil, nil
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: cannot embed empty text", domain.ErrInvalidArgument)
		}
	}

	b, err := json.Marshal(map[string]any{
		"model": p.model,
		"input": texts,
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	op := func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		start := time.Now()
		// a fresh request per attempt; the body reader is consumed
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(b))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+p.apiKey)

		resp, err := p.client.Do(req)
		observability.ObserveEncode(p.model, time.Since(start).Seconds(), err)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if resp.StatusCode == http.StatusTooManyRequests {
			slog.Warn("embeddings provider rate limited", "model", p.model, "status", resp.StatusCode)
			return fmt.Errorf("rate limited: 429")
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("embeddings request failed: HTTP %d: %s", resp.StatusCode, snippet(body)))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			slog.Warn("embeddings provider non-2xx", "model", p.model, "status", resp.StatusCode)
			return fmt.Errorf("embeddings request failed: HTTP %d: %s", resp.StatusCode, snippet(body))
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("cannot parse embeddings response: %w", err))
		}
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 200 * time.Millisecond
	expo.MaxInterval = 5 * time.Second
	expo.MaxElapsedTime = p.maxElapsed
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		return nil, err
	}

	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings response has %d items for %d inputs", len(parsed.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, d := range parsed.Data {
		pos := d.Index
		if pos < 0 || pos >= len(out) || out[pos] != nil {
			pos = i
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("embeddings response missing embedding")
		}
		v := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			v[j] = float32(x)
		}
		out[pos] = v
	}
	for i := range out {
		if out[i] == nil {
			return nil, fmt.Errorf("embeddings response missing item %d", i)
		}
	}

	p.mu.Lock()
	p.dim = len(out[0])
	p.mu.Unlock()
	return out, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}
