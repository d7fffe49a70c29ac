package embeddings

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kamusis/curricula/internal/config"
	"github.com/kamusis/curricula/internal/domain"
	"github.com/kamusis/curricula/internal/embeddings/onnx"
)

// Provider embeds text into a fixed-length float vector.
//
// Implementations must be deterministic for the same input text and model.
type Provider interface {
	ModelID() string
	Dim() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchProvider is implemented by providers that can encode several texts in
// one call. Output order matches input order.
type BatchProvider interface {
	Provider
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Factory loads the provider for a model name.
type Factory func(ctx context.Context, model string) (Provider, error)

// Config contains the resolved embeddings configuration for one model.
type Config struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string

	// HTTP provider
	RequestsPerSecond float64
	Timeout           time.Duration
	MaxElapsed        time.Duration

	// local provider
	ModelDir    string
	LibraryPath string
	MaxSeqLen   int
	LowerCase   bool
}

// LoadConfig resolves the embeddings config of model from the application config.
func LoadConfig(cfg *config.Config, model string) *Config {
	enc := cfg.Encoder
	return &Config{
		Provider:          enc.Provider,
		Model:             model,
		APIKey:            enc.OpenAI.APIKey,
		BaseURL:           enc.OpenAI.BaseURL,
		RequestsPerSecond: enc.OpenAI.RequestsPerSecond,
		Timeout:           time.Duration(enc.OpenAI.TimeoutSeconds) * time.Second,
		MaxElapsed:        time.Duration(enc.OpenAI.MaxElapsedSeconds) * time.Second,
		ModelDir:          filepath.Join(cfg.Models.Dir, model),
		LibraryPath:       enc.ONNXLibrary,
		MaxSeqLen:         enc.MaxSeqLen,
		LowerCase:         enc.LowerCase,
	}
}

// NewFromConfig returns an embeddings provider.
func NewFromConfig(cfg *Config) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: embeddings config is nil", domain.ErrConfiguration)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embeddings model is not configured", domain.ErrConfiguration)
	}
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg), nil
	case "onnx", "":
		enc, err := onnx.New(onnx.Options{
			Name:        cfg.Model,
			Dir:         cfg.ModelDir,
			LibraryPath: cfg.LibraryPath,
			MaxSeqLen:   cfg.MaxSeqLen,
			LowerCase:   cfg.LowerCase,
		})
		if err != nil {
			return nil, err
		}
		return enc, nil
	default:
		return nil, fmt.Errorf("%w: unsupported embeddings provider: %s", domain.ErrConfiguration, cfg.Provider)
	}
}

// NewFactory returns a Factory backed by the application config.
func NewFactory(cfg *config.Config) Factory {
	return func(_ context.Context, model string) (Provider, error) {
		return NewFromConfig(LoadConfig(cfg, model))
	}
}

// EmbedAll encodes texts in order. Providers implementing BatchProvider are
// called with chunks of at most batchSize texts.
func EmbedAll(ctx context.Context, p Provider, texts []string, batchSize int) ([][]float32, error) {
	if p == nil {
		return nil, domain.ErrEncoderUnavailable
	}
	out := make([][]float32, 0, len(texts))
	if bp, ok := p.(BatchProvider); ok && batchSize > 1 {
		for start := 0; start < len(texts); start += batchSize {
			end := min(start+batchSize, len(texts))
			vecs, err := bp.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				return nil, err
			}
			if len(vecs) != end-start {
				return nil, fmt.Errorf("batch returned %d vectors for %d texts", len(vecs), end-start)
			}
			out = append(out, vecs...)
		}
		return out, nil
	}
	for _, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
