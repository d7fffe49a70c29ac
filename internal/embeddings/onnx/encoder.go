// Package onnx is a local sentence encoder: WordPiece tokenization, ONNX
// Runtime inference, mean pooling and an optional dense projection.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kamusis/curricula/internal/domain"
	"github.com/kamusis/curricula/internal/observability"
)

// Artifact file names inside a model directory.
const (
	ModelFile      = "model.onnx"
	VocabFile      = "vocab.txt"
	ProjectionFile = "projection.safetensors"
	LibraryFile    = "libonnxruntime.so"
)

// Options locate and tune one local model.
type Options struct {
	Name string
	Dir  string
	// LibraryPath is the ONNX Runtime shared library. Empty means
	// Dir/libonnxruntime.so when present, else the system default.
	LibraryPath string
	MaxSeqLen   int
	LowerCase   bool
	Threads     int
}

// Encoder embeds text with a local ONNX model.
type Encoder struct {
	name    string
	session *session
	tok     *tokenizer
	proj    *projection
}

// New loads the model in opts.Dir. Missing files are configuration errors;
// a runtime that fails to start makes the encoder unavailable.
func New(opts Options) (*Encoder, error) {
	modelPath := filepath.Join(opts.Dir, ModelFile)
	vocabPath := filepath.Join(opts.Dir, VocabFile)
	for _, p := range []string{modelPath, vocabPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("%w: model artifact missing: %s", domain.ErrConfiguration, p)
		}
	}

	lib := opts.LibraryPath
	if lib == "" {
		if candidate := filepath.Join(opts.Dir, LibraryFile); fileExists(candidate) {
			lib = candidate
		}
	}
	if err := initORT(lib); err != nil {
		return nil, fmt.Errorf("%w: onnx runtime: %v", domain.ErrEncoderUnavailable, err)
	}

	v, err := loadVocab(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}

	sess, err := newSession(modelPath, opts.Threads)
	if err != nil {
		return nil, err
	}

	e := &Encoder{
		name:    opts.Name,
		session: sess,
		tok:     newTokenizer(v, opts.MaxSeqLen, opts.LowerCase),
	}

	projPath := filepath.Join(opts.Dir, ProjectionFile)
	if fileExists(projPath) {
		proj, err := loadProjection(projPath)
		if err != nil {
			_ = sess.close()
			return nil, err
		}
		if int(sess.embedDim) != proj.inDim {
			_ = sess.close()
			return nil, fmt.Errorf("onnx: output dim %d != projection input dim %d", sess.embedDim, proj.inDim)
		}
		e.proj = proj
	}

	slog.Info("onnx model loaded", "model", opts.Name, "dim", e.Dim(), "vocab", v.size(), "token_type_ids", sess.typeIDs)
	return e, nil
}

func (e *Encoder) ModelID() string { return e.name }

// Dim returns the output dimensionality after projection.
func (e *Encoder) Dim() int {
	if e.proj != nil {
		return e.proj.outDim
	}
	return int(e.session.embedDim)
}

func (e *Encoder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *Encoder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	batch := e.tok.tokenizeBatch(texts)
	hidden, err := e.session.infer(batch)
	observability.ObserveEncode(e.name, time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}

	dim := e.session.embedDim
	pooled := meanPool(hidden, batch.attentionMask, batch.batchSize, batch.seqLen, dim)
	out := make([][]float32, batch.batchSize)
	for i := int64(0); i < batch.batchSize; i++ {
		vec := pooled[i*dim : (i+1)*dim]
		if e.proj != nil {
			out[i] = e.proj.apply(vec)
		} else {
			out[i] = append([]float32(nil), vec...)
		}
	}
	return out, nil
}

// Close releases ONNX Runtime resources.
func (e *Encoder) Close() error {
	if e.session == nil {
		return nil
	}
	err := e.session.close()
	e.session = nil
	return err
}

// RuntimeAvailable reports whether the ONNX Runtime library at libPath can be
// initialized.
func RuntimeAvailable(libPath string) error {
	if libPath != "" && !fileExists(libPath) {
		return fmt.Errorf("%w: library not found: %s", domain.ErrEncoderUnavailable, libPath)
	}
	if err := initORT(libPath); err != nil {
		return errors.Join(domain.ErrEncoderUnavailable, err)
	}
	return nil
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
