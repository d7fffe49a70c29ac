package embeddings

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamusis/curricula/internal/domain"
)

func embeddingsHandler(t *testing.T, failures int32, status int) (http.Handler, *atomic.Int32) {
	var calls atomic.Int32
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		if n <= failures {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}
		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		type item struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		resp := struct {
			Data []item `json:"data"`
		}{}
		// reversed on purpose: the client must honour "index"
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, item{Index: i, Embedding: []float64{float64(i), float64(len(req.Input[i]))}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}), &calls
}

func newTestProvider(url string) BatchProvider {
	return NewOpenAI(&Config{Model: "m", APIKey: "key", BaseURL: url, MaxElapsed: 5 * time.Second})
}

func TestOpenAI_EmbedBatchKeepsOrder(t *testing.T) {
	h, _ := embeddingsHandler(t, 0, 0)
	srv := httptest.NewServer(h)
	defer srv.Close()

	p := newTestProvider(srv.URL)
	out, err := p.EmbedBatch(context.Background(), []string{"a", "bbb"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []float32{0, 1}, out[0])
	assert.Equal(t, []float32{1, 3}, out[1])
	assert.Equal(t, 2, p.Dim())
	assert.Equal(t, "openai:m", p.ModelID())
}

func TestOpenAI_RetriesOn429(t *testing.T) {
	h, calls := embeddingsHandler(t, 2, http.StatusTooManyRequests)
	srv := httptest.NewServer(h)
	defer srv.Close()

	v, err := newTestProvider(srv.URL).Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 5}, v)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAI_ClientErrorIsPermanent(t *testing.T) {
	h, calls := embeddingsHandler(t, 100, http.StatusBadRequest)
	srv := httptest.NewServer(h)
	defer srv.Close()

	_, err := newTestProvider(srv.URL).Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAI_MissingKey(t *testing.T) {
	p := NewOpenAI(&Config{Model: "m"})
	_, err := p.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
}

func TestOpenAI_EmptyText(t *testing.T) {
	p := NewOpenAI(&Config{Model: "m", APIKey: "key", BaseURL: "http://127.0.0.1:1"})
	_, err := p.Embed(context.Background(), "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}
