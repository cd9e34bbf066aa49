package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codecontext/internal/config"
	"github.com/dshills/codecontext/pkg/types"
)

func TestOllamaProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embed":
			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "nomic-embed-text", req.Model)
			out := ollamaEmbedResponse{}
			for range req.Input {
				out.Embeddings = append(out.Embeddings, []float32{0.1, 0.2, 0.3})
			}
			_ = json.NewEncoder(w).Encode(out)
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL+"/", "", 3, time.Second)
	vectors, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.True(t, p.Available(context.Background()))
}

func TestOllamaProviderClassifiesStatus(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", status)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "m", 3, time.Second)
	_, err := p.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, types.ErrTransientProvider)
	assert.False(t, p.Available(context.Background()))

	status = http.StatusNotFound
	_, err = p.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, types.ErrFatalProvider)
	var pe *types.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusNotFound, pe.StatusCode)
}

func TestProviderUnreachableIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewOllamaProvider(url, "m", 3, time.Second)
	_, err := p.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, types.ErrTransientProvider)
}

func TestJinaProviderOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"model":"jina-embeddings-v3","data":[
			{"index":1,"embedding":[0,1]},
			{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	p, err := NewJinaProvider("secret", srv.URL, "", 2, time.Second)
	require.NoError(t, err)
	vectors, err := p.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vectors)
}

func TestJinaProviderRequiresKey(t *testing.T) {
	_, err := NewJinaProvider("", "", "", 0, 0)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestOpenAIProvider(t *testing.T) {
	fail := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if fail {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid key","type":"invalid_request_error"}}`))
			return
		}
		assert.Equal(t, "/embeddings", r.URL.Path)
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":0,"embedding":[0.5,0.5]},
			{"object":"embedding","index":1,"embedding":[0.1,0.9]}]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("sk-test", srv.URL, "", 2)
	require.NoError(t, err)
	vectors, err := p.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.5}, {0.1, 0.9}}, vectors)

	fail = true
	_, err = p.EmbedBatch(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, types.ErrFatalProvider)
}

func TestClassifyGeminiError(t *testing.T) {
	assert.ErrorIs(t, classifyGeminiError("embed", errors.New("Error 400, Message: bad, Status: INVALID_ARGUMENT")), types.ErrFatalProvider)
	assert.ErrorIs(t, classifyGeminiError("embed", errors.New("Error 503, Status: UNAVAILABLE")), types.ErrTransientProvider)
	assert.ErrorIs(t, classifyGeminiError("embed", context.Canceled), context.Canceled)
}

func TestNewProviderFromConfig(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, config.EmbeddingConfig{Provider: "local", Dimension: 64})
	require.NoError(t, err)
	assert.Equal(t, "local", p.Name())
	assert.Equal(t, 64, p.Dimension())

	p, err = NewProvider(ctx, config.EmbeddingConfig{Provider: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, OllamaDimension, p.Dimension())

	_, err = NewProvider(ctx, config.EmbeddingConfig{Provider: "openai"})
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	_, err = NewProvider(ctx, config.EmbeddingConfig{Provider: "word2vec"})
	var cfgErr *types.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRetryConfigFrom(t *testing.T) {
	rc := RetryConfigFrom(config.EmbeddingConfig{MaxRetries: 5, InitialBackoffMs: 10, MaxBackoffMs: 100, BackoffFactor: 3})
	assert.Equal(t, 5, rc.MaxRetries)
	assert.Equal(t, 10*time.Millisecond, rc.BaseDelay)
	assert.Equal(t, 100*time.Millisecond, rc.MaxDelay)
	assert.Equal(t, 3.0, rc.Multiplier)
}
