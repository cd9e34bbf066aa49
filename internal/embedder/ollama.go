package embedder

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
	OllamaDimension    = 768
)

// OllamaProvider calls the Ollama /api/embed endpoint.
type OllamaProvider struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
}

// NewOllamaProvider creates a provider targeting the given Ollama instance
func NewOllamaProvider(baseURL, model string, dim int, timeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if dim <= 0 {
		dim = OllamaDimension
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		dim:     dim,
		client:  &http.Client{Timeout: timeout},
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (o *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var resp ollamaEmbedResponse
	err := postJSON(ctx, o.client, o.Name(), o.baseURL+"/api/embed", nil,
		ollamaEmbedRequest{Model: o.model, Input: texts}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

// Available checks that the Ollama daemon answers
func (o *OllamaProvider) Available(ctx context.Context) bool {
	return ping(ctx, o.client, o.baseURL+"/api/tags", nil)
}

func (o *OllamaProvider) MaxBatchSize() int { return 64 }
func (o *OllamaProvider) Dimension() int    { return o.dim }
func (o *OllamaProvider) Name() string      { return "ollama" }
func (o *OllamaProvider) Model() string     { return o.model }

func (o *OllamaProvider) Close() error {
	o.client.CloseIdleConnections()
	return nil
}
