package embedder

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dshills/codecontext/pkg/types"
)

const (
	DefaultJinaURL   = "https://api.jina.ai/v1"
	DefaultJinaModel = "jina-embeddings-v3"
	JinaDimension    = 1024
)

// JinaProvider implements Provider using the Jina AI API
type JinaProvider struct {
	apiKey     string
	baseURL    string
	model      string
	dim        int
	httpClient *http.Client
}

// NewJinaProvider creates a new Jina AI provider
func NewJinaProvider(apiKey, baseURL, model string, dim int, timeout time.Duration) (*JinaProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: jina api key not set", ErrNoProviderEnabled)
	}
	if baseURL == "" {
		baseURL = DefaultJinaURL
	}
	if model == "" {
		model = DefaultJinaModel
	}
	if dim <= 0 {
		dim = JinaDimension
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &JinaProvider{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		dim:        dim,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type jinaResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

func (j *JinaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]any{
		"input": texts,
		"model": j.model,
	}
	var apiResp jinaResponse
	if err := postJSON(ctx, j.httpClient, j.Name(), j.baseURL+"/embeddings", j.headers(), reqBody, &apiResp); err != nil {
		return nil, err
	}

	sort.Slice(apiResp.Data, func(a, b int) bool { return apiResp.Data[a].Index < apiResp.Data[b].Index })
	vectors := make([][]float32, len(apiResp.Data))
	for i, data := range apiResp.Data {
		vectors[i] = data.Embedding
	}
	if len(vectors) != len(texts) {
		return nil, types.NewTransientError(j.Name(), "embed",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors)))
	}
	return vectors, nil
}

// Available checks that the API key is accepted
func (j *JinaProvider) Available(ctx context.Context) bool {
	_, err := j.EmbedBatch(ctx, []string{"ping"})
	return err == nil
}

func (j *JinaProvider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + j.apiKey}
}

func (j *JinaProvider) MaxBatchSize() int { return 100 }
func (j *JinaProvider) Dimension() int    { return j.dim }
func (j *JinaProvider) Name() string      { return "jina" }
func (j *JinaProvider) Model() string     { return j.model }

func (j *JinaProvider) Close() error {
	j.httpClient.CloseIdleConnections()
	return nil
}
