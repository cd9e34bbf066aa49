package embedder

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/dshills/codecontext/pkg/types"
)

const (
	DefaultOpenAIModel = "text-embedding-3-small"
	OpenAIDimension    = 1536
)

// OpenAIProvider implements Provider using the OpenAI embeddings API
type OpenAIProvider struct {
	client *openai.Client
	model  string
	dim    int
}

// NewOpenAIProvider creates an OpenAI provider. baseURL may point at any
// OpenAI compatible endpoint.
func NewOpenAIProvider(apiKey, baseURL, model string, dim int) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai api key not set", ErrNoProviderEnabled)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if dim <= 0 {
		dim = OpenAIDimension
		if model == "text-embedding-3-large" {
			dim = 3072
		}
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		dim:    dim,
	}, nil
}

func (o *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(o.model),
		Input: texts,
	})
	if err != nil {
		return nil, classifyOpenAIError(err)
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, types.NewTransientError("openai", "embed", fmt.Errorf("embedding index %d out of range", d.Index))
		}
		v := make([]float32, len(d.Embedding))
		for i := range d.Embedding {
			v[i] = float32(d.Embedding[i])
		}
		vectors[d.Index] = v
	}
	for i, v := range vectors {
		if v == nil {
			return nil, types.NewTransientError("openai", "embed", fmt.Errorf("missing embedding for input %d", i))
		}
	}
	return vectors, nil
}

// Available lists models to verify credentials and connectivity
func (o *OpenAIProvider) Available(ctx context.Context) bool {
	_, err := o.client.ListModels(ctx)
	return err == nil
}

func (o *OpenAIProvider) MaxBatchSize() int { return 100 }
func (o *OpenAIProvider) Dimension() int    { return o.dim }
func (o *OpenAIProvider) Name() string      { return "openai" }
func (o *OpenAIProvider) Model() string     { return o.model }
func (o *OpenAIProvider) Close() error      { return nil }

func classifyOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &types.ProviderError{
			Provider:   "openai",
			Op:         "embed",
			StatusCode: apiErr.HTTPStatusCode,
			Transient:  types.IsTransientStatus(apiErr.HTTPStatusCode),
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &types.ProviderError{
			Provider:   "openai",
			Op:         "embed",
			StatusCode: reqErr.HTTPStatusCode,
			Transient:  types.IsTransientStatus(reqErr.HTTPStatusCode),
			Err:        err,
		}
	}
	return types.NewTransientError("openai", "embed", err)
}
