package embedder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dshills/codecontext/pkg/types"
)

const (
	DefaultGeminiModel = "text-embedding-004"
	GeminiDimension    = 768
)

// GeminiProvider implements Provider using the Gemini API
type GeminiProvider struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGeminiProvider creates a Gemini provider
func NewGeminiProvider(ctx context.Context, apiKey, baseURL, model string, dim int) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key not set", ErrNoProviderEnabled)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if dim <= 0 {
		dim = GeminiDimension
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, types.NewFatalError("gemini", "connect", err)
	}
	return &GeminiProvider{client: client, model: model, dim: dim}, nil
}

func (g *GeminiProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = &genai.Content{Parts: []*genai.Part{{Text: t}}}
	}
	resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{
		TaskType: "RETRIEVAL_DOCUMENT",
	})
	if err != nil {
		return nil, classifyGeminiError("embed", err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, types.NewTransientError("gemini", "embed", errors.New("embedding count does not match input"))
	}
	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vectors[i] = e.Values
	}
	return vectors, nil
}

// Available embeds a short probe text
func (g *GeminiProvider) Available(ctx context.Context) bool {
	_, err := g.EmbedBatch(ctx, []string{"ping"})
	return err == nil
}

func (g *GeminiProvider) MaxBatchSize() int { return 100 }
func (g *GeminiProvider) Dimension() int    { return g.dim }
func (g *GeminiProvider) Name() string      { return "gemini" }
func (g *GeminiProvider) Model() string     { return g.model }
func (g *GeminiProvider) Close() error      { return nil }

// classifyGeminiError maps Gemini API failures by their status text. The
// genai client reports HTTP codes and canonical status names in the message.
func classifyGeminiError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	msg := err.Error()
	for _, marker := range []string{"INVALID_ARGUMENT", "PERMISSION_DENIED", "UNAUTHENTICATED", "NOT_FOUND", "Error 400", "Error 401", "Error 403", "Error 404"} {
		if strings.Contains(msg, marker) {
			return types.NewFatalError("gemini", op, err)
		}
	}
	return types.NewTransientError("gemini", op, err)
}
