package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// DefaultOpenAIModel is the embedding model used when none is configured.
const DefaultOpenAIModel = "text-embedding-ada-002"

// OpenAIAdapter implements ports.EmbeddingService using the OpenAI embeddings API.
type OpenAIAdapter struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIAdapter creates a new OpenAI embedding adapter.
// baseURL may be empty to use the public API. SDK retries are disabled.
func NewOpenAIAdapter(apiKey, baseURL, model string, logger *zap.Logger) *OpenAIAdapter {
	if model == "" {
		model = DefaultOpenAIModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAdapter{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger,
	}
}

// Model names the embedding model.
func (a *OpenAIAdapter) Model() string { return a.model }

// Embed generates an embedding for a single text.
func (a *OpenAIAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one API call.
func (a *OpenAIAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	a.logger.Debug("embedding request", zap.String("model", a.model), zap.Int("texts", len(texts)))

	resp, err := a.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(a.model),
	})
	if err != nil {
		return nil, fmt.Errorf("calling OpenAI embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("OpenAI returned %d embeddings for %d texts", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, fmt.Errorf("OpenAI returned embedding index %d out of range", d.Index)
		}
		embeddings[d.Index] = toFloat32(d.Embedding)
	}
	return embeddings, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
