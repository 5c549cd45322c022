package embedding

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"
)

// DefaultTitanModel is the Bedrock Titan text embedding model.
const DefaultTitanModel = "amazon.titan-embed-text-v1"

// ModelInvoker is the part of the Bedrock runtime client the adapters use.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// NewBedrockClient loads the default AWS config chain for region.
// SDK retries are disabled.
func NewBedrockClient(ctx context.Context, region string) (*bedrockruntime.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRetryMaxAttempts(1),
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return bedrockruntime.NewFromConfig(cfg), nil
}

// BedrockTitanAdapter implements ports.EmbeddingService using Titan on Bedrock.
type BedrockTitanAdapter struct {
	client ModelInvoker
	model  string
	logger *zap.Logger
}

// NewBedrockTitanAdapter creates a new Titan embedding adapter.
func NewBedrockTitanAdapter(client ModelInvoker, model string, logger *zap.Logger) *BedrockTitanAdapter {
	if model == "" {
		model = DefaultTitanModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BedrockTitanAdapter{client: client, model: model, logger: logger}
}

type titanRequest struct {
	InputText string `json:"inputText"`
}

type titanResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// Model names the embedding model.
func (a *BedrockTitanAdapter) Model() string { return a.model }

// Embed generates an embedding for a single text.
func (a *BedrockTitanAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanRequest{InputText: text})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	out, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(a.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("invoking %s: %w", a.model, err)
	}

	var resp titanResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("%s returned an empty embedding", a.model)
	}

	a.logger.Debug("embedding received", zap.String("model", a.model), zap.Int("tokens", resp.InputTextTokenCount))
	return resp.Embedding, nil
}

// EmbedBatch generates embeddings for multiple texts.
// Titan takes one input per invocation.
func (a *BedrockTitanAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := a.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}
