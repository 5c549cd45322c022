package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"
)

// DefaultClaudeModel is the Bedrock model used when none is configured.
const DefaultClaudeModel = "anthropic.claude-3-haiku-20240307-v1:0"

const (
	anthropicVersion = "bedrock-2023-05-31"
	defaultMaxTokens = 1024
)

// ModelInvoker is the part of the Bedrock runtime client the adapter uses.
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClaudeAdapter implements ports.LLMService using Claude on Bedrock.
type BedrockClaudeAdapter struct {
	client      ModelInvoker
	model       string
	temperature float64
	maxTokens   int
	system      string
	logger      *zap.Logger
}

// NewBedrockClaudeAdapter creates a new Claude adapter.
func NewBedrockClaudeAdapter(client ModelInvoker, model string, temperature float64, system string, logger *zap.Logger) *BedrockClaudeAdapter {
	if model == "" {
		model = DefaultClaudeModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BedrockClaudeAdapter{
		client:      client,
		model:       model,
		temperature: temperature,
		maxTokens:   defaultMaxTokens,
		system:      system,
		logger:      logger,
	}
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	Temperature      float64         `json:"temperature"`
	System           string          `json:"system,omitempty"`
	Messages         []claudeMessage `json:"messages"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Generate sends the prompt as a single user message.
func (a *BedrockClaudeAdapter) Generate(ctx context.Context, prompt string, context []string) (string, error) {
	body, err := json.Marshal(claudeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        a.maxTokens,
		Temperature:      a.temperature,
		System:           a.system,
		Messages:         []claudeMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	out, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(a.model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("invoking %s: %w", a.model, err)
	}

	var resp claudeResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	var sb strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("Bedrock returned no text content")
	}

	a.logger.Debug("completion received",
		zap.String("model", a.model),
		zap.String("stop_reason", resp.StopReason),
		zap.Int("context_parts", len(context)),
	)
	return sb.String(), nil
}
