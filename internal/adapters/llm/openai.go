package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

// DefaultOpenAIModel is the chat model used when none is configured.
const DefaultOpenAIModel = "gpt-4o"

// OpenAIAdapter implements ports.LLMService using OpenAI chat completions.
type OpenAIAdapter struct {
	client      openai.Client
	model       string
	temperature float64
	system      string
	logger      *zap.Logger
}

// OpenAIOptions configures an OpenAIAdapter.
type OpenAIOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	System      string // optional system message
}

// NewOpenAIAdapter creates a new OpenAI chat adapter with SDK retries disabled.
func NewOpenAIAdapter(opts OpenAIOptions, logger *zap.Logger) *OpenAIAdapter {
	if opts.Model == "" {
		opts.Model = DefaultOpenAIModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	return &OpenAIAdapter{
		client:      openai.NewClient(reqOpts...),
		model:       opts.Model,
		temperature: opts.Temperature,
		system:      opts.System,
		logger:      logger,
	}
}

// Generate sends the prompt as a single user turn.
func (a *OpenAIAdapter) Generate(ctx context.Context, prompt string, context []string) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if a.system != "" {
		messages = append(messages, openai.SystemMessage(a.system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       openai.ChatModel(a.model),
		Temperature: openai.Float(a.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("calling OpenAI chat completions: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("OpenAI returned no choices")
	}

	a.logger.Debug("completion received",
		zap.String("model", a.model),
		zap.Int("context_parts", len(context)),
		zap.Int64("total_tokens", resp.Usage.TotalTokens),
	)
	return resp.Choices[0].Message.Content, nil
}
