// Package llm provides the language model adapters.
// Clean Architecture: Adapters implementing ports.LLMService.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// DefaultOllamaModel is the local chat model used when none is configured.
const DefaultOllamaModel = "llama3.2"

// OllamaLLMAdapter implements ports.LLMService with the Ollama chat API.
type OllamaLLMAdapter struct {
	baseURL     string
	model       string
	temperature float64
	system      string
	client      *http.Client
	logger      *zap.Logger
}

// NewOllamaLLMAdapter creates a non-streaming chat adapter.
func NewOllamaLLMAdapter(baseURL, model string, temperature float64, system string, logger *zap.Logger) *OllamaLLMAdapter {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = DefaultOllamaModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaLLMAdapter{
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: temperature,
		system:      system,
		client:      &http.Client{},
		logger:      logger,
	}
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaChatResponse struct {
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

// Generate sends the prompt, which already carries the context, as one user turn.
func (a *OllamaLLMAdapter) Generate(ctx context.Context, prompt string, context []string) (string, error) {
	var messages []ollamaMessage
	if a.system != "" {
		messages = append(messages, ollamaMessage{Role: "system", Content: a.system})
	}
	messages = append(messages, ollamaMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(ollamaChatRequest{
		Model:    a.model,
		Messages: messages,
		Options:  ollamaOptions{Temperature: a.temperature},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	a.logger.Debug("completion received", zap.String("model", a.model), zap.Int("context_parts", len(context)))
	return out.Message.Content, nil
}
