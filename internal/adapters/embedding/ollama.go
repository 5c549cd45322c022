// Package embedding provides embedding adapters (OpenAI, Bedrock Titan, Ollama).
// Clean Architecture: These are adapters that implement ports.EmbeddingService.
// They know about provider specifics but the domain layer doesn't.
package embedding

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

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text"
)

// OllamaAdapter implements ports.EmbeddingService against a local Ollama server.
type OllamaAdapter struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *zap.Logger
}

// NewOllamaAdapter creates an adapter for baseURL. Empty arguments select the
// local default server and nomic-embed-text.
func NewOllamaAdapter(baseURL, model string, logger *zap.Logger) *OllamaAdapter {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	if model == "" {
		model = defaultOllamaModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OllamaAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
		logger:  logger,
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Model names the embedding model.
func (a *OllamaAdapter) Model() string { return a.model }

// Embed embeds a single text.
func (a *OllamaAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in one /api/embed call.
func (a *OllamaAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body, err := json.Marshal(ollamaEmbedRequest{Model: a.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(out.Embeddings), len(texts))
	}

	a.logger.Debug("embeddings received",
		zap.String("model", a.model),
		zap.Int("count", len(out.Embeddings)),
		zap.Int("dims", len(out.Embeddings[0])),
	)
	return out.Embeddings, nil
}
