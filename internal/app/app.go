// Package app builds the adapters selected by a config.Config. It is shared by
// the service and the index builder so both agree on the embedding model.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat/internal/adapters/embedding"
	"github.com/0xcro3dile/ragchat/internal/adapters/filewatcher"
	"github.com/0xcro3dile/ragchat/internal/adapters/llm"
	"github.com/0xcro3dile/ragchat/internal/adapters/vectordb"
	"github.com/0xcro3dile/ragchat/internal/config"
	"github.com/0xcro3dile/ragchat/internal/domain/ports"
)

// Providers holds the model clients for one process.
type Providers struct {
	Embedder ports.EmbeddingService
	LLM      ports.LLMService
}

// NewProviders builds the embedding and chat clients for cfg.Provider.
func NewProviders(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return &Providers{
			Embedder: embedding.NewOpenAIAdapter(cfg.APIKey, cfg.BaseURL, cfg.EmbeddingModel, logger.Named("embedding")),
			LLM: llm.NewOpenAIAdapter(llm.OpenAIOptions{
				APIKey:      cfg.APIKey,
				BaseURL:     cfg.BaseURL,
				Model:       cfg.ModelName,
				Temperature: cfg.Temperature,
				System:      cfg.SystemPrompt,
			}, logger.Named("llm")),
		}, nil

	case config.ProviderBedrock:
		client, err := embedding.NewBedrockClient(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, err
		}
		return &Providers{
			Embedder: embedding.NewBedrockTitanAdapter(client, cfg.EmbeddingModel, logger.Named("embedding")),
			LLM:      llm.NewBedrockClaudeAdapter(client, cfg.ModelName, cfg.Temperature, cfg.SystemPrompt, logger.Named("llm")),
		}, nil

	case config.ProviderOllama:
		return &Providers{
			Embedder: embedding.NewOllamaAdapter(cfg.BaseURL, cfg.EmbeddingModel, logger.Named("embedding")),
			LLM:      llm.NewOllamaLLMAdapter(cfg.BaseURL, cfg.ModelName, cfg.Temperature, cfg.SystemPrompt, logger.Named("llm")),
		}, nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}

// NewIndexOpener returns the opener for cfg.IndexBackend. The cleanup func
// releases any connection it holds and is never nil.
func NewIndexOpener(ctx context.Context, cfg config.Config, logger *zap.Logger) (ports.IndexOpener, func(), error) {
	switch cfg.IndexBackend {
	case config.BackendChromem:
		return vectordb.NewChromemOpener(cfg.IndexPath, cfg.Collection, logger), func() {}, nil
	case config.BackendPgvector:
		pool, err := vectordb.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return vectordb.NewPgvectorOpener(pool, cfg.PostgresTable, logger), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown index backend %q", cfg.IndexBackend)
}

// NewIndexWriter returns the writer for cfg.IndexBackend. drop only applies to
// pgvector; a chromem export always replaces the previous file.
func NewIndexWriter(ctx context.Context, cfg config.Config, embedder ports.EmbeddingService, drop bool, logger *zap.Logger) (ports.IndexWriter, func(), error) {
	switch cfg.IndexBackend {
	case config.BackendChromem:
		w, err := vectordb.NewChromemWriter(cfg.IndexPath, cfg.Collection, embedder, logger)
		if err != nil {
			return nil, nil, err
		}
		return w, func() {}, nil
	case config.BackendPgvector:
		pool, err := vectordb.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return vectordb.NewPgvectorWriter(pool, cfg.PostgresTable, drop, logger), pool.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown index backend %q", cfg.IndexBackend)
}

// LoadPrompt reads a prompt template file. An empty path yields "", which
// selects the built-in prompt.
func LoadPrompt(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading prompt file: %w", err)
	}
	return string(data), nil
}

// Invalidator drops a cached index handle.
type Invalidator interface {
	Invalidate()
}

// WatchIndex invalidates idx whenever the index file or its manifest changes.
// The index directory is created if missing so an index built later is seen.
// The watch ends with ctx.
func WatchIndex(ctx context.Context, indexPath string, idx Invalidator, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	dir := filepath.Dir(indexPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	filter := filewatcher.NameFilter(filepath.Base(indexPath), filepath.Base(vectordb.ManifestPath(indexPath)))
	w, err := filewatcher.NewFSNotifyWatcher(filter, logger)
	if err != nil {
		return fmt.Errorf("creating index watcher: %w", err)
	}
	events, err := w.Watch(ctx, dir)
	if err != nil {
		w.Stop()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	go func() {
		defer w.Stop()
		for ev := range events {
			logger.Info("index changed on disk", zap.String("path", ev.Path))
			idx.Invalidate()
		}
	}()
	return nil
}
