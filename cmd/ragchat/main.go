// Command ragchat serves the chat UI and answers questions from a prebuilt index.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat/internal/adapters/vectordb"
	"github.com/0xcro3dile/ragchat/internal/app"
	"github.com/0xcro3dile/ragchat/internal/config"
	"github.com/0xcro3dile/ragchat/internal/domain/ports"
	"github.com/0xcro3dile/ragchat/internal/domain/usecases"
	httpserver "github.com/0xcro3dile/ragchat/internal/infrastructure/http"
	"github.com/0xcro3dile/ragchat/internal/logging"
	"github.com/0xcro3dile/ragchat/internal/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ragchat:", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("ragchat", flag.ExitOnError)
	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	providers, err := app.NewProviders(ctx, cfg, logger)
	if err != nil {
		return err
	}
	opener, cleanup, err := app.NewIndexOpener(ctx, cfg, logger.Named("index"))
	if err != nil {
		return err
	}
	defer cleanup()

	var indexes ports.IndexProvider
	if cfg.ReopenPerRequest {
		indexes = vectordb.NewPerRequestIndex(opener, providers.Embedder, m.ObserveIndexOpen, logger.Named("index"))
	} else {
		shared := vectordb.NewSharedIndex(opener, providers.Embedder, m.ObserveIndexOpen, logger.Named("index"))
		defer shared.Close()
		indexes = shared

		if cfg.WatchIndex && cfg.IndexBackend == config.BackendChromem {
			if err := app.WatchIndex(ctx, cfg.IndexPath, shared, logger.Named("watch")); err != nil {
				logger.Warn("index changes will not be picked up", zap.Error(err))
			}
		}
	}

	prompt, err := app.LoadPrompt(cfg.PromptFile)
	if err != nil {
		return err
	}
	qa, err := usecases.NewQAService(indexes, providers.LLM, usecases.QAOptions{
		TopK:       cfg.TopK,
		Prompt:     prompt,
		OnRetrieve: func(n int) { m.RetrievedDocs.Observe(float64(n)) },
	})
	if err != nil {
		return err
	}

	server, err := httpserver.NewServer(qa, m, httpserver.Options{
		Addr:           cfg.Addr,
		BackendURL:     cfg.BackendURL,
		AllowedOrigins: cfg.AllowedOrigins,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		Title:          cfg.UITitle,
		Greeting:       cfg.Greeting,
	}, logger.Named("http"))
	if err != nil {
		return err
	}

	logger.Info("configured",
		zap.String("provider", cfg.Provider),
		zap.String("embedding_model", providers.Embedder.Model()),
		zap.String("index_backend", cfg.IndexBackend),
		zap.Int("top_k", cfg.TopK),
		zap.Bool("reopen_per_request", cfg.ReopenPerRequest),
	)
	return server.Start(ctx)
}
