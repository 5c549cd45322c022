// Command ragindex builds the vector index that ragchat answers from.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat/internal/adapters/loader"
	"github.com/0xcro3dile/ragchat/internal/app"
	"github.com/0xcro3dile/ragchat/internal/config"
	"github.com/0xcro3dile/ragchat/internal/domain/usecases"
	"github.com/0xcro3dile/ragchat/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "ragindex:", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("ragindex", flag.ExitOnError)
	docs := fs.String("docs", "documents", "directory of .txt, .md and .pdf files to index")
	drop := fs.Bool("drop", false, "drop the pgvector table before loading")
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

	providers, err := app.NewProviders(ctx, cfg, logger)
	if err != nil {
		return err
	}
	writer, cleanup, err := app.NewIndexWriter(ctx, cfg, providers.Embedder, *drop, logger.Named("index"))
	if err != nil {
		return err
	}
	defer cleanup()

	docLoader := loader.NewMultiLoader()
	files, err := docLoader.Files(*docs)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no supported documents in " + *docs)
	}

	ingest := usecases.NewIngestUseCase(providers.Embedder, writer, cfg.ChunkSize, cfg.ChunkOverlap)
	start := time.Now()
	total := 0
	for _, path := range files {
		doc, err := docLoader.Load(ctx, path)
		if err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
		n, err := ingest.Ingest(ctx, doc)
		if err != nil {
			return err
		}
		total += n
		logger.Info("indexed", zap.String("path", path), zap.String("source", doc.CitationLabel()), zap.Int("chunks", n))
	}

	if err := writer.Save(ctx); err != nil {
		return err
	}
	logger.Info("index built",
		zap.Int("documents", len(files)),
		zap.Int("chunks", total),
		zap.String("embedding_model", providers.Embedder.Model()),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
