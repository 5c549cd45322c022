package app

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat/internal/adapters/embedding"
	"github.com/0xcro3dile/ragchat/internal/adapters/llm"
	"github.com/0xcro3dile/ragchat/internal/adapters/vectordb"
	"github.com/0xcro3dile/ragchat/internal/config"
)

func TestNewProviders(t *testing.T) {
	cfg := config.Default()
	cfg.APIKey = "sk-test"

	p, err := NewProviders(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &embedding.OpenAIAdapter{}, p.Embedder)
	assert.IsType(t, &llm.OpenAIAdapter{}, p.LLM)
	assert.Equal(t, embedding.DefaultOpenAIModel, p.Embedder.Model())

	cfg.Provider = config.ProviderOllama
	p, err = NewProviders(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &embedding.OllamaAdapter{}, p.Embedder)
	assert.IsType(t, &llm.OllamaLLMAdapter{}, p.LLM)

	cfg.Provider = "acme"
	_, err = NewProviders(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestNewIndexOpener_Chromem(t *testing.T) {
	cfg := config.Default()
	opener, cleanup, err := NewIndexOpener(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer cleanup()
	assert.IsType(t, &vectordb.ChromemOpener{}, opener)

	cfg.IndexBackend = "faiss"
	_, _, err = NewIndexOpener(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestNewIndexWriter_Chromem(t *testing.T) {
	cfg := config.Default()
	cfg.IndexPath = filepath.Join(t.TempDir(), "index.gob")
	cfg.Provider = config.ProviderOllama

	p, err := NewProviders(context.Background(), cfg, nil)
	require.NoError(t, err)
	w, cleanup, err := NewIndexWriter(context.Background(), cfg, p.Embedder, false, zap.NewNop())
	require.NoError(t, err)
	defer cleanup()
	assert.IsType(t, &vectordb.ChromemWriter{}, w)
}

func TestLoadPrompt(t *testing.T) {
	prompt, err := LoadPrompt("")
	require.NoError(t, err)
	assert.Empty(t, prompt)

	path := filepath.Join(t.TempDir(), "prompt.tmpl")
	require.NoError(t, os.WriteFile(path, []byte("Kontekst:\n{{.Context}}\n\nSpørsmål: {{.Question}}"), 0644))
	prompt, err = LoadPrompt(path)
	require.NoError(t, err)
	assert.Contains(t, prompt, "{{.Question}}")

	_, err = LoadPrompt(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

type countingInvalidator struct{ n atomic.Int32 }

func (c *countingInvalidator) Invalidate() { c.n.Add(1) }

func TestWatchIndex(t *testing.T) {
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "tek17.gob")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inv := &countingInvalidator{}
	require.NoError(t, WatchIndex(ctx, indexPath, inv, zap.NewNop()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(indexPath, []byte("index"), 0644))

	require.Eventually(t, func() bool { return inv.n.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatchIndex_CreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	indexPath := filepath.Join(dir, "tek17.gob")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inv := &countingInvalidator{}
	require.NoError(t, WatchIndex(ctx, indexPath, inv, nil))
	assert.DirExists(t, dir)

	require.NoError(t, os.WriteFile(indexPath, []byte("index"), 0644))
	require.Eventually(t, func() bool { return inv.n.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatchIndex_UnusableDir(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(parent, []byte("x"), 0644))

	err := WatchIndex(context.Background(), filepath.Join(parent, "tek17.gob"), &countingInvalidator{}, nil)
	assert.Error(t, err)
}
