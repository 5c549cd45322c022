package vectordb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
)

// keywordEmbedder maps a few keywords onto fixed axes
type keywordEmbedder struct {
	model string
	calls int
}

func (k *keywordEmbedder) vector(text string) []float32 {
	text = strings.ToLower(text)
	switch {
	case strings.Contains(text, "brann"):
		return []float32{1, 0, 0}
	case strings.Contains(text, "vann"):
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

func (k *keywordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	k.calls++
	return k.vector(text), nil
}

func (k *keywordEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = k.vector(t)
	}
	return out, nil
}

func (k *keywordEmbedder) Model() string { return k.model }

func buildIndex(t *testing.T, path string, emb *keywordEmbedder, chunks []entities.Chunk) {
	t.Helper()
	w, err := NewChromemWriter(path, "", emb, nil)
	require.NoError(t, err)
	ctx := context.Background()
	for i := range chunks {
		chunks[i].Embedding = emb.vector(chunks[i].Content)
	}
	require.NoError(t, w.Store(ctx, chunks))
	require.NoError(t, w.Save(ctx))
}

func sampleChunks() []entities.Chunk {
	return []entities.Chunk{
		{ID: "c1", DocumentID: "d1", Content: "Krav til brannceller", Source: "TEK17 § 11-8", Index: 0},
		{ID: "c2", DocumentID: "d2", Content: "Krav til vannforsyning", Source: "TEK17 § 15-5", Index: 3},
	}
}

func TestChromem_BuildAndRetrieve(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "tek17.gob")
	emb := &keywordEmbedder{model: "fake-embed"}
	buildIndex(t, path, emb, sampleChunks())

	m, err := ReadManifest(ManifestPath(path))
	require.NoError(t, err)
	assert.Equal(t, "fake-embed", m.EmbeddingModel)
	assert.Equal(t, DefaultCollection, m.Collection)
	assert.Equal(t, 2, m.Chunks)
	assert.Equal(t, 3, m.Dimensions)

	index, err := NewChromemOpener(path, "", nil).Open(context.Background(), emb)
	require.NoError(t, err)
	defer index.Close()

	results, err := index.Retrieve(context.Background(), "Hva gjelder for brann?", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].Chunk.ID)
	assert.Equal(t, "d1", results[0].Chunk.DocumentID)
	assert.Equal(t, "TEK17 § 11-8", results[0].SourceDoc)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)

	results, err = index.Retrieve(context.Background(), "vann", 10)
	require.NoError(t, err)
	require.Len(t, results, 2, "topK is clamped to the collection size")
	assert.Equal(t, "c2", results[0].Chunk.ID)
	assert.Equal(t, 3, results[0].Chunk.Index)
}

func TestChromem_EmbeddingMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tek17.gob")
	buildIndex(t, path, &keywordEmbedder{model: "model-a"}, sampleChunks())

	_, err := NewChromemOpener(path, "", nil).Open(context.Background(), &keywordEmbedder{model: "model-b"})
	assert.ErrorIs(t, err, ErrEmbeddingMismatch)
}

func TestChromem_WithoutManifestIsAccepted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tek17.gob")
	buildIndex(t, path, &keywordEmbedder{model: "model-a"}, sampleChunks())
	require.NoError(t, os.Remove(ManifestPath(path)))

	_, err := NewChromemOpener(path, "", nil).Open(context.Background(), &keywordEmbedder{model: "model-b"})
	assert.NoError(t, err)
}

func TestChromem_NotFound(t *testing.T) {
	dir := t.TempDir()
	emb := &keywordEmbedder{model: "m"}

	_, err := NewChromemOpener(filepath.Join(dir, "missing.gob"), "", nil).Open(context.Background(), emb)
	assert.ErrorIs(t, err, ErrIndexNotFound)

	path := filepath.Join(dir, "tek17.gob")
	buildIndex(t, path, emb, sampleChunks())
	_, err = NewChromemOpener(path, "other-collection", nil).Open(context.Background(), emb)
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestChromem_EmptyIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.gob")
	emb := &keywordEmbedder{model: "m"}
	buildIndex(t, path, emb, nil)

	index, err := NewChromemOpener(path, "", nil).Open(context.Background(), emb)
	require.NoError(t, err)

	results, err := index.Retrieve(context.Background(), "brann", 4)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Zero(t, emb.calls, "no query embedding for an empty collection")
}

func TestChromemWriter_RejectsMixedDimensions(t *testing.T) {
	w, err := NewChromemWriter(filepath.Join(t.TempDir(), "x.gob"), "", &keywordEmbedder{model: "m"}, nil)
	require.NoError(t, err)

	err = w.Store(context.Background(), []entities.Chunk{
		{ID: "a", Content: "a", Embedding: []float32{1, 0}},
		{ID: "b", Content: "b", Embedding: []float32{1, 0, 0}},
	})
	assert.Error(t, err)

	err = w.Store(context.Background(), []entities.Chunk{{ID: "c", Content: "c"}})
	assert.Error(t, err)
}

func TestChromemWriter_RebuildWhileOpening(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tek17.gob")
	emb := &keywordEmbedder{model: "fake-embed"}

	manyChunks := func(n int) []entities.Chunk {
		chunks := make([]entities.Chunk, n)
		for i := range chunks {
			chunks[i] = entities.Chunk{
				ID:         fmt.Sprintf("c%d", i),
				DocumentID: "d1",
				Content:    fmt.Sprintf("Krav til brannceller, ledd %d", i),
				Source:     "TEK17 § 11-8",
				Index:      i,
			}
		}
		return chunks
	}
	buildIndex(t, path, emb, manyChunks(500))

	var opens, failed atomic.Int32
	var firstErr atomic.Value
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		opener := NewChromemOpener(path, "", nil)
		for {
			index, err := opener.Open(context.Background(), emb)
			opens.Add(1)
			if err != nil {
				failed.Add(1)
				firstErr.CompareAndSwap(nil, err.Error())
			} else {
				index.Close()
			}
			select {
			case <-stop:
				return
			default:
			}
		}
	}()

	for i := 0; i < 3; i++ {
		buildIndex(t, path, emb, manyChunks(2000+i))
	}
	close(stop)
	<-done

	assert.Positive(t, opens.Load())
	assert.Zero(t, failed.Load(), "first failure: %v", firstErr.Load())

	m, err := ReadManifest(ManifestPath(path))
	require.NoError(t, err)
	assert.Equal(t, 2002, m.Chunks)

	leftovers, err := filepath.Glob(filepath.Join(dir, ".*tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}
