// Package vectordb provides the vector index adapters.
// Clean Architecture: Adapters implementing ports.IndexOpener, ports.VectorIndex
// and ports.IndexWriter. The file index is a chromem-go gob export, the database
// index a pgvector table.
package vectordb

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
	"github.com/0xcro3dile/ragchat/internal/domain/ports"
)

// DefaultCollection is the collection name used by the index builder and the service.
const DefaultCollection = "knowledge-base"

var (
	// ErrIndexNotFound is returned when the index artifact or collection is missing.
	ErrIndexNotFound = errors.New("index not found")

	// ErrEmbeddingMismatch is returned when an index is opened with another embedding model.
	ErrEmbeddingMismatch = errors.New("embedding model does not match index")
)

// Metadata keys stored with every chromem document.
const (
	metaDocumentID = "document_id"
	metaSource     = "source"
	metaChunkIndex = "chunk_index"
)

// embedFunc adapts an EmbeddingService to chromem's embedding function.
func embedFunc(embedder ports.EmbeddingService) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return embedder.Embed(ctx, text)
	}
}

// ChromemOpener opens a chromem-go export from disk.
type ChromemOpener struct {
	path       string
	collection string
	logger     *zap.Logger
}

// NewChromemOpener creates an opener for the index file at path.
func NewChromemOpener(path, collection string, logger *zap.Logger) *ChromemOpener {
	if collection == "" {
		collection = DefaultCollection
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromemOpener{path: path, collection: collection, logger: logger}
}

// Open loads the index into memory and binds the embedding function to it.
func (o *ChromemOpener) Open(ctx context.Context, embedder ports.EmbeddingService) (ports.VectorIndex, error) {
	if _, err := os.Stat(o.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, o.path)
		}
		return nil, fmt.Errorf("checking index: %w", err)
	}

	manifest, err := checkManifest(o.path, embedder.Model())
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		o.logger.Warn("index has no manifest, embedding model not verified", zap.String("path", o.path))
	}

	db := chromem.NewDB()
	if err := db.Import(o.path, ""); err != nil {
		return nil, fmt.Errorf("importing index %s: %w", o.path, err)
	}

	col := db.GetCollection(o.collection, embedFunc(embedder))
	if col == nil {
		return nil, fmt.Errorf("%w: collection %q in %s", ErrIndexNotFound, o.collection, o.path)
	}

	o.logger.Info("index opened",
		zap.String("path", o.path),
		zap.String("collection", o.collection),
		zap.Int("documents", col.Count()),
	)
	return &ChromemIndex{col: col}, nil
}

// ChromemIndex is an opened chromem collection.
type ChromemIndex struct {
	col *chromem.Collection
}

// Retrieve returns up to topK nearest chunks. An empty collection yields no results.
func (i *ChromemIndex) Retrieve(ctx context.Context, question string, topK int) ([]entities.QueryResult, error) {
	n := topK
	if count := i.col.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	res, err := i.col.Query(ctx, question, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	results := make([]entities.QueryResult, len(res))
	for j, r := range res {
		idx, _ := strconv.Atoi(r.Metadata[metaChunkIndex])
		results[j] = entities.QueryResult{
			Chunk: entities.Chunk{
				ID:         r.ID,
				DocumentID: r.Metadata[metaDocumentID],
				Content:    r.Content,
				Source:     r.Metadata[metaSource],
				Index:      idx,
			},
			Score:     float64(r.Similarity),
			SourceDoc: r.Metadata[metaSource],
		}
	}
	return results, nil
}

// Close is a no-op; the collection lives in memory until garbage collected.
func (i *ChromemIndex) Close() error { return nil }

// ChromemWriter builds a chromem collection and exports it with its manifest.
type ChromemWriter struct {
	mu         sync.Mutex
	db         *chromem.DB
	col        *chromem.Collection
	path       string
	collection string
	model      string
	dims       int
	logger     *zap.Logger
}

// NewChromemWriter creates a fresh collection that Save exports to path.
func NewChromemWriter(path, collection string, embedder ports.EmbeddingService, logger *zap.Logger) (*ChromemWriter, error) {
	if collection == "" {
		collection = DefaultCollection
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	db := chromem.NewDB()
	col, err := db.CreateCollection(collection, nil, embedFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}
	return &ChromemWriter{
		db:         db,
		col:        col,
		path:       path,
		collection: collection,
		model:      embedder.Model(),
		logger:     logger,
	}, nil
}

// Store adds embedded chunks to the collection.
func (w *ChromemWriter) Store(ctx context.Context, chunks []entities.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk %s has no embedding", c.ID)
		}
		if w.dims == 0 {
			w.dims = len(c.Embedding)
		}
		if len(c.Embedding) != w.dims {
			return fmt.Errorf("chunk %s has %d dimensions, index has %d", c.ID, len(c.Embedding), w.dims)
		}
		docs[i] = chromem.Document{
			ID: c.ID,
			Metadata: map[string]string{
				metaDocumentID: c.DocumentID,
				metaSource:     c.Source,
				metaChunkIndex: strconv.Itoa(c.Index),
			},
			Embedding: c.Embedding,
			Content:   c.Content,
		}
	}

	if err := w.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}
	return nil
}

// Save exports the collection and writes the manifest. Both files are written
// to hidden temporaries and renamed into place, the manifest last, so a reader
// never sees a partial index.
func (w *ChromemWriter) Save(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if dir := filepath.Dir(w.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating index directory: %w", err)
		}
	}

	tmpIndex, err := tempSibling(w.path)
	if err != nil {
		return fmt.Errorf("creating temporary index: %w", err)
	}
	defer os.Remove(tmpIndex)
	if err := w.db.Export(tmpIndex, false, ""); err != nil {
		return fmt.Errorf("exporting index: %w", err)
	}

	m := &Manifest{
		EmbeddingModel: w.model,
		Collection:     w.collection,
		Dimensions:     w.dims,
		Chunks:         w.col.Count(),
		BuiltAt:        time.Now().UTC(),
	}
	manifestPath := ManifestPath(w.path)
	tmpManifest, err := writeManifestTemp(manifestPath, m)
	if err != nil {
		return err
	}
	defer os.Remove(tmpManifest)

	if err := os.Rename(tmpIndex, w.path); err != nil {
		return fmt.Errorf("replacing index %s: %w", w.path, err)
	}
	if err := os.Rename(tmpManifest, manifestPath); err != nil {
		return fmt.Errorf("replacing manifest %s: %w", manifestPath, err)
	}

	w.logger.Info("index saved",
		zap.String("path", w.path),
		zap.Int("chunks", m.Chunks),
		zap.String("embedding_model", m.EmbeddingModel),
	)
	return nil
}
