// Package ports defines interfaces for external dependencies.
// Clean Architecture: These are the boundaries - usecases depend on these abstractions,
// not concrete implementations. Adapters implement these interfaces.
package ports

import (
	"context"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
)

// EmbeddingService generates vector embeddings for text.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts efficiently.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Model names the embedding model. An index must be queried with the model that built it.
	Model() string
}

// LLMService generates text responses from a language model.
type LLMService interface {
	// Generate produces a response given a prompt and the retrieved context.
	Generate(ctx context.Context, prompt string, context []string) (string, error)
}

// VectorIndex is an opened, read-only view of a prebuilt index.
type VectorIndex interface {
	// Retrieve embeds the question and returns the topK nearest chunks.
	Retrieve(ctx context.Context, question string, topK int) ([]entities.QueryResult, error)

	// Close releases the handle.
	Close() error
}

// IndexOpener opens the prebuilt index artifact with an embedding function.
type IndexOpener interface {
	Open(ctx context.Context, embedder EmbeddingService) (VectorIndex, error)
}

// IndexProvider hands out an index handle for one request.
// The returned release func must be called once the handle is no longer used.
type IndexProvider interface {
	Acquire(ctx context.Context) (VectorIndex, func(), error)
}

// IndexWriter receives embedded chunks while an index is being built.
type IndexWriter interface {
	// Store saves chunks with their embeddings.
	Store(ctx context.Context, chunks []entities.Chunk) error

	// Save persists the index so the QA service can open it.
	Save(ctx context.Context) error
}

// DocumentLoader reads and parses documents from various formats.
type DocumentLoader interface {
	// Load reads a document from the given path.
	Load(ctx context.Context, path string) (*entities.Document, error)

	// SupportedExtensions returns file extensions this loader handles.
	SupportedExtensions() []string
}

// DocumentParser extracts text from document formats (PDF, Markdown).
type DocumentParser interface {
	// Parse extracts text content and metadata from document bytes.
	Parse(ctx context.Context, data []byte, filename string) (*ParsedDocument, error)

	// SupportedFormats returns formats this parser handles (e.g., "pdf", "md").
	SupportedFormats() []string
}

// ParsedDocument is the output of a DocumentParser.
type ParsedDocument struct {
	Text     string
	Title    string
	Source   string
	Metadata map[string]string
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)
