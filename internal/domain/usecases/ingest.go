// Package usecases contains application business rules.
// Clean Architecture: Usecases orchestrate entities and depend on port interfaces.
// They contain NO framework code, NO external dependencies - just pure business logic.
package usecases

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
	"github.com/0xcro3dile/ragchat/internal/domain/ports"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	embedBatchSize      = 64
)

// IngestUseCase turns documents into embedded chunks for the index builder.
type IngestUseCase struct {
	embedder     ports.EmbeddingService
	writer       ports.IndexWriter
	chunkSize    int
	chunkOverlap int
}

// NewIngestUseCase creates an IngestUseCase with injected dependencies.
// Sizes are measured in runes.
func NewIngestUseCase(
	embedder ports.EmbeddingService,
	writer ports.IndexWriter,
	chunkSize, chunkOverlap int,
) *IngestUseCase {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	return &IngestUseCase{
		embedder:     embedder,
		writer:       writer,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Ingest processes a document: chunks it, embeds it, stores it.
// It returns the number of chunks written.
func (uc *IngestUseCase) Ingest(ctx context.Context, doc *entities.Document) (int, error) {
	// 1. Chunk the document
	chunks := uc.chunkDocument(doc)
	if len(chunks) == 0 {
		return 0, nil // Empty document
	}

	// 2. Embed in batches
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, c.Content)
		}

		embeddings, err := uc.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embedding %s: %w", doc.Name, err)
		}
		if len(embeddings) != len(texts) {
			return 0, fmt.Errorf("embedding %s: got %d vectors for %d chunks", doc.Name, len(embeddings), len(texts))
		}
		for i := range embeddings {
			chunks[start+i].Embedding = embeddings[i]
		}
	}

	// 3. Hand over to the index writer
	if err := uc.writer.Store(ctx, chunks); err != nil {
		return 0, fmt.Errorf("storing %s: %w", doc.Name, err)
	}
	return len(chunks), nil
}

// chunkDocument splits document content into overlapping chunks.
// Pure business logic - no external dependencies.
func (uc *IngestUseCase) chunkDocument(doc *entities.Document) []entities.Chunk {
	content := []rune(strings.TrimSpace(doc.Content))
	if len(content) == 0 {
		return nil
	}

	source := doc.CitationLabel()
	var chunks []entities.Chunk
	start := 0
	index := 0

	for start < len(content) {
		end := start + uc.chunkSize
		if end > len(content) {
			end = len(content)
		}

		// Try to break at word boundary
		if end < len(content) {
			for i := end - 1; i > start; i-- {
				if unicode.IsSpace(content[i]) {
					end = i
					break
				}
			}
		}

		chunkContent := strings.TrimSpace(string(content[start:end]))
		if len(chunkContent) > 0 {
			chunks = append(chunks, entities.Chunk{
				ID:         generateChunkID(doc.ID, index),
				DocumentID: doc.ID,
				Content:    chunkContent,
				Source:     source,
				Index:      index,
			})
			index++
		}

		if end >= len(content) {
			break
		}
		next := end - uc.chunkOverlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// generateChunkID creates a deterministic ID for a chunk.
func generateChunkID(docID string, index int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", docID, index)))
	return hex.EncodeToString(hash[:8])
}
