// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects with no external dependencies.
package entities

import "time"

// Sender identifies who wrote a chat message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// CitationPrefix is prepended to a bot message source when it is rendered.
const CitationPrefix = "Kilde: "

// Message is one entry of the chat log shown to the user.
// The log is append-only and lives only as long as the UI session.
type Message struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

// Citation returns the rendered source line, or "" when there is nothing to cite.
func (m Message) Citation() string {
	if m.Sender != SenderBot || m.Source == "" {
		return ""
	}
	return CitationPrefix + m.Source
}

// QuestionRequest is the body of a POST /chat call.
type QuestionRequest struct {
	Question string `json:"question"`
}

// Answer is the synthesized answer with optional provenance.
type Answer struct {
	Result string `json:"result"`
	Source string `json:"source,omitempty"`
}

// AnswerResponse is the success body of a POST /chat call.
type AnswerResponse struct {
	Answer Answer `json:"answer"`
}

// FailureMessage is the only text a client ever sees when a question fails.
const FailureMessage = "Beklager, det oppstod en feil i behandlingen av spørsmålet."

// FailureResponse is the body returned for every failed POST /chat call.
type FailureResponse struct {
	Result string `json:"result"`
}

// Document represents a source document (PDF, TXT, MD) fed to the index builder.
// This is a core entity - no knowledge of storage or external systems.
type Document struct {
	ID        string
	Name      string
	Path      string
	Title     string
	Source    string // Citation label, falls back to Title then Name
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CitationLabel returns the label used when answers cite this document.
func (d *Document) CitationLabel() string {
	switch {
	case d.Source != "":
		return d.Source
	case d.Title != "":
		return d.Title
	default:
		return d.Name
	}
}

// Chunk represents a piece of a document for embedding.
type Chunk struct {
	ID         string
	DocumentID string
	Content    string
	Source     string
	Index      int       // Position in document
	Embedding  []float32 // Vector representation (populated by adapter)
}

// QueryResult represents a search result with relevance.
type QueryResult struct {
	Chunk     Chunk
	Score     float64 // Similarity score
	SourceDoc string  // Citation label of the originating document
}
