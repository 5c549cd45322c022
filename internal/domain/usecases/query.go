// Package usecases - query.go answers questions against the prebuilt index.
package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
	"github.com/0xcro3dile/ragchat/internal/domain/ports"
)

// ErrEmptyQuestion is returned when a request carries no question.
var ErrEmptyQuestion = errors.New("question is required")

// DefaultTopK is the number of chunks handed to the model when unset.
const DefaultTopK = 4

// DefaultPrompt is the retrieval-QA "stuff" prompt: all retrieved context, then the question.
const DefaultPrompt = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

{{.Context}}

Question: {{.Question}}
Helpful Answer:`

// QAOptions tunes a QAService.
type QAOptions struct {
	TopK   int
	Prompt string // text/template with .Context and .Question

	// OnRetrieve, if set, receives the number of chunks retrieved per question.
	OnRetrieve func(n int)
}

// QAService runs the retrieval + generation chain for one question at a time.
// It holds no per-request state.
type QAService struct {
	indexes ports.IndexProvider
	llm     ports.LLMService
	topK    int
	prompt  *template.Template
	observe func(n int)
}

type promptData struct {
	Context  string
	Question string
}

// NewQAService creates a QAService with injected dependencies.
func NewQAService(indexes ports.IndexProvider, llm ports.LLMService, opts QAOptions) (*QAService, error) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	tmpl, err := template.New("qa").Option("missingkey=error").Parse(opts.Prompt)
	if err != nil {
		return nil, fmt.Errorf("parsing prompt template: %w", err)
	}
	return &QAService{
		indexes: indexes,
		llm:     llm,
		topK:    opts.TopK,
		prompt:  tmpl,
		observe: opts.OnRetrieve,
	}, nil
}

// Ask retrieves context for the question and synthesizes an answer.
func (s *QAService) Ask(ctx context.Context, req *entities.QuestionRequest) (*entities.AnswerResponse, error) {
	if req == nil || strings.TrimSpace(req.Question) == "" {
		return nil, ErrEmptyQuestion
	}
	question := strings.TrimSpace(req.Question)

	// 1. Open the index with the configured embedding function
	index, release, err := s.indexes.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	defer release()

	// 2. Nearest-neighbour lookup
	results, err := index.Retrieve(ctx, question, s.topK)
	if err != nil {
		return nil, fmt.Errorf("retrieving context: %w", err)
	}
	if s.observe != nil {
		s.observe(len(results))
	}

	// 3. Build context from results
	contextParts := make([]string, len(results))
	for i, r := range results {
		contextParts[i] = fmt.Sprintf("[Source: %s]\n%s", r.SourceDoc, r.Chunk.Content)
	}

	// 4. Generate the answer
	prompt, err := s.buildPrompt(question, contextParts)
	if err != nil {
		return nil, err
	}
	answer, err := s.llm.Generate(ctx, prompt, contextParts)
	if err != nil {
		return nil, fmt.Errorf("generating response: %w", err)
	}

	return &entities.AnswerResponse{
		Answer: entities.Answer{
			Result: strings.TrimSpace(answer),
			Source: joinSources(results),
		},
	}, nil
}

func (s *QAService) buildPrompt(question string, context []string) (string, error) {
	var sb strings.Builder
	err := s.prompt.Execute(&sb, promptData{
		Context:  strings.Join(context, "\n\n"),
		Question: question,
	})
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}
	return sb.String(), nil
}

// joinSources lists distinct sources in retrieval order.
func joinSources(results []entities.QueryResult) string {
	seen := make(map[string]bool, len(results))
	var sources []string
	for _, r := range results {
		if r.SourceDoc == "" || seen[r.SourceDoc] {
			continue
		}
		seen[r.SourceDoc] = true
		sources = append(sources, r.SourceDoc)
	}
	return strings.Join(sources, ", ")
}
