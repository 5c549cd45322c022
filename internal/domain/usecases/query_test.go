package usecases

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
	"github.com/0xcro3dile/ragchat/internal/domain/ports"
)

// mockLLM implements ports.LLMService for testing
type mockLLM struct {
	response   string
	err        error
	lastPrompt string
}

func (m *mockLLM) Generate(ctx context.Context, prompt string, context []string) (string, error) {
	m.lastPrompt = prompt
	if m.err != nil {
		return "", m.err
	}
	if m.response != "" {
		return m.response, nil
	}
	// Deterministic in the prompt, like a temperature-zero model
	h := fnv.New32a()
	h.Write([]byte(prompt))
	return fmt.Sprintf("answer-%x", h.Sum32()), nil
}

// mockIndex implements ports.VectorIndex for testing
type mockIndex struct {
	results []entities.QueryResult
	err     error
}

func (m *mockIndex) Retrieve(ctx context.Context, question string, topK int) ([]entities.QueryResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.results) > topK {
		return m.results[:topK], nil
	}
	return m.results, nil
}

func (m *mockIndex) Close() error { return nil }

// mockProvider implements ports.IndexProvider for testing
type mockProvider struct {
	index    ports.VectorIndex
	err      error
	acquired int
	released int
}

func (m *mockProvider) Acquire(ctx context.Context) (ports.VectorIndex, func(), error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	m.acquired++
	return m.index, func() { m.released++ }, nil
}

func hit(content, source string) entities.QueryResult {
	return entities.QueryResult{Chunk: entities.Chunk{Content: content}, SourceDoc: source, Score: 0.9}
}

func TestQAService_ReturnsAnswerAndSource(t *testing.T) {
	provider := &mockProvider{index: &mockIndex{results: []entities.QueryResult{
		hit("Rømningsveier skal være tydelig merket.", "TEK17 § 11-14"),
	}}}
	llm := &mockLLM{response: " The answer is here \n"}
	svc, err := NewQAService(provider, llm, QAOptions{TopK: 3})
	require.NoError(t, err)

	resp, err := svc.Ask(context.Background(), &entities.QuestionRequest{Question: "Hva gjelder rømningsveier?"})
	require.NoError(t, err)
	assert.Equal(t, "The answer is here", resp.Answer.Result)
	assert.Equal(t, "TEK17 § 11-14", resp.Answer.Source)
	assert.Equal(t, 1, provider.released)

	assert.Contains(t, llm.lastPrompt, "Rømningsveier skal være tydelig merket.")
	assert.Contains(t, llm.lastPrompt, "Question: Hva gjelder rømningsveier?")
}

func TestQAService_DistinctSourcesInOrder(t *testing.T) {
	provider := &mockProvider{index: &mockIndex{results: []entities.QueryResult{
		hit("a", "B"), hit("b", "A"), hit("c", "B"), hit("d", ""),
	}}}
	svc, err := NewQAService(provider, &mockLLM{}, QAOptions{})
	require.NoError(t, err)

	resp, err := svc.Ask(context.Background(), &entities.QuestionRequest{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, "B, A", resp.Answer.Source)
}

func TestQAService_EmptyIndexHasNoSource(t *testing.T) {
	provider := &mockProvider{index: &mockIndex{}}
	svc, err := NewQAService(provider, &mockLLM{response: "vet ikke"}, QAOptions{})
	require.NoError(t, err)

	resp, err := svc.Ask(context.Background(), &entities.QuestionRequest{Question: "hello"})
	require.NoError(t, err)
	assert.Empty(t, resp.Answer.Source)
}

func TestQAService_RejectsMissingQuestion(t *testing.T) {
	provider := &mockProvider{index: &mockIndex{}}
	svc, err := NewQAService(provider, &mockLLM{}, QAOptions{})
	require.NoError(t, err)

	for _, req := range []*entities.QuestionRequest{nil, {}, {Question: " \t\n"}} {
		_, err := svc.Ask(context.Background(), req)
		assert.ErrorIs(t, err, ErrEmptyQuestion)
	}
	assert.Zero(t, provider.acquired)
}

func TestQAService_DownstreamErrorsAreWrapped(t *testing.T) {
	boom := errors.New("boom")

	cases := map[string]struct {
		provider *mockProvider
		llm      *mockLLM
	}{
		"index open": {provider: &mockProvider{err: boom}, llm: &mockLLM{}},
		"retrieve":   {provider: &mockProvider{index: &mockIndex{err: boom}}, llm: &mockLLM{}},
		"generate":   {provider: &mockProvider{index: &mockIndex{}}, llm: &mockLLM{err: boom}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc, err := NewQAService(tc.provider, tc.llm, QAOptions{})
			require.NoError(t, err)
			_, err = svc.Ask(context.Background(), &entities.QuestionRequest{Question: "q"})
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, tc.provider.acquired, tc.provider.released)
		})
	}
}

func TestQAService_DeterministicForFixedIndex(t *testing.T) {
	provider := &mockProvider{index: &mockIndex{results: []entities.QueryResult{
		hit("Brannceller skal begrense spredning.", "TEK17 § 11-7"),
	}}}
	svc, err := NewQAService(provider, &mockLLM{}, QAOptions{})
	require.NoError(t, err)

	req := &entities.QuestionRequest{Question: "Hva er en branncelle?"}
	first, err := svc.Ask(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Ask(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestQAService_CustomPrompt(t *testing.T) {
	provider := &mockProvider{index: &mockIndex{results: []entities.QueryResult{hit("ctx", "s")}}}
	llm := &mockLLM{response: "ok"}
	svc, err := NewQAService(provider, llm, QAOptions{Prompt: "Q={{.Question}} C={{.Context}}"})
	require.NoError(t, err)

	_, err = svc.Ask(context.Background(), &entities.QuestionRequest{Question: "why"})
	require.NoError(t, err)
	assert.Equal(t, "Q=why C=[Source: s]\nctx", llm.lastPrompt)
}

func TestNewQAService_BadPrompt(t *testing.T) {
	_, err := NewQAService(&mockProvider{}, &mockLLM{}, QAOptions{Prompt: "{{.Question"})
	assert.Error(t, err)
}

func TestQAService_OnRetrieve(t *testing.T) {
	provider := &mockProvider{index: &mockIndex{results: []entities.QueryResult{hit("a", "A"), hit("b", "B")}}}
	var seen []int
	svc, err := NewQAService(provider, &mockLLM{}, QAOptions{TopK: 1, OnRetrieve: func(n int) { seen = append(seen, n) }})
	require.NoError(t, err)

	_, err = svc.Ask(context.Background(), &entities.QuestionRequest{Question: "q"})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, seen)
}
