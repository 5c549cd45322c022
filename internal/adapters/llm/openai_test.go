package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func fakeOpenAIChat(t *testing.T, status int, answer string, got *chatRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(got))

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"nope","type":"server_error"}}`))
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   got.Model,
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]interface{}{"role": "assistant", "content": answer},
			}},
			"usage": map[string]int{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5},
		})
	}))
}

func TestOpenAIAdapter_Generate(t *testing.T) {
	var got chatRequest
	server := fakeOpenAIChat(t, http.StatusOK, "Svaret er 42.", &got)
	defer server.Close()

	adapter := NewOpenAIAdapter(OpenAIOptions{APIKey: "k", BaseURL: server.URL + "/v1/"}, nil)
	resp, err := adapter.Generate(context.Background(), "prompt text", []string{"ctx"})

	require.NoError(t, err)
	assert.Equal(t, "Svaret er 42.", resp)
	assert.Equal(t, DefaultOpenAIModel, got.Model)
	require.NotNil(t, got.Temperature, "temperature must be sent even when zero")
	assert.Zero(t, *got.Temperature)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "prompt text", got.Messages[0].Content)
}

func TestOpenAIAdapter_SystemMessage(t *testing.T) {
	var got chatRequest
	server := fakeOpenAIChat(t, http.StatusOK, "ok", &got)
	defer server.Close()

	adapter := NewOpenAIAdapter(OpenAIOptions{
		APIKey:      "k",
		BaseURL:     server.URL + "/v1/",
		Model:       "gpt-4o-mini",
		Temperature: 0.2,
		System:      "Svar på norsk.",
	}, nil)
	_, err := adapter.Generate(context.Background(), "q", nil)

	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.InDelta(t, 0.2, *got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
}

func TestOpenAIAdapter_ServerError(t *testing.T) {
	var got chatRequest
	server := fakeOpenAIChat(t, http.StatusInternalServerError, "", &got)
	defer server.Close()

	adapter := NewOpenAIAdapter(OpenAIOptions{APIKey: "k", BaseURL: server.URL + "/v1/"}, nil)
	_, err := adapter.Generate(context.Background(), "q", nil)
	assert.Error(t, err)
}
