package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/0xcro3dile/ragchat/internal/domain/entities"
)

// Client posts questions to a QA service.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ask performs POST <baseURL>/chat. Non-2xx statuses and bodies without an
// answer are errors.
func (c *Client) Ask(ctx context.Context, question string) (*entities.Answer, error) {
	body, err := json.Marshal(entities.QuestionRequest{Question: question})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var failure entities.FailureResponse
		if json.NewDecoder(resp.Body).Decode(&failure) == nil && failure.Result != "" {
			return nil, fmt.Errorf("backend returned status %d: %s", resp.StatusCode, failure.Result)
		}
		return nil, fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	var out struct {
		Answer *entities.Answer `json:"answer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if out.Answer == nil {
		return nil, errors.New("response has no answer")
	}
	return out.Answer, nil
}
