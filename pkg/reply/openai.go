package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultSystemPrompt = "You are a helpful, concise voice assistant. Answer clearly and briefly; your reply will be spoken aloud."

// OpenAIClient generates replies via an OpenAI-compatible chat-completions
// endpoint.
type OpenAIClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	Endpoint   string
	System     string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// NewOpenAIClient creates a chat-completions client.
func NewOpenAIClient(apiKey, model, endpoint string) *OpenAIClient {
	return &OpenAIClient{
		HTTPClient: &http.Client{Timeout: 20 * time.Second},
		APIKey:     apiKey,
		Model:      model,
		Endpoint:   endpoint,
		System:     defaultSystemPrompt,
	}
}

// Generate sends the transcript and returns the assistant reply.
func (c *OpenAIClient) Generate(ctx context.Context, transcript string) (string, error) {
	if c.APIKey == "" {
		return "", fmt.Errorf("reply: api key missing")
	}

	messages := []chatMessage{
		{Role: "system", Content: c.System},
		{Role: "user", Content: transcript},
	}

	reqBody, _ := json.Marshal(chatCompletionsRequest{Model: c.Model, Messages: messages})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("reply: status=%d body=%s", resp.StatusCode, string(b))
	}

	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("reply: empty choices")
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}

// MockGenerator returns canned replies for tests.
type MockGenerator struct {
	// Reply is returned for every transcript. If ReplyFunc is set it
	// takes precedence.
	Reply     string
	ReplyFunc func(transcript string) (string, error)

	// Err, when set, makes Generate fail.
	Err error
}

// Generate returns the scripted reply.
func (m *MockGenerator) Generate(ctx context.Context, transcript string) (string, error) {
	if m.Err != nil {
		return "", m.Err
	}
	if m.ReplyFunc != nil {
		return m.ReplyFunc(transcript)
	}
	return m.Reply, nil
}
