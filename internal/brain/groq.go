package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/aria/internal/chat"
)

// GroqClient calls the Groq OpenAI-compatible chat completions endpoint.
type GroqClient struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	model       string
	temperature float64
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

func NewGroqClient(apiKey, baseURL, model string, temperature float64) *GroqClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.groq.com/openai"
	}
	return &GroqClient{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		apiKey:      apiKey,
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
	}
}

// Complete sends the entire history so the model retains context. The leading
// system message travels as the first entry.
func (c *GroqClient) Complete(ctx context.Context, history []chat.Message) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("groq api key missing")
	}

	messages := make([]chatMessage, 0, len(history))
	for _, m := range history {
		messages = append(messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	reqBody, err := json.Marshal(chatCompletionsRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("groq request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("groq error: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("groq decode error: %w", err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("groq: empty choices")
	}

	answer := strings.TrimSpace(cr.Choices[0].Message.Content)
	if answer == "" {
		return EmptyReplyFallback, nil
	}
	return answer, nil
}
