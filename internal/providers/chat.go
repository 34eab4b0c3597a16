package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	summarySystemPrompt = "You are a sustainability news expert. Summarize key initiatives and impacts."
	adviceSystemPrompt  = "You are a knowledgeable sustainability expert providing detailed, personalized carbon footprint reduction advice."
)

// ChatClient talks to an OpenAI-compatible chat completion endpoint
type ChatClient struct {
	http    *HTTPClient
	baseURL string
	apiKey  string
	model   string
}

// NewChatClient creates a chat completion client
func NewChatClient(h *HTTPClient, baseURL, apiKey, model string) *ChatClient {
	if model == "" {
		model = "gpt-3.5-turbo"
	}
	return &ChatClient{
		http:    h,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
	}
}

// ChatMessage is one turn of a conversation
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends messages and returns the first choice's content
func (c *ChatClient) Complete(ctx context.Context, messages []ChatMessage, maxTokens int, temperature float64) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var resp chatResponse
	if err := c.http.Do(req, &resp); err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrBadResponse)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Summarize implements Summarizer
func (c *ChatClient) Summarize(ctx context.Context, title, description string) (string, error) {
	prompt := fmt.Sprintf("Summarize this news article in 2-3 sentences, focusing on key sustainability initiatives:\nTitle: %s\nContent: %s", title, description)
	return c.Complete(ctx, []ChatMessage{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: prompt},
	}, 100, 0)
}

// Advise answers a recommendation prompt
func (c *ChatClient) Advise(ctx context.Context, prompt string) (string, error) {
	return c.Complete(ctx, []ChatMessage{
		{Role: "system", Content: adviceSystemPrompt},
		{Role: "user", Content: prompt},
	}, 1000, 0.7)
}
