package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/uleaarn/paahi-backend/internal/agent"
)

const (
	DefaultCerebrasEndpoint = "https://api.cerebras.ai/v1/chat/completions"
	DefaultCerebrasModel    = "llama3.1-8b"
)

// CerebrasClient is a plain chat client without tool calling; orders are
// extracted from the caller's speech when it is in use.
type CerebrasClient struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	Endpoint   string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

func NewCerebrasClient(apiKey, model string) *CerebrasClient {
	if model == "" {
		model = DefaultCerebrasModel
	}
	return &CerebrasClient{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		APIKey:     apiKey,
		Model:      model,
		Endpoint:   DefaultCerebrasEndpoint,
	}
}

func (c *CerebrasClient) Respond(ctx context.Context, req agent.Request) (agent.Reply, error) {
	if c.APIKey == "" {
		return agent.Reply{}, fmt.Errorf("cerebras api key missing")
	}

	messages := make([]chatMessage, 0, len(req.History)+1)
	if req.Instructions != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.Instructions})
	}
	for _, t := range req.History {
		messages = append(messages, chatMessage{Role: string(t.Role), Content: t.Text})
	}

	reqBody, _ := json.Marshal(chatCompletionsRequest{Model: c.Model, Messages: messages, Temperature: temperature, MaxTokens: maxTokens})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return agent.Reply{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return agent.Reply{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return agent.Reply{}, fmt.Errorf("cerebras error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return agent.Reply{}, err
	}
	if len(cr.Choices) == 0 {
		return agent.Reply{}, fmt.Errorf("cerebras: empty choices")
	}
	return agent.Reply{Text: strings.TrimSpace(cr.Choices[0].Message.Content)}, nil
}
