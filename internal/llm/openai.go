package llm

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/uleaarn/paahi-backend/internal/agent"
	"github.com/uleaarn/paahi-backend/internal/order"
)

const (
	DefaultOpenAIBaseURL = "https://api.deepseek.com"
	DefaultOpenAIModel   = "deepseek-chat"

	temperature = 0.9
	maxTokens   = 200
)

// OpenAIClient talks to any OpenAI-compatible chat completions API and
// offers the model the order submission tool.
type OpenAIClient struct {
	client oai.Client
	model  string
}

// OpenAIConfig configures NewOpenAIClient. Empty fields take defaults.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	MaxRetries int
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key missing")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	return &OpenAIClient{client: oai.NewClient(opts...), model: cfg.Model}, nil
}

// SupportsTools reports that replies may carry a submit_order call.
func (c *OpenAIClient) SupportsTools() bool { return true }

// Respond sends the instructions and history and returns the reply text,
// plus the parsed order when the model called submit_order.
func (c *OpenAIClient) Respond(ctx context.Context, req agent.Request) (agent.Reply, error) {
	params := c.buildParams(req)
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return agent.Reply{}, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return agent.Reply{}, fmt.Errorf("openai: empty choices in response")
	}
	msg := resp.Choices[0].Message
	reply := agent.Reply{Text: strings.TrimSpace(msg.Content)}
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name != order.ToolName {
			log.Printf("openai: ignoring unknown tool call %q", tc.Function.Name)
			continue
		}
		d, err := order.ParseToolArguments(tc.Function.Arguments)
		if err != nil {
			log.Printf("openai: bad %s arguments: %v", order.ToolName, err)
			continue
		}
		reply.Order = &d
		break
	}
	return reply, nil
}

func (c *OpenAIClient) buildParams(req agent.Request) oai.ChatCompletionNewParams {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	if req.Instructions != "" {
		messages = append(messages, oai.SystemMessage(req.Instructions))
	}
	for _, t := range req.History {
		messages = append(messages, convertTurn(t))
	}
	return oai.ChatCompletionNewParams{
		Model:               shared.ChatModel(c.model),
		Messages:            messages,
		Temperature:         param.NewOpt(temperature),
		MaxCompletionTokens: param.NewOpt(int64(maxTokens)),
		Tools: []oai.ChatCompletionToolParam{{
			Function: shared.FunctionDefinitionParam{
				Name:        order.ToolName,
				Description: param.NewOpt(order.ToolDescription),
				Parameters:  shared.FunctionParameters(order.ToolParameters()),
			},
		}},
	}
}

func convertTurn(t agent.Turn) oai.ChatCompletionMessageParamUnion {
	if t.Role == agent.RoleAssistant {
		asst := oai.ChatCompletionAssistantMessageParam{}
		asst.Content.OfString = oai.String(t.Text)
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
	}
	return oai.UserMessage(t.Text)
}

// Ping lists models to verify the key and endpoint.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx); err != nil {
		return fmt.Errorf("openai: list models: %w", err)
	}
	return nil
}
