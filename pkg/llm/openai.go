package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

const defaultTimeout = 60 * time.Second

// OpenAIConfig configures the OpenAI-compatible REST client.
type OpenAIConfig struct {
	Logger      *slog.Logger
	BaseURL     string // e.g. https://my-deployment.openai.azure.com/openai/v1
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	HTTPClient  *http.Client // optional, for tests
}

func (cfg *OpenAIConfig) Validate() error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		return fmt.Errorf("model is required")
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return nil
}

// OpenAIClient implements Client against an OpenAI-compatible chat-completions
// endpoint (including Azure OpenAI deployments).
type OpenAIClient struct {
	cfg  *OpenAIConfig
	http *http.Client
	log  *slog.Logger
}

// NewOpenAIClient creates a new OpenAI-compatible client.
func NewOpenAIClient(cfg *OpenAIConfig) (*OpenAIClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIClient{cfg: cfg, http: hc, log: cfg.Logger}, nil
}

// Wire types for the chat-completions request body.
type openAIMessage struct {
	Role     string          `json:"role"`
	Content  *string         `json:"content"`
	Name     string          `json:"name,omitempty"`
	ToolCall *openAIToolCall `json:"tool_call,omitempty"`
}

type openAIToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAITool struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Tools       []openAITool    `json:"tools,omitempty"`
	ToolChoice  string          `json:"tool_choice,omitempty"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role     string          `json:"role"`
			Content  *string         `json:"content"`
			ToolCall *openAIToolCall `json:"tool_call"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends the conversation and returns the model's reply.
// One round trip, no retries; the transport owns timeout behavior.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, tools []ToolDeclaration) (Reply, error) {
	req := openAIRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Messages:    make([]openAIMessage, 0, len(messages)),
	}

	for _, msg := range messages {
		wire := openAIMessage{Role: string(msg.Role)}
		if msg.Role == RoleAssistant && msg.ToolName != "" {
			// Assistant tool-call turn: content is null on the wire.
			wire.ToolCall = &openAIToolCall{Name: msg.ToolName, Arguments: msg.ToolArgs}
		} else {
			content := msg.Content
			wire.Content = &content
			if msg.Role == RoleTool {
				wire.Name = msg.ToolName
			}
		}
		req.Messages = append(req.Messages, wire)
	}

	for _, t := range tools {
		req.Tools = append(req.Tools, openAITool{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	if len(tools) > 0 {
		req.ToolChoice = "auto"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if c.log != nil {
		c.log.Debug("llm: completion call finished", "status", resp.StatusCode, "duration", time.Since(start))
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return Reply{}, fmt.Errorf("%w: status %d: %s", ErrAuth, resp.StatusCode, strings.TrimSpace(string(respBody)))
		case http.StatusTooManyRequests:
			return Reply{}, fmt.Errorf("%w: status %d: %s", ErrRateLimited, resp.StatusCode, strings.TrimSpace(string(respBody)))
		default:
			return Reply{}, fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
	}

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Reply{}, fmt.Errorf("%w: failed to decode response: %v", ErrTransport, err)
	}
	if len(parsed.Choices) == 0 {
		return Reply{}, fmt.Errorf("%w: response contains no choices", ErrTransport)
	}

	choice := parsed.Choices[0].Message
	if choice.ToolCall != nil {
		return Reply{ToolCall: &ToolCall{Name: choice.ToolCall.Name, Arguments: choice.ToolCall.Arguments}}, nil
	}
	if choice.Content != nil {
		return Reply{Text: strings.TrimSpace(*choice.Content)}, nil
	}
	return Reply{}, fmt.Errorf("%w: response message has neither content nor tool call", ErrTransport)
}
