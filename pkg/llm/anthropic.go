package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
)

// AnthropicConfig configures the Anthropic-backed client.
type AnthropicConfig struct {
	Logger    *slog.Logger
	Client    anthropic.Client
	Model     anthropic.Model
	MaxTokens int64
}

func (cfg *AnthropicConfig) Validate() error {
	if cfg.Model == "" {
		return fmt.Errorf("model is required")
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2000
	}
	return nil
}

// AnthropicClient implements Client on the Anthropic Messages API. It is the
// alternate backend; the conversation shape is the same two-call protocol, with
// the executed tool exchange rendered as plain turns.
type AnthropicClient struct {
	cfg *AnthropicConfig
	log *slog.Logger
}

// NewAnthropicClient creates a new Anthropic-backed client.
func NewAnthropicClient(cfg *AnthropicConfig) (*AnthropicClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &AnthropicClient{cfg: cfg, log: cfg.Logger}, nil
}

// Complete sends the conversation and returns the model's reply.
func (c *AnthropicClient) Complete(ctx context.Context, messages []Message, tools []ToolDeclaration) (Reply, error) {
	var system string
	params := anthropic.MessageNewParams{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
	}

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = msg.Content
		case RoleUser:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case RoleAssistant:
			content := msg.Content
			if msg.ToolName != "" {
				content = fmt.Sprintf("Calling %s with arguments: %s", msg.ToolName, msg.ToolArgs)
			}
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(content)))
		case RoleTool:
			content := fmt.Sprintf("Result of %s:\n%s", msg.ToolName, msg.Content)
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(content)))
		}
	}

	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		converted, err := toAnthropicTools(tools)
		if err != nil {
			return Reply{}, err
		}
		params.Tools = converted
	}

	start := time.Now()
	resp, err := c.cfg.Client.Messages.New(ctx, params)
	if err != nil {
		return Reply{}, classifyAnthropicError(err)
	}
	if c.log != nil {
		c.log.Debug("llm: anthropic call finished", "duration", time.Since(start), "stopReason", resp.StopReason)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if tu := block.AsToolUse(); tu.ID != "" && tu.Name != "" {
			return Reply{ToolCall: &ToolCall{Name: tu.Name, Arguments: string(tu.Input)}}, nil
		}
		if tb := block.AsText(); tb.Text != "" {
			text.WriteString(tb.Text)
		}
	}
	if text.Len() == 0 {
		return Reply{}, fmt.Errorf("%w: response contains no content", ErrTransport)
	}
	return Reply{Text: strings.TrimSpace(text.String())}, nil
}

// toAnthropicTools converts declarations to Anthropic tool parameters. The
// parameter schema round-trips through JSON to the loose map shape the SDK takes.
func toAnthropicTools(tools []ToolDeclaration) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		var schema struct {
			Properties map[string]any `json:"properties"`
			Required   []string       `json:"required"`
		}
		raw, err := json.Marshal(t.Parameters)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema for tool %s: %w", t.Name, err)
		}
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("failed to convert schema for tool %s: %w", t.Name, err)
		}
		toolParam := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.Opt(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: schema.Properties,
				Required:   schema.Required,
			},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return out, nil
}

// classifyAnthropicError maps SDK errors onto the package error kinds.
func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", ErrAuth, err)
		case http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}
