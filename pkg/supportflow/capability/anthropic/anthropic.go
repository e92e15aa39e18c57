// Package anthropic adapts the Anthropic Messages API to the
// supportflow capability interfaces.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/randalmurphal/supportflow/pkg/supportflow/capability"
)

// Options configures the Anthropic adapter.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Client wraps the Anthropic Messages API behind capability.Completer
// and capability.Classifier.
type Client struct {
	client *anthropic.Client
	opts   Options
}

// Compile-time interface checks.
var (
	_ capability.Completer  = (*Client)(nil)
	_ capability.Classifier = (*Client)(nil)
)

// New creates a new Anthropic client using the official SDK.
func New(optFns ...func(o *Options)) *Client {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.0,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Client{client: &client, opts: opts}
}

// NewFromClient creates an adapter from an existing SDK client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Client {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.0,
		MaxTokens:   4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{client: client, opts: opts}
}

// Complete implements capability.Completer.
func (c *Client) Complete(ctx context.Context, req capability.Request) (*capability.Completion, error) {
	params := c.buildParams(req)
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}
	return parseResponse(resp)
}

// Classify implements capability.Classifier. The schema is exposed as
// the only available tool and the model is instructed to answer by
// calling it; the tool input is the structured object.
func (c *Client) Classify(ctx context.Context, req capability.Request, schema capability.ToolDefinition) (json.RawMessage, error) {
	req.Instructions = req.Instructions +
		"\nAnswer only by calling the " + schema.Name + " tool. Do not reply with prose."

	params := c.buildParams(req)
	params.Tools = buildTools([]capability.ToolDefinition{schema})

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "tool_use" {
			toolBlock := block.AsToolUse()
			raw, err := json.Marshal(toolBlock.Input)
			if err != nil {
				return nil, fmt.Errorf("marshal tool input: %w", err)
			}
			return raw, nil
		}
	}

	// Some models reply with a bare JSON object instead of a tool call.
	for _, block := range resp.Content {
		if block.Type == "text" {
			text := block.AsText().Text
			if json.Valid([]byte(text)) {
				return json.RawMessage(text), nil
			}
		}
	}
	return nil, fmt.Errorf("anthropic response contained no structured output")
}

// buildParams assembles common message parameters.
func (c *Client) buildParams(req capability.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       c.opts.Model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   c.opts.MaxTokens,
		Temperature: anthropic.Float(c.opts.Temperature),
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}
	return params
}

// buildMessages converts normalized chat messages to the Anthropic
// format. Tool observations are carried as user-role text blocks: the
// loop runtime owns the pairing of calls and observations, so the
// adapter only needs to keep them visible to the model.
func buildMessages(messages []capability.ChatMessage) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case "tool":
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock("[tool result] "+m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out
}

// buildTools converts capability tool definitions to the Anthropic
// tool format.
func buildTools(tools []capability.ToolDefinition) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		schema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if t.Parameters != nil {
			if properties, ok := t.Parameters["properties"]; ok {
				schema.Properties = properties
			}
			if required, ok := t.Parameters["required"]; ok {
				switch req := required.(type) {
				case []string:
					schema.Required = req
				case []any:
					for _, r := range req {
						if s, ok := r.(string); ok {
							schema.Required = append(schema.Required, s)
						}
					}
				}
			}
		}
		out[i] = anthropic.ToolUnionParamOfTool(schema, t.Name)
	}
	return out
}

// parseResponse maps an Anthropic message to a Completion. A tool_use
// block wins over text; the loop runtime decides what to do with it.
func parseResponse(resp *anthropic.Message) (*capability.Completion, error) {
	completion := &capability.Completion{}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			completion.Text += block.AsText().Text
		case "tool_use":
			if completion.ToolCall != nil {
				continue
			}
			toolBlock := block.AsToolUse()
			args := json.RawMessage("{}")
			if toolBlock.Input != nil {
				if raw, err := json.Marshal(toolBlock.Input); err == nil {
					args = raw
				}
			}
			completion.ToolCall = &capability.ToolCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: args,
			}
		}
	}
	return completion, nil
}
