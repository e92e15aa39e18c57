// Package openai adapts the OpenAI Chat Completions API to the
// supportflow capability interfaces.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/randalmurphal/supportflow/pkg/supportflow/capability"
)

// Options configures the OpenAI adapter.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Client wraps the OpenAI Chat Completions API behind
// capability.Completer and capability.Classifier.
type Client struct {
	client *openai.Client
	opts   Options
}

// Compile-time interface checks.
var (
	_ capability.Completer  = (*Client)(nil)
	_ capability.Classifier = (*Client)(nil)
)

// New creates a new OpenAI client using the official SDK. The API key
// is read from the environment by the SDK.
func New(optFns ...func(o *Options)) *Client {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates an adapter from an existing SDK client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Client {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.0,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Client{client: client, opts: opts}
}

// Complete implements capability.Completer.
func (c *Client) Complete(ctx context.Context, req capability.Request) (*capability.Completion, error) {
	params := c.buildParams(req, req.Tools)

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response contained no choices")
	}

	choice := resp.Choices[0]
	completion := &capability.Completion{Text: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		completion.ToolCall = &capability.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		}
		break
	}
	return completion, nil
}

// Classify implements capability.Classifier. The schema is exposed as
// the only available tool and the model is instructed to answer by
// calling it; the tool arguments are the structured object.
func (c *Client) Classify(ctx context.Context, req capability.Request, schema capability.ToolDefinition) (json.RawMessage, error) {
	req.Instructions = req.Instructions +
		"\nAnswer only by calling the " + schema.Name + " tool. Do not reply with prose."

	params := c.buildParams(req, []capability.ToolDefinition{schema})

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response contained no choices")
	}

	choice := resp.Choices[0]
	for _, tc := range choice.Message.ToolCalls {
		if json.Valid([]byte(tc.Function.Arguments)) {
			return json.RawMessage(tc.Function.Arguments), nil
		}
	}
	if json.Valid([]byte(choice.Message.Content)) {
		return json.RawMessage(choice.Message.Content), nil
	}
	return nil, fmt.Errorf("openai response contained no structured output")
}

// buildParams assembles the request including tool definitions.
func (c *Client) buildParams(req capability.Request, tools []capability.ToolDefinition) openai.ChatCompletionNewParams {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	for _, m := range req.Messages {
		if m.Content == "" {
			continue
		}
		switch m.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		case "tool":
			// Tool observations are carried as user-role text; the
			// loop runtime owns call/observation pairing.
			messages = append(messages, openai.UserMessage("[tool result] "+m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               c.opts.Model,
		Temperature:         openai.Float(c.opts.Temperature),
		MaxCompletionTokens: openai.Int(c.opts.MaxCompletionTokens),
	}
	if len(tools) == 0 {
		return params
	}

	defs := make([]openai.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		defs[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.Parameters,
			},
		}
	}
	params.Tools = defs
	return params
}
