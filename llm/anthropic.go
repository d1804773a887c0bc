package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/engramlabs/engram-go-sdk/core"
)

const (
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 4096
)

// DefaultSystemPrompt is used when a request carries no system prompt.
const DefaultSystemPrompt = `You are a helpful assistant with long-term memory.

When the prompt includes remembered context, treat it as things you
learned in earlier conversations with this user. Use it naturally; do
not recite it back.

When the user shares a durable fact or a preference about how you
should behave, call the "remember" tool with a concise statement of it.
Do not remember small talk.`

// Claude implements Generator against the Anthropic Messages API.
type Claude struct {
	client       *anthropic.Client
	model        anthropic.Model
	maxTokens    int64
	rememberTool bool
}

// ClaudeOption configures the Claude generator.
type ClaudeOption func(*Claude)

// WithModel overrides the default model.
func WithModel(model string) ClaudeOption {
	return func(c *Claude) { c.model = anthropic.Model(model) }
}

// WithMaxTokens overrides the response token cap.
func WithMaxTokens(n int64) ClaudeOption {
	return func(c *Claude) { c.maxTokens = n }
}

// WithoutRememberTool disables the remember tool, for callers that
// only want plain completions.
func WithoutRememberTool() ClaudeOption {
	return func(c *Claude) { c.rememberTool = false }
}

// NewClaude wraps an Anthropic client as a Generator.
func NewClaude(client *anthropic.Client, opts ...ClaudeOption) *Claude {
	c := &Claude{
		client:       client,
		model:        defaultModel,
		maxTokens:    defaultMaxTokens,
		rememberTool: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate calls the Messages API with the conversation and retrieved
// context, and returns text plus any remember tool calls.
func (c *Claude) Generate(ctx context.Context, req Request) (*Response, error) {
	system := req.System
	if system == "" {
		system = DefaultSystemPrompt
	}
	if enrichment := FormatContext(req.Context); enrichment != "" {
		system += "\n\n" + enrichment
	}

	var messages []anthropic.MessageParam
	for _, m := range req.Messages {
		switch m.Role {
		case core.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case core.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		case core.RoleSystem:
			// System-role history folds into the system prompt.
			system += "\n\n" + m.Content
		}
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("claude: no user or assistant messages in request")
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  messages,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
	}
	if c.rememberTool {
		params.Tools = []anthropic.ToolUnionParam{rememberToolParam()}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude api error: %w", err)
	}

	out := &Response{}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Text += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:    block.ID,
				Name:  block.Name,
				Input: block.Input,
			})
		}
	}
	return out, nil
}

// GenerateText runs a single-prompt completion with no tools. The
// memory package's LLM digester plugs this in as its GenerateFunc.
func (c *Claude) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("claude api error: %w", err)
	}
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}

func rememberToolParam() anthropic.ToolUnionParam {
	schema := RememberToolSchema()
	props, _ := schema["properties"].(map[string]interface{})
	required, _ := schema["required"].([]string)
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        RememberToolName,
			Description: anthropic.String("Store a durable fact, event, or behavioral preference in long-term memory."),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: props,
				Required:   required,
			},
		},
	}
}
