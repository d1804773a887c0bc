// Package llm defines the language-model collaborator: the engine
// hands it the user's text plus retrieved memory context and gets back
// response text and optional structured memory-write requests.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/engramlabs/engram-go-sdk/core"
	"github.com/engramlabs/engram-go-sdk/memory"
)

// Request is one generation call.
type Request struct {
	// System is the system prompt. Empty means the provider default.
	System string

	// Messages is the conversation so far, ending with the user's
	// latest message.
	Messages []core.Message

	// Context carries the retrieved memory items for this turn. The
	// provider injects them into the prompt via FormatContext.
	Context []*memory.Item
}

// ToolCall is a structured request emitted by the model.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// Response is the model's output for one Request.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Generator produces a model response for a request. Implementations:
// Claude (Anthropic API) and test stubs.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// RememberToolName is the tool the model uses to request an explicit
// memory write. The engine validates these through the classifier
// before anything is stored; a model-asserted type or importance is a
// hint, never trusted verbatim.
const RememberToolName = "remember"

// MemoryWriteRequest is the parsed input of a remember tool call.
type MemoryWriteRequest struct {
	Content    string  `json:"content"`
	Context    string  `json:"context,omitempty"`
	Type       string  `json:"type,omitempty"`
	Importance float64 `json:"importance,omitempty"`
}

// ParseMemoryWrite decodes a remember tool call. It returns an error
// for other tools or empty content.
func ParseMemoryWrite(call ToolCall) (*MemoryWriteRequest, error) {
	if call.Name != RememberToolName {
		return nil, fmt.Errorf("not a memory write: tool %q", call.Name)
	}
	var req MemoryWriteRequest
	if err := json.Unmarshal(call.Input, &req); err != nil {
		return nil, fmt.Errorf("decode %s input: %w", RememberToolName, err)
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%s call has empty content", RememberToolName)
	}
	return &req, nil
}

// FormatContext renders retrieved items as a context block for the
// prompt: one (type, content, importance) line per item, in retrieval
// order. Empty input renders nothing.
func FormatContext(items []*memory.Item) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("Relevant memories from earlier in this relationship:\n")
	for _, it := range items {
		fmt.Fprintf(&sb, "- [%s, importance %.2f] %s\n", it.Type, it.Importance, it.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}
