package llm_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/engramlabs/engram-go-sdk/llm"
	"github.com/engramlabs/engram-go-sdk/memory"
)

func TestParseMemoryWrite(t *testing.T) {
	call := llm.ToolCall{
		ID:    "tc_1",
		Name:  llm.RememberToolName,
		Input: json.RawMessage(`{"content":"allergic to peanuts","context":"dinner plans","type":"semantic","importance":0.9}`),
	}
	req, err := llm.ParseMemoryWrite(call)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Content != "allergic to peanuts" || req.Context != "dinner plans" {
		t.Errorf("fields = %+v", req)
	}
	if req.Type != "semantic" || req.Importance != 0.9 {
		t.Errorf("hints = %q %v", req.Type, req.Importance)
	}
}

func TestParseMemoryWriteRejects(t *testing.T) {
	cases := []struct {
		name string
		call llm.ToolCall
	}{
		{"wrong tool", llm.ToolCall{Name: "search", Input: json.RawMessage(`{"content":"x"}`)}},
		{"bad json", llm.ToolCall{Name: llm.RememberToolName, Input: json.RawMessage(`{`)}},
		{"empty content", llm.ToolCall{Name: llm.RememberToolName, Input: json.RawMessage(`{"content":"  "}`)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := llm.ParseMemoryWrite(tc.call); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFormatContext(t *testing.T) {
	if got := llm.FormatContext(nil); got != "" {
		t.Errorf("empty input rendered %q", got)
	}

	now := time.Now()
	a, _ := memory.NewItem("prefers metric units", "", memory.TypeProcedural, 0.8, now)
	b, _ := memory.NewItem("discussed a trip to Kyoto", "", memory.TypeEpisodic, 0.5, now)

	got := llm.FormatContext([]*memory.Item{a, b})
	lines := strings.Split(got, "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), got)
	}
	if !strings.HasPrefix(lines[0], "Relevant memories") {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "- [procedural, importance 0.80] prefers metric units" {
		t.Errorf("line 1 = %q", lines[1])
	}
	if lines[2] != "- [episodic, importance 0.50] discussed a trip to Kyoto" {
		t.Errorf("line 2 = %q", lines[2])
	}
}

func TestRememberToolSchema(t *testing.T) {
	schema := llm.RememberToolSchema()
	if schema["type"] != "object" {
		t.Errorf("schema type = %v", schema["type"])
	}
	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("properties missing: %v", schema)
	}
	for _, key := range []string{"content", "context", "type", "importance"} {
		if _, ok := props[key]; !ok {
			t.Errorf("property %q missing", key)
		}
	}
	required, ok := schema["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "content" {
		t.Errorf("required = %v, want [content]", schema["required"])
	}
}
