package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/neddyKG/ragchatbot-codebase/models"
)

func TestRegistryRejectsDuplicateNames(t *testing.T) {
	registry := NewToolRegistry(nil)
	if err := registry.Register(&stubTool{name: "search"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := registry.Register(&stubTool{name: "search"})
	if !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("expected ErrDuplicateTool, got %v", err)
	}

	if err := registry.Register(&stubTool{name: ""}); err == nil {
		t.Errorf("expected error for a tool without a name")
	}
}

func TestRegistryDefinitionsKeepRegistrationOrder(t *testing.T) {
	registry := newStubRegistry(t, &stubTool{name: "b"}, &stubTool{name: "a"}, &stubTool{name: "c"})

	defs := registry.Definitions()
	if len(defs) != 3 {
		t.Fatalf("expected 3 definitions, got %d", len(defs))
	}
	for i, name := range []string{"b", "a", "c"} {
		if defs[i].Name != name {
			t.Errorf("definition %d: expected %q, got %q", i, name, defs[i].Name)
		}
	}

	if len(NewToolRegistry(nil).Definitions()) != 0 {
		t.Errorf("expected no definitions from an empty registry")
	}
}

func TestRegistryDispatch(t *testing.T) {
	tests := []struct {
		name     string
		tool     *stubTool
		call     string
		args     map[string]any
		expected string
	}{
		{
			name:     "success",
			tool:     &stubTool{name: "search", output: "found it"},
			call:     "search",
			args:     map[string]any{"query": "x"},
			expected: "found it",
		},
		{
			name:     "tool error",
			tool:     &stubTool{name: "search", err: errors.New("boom")},
			call:     "search",
			args:     map[string]any{"query": "x"},
			expected: "Error executing tool 'search': boom",
		},
		{
			name:     "tool panic",
			tool:     &stubTool{name: "search", panicMsg: "nil map"},
			call:     "search",
			args:     map[string]any{"query": "x"},
			expected: "Error executing tool 'search': panic: nil map",
		},
		{
			name:     "unknown tool",
			tool:     &stubTool{name: "search"},
			call:     "outline",
			expected: "Tool 'outline' not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := newStubRegistry(t, tt.tool)
			result := registry.Dispatch(context.Background(), tt.call, tt.args)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestRegistryDispatchEncodesArguments(t *testing.T) {
	tool := &stubTool{name: "search", output: "ok"}
	registry := newStubRegistry(t, tool)

	registry.Dispatch(context.Background(), "search", nil)
	registry.Dispatch(context.Background(), "search", map[string]any{"query": "mcp", "lesson_number": 2})

	if len(tool.inputs) != 2 {
		t.Fatalf("expected 2 executions, got %d", len(tool.inputs))
	}
	if string(tool.inputs[0]) != "{}" {
		t.Errorf("expected empty object for nil arguments, got %s", tool.inputs[0])
	}
	if string(tool.inputs[1]) != `{"lesson_number":2,"query":"mcp"}` {
		t.Errorf("unexpected encoded arguments: %s", tool.inputs[1])
	}
}

func TestRegistrySourceLifecycle(t *testing.T) {
	link := "https://example.com/lesson/1"
	tool := &stubTool{name: "search", output: "ok", sources: []models.Source{{Text: "MCP - Lesson 1", Link: &link}}}
	registry := newStubRegistry(t, tool)

	registry.Dispatch(context.Background(), "search", map[string]any{"query": "a"})
	registry.Dispatch(context.Background(), "search", map[string]any{"query": "b"})

	sources := registry.CollectSources()
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].Link == nil || *sources[0].Link != link {
		t.Errorf("expected link to survive collection, got %+v", sources[0])
	}

	sources[0].Text = "mutated"
	if registry.CollectSources()[0].Text != "MCP - Lesson 1" {
		t.Errorf("CollectSources should return a copy")
	}

	registry.ResetSources()
	if len(registry.CollectSources()) != 0 {
		t.Errorf("expected no sources after reset")
	}
	if len(tool.LastSources()) != 0 {
		t.Errorf("expected tool sources to be cleared after reset")
	}
}

func TestRegistryUntrackedToolAddsNoSources(t *testing.T) {
	registry := newStubRegistry(t, plainTool{})

	if got := registry.Dispatch(context.Background(), "plain", nil); got != "plain output" {
		t.Errorf("unexpected result: %q", got)
	}
	if len(registry.CollectSources()) != 0 {
		t.Errorf("expected no sources from an untracked tool")
	}
}

type plainTool struct{}

func (plainTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{Name: "plain"}
}

func (plainTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	return "plain output", nil
}
