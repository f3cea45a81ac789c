package orchestrator

import (
	"context"
	"testing"

	"github.com/lokutor-ai/vaak-pipeline/internal/llm"
	"github.com/lokutor-ai/vaak-pipeline/internal/tools"
)

func registryWithEchoTool(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	err := r.Register(tools.Tool{
		Name:        "echo",
		Description: "echoes back the session that invoked it",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"session": map[string]any{"type": "string"}},
			"required":   []any{"session"},
		},
		Run: func(ctx context.Context, input map[string]any) (tools.Output, error) {
			return tools.Output{Content: []tools.ContentBlock{
				{Type: "text", Content: input["session"].(string)},
			}}, nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return r
}

// TestSessionToolInvokersSharingARegistryGetTheirOwnResults exercises the
// per-turn Executor wiring (spec §4.9): two invokers with different session
// ids share one registry, and each Invoke returns the result of its own
// call. The echo tool sees only its input, so the session id an invoker
// passes to the registry is not observed here.
func TestSessionToolInvokersSharingARegistryGetTheirOwnResults(t *testing.T) {
	r := registryWithEchoTool(t)

	a := sessionToolInvoker{registry: r, sessionID: "session-a"}
	b := sessionToolInvoker{registry: r, sessionID: "session-b"}

	outA, err := a.Invoke(context.Background(), llm.ToolCall{Name: "echo", Input: map[string]any{"session": "session-a"}})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if outA != "session-a" {
		t.Fatalf("expected echo of session-a, got %q", outA)
	}

	outB, err := b.Invoke(context.Background(), llm.ToolCall{Name: "echo", Input: map[string]any{"session": "session-b"}})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if outB != "session-b" {
		t.Fatalf("expected echo of session-b, got %q", outB)
	}
}

func TestSessionToolInvokerJoinsMultipleContentBlocks(t *testing.T) {
	r := tools.NewRegistry()
	err := r.Register(tools.Tool{
		Name:        "multi",
		InputSchema: map[string]any{"type": "object"},
		Run: func(ctx context.Context, input map[string]any) (tools.Output, error) {
			return tools.Output{Content: []tools.ContentBlock{
				{Type: "text", Content: "first"},
				{Type: "text", Content: "second"},
			}}, nil
		},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	inv := sessionToolInvoker{registry: r, sessionID: "s1"}
	out, err := inv.Invoke(context.Background(), llm.ToolCall{Name: "multi", Input: map[string]any{}})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "first\nsecond" {
		t.Fatalf("expected blocks joined with a newline, got %q", out)
	}
}

func TestSessionToolInvokerSurfacesUnknownToolAsError(t *testing.T) {
	inv := sessionToolInvoker{registry: tools.NewRegistry(), sessionID: "s1"}
	_, err := inv.Invoke(context.Background(), llm.ToolCall{Name: "does-not-exist"})
	if err == nil {
		t.Fatal("expected an error for an unregistered tool")
	}
}

func TestToolDefsSurfacesRegisteredDescriptors(t *testing.T) {
	r := registryWithEchoTool(t)
	defs := toolDefs(r)
	if len(defs) != 1 {
		t.Fatalf("expected 1 tool def, got %d", len(defs))
	}
	if defs[0].Name != "echo" || defs[0].Description == "" {
		t.Fatalf("unexpected tool def: %+v", defs[0])
	}
}
