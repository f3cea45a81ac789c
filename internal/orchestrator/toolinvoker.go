package orchestrator

import (
	"context"
	"strings"

	"github.com/lokutor-ai/vaak-pipeline/internal/llm"
	"github.com/lokutor-ai/vaak-pipeline/internal/tools"
)

// sessionToolInvoker adapts tools.Registry (keyed by session id and tool
// name) to the narrow llm.ToolInvoker contract the Speculative LLM Executor
// calls mid-generation (spec §4.4, §4.9).
type sessionToolInvoker struct {
	registry  *tools.Registry
	sessionID string
}

func (s sessionToolInvoker) Invoke(ctx context.Context, call llm.ToolCall) (string, error) {
	out, err := s.registry.Invoke(ctx, s.sessionID, call.Name, call.Input)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for i, block := range out.Content {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(block.Content)
	}
	return b.String(), nil
}

// toolDefs surfaces the registry's descriptors as llm.ToolDef for a
// generation request.
func toolDefs(r *tools.Registry) []llm.ToolDef {
	list := r.List()
	out := make([]llm.ToolDef, 0, len(list))
	for _, t := range list {
		out = append(out, llm.ToolDef{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return out
}
