package orchestrator

import (
	"context"
	"strings"

	"github.com/lokutor-ai/vaak-pipeline/internal/llm"
	"github.com/lokutor-ai/vaak-pipeline/internal/memory"
)

// LLMSummarizer adapts an llm.Provider to memory.Summarizer, using the SLM
// tier to produce the compacted summary turn (spec §4.10: "a summary turn
// produced by the SLM").
type LLMSummarizer struct {
	Provider llm.Provider
}

func (s LLMSummarizer) Summarize(ctx context.Context, turns []memory.Turn) (string, error) {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	req := llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: "Summarize this conversation excerpt in 2-3 sentences, preserving names, numbers, and commitments."},
			{Role: "user", Content: b.String()},
		},
		MaxTokens: 200,
	}

	var out strings.Builder
	err := s.Provider.Complete(ctx, req, func(text string, isFinal bool) error {
		out.WriteString(text)
		return nil
	})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}
