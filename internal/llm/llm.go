// Package llm implements the Speculative LLM Executor (spec §4.4):
// SLM-first, race-parallel, and hybrid-streaming execution across a fast
// and a quality model tier. Provider contract is grounded on the teacher's
// pkg/orchestrator.LLMProvider interface; concrete providers are adapted
// from pkg/providers/llm/{anthropic,openai,google}.go.
package llm

import (
	"context"
	"strings"
)

// Message is one turn in the conversation passed to a provider.
type Message struct {
	Role    string // "system" | "user" | "assistant" | "tool"
	Content string
}

// ToolDef is the JSON-schema-style descriptor surfaced to the model
// (spec §6 "Tool schema").
type ToolDef struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Request is one generation request (spec §4.4).
type Request struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	Tools       []ToolDef
}

// ToolCall is a structured tool invocation the model requested mid-stream.
type ToolCall struct {
	ID    string
	Name  string
	Input map[string]any
}

// ChunkCallback receives one LLMChunk's text and whether it is the final
// chunk of the generation.
type ChunkCallback func(text string, isFinal bool) error

// Provider is the narrow capability contract each LLM backend implements.
// Complete must stop generating and release its connection within <=100ms
// of ctx being cancelled (spec §4.4 cancellation requirement).
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request, onChunk ChunkCallback) error
}

// ToolCallingProvider is implemented by providers whose backend can emit a
// structured tool call mid-generation. The executor pauses the chunk stream
// (no further onChunk calls) until the caller resumes generation with the
// tool result appended as a tool-role message.
type ToolCallingProvider interface {
	Provider
	// CompleteOrToolCall may, instead of calling onChunk to completion,
	// return a non-nil *ToolCall when the model requests tool execution.
	// The executor is then responsible for invoking the tool and calling
	// CompleteOrToolCall again with the tool result appended.
	CompleteOrToolCall(ctx context.Context, req Request, onChunk ChunkCallback) (*ToolCall, error)
}

// refusalPhrases back the cheap quality-check ensemble from spec §9:
// "non-empty, length within configured bounds, absence of a configured
// refusal phrase list, and not ending mid-word."
var refusalPhrases = []string{
	"i cannot help with that",
	"i'm not able to assist",
	"as an ai language model",
	"i don't know how to respond",
}

// QualityCheck holds the bounds for the SLM-first quality ensemble.
type QualityCheck struct {
	MinLen int
	MaxLen int
}

// DefaultQualityCheck returns reasonable bounds for a short spoken reply.
func DefaultQualityCheck() QualityCheck { return QualityCheck{MinLen: 1, MaxLen: 2000} }

// Passes reports whether text is "good enough" per the cheap ensemble
// (spec §9): non-empty, within length bounds, no refusal phrase, and not
// ending mid-word.
func (q QualityCheck) Passes(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < q.MinLen || len(trimmed) > q.MaxLen {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	last := trimmed[len(trimmed)-1]
	if last == ' ' || last == '-' {
		return false // ends mid-word
	}
	return true
}
