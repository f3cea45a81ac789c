// Package tools implements Tool Dispatch (spec §4.9): a registry of
// descriptors {name, description, input_schema} plus an execute function,
// input validated against the schema before execution, with a per-tool
// timeout and per-session serialization. No pack repo supplies this
// machinery directly (the teacher has no tool support at all), so it is
// built fresh grounded on the JSON-schema validation library present in
// hubenschmidt-asr-llm-tts's dependency set (xeipuuv/gojsonschema) rather
// than a hand-rolled schema walker.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// ContentBlock is one element of a tool's output content list
// (spec §6 "outputs are content lists of {type, content}").
type ContentBlock struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Output is a successful tool result.
type Output struct {
	Content []ContentBlock
}

// Error is a tool-level failure — non-fatal: the result is fed back to the
// LLM, which decides whether to retry, ask the user, or escalate
// (spec §4.9).
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// Executor runs one tool invocation against validated input.
type Executor func(ctx context.Context, input map[string]any) (Output, error)

// Tool is one registered domain tool descriptor.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Timeout     time.Duration
	Run         Executor

	schema *gojsonschema.Schema
}

// Registry validates and dispatches tool calls. Execution is serialized
// per session via the per-session lock returned by sessionLock, keeping
// dialogue state consistent while a tool call is in flight (spec §4.9:
// "Tool execution is serialized per session").
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool

	sessionMu sync.Mutex
	sessions  map[string]*sync.Mutex
}

// NewRegistry builds an empty tool Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool), sessions: make(map[string]*sync.Mutex)}
}

// Register adds a tool, precompiling its JSON schema.
func (r *Registry) Register(t Tool) error {
	schemaBytes, err := json.Marshal(t.InputSchema)
	if err != nil {
		return fmt.Errorf("tools: marshal schema for %s: %w", t.Name, err)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaBytes))
	if err != nil {
		return fmt.Errorf("tools: compile schema for %s: %w", t.Name, err)
	}
	if t.Timeout <= 0 {
		t.Timeout = 10 * time.Second
	}
	t.schema = schema

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = &t
	return nil
}

func (r *Registry) sessionLock(sessionID string) *sync.Mutex {
	r.sessionMu.Lock()
	defer r.sessionMu.Unlock()
	l, ok := r.sessions[sessionID]
	if !ok {
		l = &sync.Mutex{}
		r.sessions[sessionID] = l
	}
	return l
}

// Invoke validates input against the tool's schema, then runs it with a
// per-tool timeout, serialized against any other Invoke for the same
// sessionID. A validation failure or execution failure is returned as
// *Error (non-fatal, per spec §4.9 — the caller feeds it back to the LLM).
func (r *Registry) Invoke(ctx context.Context, sessionID, toolName string, input map[string]any) (Output, error) {
	r.mu.RLock()
	t, ok := r.tools[toolName]
	r.mu.RUnlock()
	if !ok {
		return Output{}, &Error{Message: fmt.Sprintf("unknown tool %q", toolName)}
	}

	inputBytes, err := json.Marshal(input)
	if err != nil {
		return Output{}, &Error{Message: "invalid tool input encoding"}
	}
	result, err := t.schema.Validate(gojsonschema.NewBytesLoader(inputBytes))
	if err != nil {
		return Output{}, &Error{Message: "schema validation error: " + err.Error()}
	}
	if !result.Valid() {
		msgs := ""
		for _, e := range result.Errors() {
			msgs += e.String() + "; "
		}
		return Output{}, &Error{Message: "invalid params: " + msgs}
	}

	lock := r.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	out, err := t.Run(ctx, input)
	if err != nil {
		return Output{}, &Error{Message: err.Error()}
	}
	return out, nil
}

// Get returns the descriptor for name, for surfacing to the LLM executor
// as a ToolDef (spec §6).
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool's descriptor.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, *t)
	}
	return out
}
