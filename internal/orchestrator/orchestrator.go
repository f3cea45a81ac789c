// Package orchestrator implements the Orchestrator (spec §4.7): it owns
// one session's lifecycle, wires the VAD/turn-detector/STT/LLM/chunker/TTS
// stages, maintains the session's ProcessorContext, and drives the
// Idle->Listening->Thinking->Speaking barge-in state machine. Grounded on
// the teacher's pkg/orchestrator.Orchestrator + ManagedStream, generalized
// from the teacher's single hard-coded provider triple to the new
// internal/{vad,turndetector,stt,llm,chunker,tts,dialog,tools,memory}
// packages and the spec's three barge-in actions.
package orchestrator

import (
	"github.com/lokutor-ai/vaak-pipeline/internal/config"
	"github.com/lokutor-ai/vaak-pipeline/internal/dialog"
	"github.com/lokutor-ai/vaak-pipeline/internal/llm"
	"github.com/lokutor-ai/vaak-pipeline/internal/logging"
	"github.com/lokutor-ai/vaak-pipeline/internal/memory"
	"github.com/lokutor-ai/vaak-pipeline/internal/metrics"
	"github.com/lokutor-ai/vaak-pipeline/internal/stt"
	"github.com/lokutor-ai/vaak-pipeline/internal/tools"
	"github.com/lokutor-ai/vaak-pipeline/internal/tts"
)

// Orchestrator holds every process-wide, concurrency-safe collaborator
// (spec §5 shared-resource policy): backends, tool registry, and the
// retriever are shared across every session; only the per-session Stream
// below owns mutable per-session state.
type Orchestrator struct {
	STT stt.Provider // may additionally implement stt.StreamingProvider

	// SLM/LLMTier/Quality back a fresh *llm.Executor built per turn: the
	// providers are themselves concurrency-safe and process-wide, but each
	// turn's Executor is bound to a session-scoped ToolInvoker (tool calls
	// must serialize per session, per spec §4.9), so the Executor itself
	// cannot be shared the way the providers are.
	SLM     llm.Provider
	LLMTier llm.Provider
	Quality llm.QualityCheck

	TTS       tts.Provider
	Tools     *tools.Registry
	Retriever Retriever
	Metrics   metrics.Sink
	Logger    logging.Logger

	Config     config.Pipeline
	StageGraph func() (*dialog.Graph, error) // builds a fresh graph per session (Graph is stateful)
	SlotDefs   []dialog.SlotDef
	Goals      []dialog.GoalDef
	Summarizer memory.Summarizer
	LLMMode    llm.Mode

	// DialogTracker is stateless across sessions (it only holds slot/goal
	// definitions; per-session mutation happens on the *dialog.State each
	// call receives), so one instance is shared process-wide.
	DialogTracker *dialog.Tracker
}

// New builds an Orchestrator over its shared collaborators. Retriever and
// Metrics default to no-ops when nil so a minimal deployment (no RAG, no
// metrics shipper configured yet) still runs.
func New(o Orchestrator) *Orchestrator {
	if o.Retriever == nil {
		o.Retriever = NoopRetriever{}
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NoOp{}
	}
	if o.Logger == nil {
		o.Logger = logging.NoOp{}
	}
	if o.LLMMode == "" {
		o.LLMMode = llm.ModeSLMFirst
	}
	if o.Quality == (llm.QualityCheck{}) {
		o.Quality = llm.DefaultQualityCheck()
	}
	if o.DialogTracker == nil {
		o.DialogTracker = dialog.NewTracker(o.SlotDefs, o.Goals)
	}
	if o.Tools == nil {
		o.Tools = tools.NewRegistry()
	}
	return &o
}
