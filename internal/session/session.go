// Package session holds the per-session state owned exclusively by that
// session's orchestrator task (spec §5 shared-resource policy: "Per-session
// state (context, dialogue state, memory, FSM) is owned by the session's
// orchestrator task and never shared"). Adapted from the teacher's
// ConversationSession (pkg/orchestrator/types.go), generalized with the
// new memory/dialog packages in place of the teacher's plain truncating
// Context slice.
package session

import (
	"sync"

	"github.com/lokutor-ai/vaak-pipeline/internal/bus"
	"github.com/lokutor-ai/vaak-pipeline/internal/dialog"
	"github.com/lokutor-ai/vaak-pipeline/internal/memory"
)

// VoiceConfig is the session's current synthesis voice; it is distinct
// from tts.VoiceConfig to avoid session depending on the tts package
// directly, and is converted at the call site.
type VoiceConfig struct {
	VoiceID string
	Speed   float64
	Pitch   float64
	Volume  float64
}

// Turn records one truncated-or-complete assistant/user exchange for
// transcript/debugging purposes, independent of the compacted memory.Turn
// history used for LLM prompting.
type Turn struct {
	Role       string
	Content    string
	Truncated  bool
	CutAtMs    int64
}

// Session is one caller's pipeline state: ProcessorContext, conversation
// memory, dialogue state, and the small bits of bookkeeping the
// orchestrator's state machine needs across turns.
type Session struct {
	mu sync.RWMutex

	PC *bus.ProcessorContext

	Memory      *memory.Memory
	DialogState *dialog.State
	Voice       VoiceConfig

	history []Turn
}

// New builds a Session for sessionID, with memory/dialog state ready to
// accumulate.
func New(sessionID string, language string, mem *memory.Memory, voice VoiceConfig) *Session {
	return &Session{
		PC:          bus.NewProcessorContext(sessionID).WithLanguage(language),
		Memory:      mem,
		DialogState: dialog.NewState(),
		Voice:       voice,
	}
}

// AddTurn appends a turn to the session's transcript history (for
// debugging/export — separate from memory.Memory's LLM-facing turns).
func (s *Session) AddTurn(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, t)
}

// History returns a copy of the recorded turns.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// SetVoice updates the session's active voice configuration.
func (s *Session) SetVoice(v VoiceConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Voice = v
}

// CurrentVoice returns the session's active voice configuration.
func (s *Session) CurrentVoice() VoiceConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Voice
}
