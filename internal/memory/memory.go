// Package memory implements Conversation Memory (spec §4.10): turns are
// kept verbatim, compressing the oldest turns into an SLM-produced
// summary once the high watermark is exceeded, always preserving the most
// recent M turns. Absent from the teacher (ConversationSession.AddMessage
// in pkg/orchestrator/types.go just truncates to MaxMessages with no
// compression); built fresh on top of that same session-state shape.
package memory

import (
	"context"
	"strings"
	"sync"
)

// Turn is one conversation turn (spec §3: role, content, timestamp,
// optional tool-call reference).
type Turn struct {
	Role         string // "user" | "assistant" | "tool"
	Content      string
	TimestampMs  int64
	ToolCallRef  string
}

// Summarizer produces a compact summary of turns, using the SLM tier
// (spec §4.10: "a summary turn produced by the SLM").
type Summarizer interface {
	Summarize(ctx context.Context, turns []Turn) (string, error)
}

// TokenEstimator estimates a turn's token cost. The default below is a
// cheap chars/4 heuristic; callers may supply a tokenizer-backed one.
type TokenEstimator func(Turn) int

// DefaultTokenEstimator approximates tokens as len(content)/4, a common
// rough heuristic when exact backend tokenization is out of scope
// (spec §1 explicitly excludes "tokenization details of specific ASR/TTS/
// LLM backends").
func DefaultTokenEstimator(t Turn) int {
	n := len(t.Content) / 4
	if n < 1 && t.Content != "" {
		n = 1
	}
	return n
}

// Config holds the watermark tunables (spec §4.10 defaults).
type Config struct {
	RecentTurns     int // default 8; not read by Memory, which keeps every turn verbatim until MaybeCompress summarizes it
	VerbatimMinimum int // default 4, always preserved verbatim (M)
	HighWatermark   int // default 3072 tokens
	LowWatermark    int // default 2048 tokens
}

// DefaultConfig returns the spec-documented defaults.
func DefaultConfig() Config {
	return Config{RecentTurns: 8, VerbatimMinimum: 4, HighWatermark: 3072, LowWatermark: 2048}
}

// Memory holds one session's working conversation memory. Critical facts
// extracted into slots are retained independently of compression (spec
// §4.10): they live in the dialog package's State and are not held here.
type Memory struct {
	mu         sync.Mutex
	cfg        Config
	estimate   TokenEstimator
	summarizer Summarizer

	turns   []Turn
	summary string // replaces compressed-away turns, if any
}

// New builds a Memory for one session.
func New(cfg Config, summarizer Summarizer, estimate TokenEstimator) *Memory {
	if estimate == nil {
		estimate = DefaultTokenEstimator
	}
	return &Memory{cfg: cfg, estimate: estimate, summarizer: summarizer}
}

// Add appends a new turn.
func (m *Memory) Add(t Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, t)
}

// Turns returns the turns currently held verbatim (post any compression),
// prefixed by a synthetic summary turn if compression has occurred.
func (m *Memory) Turns() []Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.summary == "" {
		out := make([]Turn, len(m.turns))
		copy(out, m.turns)
		return out
	}
	out := make([]Turn, 0, len(m.turns)+1)
	out = append(out, Turn{Role: "system", Content: "Earlier conversation summary: " + m.summary})
	out = append(out, m.turns...)
	return out
}

func (m *Memory) tokenTotal() int {
	total := 0
	for _, t := range m.turns {
		total += m.estimate(t)
	}
	if m.summary != "" {
		total += len(m.summary) / 4
	}
	return total
}

// MaybeCompress checks the high watermark and, if exceeded, compresses the
// oldest non-recent turns into a summary produced by the summarizer,
// targeting the low watermark while always preserving the most recent M
// turns verbatim (spec §4.10; spec §8 invariant 7: "Memory token count
// after compression is <= low watermark; the last M turns are present
// verbatim").
func (m *Memory) MaybeCompress(ctx context.Context) error {
	m.mu.Lock()
	if m.tokenTotal() <= m.cfg.HighWatermark {
		m.mu.Unlock()
		return nil
	}
	verbatimMin := m.cfg.VerbatimMinimum
	if verbatimMin > len(m.turns) {
		verbatimMin = len(m.turns)
	}
	m.mu.Unlock()

	for {
		m.mu.Lock()
		if m.tokenTotal() <= m.cfg.LowWatermark || len(m.turns)-verbatimMin <= 0 {
			m.mu.Unlock()
			break
		}
		// compress exactly one oldest turn at a time, re-checking the low
		// watermark after each pass, so we never compress more turns than
		// necessary to satisfy it (spec §8 invariant 7).
		oldest := m.turns[0]
		remaining := m.turns[1:]
		m.mu.Unlock()

		summary, err := m.summarizeChunk(ctx, []Turn{oldest})
		if err != nil {
			return err
		}

		m.mu.Lock()
		if m.summary == "" {
			m.summary = summary
		} else {
			m.summary = mergeSummary(m.summary, summary)
		}
		m.turns = remaining
		m.mu.Unlock()
	}
	return nil
}

func (m *Memory) summarizeChunk(ctx context.Context, turns []Turn) (string, error) {
	if m.summarizer == nil {
		return fallbackSummary(turns), nil
	}
	return m.summarizer.Summarize(ctx, turns)
}

func fallbackSummary(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString(". ")
	}
	return strings.TrimSpace(b.String())
}

func mergeSummary(old, new string) string {
	return strings.TrimSpace(old + " " + new)
}
