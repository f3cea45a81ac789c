package memory

import (
	"context"
	"strings"
	"testing"
)

type stubSummarizer struct{ calls int }

func (s *stubSummarizer) Summarize(ctx context.Context, turns []Turn) (string, error) {
	s.calls++
	return "summary-of-" + turns[0].Content, nil
}

func TestAddAccumulatesTurnsVerbatimBelowWatermark(t *testing.T) {
	m := New(DefaultConfig(), nil, nil)
	m.Add(Turn{Role: "user", Content: "hi"})
	m.Add(Turn{Role: "assistant", Content: "hello"})

	turns := m.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns verbatim, got %d", len(turns))
	}
}

func TestMaybeCompressLeavesLastMTurnsVerbatim(t *testing.T) {
	cfg := Config{RecentTurns: 8, VerbatimMinimum: 2, HighWatermark: 10, LowWatermark: 5}
	stub := &stubSummarizer{}
	m := New(cfg, stub, func(t Turn) int { return len(t.Content) })

	m.Add(Turn{Role: "user", Content: "aaaaaa"})
	m.Add(Turn{Role: "assistant", Content: "bbbbbb"})
	m.Add(Turn{Role: "user", Content: "cc"})
	m.Add(Turn{Role: "assistant", Content: "dd"})

	if err := m.MaybeCompress(context.Background()); err != nil {
		t.Fatalf("MaybeCompress: %v", err)
	}

	turns := m.Turns()
	if len(turns) != 3 {
		t.Fatalf("expected summary turn + 2 verbatim turns, got %d: %+v", len(turns), turns)
	}
	if !strings.Contains(turns[0].Content, "summary") {
		t.Fatalf("expected first turn to be the synthetic summary, got %+v", turns[0])
	}
	if turns[1].Content != "cc" || turns[2].Content != "dd" {
		t.Fatalf("expected the last 2 turns preserved verbatim, got %+v", turns[1:])
	}
	// both "aaaaaa" and "bbbbbb" must be compressed one turn at a time to
	// leave exactly the verbatim minimum (2) turns behind.
	if stub.calls != 2 {
		t.Fatalf("expected summarizer called once per compressed turn, got %d", stub.calls)
	}
}

// compactSummarizer always returns a short fixed string, standing in for a
// real SLM summary that actually shrinks the text it replaces (unlike
// stubSummarizer above, which echoes the source turn back and so never
// reduces the token count — useful for structural tests, not budget ones).
type compactSummarizer struct{ calls int }

func (s *compactSummarizer) Summarize(ctx context.Context, turns []Turn) (string, error) {
	s.calls++
	return ".", nil
}

func TestMaybeCompressSatisfiesLowWatermarkInvariant(t *testing.T) {
	cfg := Config{RecentTurns: 8, VerbatimMinimum: 2, HighWatermark: 20, LowWatermark: 6}
	compact := &compactSummarizer{}
	m := New(cfg, compact, func(t Turn) int { return len(t.Content) })

	m.Add(Turn{Role: "user", Content: "aaaaaaaaaa"})
	m.Add(Turn{Role: "assistant", Content: "bbbbbbbbbb"})
	m.Add(Turn{Role: "user", Content: "cccccccccc"})
	m.Add(Turn{Role: "user", Content: "cc"})
	m.Add(Turn{Role: "assistant", Content: "dd"})

	if err := m.MaybeCompress(context.Background()); err != nil {
		t.Fatalf("MaybeCompress: %v", err)
	}

	if got := m.tokenTotal(); got > cfg.LowWatermark {
		t.Fatalf("expected token total <= low watermark %d after compression, got %d", cfg.LowWatermark, got)
	}
	turns := m.Turns()
	last := turns[len(turns)-2:]
	if last[0].Content != "cc" || last[1].Content != "dd" {
		t.Fatalf("expected the last 2 turns preserved verbatim, got %+v", last)
	}
}

// TestMaybeCompressStopsAtVerbatimMinimumEvenOverWatermark documents the
// boundary case where the verbatim minimum alone already exceeds the low
// watermark: compression must still stop rather than loop forever or
// compress a protected turn.
func TestMaybeCompressStopsAtVerbatimMinimumEvenOverWatermark(t *testing.T) {
	cfg := Config{RecentTurns: 8, VerbatimMinimum: 2, HighWatermark: 9, LowWatermark: 1}
	stub := &stubSummarizer{}
	m := New(cfg, stub, func(t Turn) int { return len(t.Content) })
	m.Add(Turn{Role: "user", Content: "aaaaaa"})
	m.Add(Turn{Role: "user", Content: "cc"})
	m.Add(Turn{Role: "assistant", Content: "dd"})

	if err := m.MaybeCompress(context.Background()); err != nil {
		t.Fatalf("MaybeCompress: %v", err)
	}
	if len(m.turns) != cfg.VerbatimMinimum {
		t.Fatalf("expected exactly the verbatim minimum retained, got %d turns", len(m.turns))
	}
}

func TestMaybeCompressIsNoOpBelowHighWatermark(t *testing.T) {
	cfg := Config{RecentTurns: 8, VerbatimMinimum: 2, HighWatermark: 1000, LowWatermark: 500}
	stub := &stubSummarizer{}
	m := New(cfg, stub, func(t Turn) int { return len(t.Content) })
	m.Add(Turn{Role: "user", Content: "short"})

	if err := m.MaybeCompress(context.Background()); err != nil {
		t.Fatalf("MaybeCompress: %v", err)
	}
	if stub.calls != 0 {
		t.Fatalf("expected no summarization below the high watermark, got %d calls", stub.calls)
	}
	if len(m.Turns()) != 1 {
		t.Fatalf("expected the single turn untouched, got %d", len(m.Turns()))
	}
}

func TestMaybeCompressWithoutSummarizerFallsBackToConcatenation(t *testing.T) {
	cfg := Config{RecentTurns: 8, VerbatimMinimum: 1, HighWatermark: 5, LowWatermark: 2}
	m := New(cfg, nil, func(t Turn) int { return len(t.Content) })
	m.Add(Turn{Role: "user", Content: "aaaaaa"})
	m.Add(Turn{Role: "assistant", Content: "b"})

	if err := m.MaybeCompress(context.Background()); err != nil {
		t.Fatalf("MaybeCompress: %v", err)
	}
	turns := m.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected a fallback summary turn + 1 verbatim turn, got %d", len(turns))
	}
	if !strings.Contains(turns[0].Content, "aaaaaa") {
		t.Fatalf("expected the fallback summary to contain the compressed turn's content, got %q", turns[0].Content)
	}
}
