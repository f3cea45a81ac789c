package session

import (
	"testing"

	"github.com/lokutor-ai/vaak-pipeline/internal/memory"
)

func newTestSession() *Session {
	mem := memory.New(memory.DefaultConfig(), nil, nil)
	return New("sess-1", "en", mem, VoiceConfig{Speed: 1, Pitch: 0, Volume: 1})
}

func TestNewSetsProcessorContextSessionAndLanguage(t *testing.T) {
	s := newTestSession()
	if s.PC.SessionID != "sess-1" {
		t.Fatalf("expected session id sess-1, got %s", s.PC.SessionID)
	}
	if s.PC.Language != "en" {
		t.Fatalf("expected language en, got %s", s.PC.Language)
	}
}

func TestAddTurnAccumulatesHistory(t *testing.T) {
	s := newTestSession()
	s.AddTurn(Turn{Role: "user", Content: "hello"})
	s.AddTurn(Turn{Role: "assistant", Content: "hi there"})

	hist := s.History()
	if len(hist) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(hist))
	}
	if hist[0].Content != "hello" || hist[1].Content != "hi there" {
		t.Fatalf("unexpected history contents: %+v", hist)
	}
}

func TestHistoryReturnsACopy(t *testing.T) {
	s := newTestSession()
	s.AddTurn(Turn{Role: "user", Content: "one"})

	hist := s.History()
	hist[0].Content = "mutated"

	if s.History()[0].Content != "one" {
		t.Fatal("History() must return a defensive copy")
	}
}

func TestAddTurnRecordsTruncation(t *testing.T) {
	s := newTestSession()
	s.AddTurn(Turn{Role: "assistant", Truncated: true, CutAtMs: 4200})

	hist := s.History()
	if !hist[0].Truncated || hist[0].CutAtMs != 4200 {
		t.Fatalf("expected truncated turn with CutAtMs=4200, got %+v", hist[0])
	}
}

func TestSetVoiceAndCurrentVoice(t *testing.T) {
	s := newTestSession()
	s.SetVoice(VoiceConfig{VoiceID: "F1", Speed: 1.2, Pitch: 0.1, Volume: 0.9})

	v := s.CurrentVoice()
	if v.VoiceID != "F1" || v.Speed != 1.2 {
		t.Fatalf("unexpected voice config: %+v", v)
	}
}
