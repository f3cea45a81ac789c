package tts

import (
	"context"
	"testing"
)

func TestVoiceConfigClampsOutOfRangeValues(t *testing.T) {
	v := VoiceConfig{Speed: 5.0, Pitch: -3.0, Volume: 10.0}.Clamp()
	if v.Speed != 2.0 {
		t.Fatalf("expected speed clamped to 2.0, got %v", v.Speed)
	}
	if v.Pitch != -1.0 {
		t.Fatalf("expected pitch clamped to -1.0, got %v", v.Pitch)
	}
	if v.Volume != 2.0 {
		t.Fatalf("expected volume clamped to 2.0, got %v", v.Volume)
	}
}

func TestVoiceConfigLeavesInRangeValuesAlone(t *testing.T) {
	v := VoiceConfig{Speed: 1.2, Pitch: 0.1, Volume: 1.0}.Clamp()
	if v.Speed != 1.2 || v.Pitch != 0.1 || v.Volume != 1.0 {
		t.Fatalf("expected in-range values unchanged, got %+v", v)
	}
}

type stubTTS struct {
	aborted bool
}

func (s *stubTTS) Name() string { return "stub" }
func (s *stubTTS) Synthesize(ctx context.Context, text string, voice VoiceConfig) ([]byte, error) {
	return []byte(text), nil
}
func (s *stubTTS) StreamSynthesize(ctx context.Context, text string, voice VoiceConfig, onChunk AudioChunkCallback) error {
	return onChunk([]byte(text))
}
func (s *stubTTS) Abort() error { s.aborted = true; return nil }

func TestPipelineDeliversResultsInIndexOrder(t *testing.T) {
	p := NewPipeline(&stubTTS{}, 2)
	ctx := context.Background()

	texts := []string{"three", "two", "one"}
	for i, tx := range texts {
		p.Submit(ctx, SentenceJob{Index: i, Text: tx})
	}

	var got []string
	for i := 0; i < len(texts); i++ {
		r := <-p.Results()
		if r.Err != nil {
			t.Fatalf("unexpected error: %v", r.Err)
		}
		got = append(got, string(r.Audio))
	}
	p.Close()

	for i, want := range texts {
		if got[i] != want {
			t.Fatalf("result %d: want %q, got %q (results must arrive in submission/index order)", i, want, got[i])
		}
	}
}
