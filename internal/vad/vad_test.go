package vad

import (
	"testing"

	"github.com/lokutor-ai/vaak-pipeline/internal/bus"
)

type fixedModel struct{ p float64 }

func (f fixedModel) Name() string { return "fixed" }
func (f fixedModel) Probability(_ []byte) (float64, error) { return f.p, nil }

func frameAt(ts int64) bus.AudioFrame {
	return bus.AudioFrame{Samples: make([]byte, 320), SampleRateHz: 16000, TimestampMs: ts}
}

func TestVADEmitsVoiceStartAfterConfirmedFrames(t *testing.T) {
	cfg := Config{ThresholdHi: 0.5, ThresholdLo: 0.35, FramesOn: 3, FramesOff: 3}
	v := New(cfg, fixedModel{p: 0.9})

	var sawStart bool
	for i := 0; i < 3; i++ {
		frames, _, err := v.Process("vad", frameAt(int64(i*10)))
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		for _, f := range frames {
			if f.Kind == bus.KindVoiceStart {
				sawStart = true
			}
		}
	}
	if !sawStart {
		t.Fatal("expected VoiceStart after FramesOn confirmed frames")
	}
	if v.State() != StateSpeech {
		t.Fatalf("expected state Speech, got %s", v.State())
	}
}

func TestVADDoesNotConfirmOnSpike(t *testing.T) {
	cfg := Config{ThresholdHi: 0.5, ThresholdLo: 0.35, FramesOn: 5, FramesOff: 5}
	v := New(cfg, fixedModel{p: 0.9})

	v.Process("vad", frameAt(0))
	v.Process("vad", frameAt(10))
	// drop back below threshold before confirmation
	v2 := New(cfg, fixedModel{p: 0.1})
	v.model = v2.model
	frames, _, _ := v.Process("vad", frameAt(20))
	for _, f := range frames {
		if f.Kind == bus.KindVoiceStart {
			t.Fatal("did not expect VoiceStart on a spike shorter than FramesOn")
		}
	}
	if v.State() != StateSilence {
		t.Fatalf("expected reversion to Silence, got %s", v.State())
	}
}

func TestVADEmitsVoiceEndAfterDebounce(t *testing.T) {
	cfg := Config{ThresholdHi: 0.5, ThresholdLo: 0.35, FramesOn: 2, FramesOff: 2}
	hi := fixedModel{p: 0.9}
	lo := fixedModel{p: 0.1}

	v := New(cfg, hi)
	v.Process("vad", frameAt(0))
	v.Process("vad", frameAt(10))
	if v.State() != StateSpeech {
		t.Fatalf("expected Speech, got %s", v.State())
	}

	v.model = lo
	v.Process("vad", frameAt(20))
	frames, _, _ := v.Process("vad", frameAt(30))

	var sawEnd bool
	var duration int64
	for _, f := range frames {
		if f.Kind == bus.KindVoiceEnd {
			sawEnd = true
			duration = f.VoiceEndDurationMs
		}
	}
	if !sawEnd {
		t.Fatal("expected VoiceEnd after FramesOff below-threshold frames")
	}
	if duration != 30 {
		t.Fatalf("expected duration_ms=30 (speech started at t=0), got %d", duration)
	}
}

func TestVADAlwaysForwardsAudioIn(t *testing.T) {
	v := New(DefaultConfig(), fixedModel{p: 0.0})
	frames, _, err := v.Process("vad", frameAt(0))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	var sawAudio bool
	for _, f := range frames {
		if f.Kind == bus.KindAudioIn {
			sawAudio = true
		}
	}
	if !sawAudio {
		t.Fatal("VAD must never drop the forwarded AudioIn frame")
	}
}

func TestRMSModelProbabilityRange(t *testing.T) {
	m := NewRMSModel()
	silence := make([]byte, 320)
	p, err := m.Probability(silence)
	if err != nil {
		t.Fatalf("Probability: %v", err)
	}
	if p < 0 || p > 1 {
		t.Fatalf("probability out of [0,1]: %v", p)
	}
	if p > 0.5 {
		t.Fatalf("expected low probability for silence, got %v", p)
	}
}
