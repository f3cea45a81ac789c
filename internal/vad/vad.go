// Package vad implements the Voice Activity Detector (spec §4.1): a
// {Silence, Probable-Speech, Speech, Probable-Silence} hysteresis state
// machine driven by a per-frame speech probability. Generalizes the
// teacher's RMSVAD (pkg/orchestrator/vad.go), which only tracked a binary
// speaking/not-speaking state, to the full four-state machine and a
// pluggable probability source so a real pretrained model can replace the
// RMS heuristic without touching the state machine.
package vad

import (
	"math"

	"github.com/lokutor-ai/vaak-pipeline/internal/bus"
)

// State is one of the four hysteresis states from spec §4.1.
type State string

const (
	StateSilence         State = "silence"
	StateProbableSpeech  State = "probable_speech"
	StateSpeech          State = "speech"
	StateProbableSilence State = "probable_silence"
)

// SpeechProbabilityModel yields a per-frame speech probability in [0,1]
// from raw PCM. The RMS heuristic below is the zero-dependency default; a
// real pretrained raw-waveform network plugs in behind this same interface
// (spec §9's capability-contract design note), so the VAD proper never
// depends on an inference runtime directly.
type SpeechProbabilityModel interface {
	Probability(frame []byte) (float64, error)
	Name() string
}

// Config holds the VAD's hysteresis thresholds (spec §4.1 defaults).
type Config struct {
	ThresholdHi float64 // Silence -> Probable-Speech above this
	ThresholdLo float64 // Speech -> Probable-Silence below this
	FramesOn    int     // consecutive above-threshold frames to confirm Speech (default 25 = 250ms @ 10ms frames)
	FramesOff   int     // consecutive below-threshold frames to confirm Silence (default 30 = 300ms)
}

// DefaultConfig returns the spec-documented defaults.
func DefaultConfig() Config {
	return Config{ThresholdHi: 0.5, ThresholdLo: 0.35, FramesOn: 25, FramesOff: 30}
}

// VAD is the per-session Voice Activity Detector. It is not safe for
// concurrent use from multiple goroutines; one VAD instance belongs to one
// session's audio-ingestion stage.
type VAD struct {
	cfg   Config
	model SpeechProbabilityModel

	state       State
	aboveCount  int
	belowCount  int
	speechStart int64
}

// New builds a VAD over the given probability model.
func New(cfg Config, model SpeechProbabilityModel) *VAD {
	return &VAD{cfg: cfg, model: model, state: StateSilence}
}

// State returns the VAD's current hysteresis state.
func (v *VAD) State() State { return v.state }

// Process consumes one AudioIn frame and returns the (possibly empty) set
// of frames to forward: the original AudioIn is never dropped (VAD cannot
// be skipped per spec §4.1), optionally preceded or followed by a
// VoiceStart/VoiceEnd frame when a transition fires.
func (v *VAD) Process(stage string, frame bus.AudioFrame) ([]bus.Frame, float64, error) {
	p, err := v.model.Probability(frame.Samples)
	if err != nil {
		// VAD backend failure is fatal per session (spec §4.1): surfaced as
		// an Error frame by the caller, not retried here.
		return nil, 0, err
	}

	out := make([]bus.Frame, 0, 2)

	switch v.state {
	case StateSilence:
		if p > v.cfg.ThresholdHi {
			v.state = StateProbableSpeech
			v.aboveCount = 1
			v.speechStart = frame.TimestampMs
		}
	case StateProbableSpeech:
		if p > v.cfg.ThresholdHi {
			v.aboveCount++
			if v.aboveCount >= v.cfg.FramesOn {
				v.state = StateSpeech
				out = append(out, bus.VoiceStart(stage))
			}
		} else {
			v.state = StateSilence
			v.aboveCount = 0
		}
	case StateSpeech:
		if p < v.cfg.ThresholdLo {
			v.state = StateProbableSilence
			v.belowCount = 1
		}
	case StateProbableSilence:
		if p < v.cfg.ThresholdLo {
			v.belowCount++
			if v.belowCount >= v.cfg.FramesOff {
				v.state = StateSilence
				v.belowCount = 0
				duration := frame.TimestampMs - v.speechStart
				if duration < 0 {
					duration = 0
				}
				out = append(out, bus.VoiceEnd(stage, duration))
			}
		} else {
			v.state = StateSpeech
			v.belowCount = 0
		}
	}

	out = append(out, bus.AudioIn(stage, frame))
	return out, p, nil
}

// Reset clears all hysteresis state, as when starting a new session.
func (v *VAD) Reset() {
	v.state = StateSilence
	v.aboveCount = 0
	v.belowCount = 0
	v.speechStart = 0
}

// RMSModel is the zero-dependency default SpeechProbabilityModel, grounded
// on the teacher's RMSVAD.calculateRMS, re-expressed as a probability via a
// soft-knee mapping instead of the teacher's hard threshold compare (the
// hysteresis itself now lives in VAD, not in the model).
type RMSModel struct {
	// Knee is the RMS value mapped to p=0.5; chosen so 16-bit PCM speech at
	// typical mic gain crosses it.
	Knee float64
}

// NewRMSModel builds the default RMS-energy probability model.
func NewRMSModel() *RMSModel { return &RMSModel{Knee: 0.06} }

func (m *RMSModel) Name() string { return "rms_energy" }

func (m *RMSModel) Probability(chunk []byte) (float64, error) {
	if len(chunk) < 2 {
		return 0, nil
	}
	var sum float64
	n := 0
	for i := 0; i+1 < len(chunk); i += 2 {
		sample := int16(chunk[i]) | int16(chunk[i+1])<<8
		f := float64(sample) / 32768.0
		sum += f * f
		n++
	}
	if n == 0 {
		return 0, nil
	}
	rms := math.Sqrt(sum / float64(n))
	knee := m.Knee
	if knee <= 0 {
		knee = 0.06
	}
	// logistic squashing centered on Knee so probability rises smoothly
	// rather than stepping, giving the hysteresis machine a real gradient
	// to hold onto during Probable-* states.
	return 1.0 / (1.0 + math.Exp(-12*(rms-knee)/knee)), nil
}
