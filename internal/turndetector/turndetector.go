// Package turndetector implements the Hybrid Turn Detector (spec §4.2):
// it decides when the user has finished speaking by combining a VoiceEnd
// event with an adaptive silence threshold derived from a semantic
// completeness score. Generalizes the teacher's speechEndHold grace-period
// logic in pkg/orchestrator/managed_stream.go, which used a single fixed
// debounce, into the documented per-utterance adaptive formula.
package turndetector

import "math"

// SemanticScorer estimates how likely the latest transcript is a complete
// utterance, in [0,1]. Deliberately cheap per spec §9: a heuristic or small
// classifier, never authoritative.
type SemanticScorer interface {
	Score(transcript string) float64
}

// HeuristicScorer is the zero-dependency default: scores completeness by
// terminal punctuation and a minimum word count, with no model dependency.
type HeuristicScorer struct{}

func (HeuristicScorer) Score(transcript string) float64 {
	t := transcript
	if t == "" {
		return 0
	}
	score := 0.3
	runes := []rune(t)
	last := runes[len(runes)-1]
	switch last {
	case '.', '?', '!', '।':
		score += 0.5
	}
	words := 1
	for _, r := range t {
		if r == ' ' {
			words++
		}
	}
	if words >= 3 {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	return score
}

// Config holds the adaptive-silence formula's tunables (spec §4.2).
type Config struct {
	BaseSilenceMs  int     // default 500
	Weight         float64 // default 0.6
	MinSilenceMs   int     // default 200
	MaxSilenceMs   int     // default 1000
	MinSpeechMs    int64   // default 200
}

// DefaultConfig returns the spec-documented defaults.
func DefaultConfig() Config {
	return Config{BaseSilenceMs: 500, Weight: 0.6, MinSilenceMs: 200, MaxSilenceMs: 1000, MinSpeechMs: 200}
}

// Detector tracks one utterance's turn-end decision. Not safe for
// concurrent use; one Detector belongs to one session.
type Detector struct {
	cfg    Config
	scorer SemanticScorer

	voiceEnded       bool
	voiceEndAtMs     int64
	speechDurationMs int64
	lastTranscript   string
	sawNonEmpty      bool
	finalArrived     bool
	turnEnded        bool
}

// New builds a turn Detector.
func New(cfg Config, scorer SemanticScorer) *Detector {
	if scorer == nil {
		scorer = HeuristicScorer{}
	}
	return &Detector{cfg: cfg, scorer: scorer}
}

// OnVoiceEnd records that VAD fired VoiceEnd with the given speech
// duration.
func (d *Detector) OnVoiceEnd(speechDurationMs int64) {
	d.voiceEnded = true
	d.speechDurationMs = speechDurationMs
}

// OnTranscript records a partial or final transcript for the in-progress
// utterance. A non-empty TranscriptFinal fires TurnEnd immediately per
// spec §4.2 ("If a TranscriptFinal arrives before (a) is satisfied, TurnEnd
// fires immediately").
func (d *Detector) OnTranscript(text string, isFinal bool) (turnEnd bool) {
	if text != "" {
		d.sawNonEmpty = true
		d.lastTranscript = text
	}
	if isFinal && text != "" {
		d.finalArrived = true
		d.turnEnded = true
		return true
	}
	return false
}

// adjustedSilenceMs computes the per-utterance effective silence threshold.
func (d *Detector) adjustedSilenceMs() int {
	score := d.scorer.Score(d.lastTranscript)
	ms := float64(d.cfg.BaseSilenceMs) * (1 - d.cfg.Weight*score)
	return int(math.Max(float64(d.cfg.MinSilenceMs), math.Min(float64(d.cfg.MaxSilenceMs), ms)))
}

// Tick reports whether TurnEnd should fire given elapsedSinceVoiceEndMs
// milliseconds have passed since VoiceEnd was recorded. Conditions per
// spec §4.2: (a) VoiceEnd fired and silence since it >= adjusted threshold,
// (b) minimum speech duration observed, (c) at least one non-empty
// transcript exists.
func (d *Detector) Tick(elapsedSinceVoiceEndMs int64) bool {
	if d.turnEnded {
		return false // already fired for this utterance
	}
	if d.finalArrived {
		d.turnEnded = true
		return true
	}
	if !d.voiceEnded {
		return false
	}
	if d.speechDurationMs < d.cfg.MinSpeechMs {
		return false
	}
	if !d.sawNonEmpty {
		return false
	}
	threshold := int64(d.adjustedSilenceMs())
	if elapsedSinceVoiceEndMs >= threshold {
		d.turnEnded = true
		return true
	}
	return false
}

// Reset prepares the detector for the next utterance within the session.
func (d *Detector) Reset() {
	*d = Detector{cfg: d.cfg, scorer: d.scorer}
}
