// Package config loads the pipeline's own tunables (VAD thresholds, chunker
// strategy, barge-in policy, timeouts) from YAML with environment-variable
// overrides under a single LOKUTOR_ prefix (spec §6). Domain content (slot
// definitions, stage graphs, tools, prompts) is loaded the same way but is
// not this package's concern beyond providing the file-load primitive; the
// domain schemas live in internal/dialog and internal/tools.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the single documented override prefix, per spec §6.
const EnvPrefix = "LOKUTOR_"

// VAD holds Voice Activity Detector tunables (spec §4.1).
type VAD struct {
	ThresholdHi   float64 `yaml:"threshold_hi" validate:"gt=0,lt=1"`
	ThresholdLo   float64 `yaml:"threshold_lo" validate:"gt=0,lt=1"`
	FramesOn      int     `yaml:"frames_on" validate:"gt=0"`
	FramesOff     int     `yaml:"frames_off" validate:"gt=0"`
	FrameMs       int     `yaml:"frame_ms" validate:"gt=0"`
}

// TurnDetector holds Hybrid Turn Detector tunables (spec §4.2).
type TurnDetector struct {
	BaseSilenceMs    int     `yaml:"base_silence_ms" validate:"gt=0"`
	SemanticWeight   float64 `yaml:"semantic_weight" validate:"gte=0,lte=1"`
	MinSilenceMs     int     `yaml:"min_silence_ms" validate:"gt=0"`
	MaxSilenceMs     int     `yaml:"max_silence_ms" validate:"gt=0"`
	MinSpeechMs      int     `yaml:"min_speech_ms" validate:"gt=0"`
}

// Chunker holds Sentence/Word Chunker tunables (spec §4.5).
type Chunker struct {
	Strategy        string `yaml:"strategy" validate:"oneof=sentence word_count time_target"`
	WordCount       int    `yaml:"word_count" validate:"gt=0"`
	TimeTargetMs    int    `yaml:"time_target_ms" validate:"gt=0"`
	CharsPerSecond  float64 `yaml:"chars_per_second" validate:"gt=0"`
}

// BargeIn holds Orchestrator barge-in policy tunables (spec §4.7).
type BargeIn struct {
	Action   string `yaml:"action" validate:"oneof=pause cancel ignore"`
	GuardMs  int    `yaml:"guard_ms" validate:"gt=0"`
}

// Timeouts holds per-stage request deadlines (spec §4.7, §5).
type Timeouts struct {
	STTMs int `yaml:"stt_ms" validate:"gt=0"`
	LLMMs int `yaml:"llm_ms" validate:"gt=0"`
	TTSMs int `yaml:"tts_ms" validate:"gt=0"`
}

// Memory holds Conversation Memory watermark tunables (spec §4.10).
type Memory struct {
	RecentTurns      int `yaml:"recent_turns" validate:"gt=0"`
	VerbatimMinimum  int `yaml:"verbatim_minimum" validate:"gt=0"`
	HighWatermark    int `yaml:"high_watermark_tokens" validate:"gt=0"`
	LowWatermark     int `yaml:"low_watermark_tokens" validate:"gt=0"`
}

// Pipeline is the root configuration document for one deployment.
type Pipeline struct {
	ChannelCapacity int          `yaml:"channel_capacity" validate:"gt=0"`
	VAD             VAD          `yaml:"vad"`
	TurnDetector    TurnDetector `yaml:"turn_detector"`
	Chunker         Chunker      `yaml:"chunker"`
	BargeIn         BargeIn      `yaml:"barge_in"`
	Timeouts        Timeouts     `yaml:"timeouts"`
	Memory          Memory       `yaml:"memory"`
}

// Default returns the documented defaults from spec.md §4.1–§4.10.
func Default() Pipeline {
	return Pipeline{
		ChannelCapacity: 32,
		VAD: VAD{
			ThresholdHi: 0.5,
			ThresholdLo: 0.35,
			FramesOn:    25,
			FramesOff:   30,
			FrameMs:     10,
		},
		TurnDetector: TurnDetector{
			BaseSilenceMs:  500,
			SemanticWeight: 0.6,
			MinSilenceMs:   200,
			MaxSilenceMs:   1000,
			MinSpeechMs:    200,
		},
		Chunker: Chunker{
			Strategy:       "sentence",
			WordCount:      8,
			TimeTargetMs:   400,
			CharsPerSecond: 15,
		},
		BargeIn: BargeIn{
			Action:  "cancel",
			GuardMs: 150,
		},
		Timeouts: Timeouts{
			STTMs: 30_000,
			LLMMs: 60_000,
			TTSMs: 30_000,
		},
		Memory: Memory{
			RecentTurns:     8,
			VerbatimMinimum: 4,
			HighWatermark:   3072,
			LowWatermark:    2048,
		},
	}
}

// Load reads a YAML document from path, applies LOKUTOR_-prefixed
// environment overrides, and validates the result. A rejected empty stage
// graph belongs to the dialog package's own loader, not here — this loader
// only guards the pipeline's own numeric tunables (spec §8 boundary:
// "Configuration with an empty stage graph is rejected at startup").
func Load(path string) (Pipeline, error) {
	p := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Pipeline{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return Pipeline{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnvOverrides(&p)

	v := validator.New()
	if err := v.Struct(p); err != nil {
		return Pipeline{}, fmt.Errorf("config: invalid: %w", err)
	}
	return p, nil
}

// applyEnvOverrides walks a small fixed set of documented override keys
// rather than using reflection over struct tags, matching the teacher's
// direct os.Getenv style in cmd/agent/main.go.
func applyEnvOverrides(p *Pipeline) {
	if v, ok := envInt("CHANNEL_CAPACITY"); ok {
		p.ChannelCapacity = v
	}
	if v, ok := envFloat("VAD_THRESHOLD_HI"); ok {
		p.VAD.ThresholdHi = v
	}
	if v, ok := envFloat("VAD_THRESHOLD_LO"); ok {
		p.VAD.ThresholdLo = v
	}
	if v, ok := envString("CHUNKER_STRATEGY"); ok {
		p.Chunker.Strategy = v
	}
	if v, ok := envString("BARGE_IN_ACTION"); ok {
		p.BargeIn.Action = v
	}
	if v, ok := envInt("TIMEOUTS_LLM_MS"); ok {
		p.Timeouts.LLMMs = v
	}
}

func envString(suffix string) (string, bool) {
	v := os.Getenv(EnvPrefix + suffix)
	return v, v != ""
}

func envInt(suffix string) (int, bool) {
	s, ok := envString(suffix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(suffix string) (float64, bool) {
	s, ok := envString(suffix)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
