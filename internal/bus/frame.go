// Package bus defines the single tagged frame type that flows across every
// pipeline stage, plus the per-session context carried alongside it.
package bus

import "fmt"

// Kind tags the variant carried by a Frame.
type Kind string

const (
	KindAudioIn           Kind = "audio_in"
	KindTranscriptPartial Kind = "transcript_partial"
	KindTranscriptFinal   Kind = "transcript_final"
	KindLLMChunk          Kind = "llm_chunk"
	KindSentence          Kind = "sentence"
	KindAudioOut          Kind = "audio_out"
	KindVoiceStart        Kind = "voice_start"
	KindVoiceEnd          Kind = "voice_end"
	KindBargeIn           Kind = "barge_in"
	KindRagResults        Kind = "rag_results"
	KindControl           Kind = "control"
	KindMetrics           Kind = "metrics"
	KindError             Kind = "error"
	KindEndOfStream       Kind = "end_of_stream"
)

// Encoding of PCM samples carried by an AudioFrame.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm16"
	EncodingF32   Encoding = "f32"
)

// AudioFrame is an immutable block of PCM samples. Sequence numbers are
// gap-free within one session; timestamps are monotonically non-decreasing.
type AudioFrame struct {
	Samples      []byte
	SampleRateHz int
	Channels     int
	Encoding     Encoding
	TimestampMs  int64
	Seq          uint64
}

// TranscriptFrame is one recognition result, partial or final.
type TranscriptFrame struct {
	Text       string
	Confidence float64
	IsFinal    bool
	Language   string
	Words      []WordTiming
}

// WordTiming is a per-word start/end offset within an utterance.
type WordTiming struct {
	Word     string
	StartMs  int64
	EndMs    int64
}

// ControlKind selects the variant of a ControlFrame payload.
type ControlKind string

const (
	ControlFlush     ControlKind = "flush"
	ControlReset     ControlKind = "reset"
	ControlConfigure ControlKind = "configure"
	ControlGetMetric ControlKind = "get_metrics"
)

// ControlPayload carries a priority-sideband management instruction.
type ControlPayload struct {
	Kind      ControlKind
	Configure map[string]any
}

// MetricsPayload is one telemetry sample pushed by a stage.
type MetricsPayload struct {
	Name      string
	Tags      map[string]string
	Value     float64
}

// Document is one retrieved reference, shared immutably via reference
// counting by convention (callers never mutate a Document after handoff).
type Document struct {
	ID      string
	Content string
	Score   float64
	Meta    map[string]string
}

// Frame is the tagged union flowing between pipeline stages. Exactly one
// payload field is populated according to Kind. Every frame carries the
// stage name that produced it, for tracing.
type Frame struct {
	Kind  Kind
	Stage string

	Audio      *AudioFrame
	Transcript *TranscriptFrame

	LLMText    string
	LLMIsFinal bool

	SentenceText  string
	SentenceLang  string
	SentenceIndex int

	VoiceEndDurationMs int64

	BargeInPositionMs int64
	BargeInTranscript string

	RagQuery string
	RagDocs  []Document

	Control *ControlPayload
	Metrics *MetricsPayload

	ErrStage       string
	ErrMessage     string
	ErrRecoverable bool
}

// IsEndOfStream reports whether f is the stream terminator.
func (f Frame) IsEndOfStream() bool { return f.Kind == KindEndOfStream }

// IsError reports whether f carries an Error payload.
func (f Frame) IsError() bool { return f.Kind == KindError }

// IsControl reports whether f is a sideband control instruction.
func (f Frame) IsControl() bool { return f.Kind == KindControl }

func (f Frame) String() string {
	return fmt.Sprintf("Frame{kind=%s stage=%s}", f.Kind, f.Stage)
}

// AudioIn builds a Kind=AudioIn frame.
func AudioIn(stage string, a AudioFrame) Frame {
	return Frame{Kind: KindAudioIn, Stage: stage, Audio: &a}
}

// TranscriptPartialFrame builds a Kind=TranscriptPartial frame.
func TranscriptPartialFrame(stage string, t TranscriptFrame) Frame {
	t.IsFinal = false
	return Frame{Kind: KindTranscriptPartial, Stage: stage, Transcript: &t}
}

// TranscriptFinalFrame builds a Kind=TranscriptFinal frame.
func TranscriptFinalFrame(stage string, t TranscriptFrame) Frame {
	t.IsFinal = true
	return Frame{Kind: KindTranscriptFinal, Stage: stage, Transcript: &t}
}

// LLMChunkFrame builds a Kind=LLMChunk frame.
func LLMChunkFrame(stage, text string, isFinal bool) Frame {
	return Frame{Kind: KindLLMChunk, Stage: stage, LLMText: text, LLMIsFinal: isFinal}
}

// SentenceFrame builds a Kind=Sentence frame.
func SentenceFrame(stage, text, lang string, index int) Frame {
	return Frame{Kind: KindSentence, Stage: stage, SentenceText: text, SentenceLang: lang, SentenceIndex: index}
}

// AudioOut builds a Kind=AudioOut frame.
func AudioOut(stage string, a AudioFrame) Frame {
	return Frame{Kind: KindAudioOut, Stage: stage, Audio: &a}
}

// VoiceStart builds a Kind=VoiceStart frame.
func VoiceStart(stage string) Frame {
	return Frame{Kind: KindVoiceStart, Stage: stage}
}

// VoiceEnd builds a Kind=VoiceEnd frame.
func VoiceEnd(stage string, durationMs int64) Frame {
	return Frame{Kind: KindVoiceEnd, Stage: stage, VoiceEndDurationMs: durationMs}
}

// BargeIn builds a Kind=BargeIn frame.
func BargeIn(stage string, positionMs int64, transcript string) Frame {
	return Frame{Kind: KindBargeIn, Stage: stage, BargeInPositionMs: positionMs, BargeInTranscript: transcript}
}

// EndOfStream builds the terminal frame for a stream.
func EndOfStream(stage string) Frame {
	return Frame{Kind: KindEndOfStream, Stage: stage}
}

// ErrorFrame builds a Kind=Error frame.
func ErrorFrame(stage, message string, recoverable bool) Frame {
	return Frame{Kind: KindError, Stage: stage, ErrStage: stage, ErrMessage: message, ErrRecoverable: recoverable}
}

// Control builds a Kind=Control sideband frame.
func Control(stage string, p ControlPayload) Frame {
	return Frame{Kind: KindControl, Stage: stage, Control: &p}
}
