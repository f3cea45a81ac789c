// Package perrors defines the pipeline's structured error taxonomy (spec §7),
// built in the teacher's sentinel-error-plus-wrapping idiom
// (pkg/orchestrator/errors.go) rather than a custom exception hierarchy.
package perrors

import "errors"

// Kind classifies an error independent of transport, per spec §7.
type Kind string

const (
	KindAudio       Kind = "audio"
	KindRecognition Kind = "recognition"
	KindGeneration  Kind = "generation"
	KindSynthesis   Kind = "synthesis"
	KindTool        Kind = "tool"
	KindSession     Kind = "session"
	KindFatal       Kind = "fatal"
)

// Sentinel errors, wrapped with %w by callers that need to add context —
// same pattern as the teacher's errors.go.
var (
	ErrEmptyTranscription  = errors.New("transcription returned empty text")
	ErrTranscriptionFailed = errors.New("speech-to-text transcription failed")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrLLMUnavailable      = errors.New("language model backend unreachable")
	ErrLLMTimeout          = errors.New("language model generation timed out")
	ErrContextTooLong      = errors.New("conversation context exceeds model limit")
	ErrLLMFailed           = errors.New("language model generation failed")
	ErrTTSFailed           = errors.New("text-to-speech synthesis failed")
	ErrVoiceMissing        = errors.New("requested voice is not available")
	ErrNilProvider         = errors.New("required provider is nil")
	ErrContextCancelled    = errors.New("operation cancelled by context")
	ErrToolInvalidParams   = errors.New("tool invocation had invalid parameters")
	ErrToolExecution       = errors.New("tool execution failed")
	ErrSessionStoreDown    = errors.New("session store unreachable")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrEmptyStageGraph     = errors.New("dialog stage graph is empty")
)

// PipelineError is the structured error carried in an Error frame:
// {stage, kind, message, recoverable}.
type PipelineError struct {
	Stage       string
	Kind        Kind
	Message     string
	Recoverable bool
	Cause       error
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return e.Stage + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Stage + ": " + e.Message
}

func (e *PipelineError) Unwrap() error { return e.Cause }

// New builds a PipelineError.
func New(stage string, kind Kind, message string, recoverable bool, cause error) *PipelineError {
	return &PipelineError{Stage: stage, Kind: kind, Message: message, Recoverable: recoverable, Cause: cause}
}
