// Package stt implements the Streaming STT contract (spec §4.3): audio in,
// partial/final TranscriptFrame out. Provider contract is grounded on the
// teacher's pkg/orchestrator.STTProvider/StreamingSTTProvider interfaces;
// concrete batch providers are adapted from pkg/providers/stt/*.go. The
// teacher declares StreamTranscribe but never implements it on a real
// provider — this package adds a genuine streaming implementation
// (DeepgramStream) so the contract is actually exercised.
package stt

import (
	"context"

	"github.com/lokutor-ai/vaak-pipeline/internal/bus"
)

// Provider transcribes a complete utterance in one call.
type Provider interface {
	Transcribe(ctx context.Context, audio []byte, lang string) (bus.TranscriptFrame, error)
	SupportsLanguage(lang string) bool
	Name() string
}

// TranscriptCallback receives one partial or final transcript.
type TranscriptCallback func(bus.TranscriptFrame) error

// StreamingProvider additionally supports incremental recognition: audio is
// pushed onto the returned channel, and partial/final transcripts flow back
// through onTranscript, per spec §4.3's three ordering requirements:
// (i) at least one partial per configured interval while an utterance is in
// progress, (ii) exactly one is_final=true per utterance boundary, (iii)
// partial_k monotonically extends partial_{k-1}.
type StreamingProvider interface {
	Provider
	StreamTranscribe(ctx context.Context, lang string, onTranscript TranscriptCallback) (chan<- []byte, error)
}

// Coalescer enforces the backpressure rule from spec §4.3: "if the consumer
// does not drain partials, the STT must coalesce (drop intermediate
// partials) rather than block audio ingestion." It is composed into a
// StreamingProvider's dispatch loop rather than duplicated per backend.
type Coalescer struct {
	pending  *bus.TranscriptFrame
	hasFinal bool
}

// Offer records a partial/final, replacing any undelivered partial.
// Finals are never dropped: once hasFinal is set, subsequent Offer calls
// for the same utterance are ignored until Reset (spec: "exactly one
// is_final=true frame per utterance boundary").
func (c *Coalescer) Offer(t bus.TranscriptFrame) {
	if c.hasFinal {
		return
	}
	c.pending = &t
	if t.IsFinal {
		c.hasFinal = true
	}
}

// Drain returns and clears the coalesced pending transcript, if any.
func (c *Coalescer) Drain() (bus.TranscriptFrame, bool) {
	if c.pending == nil {
		return bus.TranscriptFrame{}, false
	}
	t := *c.pending
	c.pending = nil
	return t, true
}

// Reset prepares the coalescer for the next utterance.
func (c *Coalescer) Reset() {
	c.pending = nil
	c.hasFinal = false
}
