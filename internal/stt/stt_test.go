package stt

import (
	"testing"

	"github.com/lokutor-ai/vaak-pipeline/internal/bus"
)

func TestCoalescerDropsIntermediatePartials(t *testing.T) {
	var c Coalescer
	c.Offer(bus.TranscriptFrame{Text: "hel"})
	c.Offer(bus.TranscriptFrame{Text: "hello"})
	c.Offer(bus.TranscriptFrame{Text: "hello th"})

	got, ok := c.Drain()
	if !ok {
		t.Fatal("expected a pending transcript")
	}
	if got.Text != "hello th" {
		t.Fatalf("expected coalesced latest partial, got %q", got.Text)
	}

	if _, ok := c.Drain(); ok {
		t.Fatal("expected Drain to clear the pending transcript")
	}
}

func TestCoalescerNeverDropsAFinal(t *testing.T) {
	var c Coalescer
	c.Offer(bus.TranscriptFrame{Text: "hello there", IsFinal: true})
	c.Offer(bus.TranscriptFrame{Text: "ignored partial after final"})

	got, ok := c.Drain()
	if !ok || got.Text != "hello there" || !got.IsFinal {
		t.Fatalf("final transcript must survive subsequent Offer calls, got %+v ok=%v", got, ok)
	}
}

func TestDeepgramBatchLanguageSupport(t *testing.T) {
	p := NewDeepgramBatch("test-key")
	if !p.SupportsLanguage("en") {
		t.Fatal("expected en to be supported")
	}
	if p.SupportsLanguage("xx") {
		t.Fatal("expected unknown language code to be unsupported")
	}
	if !p.SupportsLanguage("") {
		t.Fatal("empty language (auto-detect) must be accepted")
	}
}
