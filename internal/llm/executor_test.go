package llm

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	name  string
	text  string
	err   error
	delay bool
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(ctx context.Context, req Request, onChunk ChunkCallback) error {
	if s.err != nil {
		return s.err
	}
	if err := onChunk(s.text, false); err != nil {
		return err
	}
	return onChunk("", true)
}

func TestQualityCheckPasses(t *testing.T) {
	q := DefaultQualityCheck()
	if !q.Passes("The rate starts at 9.5% per annum.") {
		t.Fatal("expected a normal sentence to pass")
	}
	if q.Passes("") {
		t.Fatal("empty text must fail")
	}
	if q.Passes("I cannot help with that request.") {
		t.Fatal("refusal phrase must fail")
	}
	if q.Passes("the rate is ") {
		t.Fatal("text ending mid-word (trailing space) must fail")
	}
}

func TestSLMFirstUsesSLMWhenItPasses(t *testing.T) {
	slm := &stubProvider{name: "slm", text: "The rate starts at 9.5%."}
	big := &stubProvider{name: "llm", text: "should not be used"}
	e := New(slm, big, DefaultQualityCheck(), nil)

	var got string
	err := e.Generate(context.Background(), ModeSLMFirst, Request{}, func(text string, isFinal bool) error {
		if text != "" {
			got = text
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "The rate starts at 9.5%." {
		t.Fatalf("expected SLM output, got %q", got)
	}
}

func TestSLMFirstFallsBackToLLMOnRefusal(t *testing.T) {
	slm := &stubProvider{name: "slm", text: "I cannot help with that."}
	big := &stubProvider{name: "llm", text: "Here is the answer."}
	e := New(slm, big, DefaultQualityCheck(), nil)

	var got string
	err := e.Generate(context.Background(), ModeSLMFirst, Request{}, func(text string, isFinal bool) error {
		if text != "" {
			got = text
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "Here is the answer." {
		t.Fatalf("expected fallback to LLM tier, got %q", got)
	}
}

func TestRaceParallelReturnsFirstQualifying(t *testing.T) {
	slm := &stubProvider{name: "slm", text: "quick answer."}
	big := &stubProvider{name: "llm", text: "slow answer."}
	e := New(slm, big, DefaultQualityCheck(), nil)

	var got string
	err := e.Generate(context.Background(), ModeRaceParallel, Request{}, func(text string, isFinal bool) error {
		got += text
		return nil
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "quick answer." && got != "slow answer." {
		t.Fatalf("expected exactly one tier's complete reply, got %q", got)
	}
}

func TestRaceParallelPropagatesErrorWhenBothFail(t *testing.T) {
	slm := &stubProvider{name: "slm", err: errors.New("slm down")}
	big := &stubProvider{name: "llm", err: errors.New("llm down")}
	e := New(slm, big, DefaultQualityCheck(), nil)

	err := e.Generate(context.Background(), ModeRaceParallel, Request{}, func(string, bool) error { return nil })
	if err == nil {
		t.Fatal("expected an error when both tiers fail")
	}
}
