package llm

import (
	"context"
	"strings"
	"sync"
)

// Mode selects the Speculative LLM Executor's execution strategy (spec §4.4).
type Mode string

const (
	ModeSLMFirst        Mode = "slm_first"
	ModeRaceParallel     Mode = "race_parallel"
	ModeHybridStreaming  Mode = "hybrid_streaming"
)

// ToolInvoker executes one tool call and returns its result text, appended
// as a tool-role message by the executor (spec §4.4, §4.9).
type ToolInvoker interface {
	Invoke(ctx context.Context, call ToolCall) (string, error)
}

// Executor drives the fast (SLM) and quality (LLM) tiers per the selected
// Mode.
type Executor struct {
	slm     Provider
	llmTier Provider
	quality QualityCheck
	tools   ToolInvoker
}

// New builds an Executor. llmTier may be nil if only a single tier is
// configured, in which case every mode degenerates to a direct call.
func New(slm, llmTier Provider, quality QualityCheck, tools ToolInvoker) *Executor {
	return &Executor{slm: slm, llmTier: llmTier, quality: quality, tools: tools}
}

// Generate produces the reply per the configured Mode, emitting LLMChunk
// text through onChunk. Tool calls are handled transparently: the executor
// pauses, invokes the tool, appends the tool result, and resumes
// generation (spec §4.4).
func (e *Executor) Generate(ctx context.Context, mode Mode, req Request, onChunk ChunkCallback) error {
	if e.llmTier == nil {
		return e.runWithTools(ctx, e.slm, req, onChunk)
	}
	switch mode {
	case ModeRaceParallel:
		return e.raceParallel(ctx, req, onChunk)
	case ModeHybridStreaming:
		return e.hybridStreaming(ctx, req, onChunk)
	default:
		return e.slmFirst(ctx, req, onChunk)
	}
}

// runWithTools drives one provider to completion, transparently handling a
// ToolCallingProvider's pause/resume protocol.
func (e *Executor) runWithTools(ctx context.Context, p Provider, req Request, onChunk ChunkCallback) error {
	tcp, ok := p.(ToolCallingProvider)
	if !ok || len(req.Tools) == 0 {
		return p.Complete(ctx, req, onChunk)
	}
	for {
		call, err := tcp.CompleteOrToolCall(ctx, req, onChunk)
		if err != nil {
			return err
		}
		if call == nil {
			return nil
		}
		if e.tools == nil {
			return onChunk("", true)
		}
		result, err := e.tools.Invoke(ctx, *call)
		if err != nil {
			result = "tool error: " + err.Error()
		}
		req.Messages = append(req.Messages, Message{Role: "tool", Content: result})
	}
}

// slmFirst generates with the SLM; if the quality check fails, regenerates
// with the LLM tier instead (spec §4.4). Observable first-token latency is
// the SLM's, since the SLM's own chunks are buffered (not forwarded) until
// the quality decision is made on its complete output — the contract
// guarantees callers only ever see one coherent provider's stream.
func (e *Executor) slmFirst(ctx context.Context, req Request, onChunk ChunkCallback) error {
	var buf strings.Builder
	err := e.runWithTools(ctx, e.slm, req, func(text string, isFinal bool) error {
		buf.WriteString(text)
		return nil
	})
	if err == nil && e.quality.Passes(buf.String()) {
		return onChunk(buf.String(), true)
	}
	return e.runWithTools(ctx, e.llmTier, req, onChunk)
}

// raceParallel starts both tiers concurrently and forwards whichever
// finishes first with a qualifying reply, cancelling the loser: first to
// qualify wins, not a quality-weighted arbitration. Each tier's reply is
// buffered until that tier finishes and is then forwarded as one final
// chunk; partial output is not streamed. An SLM reply qualifies if it
// passes the quality check, an LLM-tier reply if it ends without error.
// When neither qualifies, the LLM tier's text is used if it has no error,
// then the SLM's, else the LLM tier's error is returned.
func (e *Executor) raceParallel(ctx context.Context, req Request, onChunk ChunkCallback) error {
	type result struct {
		text string
		err  error
	}
	slmCtx, cancelSLM := context.WithCancel(ctx)
	llmCtx, cancelLLM := context.WithCancel(ctx)

	slmCh := make(chan result, 1)
	llmCh := make(chan result, 1)

	go func() {
		var buf strings.Builder
		err := e.runWithTools(slmCtx, e.slm, req, func(text string, isFinal bool) error {
			buf.WriteString(text)
			return nil
		})
		slmCh <- result{buf.String(), err}
	}()
	go func() {
		var buf strings.Builder
		err := e.runWithTools(llmCtx, e.llmTier, req, func(text string, isFinal bool) error {
			buf.WriteString(text)
			return nil
		})
		llmCh <- result{buf.String(), err}
	}()

	var slmDone, llmDone bool
	var slmRes, llmRes result
	for !slmDone || !llmDone {
		select {
		case r := <-slmCh:
			slmDone, slmRes = true, r
			if r.err == nil && e.quality.Passes(r.text) {
				cancelLLM()
				cancelSLM()
				return onChunk(r.text, true)
			}
		case r := <-llmCh:
			llmDone, llmRes = true, r
			if r.err == nil {
				cancelSLM()
				cancelLLM()
				return onChunk(r.text, true)
			}
		case <-ctx.Done():
			cancelSLM()
			cancelLLM()
			return ctx.Err()
		}
	}
	cancelSLM()
	cancelLLM()
	if llmRes.err == nil {
		return onChunk(llmRes.text, true)
	}
	if slmRes.err == nil {
		return onChunk(slmRes.text, true)
	}
	return llmRes.err
}

// hybridStreaming streams SLM tokens live while the LLM warms up in the
// background; on a quality drop mid-stream it splices to the LLM at the
// next sentence boundary. Downstream consumers never see a mid-sentence
// splice (spec §4.4).
func (e *Executor) hybridStreaming(ctx context.Context, req Request, onChunk ChunkCallback) error {
	llmCtx, cancelLLM := context.WithCancel(ctx)
	defer cancelLLM()

	var llmMu sync.Mutex
	var llmBuf strings.Builder
	llmDone := make(chan error, 1)
	go func() {
		err := e.runWithTools(llmCtx, e.llmTier, req, func(text string, isFinal bool) error {
			llmMu.Lock()
			llmBuf.WriteString(text)
			llmMu.Unlock()
			return nil
		})
		llmDone <- err
	}()

	var sentenceBuf strings.Builder
	spliced := false

	err := e.runWithTools(ctx, e.slm, req, func(text string, isFinal bool) error {
		if spliced {
			return nil
		}
		sentenceBuf.WriteString(text)
		if !e.quality.Passes(sentenceBuf.String()) && endsAtSentenceBoundary(sentenceBuf.String()) {
			// quality drop detected at a sentence boundary: splice to LLM.
			spliced = true
			return nil
		}
		if endsAtSentenceBoundary(sentenceBuf.String()) {
			chunk := sentenceBuf.String()
			sentenceBuf.Reset()
			return onChunk(chunk, false)
		}
		return nil
	})
	if err != nil && !spliced {
		return err
	}
	if !spliced && sentenceBuf.Len() > 0 {
		if werr := onChunk(sentenceBuf.String(), false); werr != nil {
			return werr
		}
	}

	if spliced {
		select {
		case <-llmDone:
		case <-ctx.Done():
			return ctx.Err()
		}
		llmMu.Lock()
		rest := llmBuf.String()
		llmMu.Unlock()
		return onChunk(rest, true)
	}

	cancelLLM()
	return onChunk("", true)
}

func endsAtSentenceBoundary(s string) bool {
	s = strings.TrimRight(s, " ")
	if s == "" {
		return false
	}
	runes := []rune(s)
	last := runes[len(runes)-1]
	return last == '.' || last == '?' || last == '!' || last == '।'
}
