package tts

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// SentenceJob is one sentence queued for synthesis, carrying its turn-local
// index so AudioOut frames can be reassembled in order downstream even
// though synthesis itself may run out of order within the lookahead window.
type SentenceJob struct {
	Index int
	Text  string
	Voice VoiceConfig
}

// SynthesizedAudio is one sentence's complete synthesized audio, paired
// with its originating index.
type SynthesizedAudio struct {
	Index int
	Audio []byte
	Err   error
}

// Pipeline synthesizes a stream of sentences with a bounded lookahead
// (spec §4.6: "synthesis of sentence n+1 may begin before sentence n's
// audio has been consumed, bounded by a small lookahead (default 2
// sentences)"). Results are delivered through Results() strictly in Index
// order regardless of completion order.
type Pipeline struct {
	provider  Provider
	lookahead int

	mu      sync.Mutex
	sem     *semaphore.Weighted
	results chan SynthesizedAudio
	pending map[int]SynthesizedAudio
	nextOut int

	wg sync.WaitGroup
}

// NewPipeline builds a sentence-parallel synthesis pipeline. lookahead<=0
// defaults to 2, the spec's documented default.
func NewPipeline(provider Provider, lookahead int) *Pipeline {
	if lookahead <= 0 {
		lookahead = 2
	}
	return &Pipeline{
		provider:  provider,
		lookahead: lookahead,
		sem:       semaphore.NewWeighted(int64(lookahead)),
		results:   make(chan SynthesizedAudio, lookahead*2),
		pending:   make(map[int]SynthesizedAudio),
	}
}

// Submit queues one sentence for synthesis, blocking if the lookahead
// window is full.
func (p *Pipeline) Submit(ctx context.Context, job SentenceJob) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.emit(SynthesizedAudio{Index: job.Index, Err: err})
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		audio, err := p.provider.Synthesize(ctx, job.Text, job.Voice)
		p.emit(SynthesizedAudio{Index: job.Index, Audio: audio, Err: err})
	}()
}

// emit buffers an out-of-order result and releases any now-contiguous
// results in index order.
func (p *Pipeline) emit(r SynthesizedAudio) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[r.Index] = r
	for {
		next, ok := p.pending[p.nextOut]
		if !ok {
			break
		}
		delete(p.pending, p.nextOut)
		p.nextOut++
		p.results <- next
	}
}

// Results returns the channel of in-order synthesized audio. Callers must
// drain exactly len(submitted) items, then call Close.
func (p *Pipeline) Results() <-chan SynthesizedAudio { return p.results }

// Close waits for all outstanding synthesis jobs to finish and closes the
// results channel. Callers that abandon the pipeline mid-stream should
// call Abort on the provider first so this returns promptly.
func (p *Pipeline) Close() {
	p.wg.Wait()
	close(p.results)
}
