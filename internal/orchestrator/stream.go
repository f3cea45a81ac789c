package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lokutor-ai/vaak-pipeline/internal/bus"
	"github.com/lokutor-ai/vaak-pipeline/internal/chunker"
	"github.com/lokutor-ai/vaak-pipeline/internal/dialog"
	"github.com/lokutor-ai/vaak-pipeline/internal/llm"
	"github.com/lokutor-ai/vaak-pipeline/internal/memory"
	"github.com/lokutor-ai/vaak-pipeline/internal/perrors"
	"github.com/lokutor-ai/vaak-pipeline/internal/session"
	"github.com/lokutor-ai/vaak-pipeline/internal/stt"
	"github.com/lokutor-ai/vaak-pipeline/internal/turndetector"
	"github.com/lokutor-ai/vaak-pipeline/internal/tts"
	"github.com/lokutor-ai/vaak-pipeline/internal/vad"
)

// Stream owns one session's full lifecycle: it is the frame-bus
// counterpart of the teacher's ManagedStream, rebuilt over the new
// VAD/turn-detector/STT/LLM/chunker/TTS/dialog/tools/memory packages and
// the spec's three-way barge-in policy rather than the teacher's single
// hard-coded echo-suppression+interrupt path.
type Stream struct {
	orch *Orchestrator
	sess *session.Session

	vad      *vad.VAD
	detector *turndetector.Detector
	dialog   *dialog.Graph

	ctx    context.Context
	cancel context.CancelFunc

	events chan bus.Frame

	mu         sync.Mutex
	state      State
	audioBuf   []byte
	sttChan    chan<- []byte
	sttCancel  context.CancelFunc
	genCancel  context.CancelFunc
	ttsCancel  context.CancelFunc
	bargeArmed bool
	bargeAt    time.Time
	bargeFired bool
	ttsPaused  bool
	audioPosMs int64
	closeOnce  sync.Once
}

// NewStream builds a Stream for one caller session.
func NewStream(ctx context.Context, o *Orchestrator, sessionID, language string) (*Stream, error) {
	graph, err := o.StageGraph()
	if err != nil {
		return nil, err
	}
	memCfg := memory.Config{
		RecentTurns:     o.Config.Memory.RecentTurns,
		VerbatimMinimum: o.Config.Memory.VerbatimMinimum,
		HighWatermark:   o.Config.Memory.HighWatermark,
		LowWatermark:    o.Config.Memory.LowWatermark,
	}
	mem := memory.New(memCfg, o.Summarizer, nil)
	sess := session.New(sessionID, language, mem, session.VoiceConfig{Speed: 1, Pitch: 0, Volume: 1})

	sCtx, cancel := context.WithCancel(ctx)
	s := &Stream{
		orch:   o,
		sess:   sess,
		vad:    vad.New(vad.Config{ThresholdHi: o.Config.VAD.ThresholdHi, ThresholdLo: o.Config.VAD.ThresholdLo, FramesOn: o.Config.VAD.FramesOn, FramesOff: o.Config.VAD.FramesOff}, vad.NewRMSModel()),
		detector: turndetector.New(turndetector.Config{
			BaseSilenceMs: o.Config.TurnDetector.BaseSilenceMs,
			Weight:        o.Config.TurnDetector.SemanticWeight,
			MinSilenceMs:  o.Config.TurnDetector.MinSilenceMs,
			MaxSilenceMs:  o.Config.TurnDetector.MaxSilenceMs,
			MinSpeechMs:   int64(o.Config.TurnDetector.MinSpeechMs),
		}, nil),
		dialog: graph,
		ctx:    sCtx,
		cancel: cancel,
		events: make(chan bus.Frame, o.Config.ChannelCapacity),
		state:  StateIdle,
	}
	s.transitionTo(StateListening)
	if sp, ok := o.STT.(stt.StreamingProvider); ok {
		s.startStreamingSTT(sp)
	}
	return s, nil
}

// Events returns the channel of frames this session emits for transport.
func (s *Stream) Events() <-chan bus.Frame { return s.events }

// Write ingests one chunk of raw mic PCM (spec §4.1: VAD never skipped).
func (s *Stream) Write(samples []byte, sampleRateHz int, timestampMs int64) error {
	af := bus.AudioFrame{Samples: samples, SampleRateHz: sampleRateHz, Channels: 1, Encoding: bus.EncodingPCM16, TimestampMs: timestampMs}
	frames, _, err := s.vad.Process("vad", af)
	if err != nil {
		s.handleStageError("vad", err, false)
		return err
	}
	for _, f := range frames {
		s.handleFrame(f)
	}
	s.mu.Lock()
	s.audioPosMs = timestampMs
	armed, at, fired, st := s.bargeArmed, s.bargeAt, s.bargeFired, s.state
	s.mu.Unlock()
	if armed && !fired && (st == StateThinking || st == StateSpeaking) {
		if time.Since(at) >= time.Duration(s.orch.Config.BargeIn.GuardMs)*time.Millisecond {
			s.fireBargeIn()
		}
	}
	return nil
}

func (s *Stream) handleFrame(f bus.Frame) {
	switch f.Kind {
	case bus.KindVoiceStart:
		s.onVoiceStart()
		s.emit(f)
	case bus.KindVoiceEnd:
		s.onVoiceEnd(f.VoiceEndDurationMs)
		s.emit(f)
	case bus.KindAudioIn:
		s.onAudioIn(*f.Audio)
	default:
		s.emit(f)
	}
}

func (s *Stream) onVoiceStart() {
	s.mu.Lock()
	st := s.state
	if st == StateThinking || st == StateSpeaking {
		if !s.bargeArmed {
			s.bargeArmed = true
			s.bargeAt = time.Now()
			s.bargeFired = false
		}
	}
	s.mu.Unlock()
}

func (s *Stream) onVoiceEnd(durationMs int64) {
	s.detector.OnVoiceEnd(durationMs)
	s.resumeFromPause()

	s.mu.Lock()
	streaming := s.sttChan != nil
	buf := s.audioBuf
	s.audioBuf = nil
	s.mu.Unlock()

	if !streaming && len(buf) > 0 {
		go s.runBatchTranscribe(buf)
	}
}

func (s *Stream) onAudioIn(af bus.AudioFrame) {
	s.mu.Lock()
	ch := s.sttChan
	if ch == nil {
		s.audioBuf = append(s.audioBuf, af.Samples...)
	}
	s.mu.Unlock()
	if ch != nil {
		select {
		case ch <- af.Samples:
		default:
			// backpressure: coalesce by dropping this chunk (spec §4.3); the
			// streaming provider's own Coalescer handles transcript-side drops.
		}
	}
}

func (s *Stream) startStreamingSTT(sp stt.StreamingProvider) {
	ctx, cancel := context.WithCancel(s.ctx)
	lang := s.sess.PC.Language
	ch, err := sp.StreamTranscribe(ctx, lang, func(t bus.TranscriptFrame) error {
		return s.onTranscript(t)
	})
	if err != nil {
		s.handleStageError("stt", err, true)
		cancel()
		return
	}
	s.mu.Lock()
	s.sttChan = ch
	s.sttCancel = cancel
	s.mu.Unlock()
}

func (s *Stream) onTranscript(t bus.TranscriptFrame) error {
	turnEnd := s.detector.OnTranscript(t.Text, t.IsFinal)
	if t.IsFinal {
		s.emit(bus.TranscriptFinalFrame("stt", t))
	} else {
		s.emit(bus.TranscriptPartialFrame("stt", t))
	}
	if turnEnd {
		s.beginTurn(t.Text)
	}
	return nil
}

func (s *Stream) runBatchTranscribe(buf []byte) {
	timeout := time.Duration(s.orch.Config.Timeouts.STTMs) * time.Millisecond
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	tf, err := s.orch.STT.Transcribe(ctx, buf, s.sess.PC.Language)
	if err != nil {
		s.handleStageError("stt", err, true)
		return
	}
	if strings.TrimSpace(tf.Text) == "" {
		return
	}
	turnEnd := s.detector.OnTranscript(tf.Text, true)
	s.emit(bus.TranscriptFinalFrame("stt", tf))
	if turnEnd {
		s.beginTurn(tf.Text)
	}
}

// beginTurn runs the Listening->Thinking transition (spec §4.7): appends
// the user turn, extracts slots, consults the dialog FSM for stage
// guidance, optionally retrieves context, and calls the LLM executor.
func (s *Stream) beginTurn(transcript string) {
	s.sess.PC.NextTurn()
	s.transitionTo(StateThinking)

	s.sess.Memory.Add(memory.Turn{Role: "user", Content: transcript, TimestampMs: time.Now().UnixMilli()})
	s.sess.AddTurn(session.Turn{Role: "user", Content: transcript})

	turnNum := s.sess.PC.TurnNum
	extracted := s.orch.DialogTracker.Extract(transcript, turnNum)
	touched := make([]string, 0, len(extracted))
	for name, v := range extracted {
		if s.orch.DialogTracker.ApplyChange(s.sess.DialogState, name, v, false) {
			touched = append(touched, name)
		}
	}

	goalCompleted := false
	for _, g := range s.orch.Goals {
		s.sess.DialogState.SetGoal(g.ID, turnNum)
		s.orch.Metrics.Observe(bus.MetricsPayload{
			Name:  "goal_completion",
			Tags:  map[string]string{"session_id": s.sess.PC.SessionID, "goal_id": g.ID},
			Value: s.orch.DialogTracker.CompletionForGoal(s.sess.DialogState, g.ID),
		})
		if s.orch.DialogTracker.CheckGoalCompletion(s.sess.DialogState, g.ID) {
			goalCompleted = true
			s.sess.DialogState.ConfirmGoal()
		}
	}

	compressCtx, compressCancel := context.WithTimeout(s.ctx, time.Duration(s.orch.Config.Timeouts.LLMMs)*time.Millisecond)
	if err := s.sess.Memory.MaybeCompress(compressCtx); err != nil {
		s.orch.Logger.Warn("conversation memory compression failed", "error", err)
	}
	compressCancel()

	stage := s.dialog.Current()
	guidance := ""
	if stage != nil {
		guidance = stage.Guidance
	}

	var docs []bus.Document
	if guidance != "" {
		if d, err := s.orch.Retriever.Retrieve(s.ctx, transcript, RetrieveOptions{TopK: 5}); err == nil {
			docs = d
		}
	}
	if len(docs) > 0 {
		s.emit(bus.Frame{Kind: bus.KindRagResults, Stage: "retriever", RagQuery: transcript, RagDocs: docs})
	}

	req := s.buildRequest(guidance, docs)

	timeout := time.Duration(s.orch.Config.Timeouts.LLMMs) * time.Millisecond
	llmCtx, llmCancel := context.WithTimeout(s.ctx, timeout)
	s.mu.Lock()
	s.genCancel = llmCancel
	s.mu.Unlock()

	go s.runLLMAndTTS(llmCtx, llmCancel, req, touched, goalCompleted)
}

func (s *Stream) buildRequest(guidance string, docs []bus.Document) llm.Request {
	var messages []llm.Message
	if guidance != "" {
		messages = append(messages, llm.Message{Role: "system", Content: guidance})
	}
	if len(docs) > 0 {
		var b strings.Builder
		b.WriteString("Retrieved context:\n")
		for _, d := range docs {
			b.WriteString("- ")
			b.WriteString(d.Content)
			b.WriteString("\n")
		}
		messages = append(messages, llm.Message{Role: "system", Content: b.String()})
	}
	for _, t := range s.sess.Memory.Turns() {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	return llm.Request{Messages: messages, MaxTokens: 512, Temperature: 0.7, Tools: toolDefs(s.orch.Tools)}
}

// runLLMAndTTS drives generation and sentence-parallel synthesis for one
// turn, and performs the Thinking->Speaking->Listening transitions.
func (s *Stream) runLLMAndTTS(llmCtx context.Context, llmCancel context.CancelFunc, req llm.Request, touchedSlots []string, goalCompleted bool) {
	defer llmCancel()

	voiceCfg := tts.VoiceConfig{Language: s.sess.PC.Language, Speed: s.sess.CurrentVoice().Speed, Pitch: s.sess.CurrentVoice().Pitch, Volume: s.sess.CurrentVoice().Volume}.Clamp()
	pipeline := tts.NewPipeline(s.orch.TTS, 2)
	ttsCtx, ttsCancel := context.WithCancel(llmCtx)
	s.mu.Lock()
	s.ttsCancel = ttsCancel
	s.mu.Unlock()

	var resultsWG sync.WaitGroup
	resultsWG.Add(1)
	go func() {
		defer resultsWG.Done()
		for r := range pipeline.Results() {
			if r.Err != nil {
				s.handleStageError("tts", r.Err, true)
				continue
			}
			s.mu.Lock()
			paused := s.ttsPaused
			s.mu.Unlock()
			if paused {
				continue // spec §4.7 Pause: stop emitting audio until user-quiet
			}
			s.emit(bus.AudioOut("tts", bus.AudioFrame{Samples: r.Audio, SampleRateHz: 16000, Channels: 1, Encoding: bus.EncodingPCM16}))
		}
	}()

	turnChunker := chunker.New(chunker.Config{Strategy: chunker.Strategy(s.orch.Config.Chunker.Strategy), WordCount: s.orch.Config.Chunker.WordCount, TimeTargetMs: s.orch.Config.Chunker.TimeTargetMs, CharsPerSecond: s.orch.Config.Chunker.CharsPerSecond})
	var reply strings.Builder
	if s.orch.SLM == nil && s.orch.LLMTier == nil {
		s.handleStageError("llm", perrors.ErrNilProvider, false)
		pipeline.Close()
		resultsWG.Wait()
		ttsCancel()
		return
	}
	// Built fresh per turn: tool calls must serialize per session (spec
	// §4.9), so the invoker carries this session's id rather than being
	// baked into a process-wide Executor.
	invoker := sessionToolInvoker{registry: s.orch.Tools, sessionID: s.sess.PC.SessionID}
	executor := llm.New(s.orch.SLM, s.orch.LLMTier, s.orch.Quality, invoker)

	onChunk := func(text string, isFinal bool) error {
		select {
		case <-llmCtx.Done():
			return llmCtx.Err()
		default:
		}
		reply.WriteString(text)
		for _, sent := range turnChunker.Add(text, isFinal) {
			idx := turnChunker.NextIndex()
			s.transitionTo(StateSpeaking)
			s.emit(bus.SentenceFrame("chunker", sent, s.sess.PC.Language, idx))
			s.mu.Lock()
			paused := s.ttsPaused
			s.mu.Unlock()
			if !paused {
				pipeline.Submit(ttsCtx, tts.SentenceJob{Index: idx, Text: sent, Voice: voiceCfg})
			}
		}
		return nil
	}

	err := executor.Generate(llmCtx, s.orch.LLMMode, req, onChunk)
	pipeline.Close()
	resultsWG.Wait()
	ttsCancel()

	s.mu.Lock()
	truncated := s.bargeFired && parseBargeInAction(s.orch.Config.BargeIn.Action) == BargeInCancel
	s.mu.Unlock()

	if err != nil && llmCtx.Err() == nil {
		s.handleStageError("llm", err, true)
		return
	}
	if truncated {
		return // Cancel barge-in already recorded the truncated turn and reset state
	}
	if llmCtx.Err() != nil {
		return // cancelled by barge-in or session shutdown; turn already handled
	}

	finalText := reply.String()
	s.sess.Memory.Add(memory.Turn{Role: "assistant", Content: finalText, TimestampMs: time.Now().UnixMilli()})
	s.sess.AddTurn(session.Turn{Role: "assistant", Content: finalText})

	s.dialog.Evaluate(dialog.Signals{SlotsTouched: touchedSlots, GoalCompleted: goalCompleted})
	s.transitionTo(StateListening)
}

// fireBargeIn applies the configured barge-in action (spec §4.7).
func (s *Stream) fireBargeIn() {
	action := parseBargeInAction(s.orch.Config.BargeIn.Action)

	s.mu.Lock()
	s.bargeFired = true
	cutMs := s.audioPosMs
	s.mu.Unlock()

	switch action {
	case BargeInIgnore:
		return
	case BargeInPause:
		s.mu.Lock()
		s.ttsPaused = true
		s.mu.Unlock()
		if err := s.orch.TTS.Abort(); err != nil {
			s.orch.Logger.Warn("tts abort failed", "error", err)
		}
		s.emit(bus.BargeIn("orchestrator", cutMs, ""))
		return
	default: // Cancel
		s.mu.Lock()
		genCancel, ttsCancel := s.genCancel, s.ttsCancel
		s.genCancel, s.ttsCancel = nil, nil
		s.bargeArmed = false
		s.mu.Unlock()

		if genCancel != nil {
			genCancel()
		}
		if ttsCancel != nil {
			ttsCancel()
		}
		if s.orch.TTS != nil {
			if err := s.orch.TTS.Abort(); err != nil {
				s.orch.Logger.Warn("tts abort failed", "error", err)
			}
		}
		s.sess.AddTurn(session.Turn{Role: "assistant", Truncated: true, CutAtMs: cutMs})
		s.emit(bus.BargeIn("orchestrator", cutMs, ""))
		s.detector.Reset()
		s.transitionTo(StateListening)
		if sp, ok := s.orch.STT.(stt.StreamingProvider); ok {
			s.startStreamingSTT(sp)
		}
	}
}

// resumeFromPause un-pauses audio emission once the user has gone quiet
// again while the assistant was paused mid-reply (spec §4.7 Pause: "resume
// on user-quiet").
func (s *Stream) resumeFromPause() {
	s.mu.Lock()
	if s.ttsPaused {
		s.ttsPaused = false
		s.bargeArmed = false
		s.bargeFired = false
	}
	s.mu.Unlock()
}

func (s *Stream) transitionTo(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	s.orch.Metrics.Observe(bus.MetricsPayload{Name: "orchestrator_state", Tags: map[string]string{"session_id": s.sess.PC.SessionID, "state": string(st)}, Value: 1})
}

// State returns the session's current lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) handleStageError(stage string, err error, recoverable bool) {
	s.orch.Logger.Error("stage error", "stage", stage, "error", err)
	s.emit(bus.ErrorFrame(stage, err.Error(), recoverable))
	if recoverable {
		s.transitionTo(StateListening)
	} else {
		s.emit(bus.ErrorFrame(stage, perrors.New(stage, perrors.KindFatal, "unrecoverable stage failure", false, err).Error(), false))
	}
}

// emit pushes a frame onto the session's bounded events channel, blocking
// the producer when it is full (spec §5 backpressure) rather than dropping
// frames silently. Drops happen only upstream of this channel: onAudioIn
// drops raw audio chunks when the streaming STT input is full.
func (s *Stream) emit(f bus.Frame) {
	select {
	case s.events <- f:
	case <-s.ctx.Done():
	}
}

// Close tears down the session: cancels all in-flight work and closes the
// event channel exactly once.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		genCancel, ttsCancel, sttCancel := s.genCancel, s.ttsCancel, s.sttCancel
		s.mu.Unlock()
		if genCancel != nil {
			genCancel()
		}
		if ttsCancel != nil {
			ttsCancel()
		}
		if sttCancel != nil {
			sttCancel()
		}
		s.cancel()
		close(s.events)
	})
}
