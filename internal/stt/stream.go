package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"

	"github.com/lokutor-ai/vaak-pipeline/internal/bus"
)

// DeepgramStream is the genuine streaming STT provider the teacher's
// interface declared but never implemented (StreamingSTTProvider in
// pkg/orchestrator/types.go had no real backend). Grounded on the
// websocket-duplex pattern from pkg/providers/tts/lokutor.go, applied to
// Deepgram's real-time listen endpoint instead of a synthetic one.
type DeepgramStream struct {
	apiKey string
	host   string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewDeepgramStream builds a streaming Deepgram provider.
func NewDeepgramStream(apiKey string) *DeepgramStream {
	return &DeepgramStream{apiKey: apiKey, host: "api.deepgram.com"}
}

func (s *DeepgramStream) Name() string { return "deepgram-stream" }

func (s *DeepgramStream) SupportsLanguage(lang string) bool {
	if lang == "" {
		return true
	}
	return supportedLanguages[lang]
}

// Transcribe satisfies Provider by opening a stream for a single utterance
// and draining it to completion.
func (s *DeepgramStream) Transcribe(ctx context.Context, audioPCM []byte, lang string) (bus.TranscriptFrame, error) {
	var final bus.TranscriptFrame
	done := make(chan struct{})
	in, err := s.StreamTranscribe(ctx, lang, func(t bus.TranscriptFrame) error {
		if t.IsFinal {
			final = t
			close(done)
		}
		return nil
	})
	if err != nil {
		return bus.TranscriptFrame{}, err
	}
	in <- audioPCM
	close(in)
	select {
	case <-done:
	case <-ctx.Done():
		return bus.TranscriptFrame{}, ctx.Err()
	}
	return final, nil
}

type deepgramMessage struct {
	IsFinal bool `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// StreamTranscribe opens a duplex connection: callers push raw PCM chunks
// on the returned channel; partials and one final are delivered through
// onTranscript in arrival order. Each message passes through a Coalescer
// and is drained at once, so a slow onTranscript pauses reading from the
// connection (audio writing continues) and no partial is dropped.
func (s *DeepgramStream) StreamTranscribe(ctx context.Context, lang string, onTranscript TranscriptCallback) (chan<- []byte, error) {
	u := url.URL{Scheme: "wss", Host: s.host, Path: "/v1/listen"}
	q := u.Query()
	q.Set("model", "nova-2")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", "16000")
	q.Set("interim_results", "true")
	if lang != "" {
		q.Set("language", lang)
	}
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: map[string][]string{"Authorization": {"Token " + s.apiKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram stream: dial: %w", err)
	}

	audioIn := make(chan []byte, 8)

	go func() {
		defer conn.Close(websocket.StatusNormalClosure, "")
		for chunk := range audioIn {
			if err := conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		}
		// signal end-of-audio per Deepgram's streaming protocol
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
	}()

	go func() {
		var coalescer Coalescer
		for {
			_, payload, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var msg deepgramMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				continue
			}
			if len(msg.Channel.Alternatives) == 0 {
				continue
			}
			alt := msg.Channel.Alternatives[0]
			t := bus.TranscriptFrame{Text: alt.Transcript, Confidence: alt.Confidence, IsFinal: msg.IsFinal, Language: lang}
			coalescer.Offer(t)
			if pending, ok := coalescer.Drain(); ok {
				if err := onTranscript(pending); err != nil {
					return
				}
			}
			if msg.IsFinal {
				return
			}
		}
	}()

	return audioIn, nil
}
