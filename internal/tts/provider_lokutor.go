package tts

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// LokutorProvider is adapted from the teacher's
// pkg/providers/tts/lokutor.go websocket-streaming client, with the
// missing Abort() added (the teacher declared it nowhere and
// LokutorTTS never implemented it, despite managed_stream.go calling it).
type LokutorProvider struct {
	apiKey string
	host   string

	mu      sync.Mutex
	conn    *websocket.Conn
	aborted bool
}

// NewLokutorProvider builds a Lokutor streaming TTS provider.
func NewLokutorProvider(apiKey string) *LokutorProvider {
	return &LokutorProvider{apiKey: apiKey, host: "api.lokutor.com"}
}

func (t *LokutorProvider) Name() string { return "lokutor" }

func (t *LokutorProvider) getConn(ctx context.Context) (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return t.conn, nil
	}
	u := url.URL{Scheme: "wss", Host: t.host, Path: "/ws", RawQuery: "api_key=" + t.apiKey}
	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("lokutor tts: dial: %w", err)
	}
	t.conn = conn
	t.aborted = false
	return conn, nil
}

func (t *LokutorProvider) Synthesize(ctx context.Context, text string, voice VoiceConfig) ([]byte, error) {
	var audio []byte
	err := t.StreamSynthesize(ctx, text, voice, func(chunk []byte) error {
		audio = append(audio, chunk...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

func (t *LokutorProvider) StreamSynthesize(ctx context.Context, text string, voice VoiceConfig, onChunk AudioChunkCallback) error {
	voice = voice.Clamp()
	conn, err := t.getConn(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.aborted {
		t.mu.Unlock()
		return fmt.Errorf("lokutor tts: aborted")
	}
	t.mu.Unlock()

	req := map[string]any{
		"text":    text,
		"voice":   voice.VoiceID,
		"lang":    voice.Language,
		"speed":   voice.Speed,
		"pitch":   voice.Pitch,
		"volume":  voice.Volume,
		"version": "versa-1.0",
	}

	if err := wsjson.Write(ctx, conn, req); err != nil {
		t.resetConn()
		conn.Close(websocket.StatusAbnormalClosure, "failed to write json")
		return fmt.Errorf("lokutor tts: send: %w", err)
	}

	for {
		t.mu.Lock()
		aborted := t.aborted
		t.mu.Unlock()
		if aborted {
			return nil
		}

		messageType, payload, err := conn.Read(ctx)
		if err != nil {
			t.resetConn()
			conn.Close(websocket.StatusAbnormalClosure, "failed to read")
			return fmt.Errorf("lokutor tts: read: %w", err)
		}

		switch messageType {
		case websocket.MessageBinary:
			if err := onChunk(payload); err != nil {
				return err
			}
		case websocket.MessageText:
			msg := string(payload)
			if msg == "EOS" {
				return nil
			}
			if len(msg) >= 4 && msg[:4] == "ERR:" {
				return fmt.Errorf("lokutor tts error: %s", msg)
			}
		}
	}
}

// Abort abandons all in-flight and queued sentences by tearing down the
// active connection (spec §4.6: within <=50ms). The next StreamSynthesize
// call reconnects lazily.
func (t *LokutorProvider) Abort() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.aborted = true
	if t.conn != nil {
		err := t.conn.Close(websocket.StatusNormalClosure, "aborted")
		t.conn = nil
		return err
	}
	return nil
}

func (t *LokutorProvider) resetConn() {
	t.mu.Lock()
	t.conn = nil
	t.mu.Unlock()
}
