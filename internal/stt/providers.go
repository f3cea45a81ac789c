package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/lokutor-ai/vaak-pipeline/internal/bus"
	"github.com/lokutor-ai/vaak-pipeline/pkg/audio"
)

var supportedLanguages = map[string]bool{
	"en": true, "hi": true, "ta": true, "te": true, "kn": true, "ml": true,
	"mr": true, "gu": true, "bn": true, "pa": true, "ur": true, "or": true,
}

// DeepgramBatch is a batch STT provider, adapted from the teacher's
// pkg/providers/stt/deepgram.go.
type DeepgramBatch struct {
	apiKey string
	url    string
	client *http.Client
}

// NewDeepgramBatch builds a batch Deepgram provider.
func NewDeepgramBatch(apiKey string) *DeepgramBatch {
	return &DeepgramBatch{apiKey: apiKey, url: "https://api.deepgram.com/v1/listen", client: http.DefaultClient}
}

func (s *DeepgramBatch) Name() string { return "deepgram-stt" }

func (s *DeepgramBatch) SupportsLanguage(lang string) bool {
	if lang == "" {
		return true
	}
	return supportedLanguages[lang]
}

func (s *DeepgramBatch) Transcribe(ctx context.Context, audioPCM []byte, lang string) (bus.TranscriptFrame, error) {
	if lang != "" && !s.SupportsLanguage(lang) {
		return bus.TranscriptFrame{}, fmt.Errorf("deepgram: unsupported language %q", lang)
	}

	u, err := url.Parse(s.url)
	if err != nil {
		return bus.TranscriptFrame{}, err
	}
	params := u.Query()
	params.Set("model", "nova-2")
	params.Set("smart_format", "true")
	if lang != "" {
		params.Set("language", lang)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(audioPCM))
	if err != nil {
		return bus.TranscriptFrame{}, err
	}
	req.Header.Set("Authorization", "Token "+s.apiKey)
	req.Header.Set("Content-Type", "audio/l16; rate=16000; channels=1")

	resp, err := s.client.Do(req)
	if err != nil {
		return bus.TranscriptFrame{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return bus.TranscriptFrame{}, fmt.Errorf("deepgram error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Results struct {
			Channels []struct {
				Alternatives []struct {
					Transcript string  `json:"transcript"`
					Confidence float64 `json:"confidence"`
				} `json:"alternatives"`
			} `json:"channels"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return bus.TranscriptFrame{}, err
	}
	if len(result.Results.Channels) == 0 || len(result.Results.Channels[0].Alternatives) == 0 {
		return bus.TranscriptFrame{IsFinal: true, Language: lang}, nil
	}
	alt := result.Results.Channels[0].Alternatives[0]
	return bus.TranscriptFrame{Text: alt.Transcript, Confidence: alt.Confidence, IsFinal: true, Language: lang}, nil
}

// WhisperBatch is a file-upload batch STT provider (OpenAI/Groq's
// Whisper-compatible transcription endpoint), adapted from the teacher's
// pkg/providers/stt/openai.go and pkg/providers/stt/groq.go: both vendors
// share the same multipart/wav request shape, so one provider now serves
// either by swapping the base URL and model.
type WhisperBatch struct {
	apiKey     string
	url        string
	model      string
	sampleRate int
	client     *http.Client
}

// NewOpenAIWhisper builds a WhisperBatch against OpenAI's endpoint.
func NewOpenAIWhisper(apiKey, model string) *WhisperBatch {
	if model == "" {
		model = "whisper-1"
	}
	return &WhisperBatch{apiKey: apiKey, url: "https://api.openai.com/v1/audio/transcriptions", model: model, sampleRate: 16000, client: http.DefaultClient}
}

// NewGroqWhisper builds a WhisperBatch against Groq's OpenAI-compatible
// transcription endpoint.
func NewGroqWhisper(apiKey, model string) *WhisperBatch {
	if model == "" {
		model = "whisper-large-v3-turbo"
	}
	return &WhisperBatch{apiKey: apiKey, url: "https://api.groq.com/openai/v1/audio/transcriptions", model: model, sampleRate: 16000, client: http.DefaultClient}
}

func (s *WhisperBatch) Name() string { return "whisper-" + s.model }

func (s *WhisperBatch) SupportsLanguage(lang string) bool {
	return lang == "" || supportedLanguages[lang]
}

func (s *WhisperBatch) Transcribe(ctx context.Context, audioPCM []byte, lang string) (bus.TranscriptFrame, error) {
	wavData := audio.NewWavBuffer(audioPCM, s.sampleRate)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("model", s.model); err != nil {
		return bus.TranscriptFrame{}, err
	}
	if lang != "" {
		if err := writer.WriteField("language", lang); err != nil {
			return bus.TranscriptFrame{}, err
		}
	}
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return bus.TranscriptFrame{}, err
	}
	if _, err := part.Write(wavData); err != nil {
		return bus.TranscriptFrame{}, err
	}
	writer.Close()

	req, err := http.NewRequestWithContext(ctx, "POST", s.url, body)
	if err != nil {
		return bus.TranscriptFrame{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return bus.TranscriptFrame{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return bus.TranscriptFrame{}, fmt.Errorf("whisper error: %s (status %d)", string(respBody), resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return bus.TranscriptFrame{}, err
	}
	return bus.TranscriptFrame{Text: result.Text, IsFinal: true, Language: lang}, nil
}
