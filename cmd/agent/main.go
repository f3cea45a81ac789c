// Command agent is a microphone/speaker demo client for the voice pipeline:
// it wires a provider stack selected by environment variables, opens a
// duplex malgo audio device, and drives one Stream end to end. Adapted from
// the teacher's cmd/agent/main.go, which wired pkg/orchestrator directly to
// a single hard-coded provider triple; this version wires the
// internal/orchestrator Orchestrator/Stream over the full pipeline instead.
package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"net/http"

	"github.com/gen2brain/malgo"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lokutor-ai/vaak-pipeline/internal/auth"
	"github.com/lokutor-ai/vaak-pipeline/internal/bus"
	"github.com/lokutor-ai/vaak-pipeline/internal/config"
	"github.com/lokutor-ai/vaak-pipeline/internal/dialog"
	"github.com/lokutor-ai/vaak-pipeline/internal/llm"
	"github.com/lokutor-ai/vaak-pipeline/internal/logging"
	"github.com/lokutor-ai/vaak-pipeline/internal/metrics"
	"github.com/lokutor-ai/vaak-pipeline/internal/orchestrator"
	"github.com/lokutor-ai/vaak-pipeline/internal/stt"
	"github.com/lokutor-ai/vaak-pipeline/internal/tools"
	"github.com/lokutor-ai/vaak-pipeline/internal/tts"
)

const sampleRate = 16000

func buildSTT() stt.Provider {
	if key := os.Getenv("DEEPGRAM_API_KEY"); key != "" {
		return stt.NewDeepgramStream(key)
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		return stt.NewGroqWhisper(key, os.Getenv("GROQ_STT_MODEL"))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return stt.NewOpenAIWhisper(key, "")
	}
	log.Fatal("set DEEPGRAM_API_KEY, GROQ_API_KEY, or OPENAI_API_KEY for speech recognition")
	return nil
}

func buildLLMTiers() (slm, tier llm.Provider) {
	switch {
	case os.Getenv("GROQ_API_KEY") != "":
		slm = llm.NewGroqProvider(os.Getenv("GROQ_API_KEY"), os.Getenv("GROQ_LLM_MODEL"))
	case os.Getenv("OPENAI_API_KEY") != "":
		slm = llm.NewOpenAIProvider(os.Getenv("OPENAI_API_KEY"), "gpt-4o-mini")
	default:
		log.Fatal("set GROQ_API_KEY or OPENAI_API_KEY for the fast response tier")
	}
	switch {
	case os.Getenv("ANTHROPIC_API_KEY") != "":
		tier = llm.NewAnthropicProvider(os.Getenv("ANTHROPIC_API_KEY"), "claude-3-5-sonnet-20241022")
	case os.Getenv("GOOGLE_API_KEY") != "":
		tier = llm.NewGoogleProvider(os.Getenv("GOOGLE_API_KEY"), "gemini-1.5-flash")
	}
	return slm, tier
}

// serveControl exposes /health and /metrics on addr without a token, and
// /control, which requires a bearer token matching secret (main passes
// CONTROL_SECRET); other paths are not registered.
func serveControl(addr, secret string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/control", func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !auth.CheckBearer(tok, secret) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("control server: %v", err)
		}
	}()
}

func defaultStageGraph() (*dialog.Graph, error) {
	return dialog.NewGraph([]dialog.Stage{
		{
			Name:     "general",
			Guidance: "You are a helpful and concise voice assistant. Use short sentences suitable for speech.",
		},
	}, "general")
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("note: no .env file found, using system environment variables")
	}

	logger := logging.NewSlog(os.Getenv("LOG_LEVEL"))
	sink := metrics.NewProm(prometheus.DefaultRegisterer)

	if addr := os.Getenv("CONTROL_ADDR"); addr != "" {
		serveControl(addr, os.Getenv("CONTROL_SECRET"))
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lokutorKey := os.Getenv("LOKUTOR_API_KEY")
	if lokutorKey == "" {
		log.Fatal("LOKUTOR_API_KEY must be set")
	}

	slm, tier := buildLLMTiers()

	orch := orchestrator.New(orchestrator.Orchestrator{
		STT:        buildSTT(),
		SLM:        slm,
		LLMTier:    tier,
		TTS:        tts.NewLokutorProvider(lokutorKey),
		Tools:      tools.NewRegistry(),
		Metrics:    sink,
		Logger:     logger,
		Config:     cfg,
		StageGraph: defaultStageGraph,
		Summarizer: orchestrator.LLMSummarizer{Provider: slm},
		LLMMode:    llm.ModeSLMFirst,
	})

	lang := os.Getenv("AGENT_LANGUAGE")
	if lang == "" {
		lang = "en"
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionID := uuid.New().String()
	stream, err := orchestrator.NewStream(ctx, orch, sessionID, lang)
	if err != nil {
		log.Fatalf("stream: %v", err)
	}
	defer stream.Close()

	fmt.Printf("Session %s started (language=%s). Press Ctrl+C to exit.\n", sessionID, lang)

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = mctx.Uninit() }()

	var playbackMu sync.Mutex
	var playbackBytes []byte

	var rmsMu sync.Mutex
	var lastRMS float64

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		if pInput != nil {
			var sum float64
			for i := 0; i < len(pInput)-1; i += 2 {
				sample := int16(pInput[i]) | (int16(pInput[i+1]) << 8)
				f := float64(sample) / 32768.0
				sum += f * f
			}
			rms := math.Sqrt(sum / float64(len(pInput)/2))
			rmsMu.Lock()
			lastRMS = rms
			rmsMu.Unlock()

			_ = stream.Write(pInput, sampleRate, time.Now().UnixMilli())
		}
		if pOutput != nil {
			playbackMu.Lock()
			n := copy(pOutput, playbackBytes)
			playbackBytes = playbackBytes[n:]
			for i := n; i < len(pOutput); i++ {
				pOutput[i] = 0
			}
			playbackMu.Unlock()
		}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = sampleRate
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onSamples})
	if err != nil {
		log.Fatal(err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		log.Fatal(err)
	}

	go func() {
		for {
			rmsMu.Lock()
			level := lastRMS
			rmsMu.Unlock()
			dots := int(level * 500)
			if dots > 40 {
				dots = 40
			}
			fmt.Printf("\r[MIC %-40s]", stringsRepeat("|", dots))
			time.Sleep(100 * time.Millisecond)
		}
	}()

	go func() {
		for f := range stream.Events() {
			switch f.Kind {
			case bus.KindVoiceStart:
				fmt.Print("\r\033[K[USER] speaking...\n")
			case bus.KindVoiceEnd:
				fmt.Print("\r\033[K[STT] processing...\n")
			case bus.KindTranscriptFinal:
				fmt.Printf("\r\033[K[TRANSCRIPT] %s\n", f.Transcript.Text)
			case bus.KindSentence:
				fmt.Printf("\r\033[K[TTS] %s\n", f.SentenceText)
			case bus.KindAudioOut:
				playbackMu.Lock()
				playbackBytes = append(playbackBytes, f.Audio.Samples...)
				playbackMu.Unlock()
			case bus.KindBargeIn:
				fmt.Print("\r\033[K[INTERRUPTED] user started talking.\n")
				playbackMu.Lock()
				playbackBytes = nil
				playbackMu.Unlock()
			case bus.KindError:
				fmt.Printf("\r\033[K[ERROR] stage=%s recoverable=%v: %s\n", f.ErrStage, f.ErrRecoverable, f.ErrMessage)
			}
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("\nShutting down...")
}

func stringsRepeat(s string, n int) string {
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s[0])
	}
	return string(out)
}
