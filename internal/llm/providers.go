package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// emitByWord splits text into whitespace-preserving word chunks and emits
// each through onChunk. Used by providers whose underlying HTTP client is
// batch-only (no SSE support in this module's narrow hand-rolled clients),
// so the executor's streaming contract is still satisfied end to end —
// the alternative of surfacing the whole reply as a single giant chunk
// would break the chunker's word-boundary strategy (spec §4.5).
func emitByWord(text string, onChunk ChunkCallback) error {
	words := strings.SplitAfter(text, " ")
	for _, w := range words {
		if w == "" {
			continue
		}
		if err := onChunk(w, false); err != nil {
			return err
		}
	}
	return onChunk("", true)
}

// AnthropicProvider is adapted from the teacher's
// pkg/providers/llm/anthropic.go: a hand-rolled Messages API client with no
// SDK, kept in that style since no pack repo supplies a narrower-fitting
// Anthropic SDK wrapper for this raw-HTTP shape. cmd/agent uses it as the
// LLM tier when ANTHROPIC_API_KEY is set.
type AnthropicProvider struct {
	apiKey string
	url    string
	model  string
	client *http.Client
}

// NewAnthropicProvider builds an Anthropic Messages API provider.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
	}
	return &AnthropicProvider{apiKey: apiKey, url: "https://api.anthropic.com/v1/messages", model: model, client: http.DefaultClient}
}

func (l *AnthropicProvider) Name() string { return "anthropic-llm" }

func (l *AnthropicProvider) Complete(ctx context.Context, req Request, onChunk ChunkCallback) error {
	var system string
	var msgs []map[string]string
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		msgs = append(msgs, map[string]string{"role": m.Role, "content": m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	payload := map[string]any{"model": l.model, "messages": msgs, "max_tokens": maxTokens}
	if system != "" {
		payload["system"] = system
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", l.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", l.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp any
		json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("anthropic llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	if len(result.Content) == 0 {
		return fmt.Errorf("no content returned from anthropic")
	}
	return emitByWord(result.Content[0].Text, onChunk)
}

// OpenAIProvider wraps the real openai-go/v2 SDK and streams genuine
// per-token chunks via its SSE-backed streaming API, rather than the
// teacher's hand-rolled single-shot HTTP call in
// pkg/providers/llm/openai.go. cmd/agent uses it as the fast (SLM) tier
// when GROQ_API_KEY is not set.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider builds an OpenAI chat-completions streaming provider.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// NewGroqProvider builds a Groq chat-completions provider: Groq's API is
// OpenAI-compatible, so it reuses OpenAIProvider against Groq's base URL
// rather than a second hand-rolled client (teacher's
// pkg/providers/llm/groq_test.go referenced a GroqLLM type that was never
// actually defined anywhere in the teacher repo).
func NewGroqProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	return &OpenAIProvider{
		client: openai.NewClient(option.WithAPIKey(apiKey), option.WithBaseURL("https://api.groq.com/openai/v1")),
		model:  model,
	}
}

func (l *OpenAIProvider) Name() string { return "openai-llm" }

func (l *OpenAIProvider) Complete(ctx context.Context, req Request, onChunk ChunkCallback) error {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(l.model),
		Messages: toOpenAIMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	stream := l.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta != "" {
			if err := onChunk(delta, false); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai stream: %w", err)
	}
	return onChunk("", true)
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		case "tool":
			out = append(out, openai.ToolMessage(m.Content, ""))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// GoogleProvider is adapted from the teacher's
// pkg/providers/llm/google.go hand-rolled Gemini REST client.
type GoogleProvider struct {
	apiKey string
	model  string
	client *http.Client
}

// NewGoogleProvider builds a Gemini generateContent provider.
func NewGoogleProvider(apiKey, model string) *GoogleProvider {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &GoogleProvider{apiKey: apiKey, model: model, client: http.DefaultClient}
}

func (l *GoogleProvider) Name() string { return "google-llm" }

func (l *GoogleProvider) Complete(ctx context.Context, req Request, onChunk ChunkCallback) error {
	url := fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent?key=%s", l.model, l.apiKey)

	var contents []map[string]any
	for _, m := range req.Messages {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		if m.Role == "system" {
			continue
		}
		contents = append(contents, map[string]any{
			"role":  role,
			"parts": []map[string]string{{"text": m.Content}},
		})
	}

	body, err := json.Marshal(map[string]any{"contents": contents})
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp any
		json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("google llm error (status %d): %v", resp.StatusCode, errResp)
	}

	var result struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}
	if len(result.Candidates) == 0 || len(result.Candidates[0].Content.Parts) == 0 {
		return fmt.Errorf("no candidates returned from google")
	}
	return emitByWord(result.Candidates[0].Content.Parts[0].Text, onChunk)
}
