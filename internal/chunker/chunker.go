// Package chunker implements the Sentence/Word Chunker (spec §4.5):
// buffers LLMChunk text until a boundary is detected, then emits a
// Sentence frame. Grounded directly on hubenschmidt-asr-llm-tts's
// internal/pipeline/sentence.go (sentenceBuffer/splitAtSentence),
// generalized to the three selectable strategies the spec names.
package chunker

import "strings"

// Strategy selects the chunk-boundary rule.
type Strategy string

const (
	StrategySentence   Strategy = "sentence"
	StrategyWordCount  Strategy = "word_count"
	StrategyTimeTarget Strategy = "time_target"
)

var sentenceEnders = map[rune]bool{
	'.': true, '?': true, '!': true, '।': true, // danda, for Hindi/Indic scripts
}

// Config holds the chunker's tunables (spec §4.5 defaults).
type Config struct {
	Strategy       Strategy
	WordCount      int     // default 8
	TimeTargetMs   int     // default 400
	CharsPerSecond float64 // default ~15, language-configurable
}

// DefaultConfig returns the spec-documented defaults.
func DefaultConfig() Config {
	return Config{Strategy: StrategySentence, WordCount: 8, TimeTargetMs: 400, CharsPerSecond: 15}
}

// Chunker buffers LLMChunk text for one turn and emits Sentence text when a
// boundary fires. Not safe for concurrent use; one Chunker belongs to one
// in-progress turn. Index restarts at 0 per turn (spec §4.5 invariant).
type Chunker struct {
	cfg   Config
	buf   strings.Builder
	index int
}

// New builds a Chunker for one turn.
func New(cfg Config) *Chunker { return &Chunker{cfg: cfg} }

// Add appends one LLMChunk's text and returns any Sentence chunks that
// became ready. If isFinal is true, the buffer is always flushed,
// producing a final Sentence with index=last+1 (spec §4.5).
func (c *Chunker) Add(text string, isFinal bool) []string {
	c.buf.WriteString(text)
	var out []string

	for {
		chunk, ok := c.extractOne()
		if !ok {
			break
		}
		out = append(out, chunk)
	}

	if isFinal {
		if rest := strings.TrimSpace(c.buf.String()); rest != "" {
			out = append(out, rest)
			c.buf.Reset()
		}
	}
	return out
}

// extractOne attempts to pull one ready chunk from the buffer per the
// configured strategy, without consuming trailing unterminated content.
func (c *Chunker) extractOne() (string, bool) {
	switch c.cfg.Strategy {
	case StrategyWordCount:
		return c.extractByWordCount()
	case StrategyTimeTarget:
		return c.extractByTimeTarget()
	default:
		return c.extractBySentence()
	}
}

func (c *Chunker) extractBySentence() (string, bool) {
	s := c.buf.String()
	cut := splitAtSentence(s)
	if cut <= 0 {
		return "", false
	}
	chunk := strings.TrimSpace(s[:cut])
	rest := s[cut:]
	c.buf.Reset()
	c.buf.WriteString(rest)
	if chunk == "" {
		return "", false
	}
	return chunk, true
}

func (c *Chunker) extractByWordCount() (string, bool) {
	n := c.cfg.WordCount
	if n <= 0 {
		n = 8
	}
	s := c.buf.String()
	words := 0
	cut := -1
	for i, r := range s {
		if r == ' ' {
			words++
			if words >= n && isWordBoundary(s, i) {
				cut = i + 1
				break
			}
		}
	}
	if cut <= 0 {
		return "", false
	}
	chunk := strings.TrimSpace(s[:cut])
	rest := s[cut:]
	c.buf.Reset()
	c.buf.WriteString(rest)
	if chunk == "" {
		return "", false
	}
	return chunk, true
}

func (c *Chunker) extractByTimeTarget() (string, bool) {
	cps := c.cfg.CharsPerSecond
	if cps <= 0 {
		cps = 15
	}
	target := c.cfg.TimeTargetMs
	if target <= 0 {
		target = 400
	}
	s := c.buf.String()
	estimatedMs := float64(len(s)) / cps * 1000
	if estimatedMs < float64(target) {
		return "", false
	}
	// only cut on a word boundary so we don't split mid-word
	cut := lastWordBoundary(s)
	if cut <= 0 {
		return "", false
	}
	chunk := strings.TrimSpace(s[:cut])
	rest := s[cut:]
	c.buf.Reset()
	c.buf.WriteString(rest)
	if chunk == "" {
		return "", false
	}
	return chunk, true
}

// NextIndex returns the index to assign to the next emitted Sentence and
// advances the counter.
func (c *Chunker) NextIndex() int {
	i := c.index
	c.index++
	return i
}

// Reset prepares the Chunker for a new turn: buffer cleared, index
// restarts at 0 (spec §4.5 invariant).
func (c *Chunker) Reset() {
	c.buf.Reset()
	c.index = 0
}

// splitAtSentence returns the byte offset just past a sentence-terminal
// punctuation mark followed by whitespace or end-of-string, or -1 if none
// is found. End-of-string is only treated as a boundary when the caller
// flushes explicitly (isFinal) — extractBySentence never emits a trailing
// unterminated fragment on its own.
func splitAtSentence(s string) int {
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if !sentenceEnders[runes[i]] {
			continue
		}
		if i == len(runes)-1 {
			continue // need trailing whitespace or explicit flush
		}
		if runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
			// byte offset of i+1 inclusive of the terminator+following space
			return len(string(runes[:i+2]))
		}
	}
	return -1
}

func isWordBoundary(s string, byteIdx int) bool {
	return byteIdx < len(s) && s[byteIdx] == ' '
}

func lastWordBoundary(s string) int {
	last := -1
	for i, r := range s {
		if r == ' ' {
			last = i + 1
		}
	}
	return last
}
