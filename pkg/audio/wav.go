// Package audio provides a PCM16->WAV container helper for batch STT
// providers that require a file upload (Whisper-style multipart endpoints),
// rather than a raw-PCM streaming body.
package audio

import (
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// memSeeker is the minimal io.WriteSeeker a wav.Encoder needs to patch its
// RIFF/data chunk sizes on Close; bytes.Buffer alone doesn't implement Seek.
type memSeeker struct {
	buf []byte
	pos int
}

func (m *memSeeker) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memSeeker) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		m.pos = int(offset)
	case 1:
		m.pos += int(offset)
	case 2:
		m.pos = len(m.buf) + int(offset)
	}
	return int64(m.pos), nil
}

// NewWavBuffer wraps 16-bit mono PCM in a WAV container at sampleRate,
// using the same encoder real STT vendors' SDKs expect a file to come
// from.
func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		lo, hi := pcm[2*i], pcm[2*i+1]
		v := int16(uint16(lo) | uint16(hi)<<8)
		samples[i] = int(v)
	}

	ws := &memSeeker{}
	enc := wav.NewEncoder(ws, sampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil
	}
	if err := enc.Close(); err != nil {
		return nil
	}
	return ws.buf
}
