// Package audio plays the keyboard click.
package audio

import (
	"math"
	"sync"
)

const (
	sampleRate = 48000
	maxVoices  = 4
)

// Click synthesizes a short decaying tone.
func Click(volume float64) []float32 {
	const (
		freq  = 2200.0
		decay = 0.0025
		dur   = 0.015
	)
	n := int(sampleRate * dur)
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / sampleRate
		out[i] = float32(volume * math.Sin(2*math.Pi*freq*t) * math.Exp(-t/decay))
	}
	return out
}

// Mixer overlays triggered clicks onto a continuous mono stream. Read fills
// silence when nothing is playing, so the playback stream never underruns.
type Mixer struct {
	sample []float32

	mu     sync.Mutex
	voices []int
}

func NewMixer(sample []float32) *Mixer {
	return &Mixer{sample: sample}
}

// Trigger starts one click. Past maxVoices the oldest voice is replaced.
func (m *Mixer) Trigger() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.voices) == maxVoices {
		m.voices = m.voices[1:]
	}
	m.voices = append(m.voices, 0)
}

// Playing is the number of clicks still sounding.
func (m *Mixer) Playing() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

func (m *Mixer) Read(buf []float32) (int, error) {
	clear(buf)
	m.mu.Lock()
	defer m.mu.Unlock()
	live := m.voices[:0]
	for _, pos := range m.voices {
		n := copyAdd(buf, m.sample[pos:])
		if pos += n; pos < len(m.sample) {
			live = append(live, pos)
		}
	}
	m.voices = live
	for i, v := range buf {
		buf[i] = max(-1, min(1, v))
	}
	return len(buf), nil
}

func copyAdd(dst, src []float32) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] += src[i]
	}
	return n
}
