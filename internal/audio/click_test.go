package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClickDecays(t *testing.T) {
	s := Click(0.5)
	require.NotEmpty(t, s)
	peak := float32(0)
	for _, v := range s[:len(s)/4] {
		peak = max(peak, v)
	}
	assert.InDelta(t, 0.5, peak, 0.15)
	assert.InDelta(t, 0, s[len(s)-1], 0.01)
}

func TestMixerSilenceAndVoices(t *testing.T) {
	m := NewMixer([]float32{0.4, 0.4, 0.4})
	buf := make([]float32, 2)

	n, err := m.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float32{0, 0}, buf)

	m.Trigger()
	m.Trigger()
	m.Read(buf)
	assert.InDeltaSlice(t, []float32{0.8, 0.8}, buf, 1e-6)
	assert.Equal(t, 2, m.Playing())

	m.Trigger()
	m.Read(buf)
	// Two voices finish, the new one keeps going.
	assert.InDeltaSlice(t, []float32{1, 0.4}, buf, 1e-6)
	assert.Equal(t, 1, m.Playing())

	m.Read(buf)
	assert.InDeltaSlice(t, []float32{0.4, 0}, buf, 1e-6)
	assert.Zero(t, m.Playing())
}

func TestMixerVoiceLimit(t *testing.T) {
	m := NewMixer(make([]float32, 100))
	for i := 0; i < maxVoices+3; i++ {
		m.Trigger()
	}
	assert.Equal(t, maxVoices, m.Playing())
}
