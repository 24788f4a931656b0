//go:build linux

package audio

import (
	"fmt"

	"github.com/jfreymuth/pulse"
	"github.com/rs/zerolog"
)

// Pulse plays clicks through the PulseAudio (or PipeWire pulse) server on a
// stream kept open for the lifetime of the player.
type Pulse struct {
	client *pulse.Client
	stream *pulse.PlaybackStream
	mixer  *Mixer
	log    zerolog.Logger
}

func NewPulse(volume float64, log zerolog.Logger) (*Pulse, error) {
	client, err := pulse.NewClient(pulse.ClientApplicationName("deskxr"))
	if err != nil {
		return nil, fmt.Errorf("pulse connect: %w", err)
	}
	m := NewMixer(Click(volume))
	stream, err := client.NewPlayback(pulse.Float32Reader(m.Read),
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.02),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("pulse playback stream: %w", err)
	}
	stream.Start()
	p := &Pulse{client: client, stream: stream, mixer: m, log: log.With().Str("component", "audio").Logger()}
	p.log.Debug().Int("rate", sampleRate).Msg("click player ready")
	return p, nil
}

func (p *Pulse) Click() {
	if err := p.stream.Error(); err != nil {
		p.log.Debug().Err(err).Msg("playback stream failed")
		return
	}
	p.mixer.Trigger()
}

func (p *Pulse) Close() {
	p.stream.Stop()
	p.stream.Close()
	p.client.Close()
}
