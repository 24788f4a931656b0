//go:build !linux

package audio

import (
	"errors"

	"github.com/rs/zerolog"
)

type Pulse struct{}

func NewPulse(volume float64, log zerolog.Logger) (*Pulse, error) {
	return nil, errors.New("key click playback is only available on linux")
}

func (p *Pulse) Click() {}

func (p *Pulse) Close() {}
