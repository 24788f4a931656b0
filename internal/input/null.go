package input

import (
	"sync/atomic"

	"deskxr/internal/types"

	"github.com/rs/zerolog"
)

// Null discards events, logging them at trace level. It backs headless runs.
type Null struct {
	log   zerolog.Logger
	count atomic.Uint64
}

func NewNull(log zerolog.Logger) *Null {
	return &Null{log: log.With().Str("component", "input").Str("sink", "null").Logger()}
}

func (n *Null) Inject(ev types.InputEvent) error {
	n.count.Add(1)
	n.log.Trace().Str("type", string(ev.Type)).Float64("x", ev.X).Float64("y", ev.Y).
		Uint16("keycode", ev.KeyCode).Str("surface", ev.Surface).Msg("event")
	return nil
}

// Count is the number of events discarded so far.
func (n *Null) Count() uint64 { return n.count.Load() }

func (n *Null) Close() {}
