// Package pose adapts a tracking runtime's per-tick samples into the
// debounced controller state the gesture engine consumes.
package pose

import (
	"context"
	"errors"
	"time"

	"deskxr/internal/geom"
)

// ErrRuntimeLost is returned by a Source when the tracking runtime is gone
// for good. It ends the session.
var ErrRuntimeLost = errors.New("tracking runtime lost")

type Hand int

const (
	HandLeft Hand = iota
	HandRight
)

func (h Hand) String() string {
	if h == HandLeft {
		return "left"
	}
	return "right"
}

// ControllerSample is the raw state of one controller.
type ControllerSample struct {
	Hand    Hand
	Aim     geom.Pose
	Tracked bool
	Trigger float64
	Grip    float64
	StickX  float64
	StickY  float64
	Menu    bool
}

// Sample is everything the runtime reports for one tick.
type Sample struct {
	Time        time.Time
	Head        geom.Pose
	HeadTracked bool
	Controllers [2]ControllerSample
}

// Source supplies the latest sample once per tick. Sample must not block
// past the tick budget; sources without news return the last sample.
type Source interface {
	Sample(ctx context.Context) (Sample, error)
	Close() error
}
