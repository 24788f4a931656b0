package pose

import (
	"math"

	"deskxr/internal/geom"
)

// Controller is one controller's state for a tick after debouncing. When
// Valid is false the pose must not be acted on.
type Controller struct {
	Hand    Hand
	Pose    geom.Pose
	Valid   bool
	Trigger bool
	Grip    bool
	Stick   float64
	Menu    bool
}

// Frame is the adapted state of one tick.
type Frame struct {
	Head        geom.Pose
	HeadValid   bool
	Controllers [2]Controller
}

// Thresholds are the analog levels at which trigger and grip engage.
// Release happens below the level minus the hysteresis.
type Thresholds struct {
	Trigger           float64
	Grip              float64
	TriggerHysteresis float64
	GripHysteresis    float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Trigger:           0.65,
		Grip:              0.6,
		TriggerHysteresis: 0.1,
		GripHysteresis:    0.05,
	}
}

// Adapter turns raw samples into Frames. It keeps the debounced button
// state between ticks and is used from the tick goroutine only.
type Adapter struct {
	th   Thresholds
	prev [2]Controller
}

func NewAdapter(th Thresholds) *Adapter {
	return &Adapter{th: th}
}

func (a *Adapter) Apply(s Sample) Frame {
	f := Frame{Head: s.Head, HeadValid: s.HeadTracked && s.Head.Valid()}
	if f.HeadValid {
		f.Head = s.Head.Normalized()
	}
	for i, cs := range s.Controllers {
		prev := a.prev[i]
		c := Controller{
			Hand:    cs.Hand,
			Pose:    cs.Aim,
			Valid:   cs.Tracked && cs.Aim.Valid(),
			Trigger: engage(prev.Trigger, cs.Trigger, a.th.Trigger, a.th.TriggerHysteresis),
			Grip:    engage(prev.Grip, cs.Grip, a.th.Grip, a.th.GripHysteresis),
			Stick:   finite(cs.StickY),
			Menu:    cs.Menu,
		}
		if c.Valid {
			c.Pose = cs.Aim.Normalized()
		}
		f.Controllers[i] = c
		a.prev[i] = c
	}
	return f
}

func engage(was bool, value, threshold, hysteresis float64) bool {
	if math.IsNaN(value) {
		return was
	}
	if was {
		return value >= math.Max(threshold-hysteresis, 0)
	}
	return value >= threshold
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}
