// Package gesture runs the per-controller interaction state machines and
// arbitrates panels shared between controllers.
package gesture

import (
	"fmt"
	"math"
	"time"

	"deskxr/internal/geom"
	"deskxr/internal/panel"

	"github.com/go-gl/mathgl/mgl64"
)

type State int

const (
	StateIdle State = iota
	StateHover
	StatePressed
	StateDragging
)

func (s State) String() string {
	switch s {
	case StateHover:
		return "hover"
	case StatePressed:
		return "pressed"
	case StateDragging:
		return "dragging"
	}
	return "idle"
}

type Mode int

const (
	ModeMove Mode = iota
	ModeResize
)

func (m Mode) String() string {
	if m == ModeResize {
		return "resize"
	}
	return "move"
}

type Button int

const (
	ButtonLeft Button = iota
	ButtonRight
)

func (b Button) String() string {
	if b == ButtonRight {
		return "right"
	}
	return "left"
}

type Kind int

const (
	HoverEnter Kind = iota
	HoverExit
	PointerMove
	ButtonDown
	ButtonUp
	Scroll
	DragStart
	DragEnd
	ToggleVisibility
)

var kindNames = [...]string{
	"hover-enter", "hover-exit", "pointer-move", "button-down", "button-up",
	"scroll", "drag-start", "drag-end", "toggle-visibility",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Event is one interaction decision of a tick. Primary is set when the
// controller holds pointer authority over the panel; only primary pointer
// events move the desktop pointer.
type Event struct {
	Kind       Kind
	Controller int
	Panel      panel.ID
	PanelKind  panel.Kind
	UV         mgl64.Vec2
	Button     Button
	Scroll     float64
	Mode       Mode
	Primary    bool
}

// Geometry receives the panel changes made by drags.
type Geometry interface {
	SetWorldPose(id panel.ID, pose geom.Pose) error
	Resize(id panel.ID, width float64) error
}

type Config struct {
	// ClickFreeze holds the pointer still after a press so a click does not
	// turn into a drag when the hand shakes.
	ClickFreeze time.Duration

	ScrollInterval time.Duration
	ScrollingSpeed float64
	ScrollDeadZone float64

	// Resize multiplies the width by exp(stick*ResizeRate*dt).
	ResizeRate     float64
	ResizeDeadZone float64
	MinWidth       float64
	MaxWidth       float64

	// Push/pull along the grab offset, in metres per second at full stick.
	PushPullSpeed float64
	MinDistance   float64
	MaxDistance   float64

	// BackhandAngle is the tilt, in radians, past which a hand counts as
	// turned over.
	BackhandAngle float64

	// LaserLength is drawn when the ray hits nothing.
	LaserLength float64
}

func DefaultConfig() Config {
	return Config{
		ClickFreeze:    300 * time.Millisecond,
		ScrollInterval: 100 * time.Millisecond,
		ScrollingSpeed: 0.6,
		ScrollDeadZone: 0.1,
		ResizeRate:     1.0,
		ResizeDeadZone: 0.1,
		MinWidth:       0.1,
		MaxWidth:       10,
		PushPullSpeed:  2.0,
		MinDistance:    0.45,
		MaxDistance:    10,
		BackhandAngle:  30 * math.Pi / 180,
		LaserLength:    3,
	}
}

// scrollPeriod is the delay between scroll notches; a higher speed scrolls
// faster.
func (c Config) scrollPeriod() time.Duration {
	speed := c.ScrollingSpeed
	if speed <= 0 {
		speed = 1
	}
	return time.Duration(float64(c.ScrollInterval) / speed)
}

// ResizeScale is the per-tick width factor for a stick deflection. It is
// monotonic in stick and 1 inside the dead zone.
func (c Config) ResizeScale(stick float64, dt time.Duration) float64 {
	if math.Abs(stick) < c.ResizeDeadZone {
		return 1
	}
	return math.Exp(stick * c.ResizeRate * dt.Seconds())
}

func (c Config) clampWidth(w float64) float64 {
	return math.Max(c.MinWidth, math.Min(c.MaxWidth, w))
}

// Laser is the pointer ray to draw for one controller.
type Laser struct {
	Controller int
	Origin     mgl64.Vec3
	Dir        mgl64.Vec3
	Length     float64
	State      State
	Mode       Mode
	Button     Button
}

// ControllerStatus is a read-only view of one engine for diagnostics.
type ControllerStatus struct {
	Controller int    `json:"controller"`
	State      string `json:"state"`
	Panel      int    `json:"panel,omitempty"`
	Mode       string `json:"mode,omitempty"`
}
