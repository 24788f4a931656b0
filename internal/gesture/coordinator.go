package gesture

import (
	"time"

	"deskxr/internal/panel"
	"deskxr/internal/pose"
)

// owner is the controller with pointer authority over a panel. A claimed
// panel is pressed or dragged by its owner and cannot be taken over.
type owner struct {
	index   int
	claimed bool
}

// Coordinator runs one engine per controller and arbitrates shared panels:
// the first controller to press or grab a panel holds it until it lets go.
// It is driven from the tick goroutine only.
type Coordinator struct {
	cfg     Config
	engines []*engine
	owners  map[panel.ID]owner
	events  []Event
}

func NewCoordinator(cfg Config, controllers int) *Coordinator {
	c := &Coordinator{
		cfg:    cfg,
		owners: make(map[panel.ID]owner),
	}
	for i := 0; i < controllers; i++ {
		c.engines = append(c.engines, &engine{index: i, cfg: &c.cfg})
	}
	return c
}

// Update advances every controller by one tick and returns the events in
// emission order. Controllers are processed by index, so on a same-tick tie
// the lower index wins a claim. The returned slice is reused by the next
// call.
func (c *Coordinator) Update(view *panel.View, frame pose.Frame, dt time.Duration, now time.Time, geo Geometry) []Event {
	c.events = c.events[:0]
	t := &tick{view: view, dt: dt, now: now, geo: geo, c: c}
	if frame.HeadValid {
		t.head = frame.Head
	}
	for i, e := range c.engines {
		if i < len(frame.Controllers) {
			e.update(t, frame.Controllers[i])
		}
	}
	return c.events
}

// Release forces every controller referencing id to Idle without emitting
// anything. Used when a panel is destroyed.
func (c *Coordinator) Release(id panel.ID) {
	for _, e := range c.engines {
		if e.state != StateIdle && e.target == id {
			e.reset()
		}
	}
	delete(c.owners, id)
}

// ReleaseAll forces every controller to Idle.
func (c *Coordinator) ReleaseAll() {
	for _, e := range c.engines {
		e.reset()
	}
	clear(c.owners)
}

// Lasers returns the rays to draw for controllers in an active state.
func (c *Coordinator) Lasers() []Laser {
	var out []Laser
	for _, e := range c.engines {
		if l, ok := e.laser(); ok {
			out = append(out, l)
		}
	}
	return out
}

func (c *Coordinator) State(controller int) State {
	if controller < 0 || controller >= len(c.engines) {
		return StateIdle
	}
	return c.engines[controller].state
}

// Target is the panel the controller is interacting with, if any.
func (c *Coordinator) Target(controller int) (panel.ID, bool) {
	if controller < 0 || controller >= len(c.engines) {
		return 0, false
	}
	e := c.engines[controller]
	return e.target, e.state != StateIdle
}

func (c *Coordinator) Status() []ControllerStatus {
	out := make([]ControllerStatus, len(c.engines))
	for i, e := range c.engines {
		out[i] = ControllerStatus{Controller: i, State: e.state.String()}
		if e.state != StateIdle {
			out[i].Panel = int(e.target)
		}
		if e.state == StateDragging {
			out[i].Mode = e.mode.String()
		}
	}
	return out
}

func (c *Coordinator) enterHover(id panel.ID, i int) {
	if _, ok := c.owners[id]; !ok {
		c.owners[id] = owner{index: i}
	}
}

func (c *Coordinator) leaveHover(id panel.ID, i int) {
	if o, ok := c.owners[id]; ok && o.index == i {
		delete(c.owners, id)
	}
}

func (c *Coordinator) claimable(id panel.ID, i int) bool {
	o, ok := c.owners[id]
	return !ok || !o.claimed || o.index == i
}

func (c *Coordinator) claim(id panel.ID, i int) {
	c.owners[id] = owner{index: i, claimed: true}
}

func (c *Coordinator) unclaim(id panel.ID, i int) {
	if o, ok := c.owners[id]; ok && o.index == i {
		c.owners[id] = owner{index: i}
	}
}

func (c *Coordinator) primary(i int, id panel.ID) bool {
	o, ok := c.owners[id]
	return !ok || o.index == i
}
