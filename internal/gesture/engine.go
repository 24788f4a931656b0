package gesture

import (
	"errors"
	"math"
	"time"

	"deskxr/internal/geom"
	"deskxr/internal/panel"
	"deskxr/internal/pose"
	"deskxr/internal/raycast"

	"github.com/go-gl/mathgl/mgl64"
)

// engine is the state machine of one controller. Panels are held by ID and
// resolved against the tick's view; a missing ID means the panel is gone.
type engine struct {
	index int
	cfg   *Config

	state  State
	target panel.ID
	kind   panel.Kind
	mode   Mode

	button    Button
	pressUV   mgl64.Vec2
	lastUV    mgl64.Vec2
	pressedAt time.Time
	moved     bool

	offset geom.Pose
	width  float64

	prev       pose.Controller
	pose       geom.Pose
	tracked    bool
	hit        raycast.Hit
	hasHit     bool
	nextScroll time.Time
}

// tick carries what every engine needs for one update.
type tick struct {
	view *panel.View
	head geom.Pose
	dt   time.Duration
	now  time.Time
	geo  Geometry
	c    *Coordinator
}

func (e *engine) emit(t *tick, ev Event) {
	ev.Controller = e.index
	t.c.events = append(t.c.events, ev)
}

func (e *engine) reset() {
	e.state = StateIdle
	e.moved = false
	e.hasHit = false
}

func (e *engine) update(t *tick, ctrl pose.Controller) {
	if e.state != StateIdle && !t.view.Has(e.target) {
		t.c.leaveHover(e.target, e.index)
		e.reset()
	}

	e.tracked = ctrl.Valid
	if !ctrl.Valid {
		// Hold everything, including the button baseline, so edges that
		// happen during the dropout are seen once tracking is back.
		e.hasHit = false
		return
	}

	e.pose = ctrl.Pose
	e.hit, e.hasHit = raycast.Cast(ctrl.Pose, t.view)

	trigDown := ctrl.Trigger && !e.prev.Trigger
	trigUp := !ctrl.Trigger && e.prev.Trigger
	gripDown := ctrl.Grip && !e.prev.Grip
	gripUp := !ctrl.Grip && e.prev.Grip

	if e.index == 0 && ctrl.Menu && !e.prev.Menu {
		e.emit(t, Event{Kind: ToggleVisibility})
	}

	switch e.state {
	case StateIdle, StateHover:
		e.hover(t, ctrl, trigDown, gripDown)
	case StatePressed:
		e.pressed(t, ctrl, trigUp, gripDown)
	case StateDragging:
		e.drag(t, ctrl, gripUp)
	}

	e.prev = ctrl
}

func (e *engine) onTarget() bool {
	return e.hasHit && e.hit.Panel == e.target
}

func (e *engine) hover(t *tick, ctrl pose.Controller, trigDown, gripDown bool) {
	if e.state == StateHover && !e.onTarget() {
		e.emit(t, Event{Kind: HoverExit, Panel: e.target, PanelKind: e.kind, Primary: t.c.primary(e.index, e.target)})
		t.c.leaveHover(e.target, e.index)
		e.reset()
	}
	if !e.hasHit {
		return
	}
	vp, _ := t.view.Lookup(e.hit.Panel)
	if e.state == StateHover {
		// The previous owner may have left; take over pointer authority.
		t.c.enterHover(e.target, e.index)
	} else {
		e.state = StateHover
		e.target = e.hit.Panel
		e.kind = vp.Kind
		t.c.enterHover(e.target, e.index)
		e.emit(t, Event{Kind: HoverEnter, Panel: e.target, PanelKind: e.kind, UV: e.hit.UV, Primary: t.c.primary(e.index, e.target)})
	}
	e.lastUV = e.hit.UV
	free := t.c.claimable(e.target, e.index)

	if gripDown && vp.Grabbable && free {
		e.startDrag(t, ctrl, vp)
		return
	}

	primary := t.c.primary(e.index, e.target)
	e.emit(t, Event{Kind: PointerMove, Panel: e.target, PanelKind: e.kind, UV: e.hit.UV, Primary: primary})

	if trigDown && free {
		e.button = ButtonLeft
		if t.head.Valid() && geom.Backhand(ctrl.Pose.Orientation, t.head.Orientation, ctrl.Hand == pose.HandLeft, t.c.cfg.BackhandAngle) {
			e.button = ButtonRight
		}
		t.c.claim(e.target, e.index)
		e.state = StatePressed
		e.pressUV = e.hit.UV
		e.pressedAt = t.now
		e.moved = false
		e.emit(t, Event{Kind: ButtonDown, Panel: e.target, PanelKind: e.kind, UV: e.pressUV, Button: e.button, Primary: true})
		return
	}

	e.scroll(t, ctrl, primary)
}

func (e *engine) pressed(t *tick, ctrl pose.Controller, trigUp, gripDown bool) {
	if e.onTarget() {
		e.lastUV = e.hit.UV
		if t.now.Sub(e.pressedAt) >= t.c.cfg.ClickFreeze && (e.moved || e.hit.UV != e.pressUV) {
			e.moved = true
			e.emit(t, Event{Kind: PointerMove, Panel: e.target, PanelKind: e.kind, UV: e.hit.UV, Primary: true})
		}
	}

	vp, _ := t.view.Lookup(e.target)
	if gripDown && vp.Grabbable {
		e.release(t)
		e.startDrag(t, ctrl, vp)
		return
	}
	if trigUp {
		e.release(t)
		t.c.unclaim(e.target, e.index)
		e.state = StateHover
		return
	}
	if e.onTarget() {
		e.scroll(t, ctrl, true)
	}
}

// release sends the button up for the outstanding press. A press that never
// moved the pointer releases where it went down; otherwise it releases at the
// last point the ray had on the panel.
func (e *engine) release(t *tick) {
	uv := e.lastUV
	if !e.moved && e.onTarget() {
		uv = e.pressUV
	}
	e.emit(t, Event{Kind: ButtonUp, Panel: e.target, PanelKind: e.kind, UV: uv, Button: e.button, Primary: true})
}

func (e *engine) scroll(t *tick, ctrl pose.Controller, primary bool) {
	if e.kind != panel.KindScreen || !primary {
		return
	}
	if math.Abs(ctrl.Stick) <= t.c.cfg.ScrollDeadZone || t.now.Before(e.nextScroll) {
		return
	}
	e.nextScroll = t.now.Add(t.c.cfg.scrollPeriod())
	e.emit(t, Event{Kind: Scroll, Panel: e.target, PanelKind: e.kind, UV: e.lastUV, Scroll: math.Copysign(1, ctrl.Stick), Primary: true})
}

func (e *engine) startDrag(t *tick, ctrl pose.Controller, vp *panel.ViewPanel) {
	e.mode = ModeMove
	if geom.Backhand(ctrl.Pose.Orientation, vp.World.Orientation, ctrl.Hand == pose.HandLeft, t.c.cfg.BackhandAngle) {
		e.mode = ModeResize
	}
	t.c.claim(vp.ID, e.index)
	e.state = StateDragging
	e.target = vp.ID
	e.kind = vp.Kind
	e.offset = ctrl.Pose.Inverse().Mul(vp.World)
	e.width = vp.Width
	e.emit(t, Event{Kind: DragStart, Panel: vp.ID, PanelKind: vp.Kind, Mode: e.mode, Primary: true})
}

func (e *engine) drag(t *tick, ctrl pose.Controller, gripUp bool) {
	cfg := t.c.cfg
	switch e.mode {
	case ModeMove:
		if math.Abs(ctrl.Stick) > cfg.ResizeDeadZone {
			d := e.offset.Position
			if l := d.Len(); l > 1e-9 {
				nl := l + ctrl.Stick*cfg.PushPullSpeed*t.dt.Seconds()
				nl = math.Max(cfg.MinDistance, math.Min(cfg.MaxDistance, nl))
				e.offset.Position = d.Mul(nl / l)
			}
		}
		if err := t.geo.SetWorldPose(e.target, ctrl.Pose.Mul(e.offset)); err != nil && e.dragLost(t, err) {
			return
		}
	case ModeResize:
		w := cfg.clampWidth(e.width * cfg.ResizeScale(ctrl.Stick, t.dt))
		if w != e.width {
			err := t.geo.Resize(e.target, w)
			if err == nil {
				e.width = w
			} else if e.dragLost(t, err) {
				return
			}
		}
	}

	if gripUp {
		e.emit(t, Event{Kind: DragEnd, Panel: e.target, PanelKind: e.kind, Mode: e.mode, Primary: true})
		t.c.unclaim(e.target, e.index)
		e.state = StateHover
		if !e.onTarget() {
			e.emit(t, Event{Kind: HoverExit, Panel: e.target, PanelKind: e.kind, Primary: true})
			t.c.leaveHover(e.target, e.index)
			e.reset()
		}
	}
}

// dragLost drops the drag when its panel was destroyed since the view was
// taken, and reports whether it did. Nothing more is emitted for the panel.
func (e *engine) dragLost(t *tick, err error) bool {
	if !errors.Is(err, panel.ErrNotFound) {
		return false
	}
	t.c.leaveHover(e.target, e.index)
	e.reset()
	return true
}

func (e *engine) laser() (Laser, bool) {
	if e.state == StateIdle || !e.tracked {
		return Laser{}, false
	}
	l := Laser{
		Controller: e.index,
		Origin:     e.pose.Position,
		Dir:        e.pose.Forward().Normalize(),
		Length:     e.cfg.LaserLength,
		State:      e.state,
		Mode:       e.mode,
		Button:     e.button,
	}
	if e.hasHit {
		l.Length = e.hit.Distance
	}
	return l, true
}
