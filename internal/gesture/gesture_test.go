package gesture

import (
	"math"
	"testing"
	"time"

	"deskxr/internal/geom"
	"deskxr/internal/panel"
	"deskxr/internal/pose"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dt = 10 * time.Millisecond

type harness struct {
	t   *testing.T
	reg *panel.Registry
	c   *Coordinator
	now time.Time
	id  panel.ID
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		t:   t,
		reg: panel.NewRegistry(),
		c:   NewCoordinator(DefaultConfig(), 2),
		now: time.Unix(1000, 0),
	}
	h.id = h.addPanel("DP-1", mgl64.Vec3{0, 0, -2})
	return h
}

func (h *harness) addPanel(name string, at mgl64.Vec3) panel.ID {
	id, err := h.reg.Add(panel.Spec{
		Name:          name,
		Kind:          panel.KindScreen,
		Pose:          geom.NewPose(at, mgl64.QuatIdent()),
		Width:         1.6,
		Visible:       true,
		Grabbable:     true,
		ContentWidth:  1920,
		ContentHeight: 1080,
	})
	require.NoError(h.t, err)
	return id
}

func (h *harness) view() *panel.View {
	return h.reg.Snapshot().View(panel.Anchors{Head: geom.Identity()})
}

func (h *harness) step(ctrls ...pose.Controller) []Event {
	h.now = h.now.Add(dt)
	f := pose.Frame{Head: geom.Identity(), HeadValid: true}
	for i, c := range ctrls {
		c.Hand = pose.Hand(i)
		f.Controllers[i] = c
	}
	evs := h.c.Update(h.view(), f, dt, h.now, h.reg)
	return append([]Event(nil), evs...)
}

func (h *harness) wait(d time.Duration) { h.now = h.now.Add(d) }

func pointAt(x, y float64) pose.Controller {
	return pose.Controller{Valid: true, Pose: geom.NewPose(mgl64.Vec3{x, y, 0}, mgl64.QuatIdent())}
}

func away() pose.Controller {
	return pose.Controller{Valid: true, Pose: geom.NewPose(mgl64.Vec3{}, mgl64.QuatRotate(math.Pi, mgl64.Vec3{0, 1, 0}))}
}

func pressed(c pose.Controller) pose.Controller { c.Trigger = true; return c }
func gripped(c pose.Controller) pose.Controller { c.Grip = true; return c }

func kinds(evs []Event) []Kind {
	var out []Kind
	for _, e := range evs {
		out = append(out, e.Kind)
	}
	return out
}

func only(evs []Event, k Kind) []Event {
	var out []Event
	for _, e := range evs {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func TestClickAtCenter(t *testing.T) {
	h := newHarness(t)
	c := pointAt(0, 0)

	evs := h.step(c)
	assert.Equal(t, []Kind{HoverEnter, PointerMove}, kinds(evs))
	assert.InDelta(t, 0.5, evs[1].UV.X(), 1e-9)
	assert.InDelta(t, 0.5, evs[1].UV.Y(), 1e-9)
	assert.True(t, evs[1].Primary)

	evs = h.step(pressed(c))
	assert.Equal(t, []Kind{PointerMove, ButtonDown}, kinds(evs))
	assert.Equal(t, StatePressed, h.c.State(0))
	assert.Equal(t, ButtonLeft, evs[1].Button)

	evs = h.step(c)
	require.Equal(t, []Kind{ButtonUp}, kinds(evs))
	assert.Equal(t, h.id, evs[0].Panel)
	assert.Equal(t, mgl64.Vec2{0.5, 0.5}, evs[0].UV)
	assert.Equal(t, StateHover, h.c.State(0))
}

func TestReleaseUsesPressUVDuringFreeze(t *testing.T) {
	h := newHarness(t)
	h.step(pointAt(0, 0))
	h.step(pressed(pointAt(0, 0)))

	evs := h.step(pressed(pointAt(0.2, 0.1)))
	assert.Empty(t, only(evs, PointerMove), "pointer is frozen right after a press")

	evs = h.step(pointAt(0.2, 0.1))
	up := only(evs, ButtonUp)
	require.Len(t, up, 1)
	assert.Equal(t, mgl64.Vec2{0.5, 0.5}, up[0].UV)
}

func TestPointerFollowsAfterFreeze(t *testing.T) {
	h := newHarness(t)
	h.step(pointAt(0, 0))
	h.step(pressed(pointAt(0, 0)))
	h.wait(DefaultConfig().ClickFreeze)

	evs := h.step(pressed(pointAt(0.4, 0)))
	moves := only(evs, PointerMove)
	require.Len(t, moves, 1)
	assert.InDelta(t, 0.75, moves[0].UV.X(), 1e-9)

	evs = h.step(pointAt(0.4, 0))
	up := only(evs, ButtonUp)
	require.Len(t, up, 1)
	assert.InDelta(t, 0.75, up[0].UV.X(), 1e-9)
}

func TestReleaseOffPanelTargetsPressedPanel(t *testing.T) {
	h := newHarness(t)
	other := h.addPanel("DP-2", mgl64.Vec3{3, 0, -2})

	h.step(pointAt(0, 0))
	h.step(pressed(pointAt(0, 0)))
	h.wait(DefaultConfig().ClickFreeze)
	h.step(pressed(pointAt(0.7, 0.4)))

	// Ray now on the other panel.
	evs := h.step(pointAt(3, 0))
	up := only(evs, ButtonUp)
	require.Len(t, up, 1)
	assert.Equal(t, h.id, up[0].Panel)
	assert.InDelta(t, 0.5+0.7/1.6, up[0].UV.X(), 1e-9)
	assert.InDelta(t, 0.5-0.4/0.9, up[0].UV.Y(), 1e-9)
	for _, e := range evs {
		assert.NotEqual(t, other, e.Panel, "no event reaches the other panel on release tick")
	}
}

func TestTwoControllersFirstPressClaims(t *testing.T) {
	h := newHarness(t)
	a, b := pointAt(0, 0), pointAt(0.1, 0)

	evs := h.step(a, b)
	moves := only(evs, PointerMove)
	require.Len(t, moves, 2)
	assert.True(t, moves[0].Primary)
	assert.False(t, moves[1].Primary)

	evs = h.step(pressed(a), b)
	assert.Len(t, only(evs, ButtonDown), 1)
	assert.Equal(t, StatePressed, h.c.State(0))
	assert.Equal(t, StateHover, h.c.State(1))

	evs = h.step(pressed(a), pressed(b))
	assert.Empty(t, only(evs, ButtonDown), "second controller cannot press a claimed panel")
	assert.Equal(t, StateHover, h.c.State(1))

	// A lets go; B must pull the trigger again.
	evs = h.step(a, pressed(b))
	assert.Len(t, only(evs, ButtonUp), 1)
	assert.Empty(t, only(evs, ButtonDown))

	h.step(a, b)
	evs = h.step(a, pressed(b))
	down := only(evs, ButtonDown)
	require.Len(t, down, 1)
	assert.Equal(t, 1, down[0].Controller)
}

func TestSameTickPressLowerIndexWins(t *testing.T) {
	h := newHarness(t)
	a, b := pointAt(0, 0), pointAt(0.1, 0)
	h.step(a, b)
	evs := h.step(pressed(a), pressed(b))
	down := only(evs, ButtonDown)
	require.Len(t, down, 1)
	assert.Equal(t, 0, down[0].Controller)
}

func TestGrabFollowsControllerRigidly(t *testing.T) {
	h := newHarness(t)
	c := pointAt(0, 0)
	h.step(c)
	evs := h.step(gripped(c))
	start := only(evs, DragStart)
	require.Len(t, start, 1)
	assert.Equal(t, ModeMove, start[0].Mode)
	assert.Equal(t, StateDragging, h.c.State(0))

	before, _ := h.reg.Get(h.id)
	moved := gripped(pose.Controller{Valid: true, Pose: geom.NewPose(
		mgl64.Vec3{0.3, -0.2, 0.5},
		mgl64.QuatRotate(0.4, mgl64.Vec3{0, 1, 0}),
	)})
	h.step(moved)

	after, _ := h.reg.Get(h.id)
	want := moved.Pose.Mul(c.Pose.Inverse()).Mul(before.Pose)
	assert.True(t, after.Pose.ApproxEqual(want, 1e-9), "got %v want %v", after.Pose, want)

	evs = h.step(moved)
	assert.Empty(t, only(evs, DragEnd))
	evs = h.step(pose.Controller{Valid: true, Pose: moved.Pose})
	assert.Len(t, only(evs, DragEnd), 1)
	assert.NotEqual(t, StateDragging, h.c.State(0))
}

func TestGrabReanchorsToWorld(t *testing.T) {
	h := newHarness(t)
	id, err := h.reg.Add(panel.Spec{
		Name: "watch", Kind: panel.KindWatch, Anchor: panel.Anchor{Kind: panel.AnchorHead},
		Pose: geom.NewPose(mgl64.Vec3{0, 1, -1}, mgl64.QuatIdent()), Width: 0.2, Height: 0.2,
		Visible: true, Grabbable: true,
	})
	require.NoError(t, err)

	c := pointAt(0, 1)
	h.step(c)
	h.step(gripped(c))
	h.step(gripped(c))
	p, _ := h.reg.Get(id)
	assert.Equal(t, panel.AnchorWorld, p.Anchor.Kind)
}

func TestPushPullClamped(t *testing.T) {
	h := newHarness(t)
	c := pointAt(0, 0)
	h.step(c)
	h.step(gripped(c))

	pull := gripped(c)
	pull.Stick = -1
	for i := 0; i < 200; i++ {
		h.step(pull)
	}
	p, _ := h.reg.Get(h.id)
	assert.InDelta(t, DefaultConfig().MinDistance, p.Pose.Position.Len(), 1e-9)

	push := gripped(c)
	push.Stick = 1
	for i := 0; i < 1000; i++ {
		h.step(push)
	}
	p, _ = h.reg.Get(h.id)
	assert.InDelta(t, DefaultConfig().MaxDistance, p.Pose.Position.Len(), 1e-9)
}

// A left hand off to the right, turned so its back faces the panel and the
// headset, still pointing at the panel centre.
func backhand() pose.Controller {
	return pose.Controller{
		Valid: true,
		Pose:  geom.NewPose(mgl64.Vec3{2, 0, 0}, mgl64.QuatRotate(math.Pi/4, mgl64.Vec3{0, 1, 0})),
	}
}

func TestResizeByStick(t *testing.T) {
	h := newHarness(t)
	c := backhand()
	h.step(c)
	evs := h.step(gripped(c))
	start := only(evs, DragStart)
	require.Len(t, start, 1)
	assert.Equal(t, ModeResize, start[0].Mode)

	before, _ := h.reg.Get(h.id)
	grow := gripped(c)
	grow.Stick = 1
	h.step(grow)
	after, _ := h.reg.Get(h.id)
	assert.InDelta(t, before.Width*math.Exp(dt.Seconds()), after.Width, 1e-9)
	assert.InDelta(t, after.Width*1080/1920, after.Height, 1e-9, "height follows content aspect")
	assert.True(t, after.Pose.ApproxEqual(before.Pose, 1e-12), "resize does not move the panel")

	// Dead zone.
	still := gripped(c)
	still.Stick = 0.05
	h.step(still)
	same, _ := h.reg.Get(h.id)
	assert.Equal(t, after.Width, same.Width)

	for i := 0; i < 5000; i++ {
		h.step(grow)
	}
	max, _ := h.reg.Get(h.id)
	assert.InDelta(t, DefaultConfig().MaxWidth, max.Width, 1e-9)
}

func TestResizeScaleMonotonic(t *testing.T) {
	cfg := DefaultConfig()
	prev := 0.0
	for s := -1.0; s <= 1.0; s += 0.05 {
		v := cfg.ResizeScale(s, 100*time.Millisecond)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
	assert.Equal(t, 1.0, cfg.ResizeScale(0.09, time.Second))
}

func TestRightClickWhenBackhandToHead(t *testing.T) {
	h := newHarness(t)
	c := backhand()
	h.step(c)
	evs := h.step(pressed(c))
	down := only(evs, ButtonDown)
	require.Len(t, down, 1)
	assert.Equal(t, ButtonRight, down[0].Button)

	// Latched: turning the hand back does not change the release button.
	evs = h.step(pointAt(0, 0))
	up := only(evs, ButtonUp)
	require.Len(t, up, 1)
	assert.Equal(t, ButtonRight, up[0].Button)
}

func TestGripWhilePressedReleasesButton(t *testing.T) {
	h := newHarness(t)
	c := pointAt(0, 0)
	h.step(c)
	h.step(pressed(c))
	evs := h.step(gripped(pressed(c)))
	assert.Equal(t, []Kind{ButtonUp, DragStart}, kinds(evs))
	assert.Equal(t, StateDragging, h.c.State(0))
}

func TestDestroyWhileDraggingGoesIdle(t *testing.T) {
	h := newHarness(t)
	c := pointAt(0, 0)
	h.step(c)
	h.step(gripped(c))
	require.Equal(t, StateDragging, h.c.State(0))

	require.True(t, h.reg.Remove(h.id))
	evs := h.step(gripped(c))
	assert.Equal(t, StateIdle, h.c.State(0))
	for _, e := range evs {
		assert.NotEqual(t, h.id, e.Panel)
	}
	evs = h.step(c)
	assert.Empty(t, evs)
}

func TestDragDroppedWhenPanelGoesMidTick(t *testing.T) {
	h := newHarness(t)
	c := pointAt(0, 0)
	h.step(c)
	h.step(gripped(c))
	require.Equal(t, StateDragging, h.c.State(0))

	// The view still holds the panel; the registry no longer does.
	stale := h.view()
	require.True(t, h.reg.Remove(h.id))
	h.now = h.now.Add(dt)
	f := pose.Frame{Head: geom.Identity(), HeadValid: true}
	f.Controllers[0] = gripped(pointAt(0.1, 0))
	evs := h.c.Update(stale, f, dt, h.now, h.reg)
	assert.Equal(t, StateIdle, h.c.State(0))
	assert.Empty(t, only(evs, DragEnd))

	assert.Empty(t, h.step(c))
}

func TestReleaseForcesIdle(t *testing.T) {
	h := newHarness(t)
	h.step(pointAt(0, 0))
	h.step(pressed(pointAt(0, 0)))
	h.c.Release(h.id)
	assert.Equal(t, StateIdle, h.c.State(0))
	assert.Empty(t, h.c.Lasers())
}

func TestInvalidPoseHoldsState(t *testing.T) {
	h := newHarness(t)
	c := pointAt(0, 0)
	h.step(c)
	h.step(pressed(c))

	lost := pose.Controller{Pose: geom.NewPose(mgl64.Vec3{math.NaN(), 0, 0}, mgl64.QuatIdent())}
	evs := h.step(lost)
	assert.Empty(t, evs)
	assert.Equal(t, StatePressed, h.c.State(0))
	assert.Empty(t, h.c.Lasers())

	// The release during the dropout is seen when tracking resumes.
	evs = h.step(c)
	assert.Len(t, only(evs, ButtonUp), 1)
}

func TestHoverChangeEmitsExitEnter(t *testing.T) {
	h := newHarness(t)
	other := h.addPanel("DP-2", mgl64.Vec3{3, 0, -2})
	h.step(pointAt(0, 0))
	evs := h.step(pointAt(3, 0))
	require.Equal(t, []Kind{HoverExit, HoverEnter, PointerMove}, kinds(evs))
	assert.Equal(t, h.id, evs[0].Panel)
	assert.Equal(t, other, evs[1].Panel)

	evs = h.step(away())
	assert.Equal(t, []Kind{HoverExit}, kinds(evs))
	assert.Equal(t, StateIdle, h.c.State(0))
}

func TestScrollRateLimited(t *testing.T) {
	h := newHarness(t)
	c := pointAt(0, 0)
	c.Stick = 0.8
	h.step(c)

	var notches int
	for i := 0; i < 50; i++ { // 500ms
		notches += len(only(h.step(c), Scroll))
	}
	// One notch every 100ms/0.6.
	assert.Equal(t, 2, notches)

	c.Stick = -0.8
	h.wait(time.Second)
	s := only(h.step(c), Scroll)
	require.Len(t, s, 1)
	assert.Equal(t, -1.0, s[0].Scroll)
}

func TestMenuTogglesOnPrimaryOnly(t *testing.T) {
	h := newHarness(t)
	menu := away()
	menu.Menu = true
	evs := h.step(menu, menu)
	toggles := only(evs, ToggleVisibility)
	require.Len(t, toggles, 1)
	assert.Equal(t, 0, toggles[0].Controller)

	evs = h.step(menu, menu)
	assert.Empty(t, only(evs, ToggleVisibility), "held button toggles once")
}

func TestLasersForActiveControllers(t *testing.T) {
	h := newHarness(t)
	h.step(pointAt(0, 0), away())
	lasers := h.c.Lasers()
	require.Len(t, lasers, 1)
	assert.Equal(t, 0, lasers[0].Controller)
	assert.InDelta(t, 2, lasers[0].Length, 1e-9)

	st := h.c.Status()
	require.Len(t, st, 2)
	assert.Equal(t, "hover", st[0].State)
	assert.Equal(t, "idle", st[1].State)
}
