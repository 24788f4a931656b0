package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"deskxr/internal/capture"
	"deskxr/internal/compositor"
	"deskxr/internal/geom"
	"deskxr/internal/gesture"
	"deskxr/internal/input"
	"deskxr/internal/keyboard"
	"deskxr/internal/panel"
	"deskxr/internal/pose"
	"deskxr/internal/types"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sink struct {
	mu     sync.Mutex
	events []types.InputEvent
	closed bool
	extent [2]float64
}

func (s *sink) Inject(ev types.InputEvent) error {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	return nil
}

func (s *sink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *sink) SetDesktopExtent(w, h float64) {
	s.mu.Lock()
	s.extent = [2]float64{w, h}
	s.mu.Unlock()
}

func (s *sink) kinds() []types.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.EventType
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	t      *testing.T
	s      *Session
	sink   *sink
	router *input.Router
	poses  *pose.Script
	rec    *compositor.Recorder
	kb     *keyboard.Keyboard

	mu  sync.Mutex
	now time.Time
}

func newHarness(t *testing.T) *harness {
	h := &harness{
		t:     t,
		sink:  &sink{},
		poses: pose.NewScript(),
		rec:   &compositor.Recorder{},
		kb:    keyboard.New(nil),
		now:   time.Unix(5000, 0),
	}
	h.router = input.NewRouter(input.DefaultConfig(), h.sink, h.kb, nil, zerolog.Nop())
	cfg := DefaultConfig()
	cfg.TickInterval = time.Millisecond
	cfg.Clock = h.clock
	s, err := New(cfg, Deps{Poses: h.poses, Router: h.router, Compositor: h.rec, Keyboard: h.kb}, zerolog.Nop())
	require.NoError(t, err)
	h.s = s
	return h
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(10 * time.Millisecond)
	return h.now
}

func (h *harness) addScreen(name string, x float64) panel.ID {
	id, err := h.s.AddScreen(panel.Spec{
		Name:    name,
		Pose:    geom.NewPose(mgl64.Vec3{0, 0, -2}, mgl64.QuatIdent()),
		Desktop: geom.Rect{X: x, W: 1920, H: 1080},
	}, &capture.PatternSource{Width: 64, Height: 36, FPS: 120})
	require.NoError(h.t, err)
	return id
}

// aim points controller 0 straight ahead from (x, y) with the given trigger.
func (h *harness) aim(x, y, trigger float64) pose.Sample {
	s := pose.Sample{Head: geom.Identity(), HeadTracked: true}
	s.Controllers[0] = pose.ControllerSample{
		Hand:    pose.HandLeft,
		Aim:     geom.NewPose(mgl64.Vec3{x, y, 0}, mgl64.QuatIdent()),
		Tracked: true,
		Trigger: trigger,
	}
	s.Controllers[1] = pose.ControllerSample{Hand: pose.HandRight}
	return s
}

func (h *harness) tick(samples ...pose.Sample) {
	for _, smp := range samples {
		h.poses.Push(smp)
		require.NoError(h.t, h.s.Tick(context.Background()))
	}
}

func TestClickReachesSink(t *testing.T) {
	h := newHarness(t)
	id := h.addScreen("DP-1", 0)
	h.router.Start()

	h.tick(h.aim(0, 0, 0), h.aim(0, 0, 1), h.aim(0, 0, 0))
	h.s.Teardown()

	assert.Equal(t, []types.EventType{types.EventPointerMove, types.EventButtonDown, types.EventButtonUp}, h.sink.kinds())
	assert.Equal(t, 960.0, h.sink.events[0].X)
	assert.Equal(t, 540.0, h.sink.events[0].Y)
	assert.Equal(t, int(id), h.sink.events[1].PanelID)
	assert.True(t, h.sink.closed)
	assert.Equal(t, uint64(3), h.rec.Frames())
}

func TestTeardownReleasesThenHides(t *testing.T) {
	h := newHarness(t)
	id := h.addScreen("DP-1", 0)
	h.router.Start()

	h.tick(h.aim(0, 0, 0), h.aim(0, 0, 1))
	assert.Equal(t, gesture.StatePressed, h.s.gestures.State(0))

	h.s.Teardown()
	h.s.Teardown()

	kinds := h.sink.kinds()
	require.NotEmpty(t, kinds)
	assert.Equal(t, types.EventButtonUp, kinds[len(kinds)-1])
	assert.Equal(t, gesture.StateIdle, h.s.gestures.State(0))
	p, ok := h.s.Registry().Get(id)
	require.True(t, ok)
	assert.False(t, p.Visible)
	assert.True(t, h.s.IsClosed())

	_, err := h.s.AddKeyboard(keyboard.Renderer{}, 1)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClosePanelWhilePressed(t *testing.T) {
	h := newHarness(t)
	id := h.addScreen("DP-1", 0)
	h.router.Start()

	h.tick(h.aim(0, 0, 0), h.aim(0, 0, 1))
	require.NoError(t, h.s.ClosePanel(id))
	assert.Equal(t, gesture.StateIdle, h.s.gestures.State(0))
	assert.False(t, h.s.Registry().Snapshot().View(panel.Anchors{}).Has(id))
	assert.ErrorIs(t, h.s.ClosePanel(id), panel.ErrNotFound)

	// The trigger is still held but there is nothing left to release on.
	h.tick(h.aim(0, 0, 1), h.aim(0, 0, 0))
	h.s.Teardown()
	assert.Equal(t, []types.EventType{types.EventPointerMove, types.EventButtonDown, types.EventButtonUp}, h.sink.kinds())
}

func TestMenuTogglesScreens(t *testing.T) {
	h := newHarness(t)
	id := h.addScreen("DP-1", 0)

	menu := h.aim(0, 3, 0)
	menu.Controllers[0].Menu = true
	h.tick(h.aim(0, 3, 0), menu)

	p, _ := h.s.Registry().Get(id)
	assert.False(t, p.Visible)
	assert.False(t, h.s.Status().ScreensVisible)

	// Screens added while hidden stay hidden.
	other := h.addScreen("DP-2", 1920)
	p, _ = h.s.Registry().Get(other)
	assert.False(t, p.Visible)

	h.tick(h.aim(0, 3, 0), menu)
	p, _ = h.s.Registry().Get(id)
	assert.True(t, p.Visible)
}

func TestWatchFollowsController(t *testing.T) {
	h := newHarness(t)
	id, err := h.s.AddWatch(1, 1)
	require.NoError(t, err)

	smp := h.aim(0, 3, 0)
	smp.Controllers[1] = pose.ControllerSample{
		Hand:    pose.HandRight,
		Aim:     geom.NewPose(mgl64.Vec3{0.3, 0, 0}, mgl64.QuatIdent()),
		Tracked: true,
	}
	h.tick(smp)

	var found bool
	for _, pd := range h.rec.Last().Panels {
		if pd.ID == id {
			found = true
			assert.InDelta(t, 0.3, pd.World.Position.X(), 1e-9)
			assert.InDelta(t, -0.05, pd.World.Position.Y(), 1e-9)
			assert.Equal(t, panel.KindWatch, pd.Kind)
		}
	}
	assert.True(t, found)

	// Tracking lost: the watch stays where the controller was last seen.
	h.tick(h.aim(0, 3, 0))
	for _, pd := range h.rec.Last().Panels {
		if pd.ID == id {
			assert.InDelta(t, 0.3, pd.World.Position.X(), 1e-9)
		}
	}
}

func TestDesktopExtentSpansScreens(t *testing.T) {
	h := newHarness(t)
	h.addScreen("DP-1", 0)
	h.addScreen("DP-2", 1920)
	w, hh := h.s.DesktopExtent()
	assert.Equal(t, 3840.0, w)
	assert.Equal(t, 1080.0, hh)
}

func TestRunStreamsAndStops(t *testing.T) {
	h := newHarness(t)
	id := h.addScreen("DP-1", 0)
	h.poses.Push(h.aim(0, 3, 0))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.s.Run(ctx) }()

	require.Eventually(t, func() bool {
		tex, ok := h.rec.Texture(id)
		return ok && tex.Width == 64
	}, 2*time.Second, 5*time.Millisecond)

	st := h.s.Status()
	require.Len(t, st.Panels, 1)
	require.NotNil(t, st.Panels[0].Feed)
	assert.Equal(t, "live", st.Panels[0].Feed.Status)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
	assert.True(t, h.s.IsClosed())
	h.sink.mu.Lock()
	assert.Equal(t, [2]float64{1920, 1080}, h.sink.extent)
	h.sink.mu.Unlock()
}

func TestRuntimeLostEndsRun(t *testing.T) {
	h := newHarness(t)
	h.addScreen("DP-1", 0)
	h.poses.Fail(pose.ErrRuntimeLost)

	err := h.s.Run(context.Background())
	assert.ErrorIs(t, err, pose.ErrRuntimeLost)
	assert.True(t, h.s.IsClosed())
	assert.True(t, h.sink.closed)
}

// idle never produces frames; tests push into the feed directly.
type idle struct{}

func (idle) Name() string { return "idle" }

func (idle) Run(ctx context.Context, _ *capture.Feed) error {
	<-ctx.Done()
	return nil
}

func TestPointerMapsNativeSizeWithoutDesktop(t *testing.T) {
	h := newHarness(t)
	id, err := h.s.AddScreen(panel.Spec{
		Name: "big",
		Pose: geom.NewPose(mgl64.Vec3{0, 0, -2}, mgl64.QuatIdent()),
	}, idle{})
	require.NoError(t, err)
	p, ok := h.s.Registry().Get(id)
	require.True(t, ok)
	assert.InDelta(t, 0.9, p.Height, 1e-9)
	h.router.Start()

	// Nothing is known about the content yet, so nothing is sent.
	h.tick(h.aim(0, 0, 0))

	feed := h.s.feeds[id].feed
	require.NoError(t, feed.Push(capture.PatternFrame(5120, 1440, 0, 1)))
	h.tick(h.aim(0, 0, 0), h.aim(0, 0, 0))
	assert.Equal(t, 3840, feed.Current().Width)
	p, _ = h.s.Registry().Get(id)
	assert.Equal(t, 5120, p.ContentWidth)
	assert.Equal(t, 1440, p.ContentHeight)
	h.s.Teardown()

	require.NotEmpty(t, h.sink.events)
	assert.Equal(t, types.EventPointerMove, h.sink.events[0].Type)
	assert.Equal(t, 2560.0, h.sink.events[0].X)
	assert.Equal(t, 720.0, h.sink.events[0].Y)
}

func TestClosePanelAfterRunEnds(t *testing.T) {
	h := newHarness(t)
	id := h.addScreen("DP-1", 0)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.s.Run(ctx) }()
	require.Eventually(t, func() bool { return h.s.Status().Ticks > 0 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-errc)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 32; i++ {
			assert.ErrorIs(t, h.s.ClosePanel(id), ErrClosed)
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ClosePanel blocked after the session ended")
	}
}
