// Package session ties one overlay run together: pose sampling, the panel
// registry, gestures, input routing and the compositor, driven by a fixed
// rate tick.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
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
	"deskxr/internal/watch"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var ErrClosed = errors.New("session closed")

// maxDt caps the step handed to the gesture engines after a stall.
const maxDt = 100 * time.Millisecond

type Config struct {
	TickInterval time.Duration
	Gesture      gesture.Config
	Thresholds   pose.Thresholds
	Clock        func() time.Time

	// Frames larger than this are downscaled.
	MaxTextureWidth  int
	MaxTextureHeight int

	// TextureBudget caps the pixels of one texture, 0 for no cap.
	TextureBudget int
}

func DefaultConfig() Config {
	return Config{
		TickInterval:     time.Second / 90,
		Gesture:          gesture.DefaultConfig(),
		Thresholds:       pose.DefaultThresholds(),
		MaxTextureWidth:  3840,
		MaxTextureHeight: 2160,
	}
}

// Deps are the collaborators a session drives. The session owns them from
// New on and closes them in Teardown.
type Deps struct {
	Poses      pose.Source
	Router     *input.Router
	Compositor compositor.Compositor
	// Keyboard is the virtual keyboard state the router types into.
	Keyboard *keyboard.Keyboard
}

type feed struct {
	feed   *capture.Feed
	source capture.Source
	cancel context.CancelFunc
}

type Session struct {
	ID  string
	cfg Config
	log zerolog.Logger

	reg      *panel.Registry
	poses    pose.Source
	adapter  *pose.Adapter
	gestures *gesture.Coordinator
	router   *input.Router
	comp     compositor.Compositor
	kb       *keyboard.Keyboard

	// tick goroutine state
	tick     uint64
	last     time.Time
	head     geom.Pose
	anchors  [2]geom.Pose
	dl       compositor.DrawList
	screens  bool
	watchIDs map[panel.ID]bool

	cmds    chan func()
	stopped chan struct{}

	mu      sync.Mutex
	feeds   map[panel.ID]*feed
	runCtx  context.Context
	group   *errgroup.Group
	closed  bool
	started time.Time

	status atomic.Pointer[Status]
}

func New(cfg Config, deps Deps, log zerolog.Logger) (*Session, error) {
	if deps.Poses == nil || deps.Router == nil || deps.Compositor == nil {
		return nil, fmt.Errorf("session: pose source, router and compositor are required")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	id := uuid.New().String()
	s := &Session{
		ID:       id,
		cfg:      cfg,
		log:      log.With().Str("component", "session").Str("session", id[:8]).Logger(),
		reg:      panel.NewRegistry(),
		poses:    deps.Poses,
		adapter:  pose.NewAdapter(cfg.Thresholds),
		gestures: gesture.NewCoordinator(cfg.Gesture, 2),
		router:   deps.Router,
		comp:     deps.Compositor,
		kb:       deps.Keyboard,
		head:     geom.Identity(),
		anchors:  [2]geom.Pose{geom.Identity(), geom.Identity()},
		screens:  true,
		watchIDs: make(map[panel.ID]bool),
		cmds:     make(chan func(), 16),
		stopped:  make(chan struct{}),
		feeds:    make(map[panel.ID]*feed),
		started:  cfg.Clock(),
	}
	s.status.Store(&Status{ID: id, Started: s.started, ScreensVisible: true})
	return s, nil
}

// Registry exposes the panel set, mostly for inspection.
func (s *Session) Registry() *panel.Registry { return s.reg }

func (s *Session) newFeed(name string) *capture.Feed {
	opts := []capture.Option{
		capture.WithMaxSize(s.cfg.MaxTextureWidth, s.cfg.MaxTextureHeight),
		capture.WithLogger(s.log),
	}
	if s.cfg.TextureBudget > 0 {
		opts = append(opts, capture.WithAllocator(capture.PixelBudget(s.cfg.TextureBudget)))
	}
	return capture.NewFeed(name, opts...)
}

// attach registers a panel backed by src. The source starts right away when
// the session is running, otherwise with Run.
func (s *Session) attach(spec panel.Spec, src capture.Source) (panel.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	f := &feed{feed: s.newFeed(spec.Name), source: src}
	spec.Content = f.feed
	id, err := s.reg.Add(spec)
	if err != nil {
		f.feed.Close()
		return 0, err
	}
	s.feeds[id] = f
	if s.group != nil {
		s.startLocked(id, f)
	}
	s.log.Info().Int("panel", int(id)).Str("name", spec.Name).Str("kind", spec.Kind.String()).
		Str("source", src.Name()).Msg("panel added")
	return id, nil
}

func (s *Session) startLocked(id panel.ID, f *feed) {
	ctx, cancel := context.WithCancel(s.runCtx)
	f.cancel = cancel
	s.group.Go(func() error {
		err := f.source.Run(ctx, f.feed)
		if err != nil && ctx.Err() == nil {
			// A dead source leaves its panel on the placeholder.
			s.log.Warn().Err(err).Int("panel", int(id)).Str("source", f.source.Name()).Msg("capture source stopped")
		}
		return nil
	})
}

// AddScreen adds a desktop panel. A zero spec Width defaults to 1.6 m and a
// zero Height follows the content aspect. The content size comes from the
// desktop rect, else from a source implementing capture.Sizer, else from
// the first frame; until then the panel is 16:9.
func (s *Session) AddScreen(spec panel.Spec, src capture.Source) (panel.ID, error) {
	spec.Kind = panel.KindScreen
	spec.Grabbable = true
	spec.Visible = s.screensVisible()
	if spec.Width == 0 {
		spec.Width = 1.6
	}
	if spec.ContentWidth <= 0 || spec.ContentHeight <= 0 {
		spec.ContentWidth, spec.ContentHeight = 0, 0
		if !spec.Desktop.Empty() {
			spec.ContentWidth, spec.ContentHeight = int(spec.Desktop.W), int(spec.Desktop.H)
		} else if sz, ok := src.(capture.Sizer); ok {
			if w, h := sz.NativeSize(); w > 0 && h > 0 {
				spec.ContentWidth, spec.ContentHeight = w, h
			}
		}
	}
	if spec.Height == 0 && spec.ContentWidth == 0 {
		spec.Height = spec.Width * 9 / 16
	}
	return s.attach(spec, src)
}

// AddKeyboard places the virtual keyboard below and in front of the user.
func (s *Session) AddKeyboard(r keyboard.Renderer, scale float64) (panel.ID, error) {
	if s.kb == nil {
		return 0, fmt.Errorf("session: no keyboard configured")
	}
	if scale <= 0 {
		scale = 1
	}
	w, h := r.Size(s.kb.Layout())
	tilt := mgl64.QuatRotate(mgl64.DegToRad(-35), mgl64.Vec3{1, 0, 0})
	return s.attach(panel.Spec{
		Name:          "keyboard",
		Kind:          panel.KindKeyboard,
		Anchor:        panel.WorldAnchor,
		Pose:          geom.NewPose(mgl64.Vec3{0, -0.45, -0.7}, tilt),
		Width:         0.6 * scale,
		ContentWidth:  w,
		ContentHeight: h,
		Visible:       true,
		Grabbable:     true,
		Fit:           panel.FitStretch,
	}, &keyboard.Source{Keyboard: s.kb, Renderer: r})
}

// AddWatch straps the clock to a controller. Clicking it toggles the
// screens.
func (s *Session) AddWatch(controller int, scale float64) (panel.ID, error) {
	if scale <= 0 {
		scale = 1
	}
	const texW, texH = 240, 120
	id, err := s.attach(panel.Spec{
		Name:          "watch",
		Kind:          panel.KindWatch,
		Anchor:        panel.Anchor{Kind: panel.AnchorController, Controller: controller},
		Pose:          watch.Pose(),
		Width:         watch.Width * scale,
		Height:        watch.Height * scale,
		ContentWidth:  texW,
		ContentHeight: texH,
		Visible:       true,
	}, &watch.Source{Width: texW, Height: texH, Now: s.cfg.Clock})
	if err != nil {
		return 0, err
	}
	return id, s.do(func() { s.watchIDs[id] = true })
}

// do runs fn on the tick goroutine, or inline before Run starts ticking.
// Once the session is closed nothing runs and ErrClosed is returned.
func (s *Session) do(fn func()) error {
	s.mu.Lock()
	closed, running := s.closed, s.group != nil
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !running {
		fn()
		return nil
	}
	select {
	case s.cmds <- fn:
		return nil
	case <-s.stopped:
		return ErrClosed
	}
}

// ClosePanel destroys a panel. Grabs on it are released and held buttons
// are lifted on the next tick, before anything else happens in it.
func (s *Session) ClosePanel(id panel.ID) error {
	if _, ok := s.reg.Get(id); !ok {
		return panel.ErrNotFound
	}
	return s.do(func() { s.closePanel(id) })
}

func (s *Session) closePanel(id panel.ID) {
	s.gestures.Release(id)
	s.router.Forget(id)
	s.reg.Remove(id)
	delete(s.watchIDs, id)

	s.mu.Lock()
	f := s.feeds[id]
	delete(s.feeds, id)
	s.mu.Unlock()
	if f != nil {
		if f.cancel != nil {
			f.cancel()
		}
		f.feed.Close()
	}
	s.log.Info().Int("panel", int(id)).Msg("panel closed")
}

// DesktopExtent is the bounding box of every screen's desktop rectangle.
func (s *Session) DesktopExtent() (w, h float64) {
	for _, p := range s.reg.Snapshot().Panels {
		if p.Kind != panel.KindScreen || p.Desktop.Empty() {
			continue
		}
		w = math.Max(w, p.Desktop.X+p.Desktop.W)
		h = math.Max(h, p.Desktop.Y+p.Desktop.H)
	}
	return w, h
}

func (s *Session) screensVisible() bool {
	if st := s.status.Load(); st != nil {
		return st.ScreensVisible
	}
	return true
}

func (s *Session) toggleScreens() {
	s.screens = !s.screens
	s.reg.SetVisibleKind(panel.KindScreen, s.screens)
	s.log.Debug().Bool("visible", s.screens).Msg("screens toggled")
}

// Tick runs one frame: sample, interact, route, render. It is called from a
// single goroutine. Only a lost tracking runtime is returned as an error.
func (s *Session) Tick(ctx context.Context) error {
	for drained := false; !drained; {
		select {
		case fn := <-s.cmds:
			fn()
		default:
			drained = true
		}
	}

	now := s.cfg.Clock()
	dt := time.Duration(0)
	if !s.last.IsZero() {
		dt = min(max(now.Sub(s.last), 0), maxDt)
	}
	s.last = now
	s.tick++

	sample, err := s.poses.Sample(ctx)
	if errors.Is(err, pose.ErrRuntimeLost) {
		return err
	}
	if err != nil {
		// An invalid frame holds every state machine where it is.
		s.log.Debug().Err(err).Msg("pose sample failed")
		sample = pose.Sample{}
	}
	frame := s.adapter.Apply(sample)
	if frame.HeadValid {
		s.head = frame.Head
	}
	for i, c := range frame.Controllers {
		if c.Valid {
			s.anchors[i] = c.Pose
		}
	}
	anchors := panel.Anchors{Head: s.head, Controllers: s.anchors[:]}
	view := s.reg.Snapshot().View(anchors)
	s.syncContent(view)

	events := s.gestures.Update(view, frame, dt, now, s.reg)
	for _, ev := range events {
		switch {
		case ev.Kind == gesture.ToggleVisibility:
			s.toggleScreens()
		case ev.Kind == gesture.ButtonDown && s.watchIDs[ev.Panel]:
			s.toggleScreens()
		}
	}
	s.router.Route(view, events)
	s.router.Commit()

	// Drags moved panels; draw them where they are now with the textures
	// this tick already loaded.
	if snap := s.reg.Snapshot(); snap.Version != view.Version {
		view = relayout(snap, anchors, view)
	}
	compositor.Build(&s.dl, s.tick, now, view, s.gestures.Lasers())
	if err := s.comp.Submit(ctx, &s.dl); err != nil && ctx.Err() == nil {
		s.log.Warn().Err(err).Msg("compositor submit failed")
	}

	s.publish(view)
	return nil
}

// syncContent follows feed resolution changes so aspect and mapping track
// what is actually shown.
func (s *Session) syncContent(view *panel.View) {
	for _, vp := range view.Panels {
		t := vp.Texture
		// Sequence 0 is the placeholder shown before the first frame.
		if t == nil || t.Seq == 0 || vp.Unavailable {
			continue
		}
		// Content is the captured size so pointer mapping is unaffected
		// by display downscaling.
		if w, h := t.SourceSize(); w != vp.ContentWidth || h != vp.ContentHeight {
			s.reg.UpdateContent(vp.ID, w, h)
		}
	}
}

func relayout(snap *panel.Snapshot, anchors panel.Anchors, old *panel.View) *panel.View {
	// Resolve without content so no feed is read twice in a tick.
	bare := &panel.Snapshot{Version: snap.Version, Panels: make([]panel.Panel, len(snap.Panels))}
	for i, p := range snap.Panels {
		p.Content = nil
		bare.Panels[i] = p
	}
	view := bare.View(anchors)
	for i := range view.Panels {
		vp := &view.Panels[i]
		vp.Content = snap.Panels[i].Content
		if prev, ok := old.Lookup(vp.ID); ok {
			vp.Texture, vp.Unavailable = prev.Texture, prev.Unavailable
		}
	}
	return view
}

// Run ticks until ctx is done or the tracking runtime is lost, then tears
// the session down. Capture sources run alongside the tick loop.
func (s *Session) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	// Sources outlive the tick loop so teardown can hide panels first.
	srcCtx, stopSources := context.WithCancel(context.WithoutCancel(ctx))
	defer stopSources()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.runCtx, s.group = srcCtx, g
	for id, f := range s.feeds {
		s.startLocked(id, f)
	}
	s.mu.Unlock()

	if w, h := s.DesktopExtent(); w > 0 && h > 0 {
		s.router.SetDesktopExtent(w, h)
	}
	s.router.Start()
	s.log.Info().Dur("interval", s.cfg.TickInterval).Int("panels", len(s.reg.Snapshot().Panels)).Msg("session started")

	g.Go(func() error {
		err := s.loop(gctx)
		s.Teardown()
		stopSources()
		return err
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return err
}

func (s *Session) loop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.log.Error().Err(err).Msg("tick failed")
				return err
			}
		}
	}
}

// Teardown releases every grab and lifts held input, hides all panels,
// then destroys the feeds and closes the router, compositor input and pose
// source, in that order. It is safe to call more than once.
func (s *Session) Teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.stopped)
	s.mu.Unlock()

	s.gestures.ReleaseAll()
	s.router.ReleaseAll()
	s.router.Commit()
	s.reg.HideAll()

	s.mu.Lock()
	feeds := s.feeds
	s.feeds = make(map[panel.ID]*feed)
	s.mu.Unlock()
	for _, f := range feeds {
		if f.cancel != nil {
			f.cancel()
		}
		f.feed.Close()
	}

	s.router.Close()
	if err := s.poses.Close(); err != nil {
		s.log.Debug().Err(err).Msg("close pose source")
	}
	s.log.Info().Uint64("ticks", s.tick).Msg("session closed")
}

func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Frame is the current texture of a panel's feed.
func (s *Session) Frame(id panel.ID) (*types.Frame, bool) {
	s.mu.Lock()
	f, ok := s.feeds[id]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	fr := f.feed.Current()
	return fr, fr != nil
}
