// Package input turns gesture events into synthetic desktop input and
// delivers it to an injection sink on a dedicated goroutine.
package input

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"deskxr/internal/gesture"
	"deskxr/internal/keyboard"
	"deskxr/internal/panel"
	"deskxr/internal/types"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
)

// ErrSinkUnavailable is returned by sinks that cannot deliver right now.
var ErrSinkUnavailable = errors.New("input sink unavailable")

// Keys is the virtual keyboard as seen by the router.
type Keys interface {
	Press(controller int, uv mgl64.Vec2) []keyboard.Stroke
	Release(controller int) []keyboard.Stroke
	ReleaseAll() []keyboard.Stroke
	Hover(controller int, uv mgl64.Vec2, on bool)
}

// Clicker plays key feedback. Click must not block.
type Clicker interface {
	Click()
}

type Config struct {
	// QueueDepth is the number of tick batches waiting for the sink.
	QueueDepth int
	// FailureThreshold consecutive sink errors put the router in degraded
	// mode, where only one probe event per RetryInterval reaches the sink.
	FailureThreshold int
	RetryInterval    time.Duration

	Backend string
	Clock   func() time.Time
}

func DefaultConfig() Config {
	return Config{
		QueueDepth:       64,
		FailureThreshold: 5,
		RetryInterval:    time.Second,
	}
}

// Status is a snapshot of the router counters.
type Status struct {
	Backend        string `json:"backend"`
	Degraded       bool   `json:"degraded"`
	Sent           uint64 `json:"sent"`
	Errors         uint64 `json:"errors"`
	DroppedBatches uint64 `json:"dropped_batches"`
	DroppedEvents  uint64 `json:"dropped_events"`
	Queued         int    `json:"queued"`
}

// surface names the panel an event is aimed at.
type surface struct {
	id   panel.ID
	name string
}

func surfaceOf(vp *panel.ViewPanel) surface { return surface{id: vp.ID, name: vp.Name} }

type held struct {
	surface
	button int
	keys   bool
}

// Router is used from two goroutines: the tick goroutine calls Route and
// Commit, the dispatcher goroutine started by Start is the only caller of
// the sink.
type Router struct {
	cfg   Config
	sink  types.EventInjector
	keys  Keys
	click Clicker
	log   zerolog.Logger

	// Tick goroutine state.
	batch   []types.InputEvent
	pointer mgl64.Vec2
	placed  bool
	held    map[int]held
	// keypad is the keyboard panel strokes last went to. Latched
	// modifiers outlive the press that set them, so it stays set until the
	// keyboard is released as a whole.
	keypad *surface

	mu     sync.RWMutex
	queue  chan []types.InputEvent
	closed bool
	done   chan struct{}
	once   sync.Once
	ran    atomic.Bool

	// Dispatcher state.
	failures  int
	lastProbe time.Time

	degraded       atomic.Bool
	sent           atomic.Uint64
	errs           atomic.Uint64
	droppedBatches atomic.Uint64
	droppedEvents  atomic.Uint64
}

// NewRouter creates a router delivering to sink. keys and click may be nil.
func NewRouter(cfg Config, sink types.EventInjector, keys Keys, click Clicker, log zerolog.Logger) *Router {
	def := DefaultConfig()
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = def.QueueDepth
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Router{
		cfg:   cfg,
		sink:  sink,
		keys:  keys,
		click: click,
		log:   log.With().Str("component", "input").Logger(),
		held:  make(map[int]held),
		queue: make(chan []types.InputEvent, cfg.QueueDepth),
		done:  make(chan struct{}),
	}
}

// Route translates one tick of gesture events into the pending batch.
func (r *Router) Route(view *panel.View, events []gesture.Event) {
	for _, ev := range events {
		vp, ok := view.Lookup(ev.Panel)
		if !ok {
			continue
		}
		if vp.Kind == panel.KindKeyboard {
			r.routeKeys(vp, ev)
			continue
		}
		if vp.Kind != panel.KindScreen {
			continue
		}
		r.routeScreen(vp, ev)
	}
}

func (r *Router) routeScreen(vp *panel.ViewPanel, ev gesture.Event) {
	if !vp.Mapped() && ev.Kind != gesture.ButtonUp {
		return
	}
	switch ev.Kind {
	case gesture.HoverEnter, gesture.PointerMove:
		if ev.Primary {
			r.move(vp, ev.UV)
		}
	case gesture.ButtonDown:
		btn := domButton(ev.Button)
		r.move(vp, ev.UV)
		r.add(types.InputEvent{Type: types.EventButtonDown, Button: btn}, surfaceOf(vp))
		r.held[ev.Controller] = held{surface: surfaceOf(vp), button: btn}
	case gesture.ButtonUp:
		h, ok := r.held[ev.Controller]
		if !ok || h.keys {
			return
		}
		delete(r.held, ev.Controller)
		r.move(vp, ev.UV)
		r.add(types.InputEvent{Type: types.EventButtonUp, Button: h.button}, h.surface)
	case gesture.Scroll:
		if !ev.Primary || ev.Scroll == 0 {
			return
		}
		r.move(vp, ev.UV)
		r.add(types.InputEvent{Type: types.EventScroll, DY: -ev.Scroll * types.WheelStep}, surfaceOf(vp))
	}
}

func (r *Router) routeKeys(vp *panel.ViewPanel, ev gesture.Event) {
	if r.keys == nil {
		return
	}
	uv := vp.ContentRect().Normalize(ev.UV)
	switch ev.Kind {
	case gesture.HoverEnter, gesture.PointerMove:
		r.keys.Hover(ev.Controller, uv, true)
	case gesture.HoverExit, gesture.DragStart:
		r.keys.Hover(ev.Controller, uv, false)
	case gesture.ButtonDown:
		r.keys.Hover(ev.Controller, uv, true)
		strokes := r.keys.Press(ev.Controller, uv)
		if len(strokes) == 0 {
			return
		}
		to := surfaceOf(vp)
		r.strokes(to, strokes)
		r.held[ev.Controller] = held{surface: to, keys: true}
		r.keypad = &to
		if r.click != nil {
			r.click.Click()
		}
	case gesture.ButtonUp:
		if h, ok := r.held[ev.Controller]; ok && h.keys {
			delete(r.held, ev.Controller)
		}
		r.strokes(surfaceOf(vp), r.keys.Release(ev.Controller))
	}
}

func (r *Router) strokes(to surface, strokes []keyboard.Stroke) {
	for _, s := range strokes {
		t := types.EventKeyUp
		if s.Pressed {
			t = types.EventKeyDown
		}
		r.add(types.InputEvent{Type: t, KeyCode: s.Key.Code, Code: s.Key.Name, Key: s.Key.Label}, to)
	}
}

// move emits a PointerMove when the pixel under uv differs from the last
// position sent.
func (r *Router) move(vp *panel.ViewPanel, uv mgl64.Vec2) {
	if !vp.Mapped() {
		return
	}
	px := vp.PixelAt(uv)
	px = mgl64.Vec2{math.Floor(px[0]), math.Floor(px[1])}
	if r.placed && px == r.pointer {
		return
	}
	r.pointer, r.placed = px, true
	r.add(types.InputEvent{Type: types.EventPointerMove, X: px[0], Y: px[1]}, surfaceOf(vp))
}

func (r *Router) add(ev types.InputEvent, to surface) {
	ev.Surface = to.name
	ev.PanelID = int(to.id)
	r.batch = append(r.batch, ev)
}

func domButton(b gesture.Button) int {
	if b == gesture.ButtonRight {
		return types.ButtonRight
	}
	return types.ButtonLeft
}

// Forget releases anything still held on a panel that is going away,
// including latched modifiers when it is the keyboard.
func (r *Router) Forget(id panel.ID) {
	for c, h := range r.held {
		if h.id != id || h.keys {
			continue
		}
		delete(r.held, c)
		r.add(types.InputEvent{Type: types.EventButtonUp, Button: h.button}, h.surface)
	}
	if r.keypad != nil && r.keypad.id == id {
		r.releaseKeys()
	}
}

// ReleaseAll lifts every held button and key, for teardown.
func (r *Router) ReleaseAll() {
	ids := make(map[panel.ID]bool)
	for _, h := range r.held {
		if !h.keys {
			ids[h.id] = true
		}
	}
	for id := range ids {
		r.Forget(id)
	}
	r.releaseKeys()
}

func (r *Router) releaseKeys() {
	if r.keys == nil || r.keypad == nil {
		return
	}
	to := *r.keypad
	r.keypad = nil
	for c, h := range r.held {
		if h.keys {
			delete(r.held, c)
		}
	}
	r.strokes(to, r.keys.ReleaseAll())
}

// Pending is the number of events routed since the last Commit.
func (r *Router) Pending() int { return len(r.batch) }

// Commit hands the batch of this tick to the dispatcher. It never blocks:
// when the queue is full the batch is dropped except for button and key
// releases, which are carried into the next batch so nothing stays held.
func (r *Router) Commit() bool {
	if len(r.batch) == 0 {
		return true
	}
	batch := r.batch
	r.batch = nil

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.droppedBatches.Add(1)
		r.droppedEvents.Add(uint64(len(batch)))
		return false
	}
	select {
	case r.queue <- batch:
		return true
	default:
		if r.droppedBatches.Add(1) == 1 {
			r.log.Warn().Int("events", len(batch)).Msg("input queue full, dropping batch")
		}
		var keep []types.InputEvent
		for _, ev := range batch {
			if ev.Type == types.EventButtonUp || ev.Type == types.EventKeyUp {
				keep = append(keep, ev)
			}
		}
		r.droppedEvents.Add(uint64(len(batch) - len(keep)))
		r.batch = keep
		// The sink never saw the last position.
		r.placed = false
		return false
	}
}

// Start launches the dispatcher goroutine. It delivers queued batches in
// order until Close, then drains the queue.
func (r *Router) Start() {
	if !r.ran.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(r.done)
		for batch := range r.queue {
			for _, ev := range batch {
				r.deliver(ev)
			}
		}
	}()
}

func (r *Router) deliver(ev types.InputEvent) {
	now := r.cfg.Clock()
	if r.degraded.Load() {
		if now.Sub(r.lastProbe) < r.cfg.RetryInterval {
			r.droppedEvents.Add(1)
			return
		}
		r.lastProbe = now
	}

	if err := r.sink.Inject(ev); err != nil {
		r.errs.Add(1)
		r.failures++
		r.log.Debug().Err(err).Str("type", string(ev.Type)).Msg("inject failed")
		if !r.degraded.Load() && r.failures >= r.cfg.FailureThreshold {
			r.degraded.Store(true)
			r.lastProbe = now
			r.log.Warn().Err(err).Int("failures", r.failures).Msg("input sink degraded")
		}
		return
	}
	r.failures = 0
	r.sent.Add(1)
	if r.degraded.Swap(false) {
		r.log.Warn().Msg("input sink recovered")
	}
}

// SetDesktopExtent passes the desktop size on to sinks that scale pointer
// positions to it. It reports whether the sink took it.
func (r *Router) SetDesktopExtent(width, height float64) bool {
	es, ok := r.sink.(types.ExtentSetter)
	if ok {
		es.SetDesktopExtent(width, height)
		r.log.Debug().Float64("width", width).Float64("height", height).Msg("desktop extent")
	}
	return ok
}

func (r *Router) Status() Status {
	return Status{
		Backend:        r.cfg.Backend,
		Degraded:       r.degraded.Load(),
		Sent:           r.sent.Load(),
		Errors:         r.errs.Load(),
		DroppedBatches: r.droppedBatches.Load(),
		DroppedEvents:  r.droppedEvents.Load(),
		Queued:         len(r.queue),
	}
}

// Close stops accepting batches, waits for the dispatcher to drain what is
// queued and closes the sink.
func (r *Router) Close() {
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()

		if r.ran.Load() {
			<-r.done
		} else {
			for batch := range r.queue {
				r.droppedEvents.Add(uint64(len(batch)))
			}
		}
		if r.sink != nil {
			r.sink.Close()
		}
	})
}
