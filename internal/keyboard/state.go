package keyboard

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl64"
)

// Stroke is one key transition to send to the desktop.
type Stroke struct {
	Key     Key
	Pressed bool
}

// Keyboard is the shared keyboard state. The tick goroutine presses and
// hovers keys; the renderer reads a View of it.
type Keyboard struct {
	layout  atomic.Pointer[Layout]
	version atomic.Uint64

	mu      sync.Mutex
	latched map[Modifier]Key
	held    map[int]Key
	hover   map[int]int
}

func New(l *Layout) *Keyboard {
	if l == nil {
		l = Default()
	}
	k := &Keyboard{
		latched: make(map[Modifier]Key),
		held:    make(map[int]Key),
		hover:   make(map[int]int),
	}
	k.layout.Store(l)
	return k
}

func (k *Keyboard) Layout() *Layout { return k.layout.Load() }

// SetLayout swaps the layout. Keys still held keep their codes, so their
// releases are unaffected.
func (k *Keyboard) SetLayout(l *Layout) {
	k.layout.Store(l)
	k.mu.Lock()
	clear(k.hover)
	k.mu.Unlock()
	k.bump()
}

// Version changes whenever anything visible changes.
func (k *Keyboard) Version() uint64 { return k.version.Load() }

func (k *Keyboard) bump() { k.version.Add(1) }

// Hover marks the key under a controller's ray; on=false clears it.
func (k *Keyboard) Hover(controller int, uv mgl64.Vec2, on bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	prev, had := k.hover[controller]
	if !on {
		if had {
			delete(k.hover, controller)
			k.bump()
		}
		return
	}
	c, ok := k.Layout().CellAt(uv)
	if !ok {
		return
	}
	if !had || prev != c.Index {
		k.hover[controller] = c.Index
		k.bump()
	}
}

// Press handles a trigger pull at uv. A latching modifier toggles its latch;
// any other key goes down and is remembered for Release.
func (k *Keyboard) Press(controller int, uv mgl64.Vec2) []Stroke {
	c, ok := k.Layout().CellAt(uv)
	if !ok {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	defer k.bump()

	if c.Modifier.Latching() {
		if prev, on := k.latched[c.Modifier]; on {
			delete(k.latched, c.Modifier)
			return []Stroke{{Key: prev}}
		}
		k.latched[c.Modifier] = c.Key
		return []Stroke{{Key: c.Key, Pressed: true}}
	}
	var out []Stroke
	if prev, ok := k.held[controller]; ok {
		out = append(out, Stroke{Key: prev})
	}
	k.held[controller] = c.Key
	return append(out, Stroke{Key: c.Key, Pressed: true})
}

// Release lets go of the key the controller pressed, then releases every
// latched modifier.
func (k *Keyboard) Release(controller int) []Stroke {
	k.mu.Lock()
	defer k.mu.Unlock()
	key, ok := k.held[controller]
	if !ok {
		return nil
	}
	delete(k.held, controller)
	out := []Stroke{{Key: key}}
	for _, m := range sortedMods(k.latched) {
		out = append(out, Stroke{Key: k.latched[m]})
		delete(k.latched, m)
	}
	k.bump()
	return out
}

// ReleaseAll lifts everything, for teardown.
func (k *Keyboard) ReleaseAll() []Stroke {
	k.mu.Lock()
	defer k.mu.Unlock()
	var out []Stroke
	for c := range k.held {
		out = append(out, Stroke{Key: k.held[c]})
	}
	clear(k.held)
	for _, m := range sortedMods(k.latched) {
		out = append(out, Stroke{Key: k.latched[m]})
	}
	clear(k.latched)
	clear(k.hover)
	k.bump()
	return out
}

// View is what the renderer needs to draw one frame.
type View struct {
	Layout  *Layout
	Latched Modifier
	Held    map[uint16]bool
	Hovered map[int]bool
}

func (k *Keyboard) View() View {
	k.mu.Lock()
	defer k.mu.Unlock()
	v := View{
		Layout:  k.Layout(),
		Held:    make(map[uint16]bool, len(k.held)),
		Hovered: make(map[int]bool, len(k.hover)),
	}
	for m := range k.latched {
		v.Latched |= m
	}
	for _, key := range k.held {
		v.Held[key.Code] = true
	}
	for _, idx := range k.hover {
		v.Hovered[idx] = true
	}
	return v
}

func sortedMods(m map[Modifier]Key) []Modifier {
	out := make([]Modifier, 0, len(m))
	for mod := range m {
		out = append(out, mod)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
