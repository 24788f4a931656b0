package panel

import (
	"fmt"
	"sync"
	"sync/atomic"

	"deskxr/internal/geom"
)

// Registry owns all panels.
type Registry struct {
	mu        sync.Mutex
	panels    []*Panel
	nextID    ID
	nextOrder int
	version   uint64

	snap atomic.Pointer[Snapshot]
}

func NewRegistry() *Registry {
	r := &Registry{nextID: 1}
	r.snap.Store(&Snapshot{})
	return r
}

// Add registers a panel. A zero Height is derived from the content aspect.
func (r *Registry) Add(spec Spec) (ID, error) {
	if spec.Height == 0 && spec.ContentWidth > 0 && spec.ContentHeight > 0 {
		spec.Height = spec.Width * float64(spec.ContentHeight) / float64(spec.ContentWidth)
	}
	if !validSize(spec.Width, spec.Height) {
		return 0, fmt.Errorf("add %q: %w", spec.Name, ErrInvalidSize)
	}
	if !spec.Pose.Valid() {
		spec.Pose = geom.Identity()
	}
	spec.Pose = spec.Pose.Normalized()

	r.mu.Lock()
	defer r.mu.Unlock()

	p := &Panel{Spec: spec, ID: r.nextID, order: r.nextOrder}
	r.nextID++
	r.nextOrder++
	p.recompute()
	r.panels = append(r.panels, p)
	r.publishLocked()
	return p.ID, nil
}

// Remove destroys a panel. It reports whether the panel existed.
func (r *Registry) Remove(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.panels {
		if p.ID == id {
			r.panels = append(r.panels[:i:i], r.panels[i+1:]...)
			r.publishLocked()
			return true
		}
	}
	return false
}

// Get returns a copy of the panel from the current snapshot.
func (r *Registry) Get(id ID) (Panel, bool) {
	p, ok := r.Snapshot().Lookup(id)
	if !ok {
		return Panel{}, false
	}
	return *p, true
}

func (r *Registry) Snapshot() *Snapshot { return r.snap.Load() }

func (r *Registry) SetVisible(id ID, visible bool) error {
	return r.update(id, func(p *Panel) error {
		p.Visible = visible
		return nil
	})
}

// SetVisibleKind toggles every panel of a kind at once.
func (r *Registry) SetVisibleKind(kind Kind, visible bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := false
	for i, p := range r.panels {
		if p.Kind == kind && p.Visible != visible {
			cp := *p
			cp.Visible = visible
			r.panels[i] = &cp
			changed = true
		}
	}
	if changed {
		r.publishLocked()
	}
}

// HideAll marks every panel invisible. Textures are kept.
func (r *Registry) HideAll() {
	for _, k := range []Kind{KindScreen, KindKeyboard, KindWatch} {
		r.SetVisibleKind(k, false)
	}
}

// SetWorldPose places a panel in world space and detaches it from its
// anchor.
func (r *Registry) SetWorldPose(id ID, pose geom.Pose) error {
	if !pose.Valid() {
		return fmt.Errorf("set pose of panel %d: invalid pose", id)
	}
	return r.update(id, func(p *Panel) error {
		p.Anchor = WorldAnchor
		p.Pose = pose.Normalized()
		return nil
	})
}

// Resize sets the width; height follows the content aspect (or scales
// proportionally when stretched) and the uv mapping is recomputed.
func (r *Registry) Resize(id ID, width float64) error {
	return r.update(id, func(p *Panel) error {
		if !validSize(width, p.Height) {
			return fmt.Errorf("resize panel %d: %w", id, ErrInvalidSize)
		}
		p.resize(width)
		return nil
	})
}

// UpdateContent records a new native content resolution.
func (r *Registry) UpdateContent(id ID, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("content of panel %d: %w", id, ErrInvalidSize)
	}
	return r.update(id, func(p *Panel) error {
		if p.ContentWidth == width && p.ContentHeight == height {
			return nil
		}
		p.setContent(width, height)
		return nil
	})
}

func (r *Registry) update(id ID, fn func(*Panel) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.panels {
		if p.ID != id {
			continue
		}
		cp := *p
		if err := fn(&cp); err != nil {
			return err
		}
		r.panels[i] = &cp
		r.publishLocked()
		return nil
	}
	return fmt.Errorf("panel %d: %w", id, ErrNotFound)
}

func (r *Registry) publishLocked() {
	r.version++
	s := &Snapshot{Version: r.version, Panels: make([]Panel, len(r.panels))}
	for i, p := range r.panels {
		s.Panels[i] = *p
	}
	r.snap.Store(s)
}
