// Package compositor is the boundary to the 3D renderer. Each tick the
// session hands it a DrawList built from the same View the interaction pass
// used.
package compositor

import (
	"context"
	"sync"
	"time"

	"deskxr/internal/geom"
	"deskxr/internal/gesture"
	"deskxr/internal/panel"
	"deskxr/internal/types"

	"github.com/go-gl/mathgl/mgl64"
)

// Compositor draws one frame. Submit must not retain the DrawList after it
// returns unless it copies it.
type Compositor interface {
	Submit(ctx context.Context, dl *DrawList) error
}

type PanelDraw struct {
	ID          panel.ID
	Name        string
	Kind        panel.Kind
	World       geom.Pose
	Width       float64
	Height      float64
	Texture     *types.Frame
	ContentRect geom.UVRect
	Visible     bool
	Unavailable bool
}

type LaserDraw struct {
	Controller int
	Origin     mgl64.Vec3
	Dir        mgl64.Vec3
	Length     float64
	Color      [4]float32
}

type DrawList struct {
	Tick   uint64
	At     time.Time
	Panels []PanelDraw
	Lasers []LaserDraw
}

var (
	laserHover   = [4]float32{0.9, 0.9, 0.9, 0.8}
	laserPressed = [4]float32{0.2, 0.6, 1, 1}
	laserRight   = [4]float32{1, 0.6, 0.2, 1}
	laserMove    = [4]float32{0.3, 1, 0.4, 1}
	laserResize  = [4]float32{1, 0.9, 0.2, 1}
)

// Build fills dl from the tick's view and lasers, reusing its slices.
func Build(dl *DrawList, tick uint64, at time.Time, view *panel.View, lasers []gesture.Laser) {
	dl.Tick, dl.At = tick, at
	dl.Panels = dl.Panels[:0]
	for i := range view.Panels {
		vp := &view.Panels[i]
		dl.Panels = append(dl.Panels, PanelDraw{
			ID:          vp.ID,
			Name:        vp.Name,
			Kind:        vp.Kind,
			World:       vp.World,
			Width:       vp.Width,
			Height:      vp.Height,
			Texture:     vp.Texture,
			ContentRect: vp.ContentRect(),
			Visible:     vp.Visible,
			Unavailable: vp.Unavailable,
		})
	}
	dl.Lasers = dl.Lasers[:0]
	for _, l := range lasers {
		dl.Lasers = append(dl.Lasers, LaserDraw{
			Controller: l.Controller,
			Origin:     l.Origin,
			Dir:        l.Dir,
			Length:     l.Length,
			Color:      laserColor(l),
		})
	}
}

func laserColor(l gesture.Laser) [4]float32 {
	switch l.State {
	case gesture.StatePressed:
		if l.Button == gesture.ButtonRight {
			return laserRight
		}
		return laserPressed
	case gesture.StateDragging:
		if l.Mode == gesture.ModeResize {
			return laserResize
		}
		return laserMove
	}
	return laserHover
}

// Recorder keeps a copy of the last submitted list. It stands in for the
// renderer in headless runs and backs the debug endpoints.
type Recorder struct {
	mu     sync.Mutex
	last   DrawList
	frames uint64
}

func (r *Recorder) Submit(_ context.Context, dl *DrawList) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last.Tick, r.last.At = dl.Tick, dl.At
	r.last.Panels = append(r.last.Panels[:0], dl.Panels...)
	r.last.Lasers = append(r.last.Lasers[:0], dl.Lasers...)
	r.frames++
	return nil
}

// Last returns a copy of the most recent list.
func (r *Recorder) Last() DrawList {
	r.mu.Lock()
	defer r.mu.Unlock()
	return DrawList{
		Tick:   r.last.Tick,
		At:     r.last.At,
		Panels: append([]PanelDraw(nil), r.last.Panels...),
		Lasers: append([]LaserDraw(nil), r.last.Lasers...),
	}
}

func (r *Recorder) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Texture is the texture the last list drew for a panel.
func (r *Recorder) Texture(id panel.ID) (*types.Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.last.Panels {
		if p.ID == id {
			return p.Texture, p.Texture != nil
		}
	}
	return nil, false
}
