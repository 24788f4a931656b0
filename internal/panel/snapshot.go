package panel

import (
	"deskxr/internal/geom"
	"deskxr/internal/types"
)

// Snapshot is an immutable copy of the registry at one version. Panels are
// in insertion order.
type Snapshot struct {
	Version uint64
	Panels  []Panel
}

func (s *Snapshot) Lookup(id ID) (*Panel, bool) {
	for i := range s.Panels {
		if s.Panels[i].ID == id {
			return &s.Panels[i], true
		}
	}
	return nil, false
}

// Anchors carries the poses anchored panels are resolved against.
type Anchors struct {
	Head        geom.Pose
	Controllers []geom.Pose
}

// ViewPanel is a panel resolved for one tick: world pose and the texture
// that tick will draw.
type ViewPanel struct {
	Panel
	World       geom.Pose
	Texture     *types.Frame
	Unavailable bool
}

// View is the frame-local panel set shared by the interaction pass and the
// render pass of one tick.
type View struct {
	Version uint64
	Panels  []ViewPanel
	index   map[ID]int
}

// View resolves anchors and loads each panel's current texture exactly once.
func (s *Snapshot) View(a Anchors) *View {
	v := &View{
		Version: s.Version,
		Panels:  make([]ViewPanel, len(s.Panels)),
		index:   make(map[ID]int, len(s.Panels)),
	}
	for i, p := range s.Panels {
		vp := ViewPanel{Panel: p, World: p.Pose}
		switch p.Anchor.Kind {
		case AnchorHead:
			vp.World = a.Head.Mul(p.Pose)
		case AnchorController:
			if c := p.Anchor.Controller; c >= 0 && c < len(a.Controllers) {
				vp.World = a.Controllers[c].Mul(p.Pose)
			}
		}
		if p.Content != nil {
			vp.Texture = p.Content.Current()
			vp.Unavailable = p.Content.Unavailable()
		}
		v.Panels[i] = vp
		v.index[p.ID] = i
	}
	return v
}

func (v *View) Lookup(id ID) (*ViewPanel, bool) {
	i, ok := v.index[id]
	if !ok {
		return nil, false
	}
	return &v.Panels[i], true
}

func (v *View) Has(id ID) bool {
	_, ok := v.index[id]
	return ok
}
