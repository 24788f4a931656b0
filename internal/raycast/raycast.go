// Package raycast intersects controller rays with the visible panels of a
// tick's view.
package raycast

import (
	"math"

	"deskxr/internal/geom"
	"deskxr/internal/panel"

	"github.com/go-gl/mathgl/mgl64"
)

const parallelEpsilon = 1e-9

// Hit is the nearest panel intersection of one ray. It is only meaningful
// for the tick that produced it.
type Hit struct {
	Panel    panel.ID
	UV       mgl64.Vec2
	Distance float64
	Point    mgl64.Vec3
}

// Cast returns the nearest visible panel hit by the forward ray of pose.
// Equal distances resolve to the panel inserted first.
func Cast(pose geom.Pose, view *panel.View) (Hit, bool) {
	if view == nil || !pose.Valid() {
		return Hit{}, false
	}
	origin := pose.Position
	dir := pose.Forward().Normalize()

	var best Hit
	bestOrder := math.MaxInt
	found := false
	for i := range view.Panels {
		vp := &view.Panels[i]
		if !vp.Visible {
			continue
		}
		h, ok := intersect(origin, dir, vp)
		if !ok {
			continue
		}
		if !found || h.Distance < best.Distance || (h.Distance == best.Distance && vp.Order() < bestOrder) {
			best, bestOrder, found = h, vp.Order(), true
		}
	}
	return best, found
}

func intersect(origin, dir mgl64.Vec3, vp *panel.ViewPanel) (Hit, bool) {
	w, h := vp.Width, vp.Height
	if !(w > 0) || !(h > 0) {
		return Hit{}, false
	}
	inv := vp.World.Inverse()
	o := inv.TransformPoint(origin)
	d := inv.TransformDir(dir)
	if math.Abs(d.Z()) < parallelEpsilon {
		return Hit{}, false
	}
	t := -o.Z() / d.Z()
	if !(t > 0) {
		return Hit{}, false
	}
	local := o.Add(d.Mul(t))
	if math.Abs(local.X()) > w/2 || math.Abs(local.Y()) > h/2 {
		return Hit{}, false
	}
	uv := mgl64.Vec2{
		mgl64.Clamp(local.X()/w+0.5, 0, 1),
		mgl64.Clamp(0.5-local.Y()/h, 0, 1),
	}
	return Hit{
		Panel:    vp.ID,
		UV:       uv,
		Distance: t,
		Point:    origin.Add(dir.Mul(t)),
	}, true
}
