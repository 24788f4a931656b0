// Package geom holds the rigid transform and planar mapping math shared by
// the panel registry, the raycaster and the gesture engine.
//
// Conventions: right handed, metres, +Y up. A pose points along its local -Z
// axis (forward), +X is its lateral axis and +Z faces back toward the viewer.
package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	axisX = mgl64.Vec3{1, 0, 0}
	axisY = mgl64.Vec3{0, 1, 0}
	axisZ = mgl64.Vec3{0, 0, 1}
)

// Pose is a position plus a unit quaternion orientation.
type Pose struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
}

// Identity returns the pose at the origin looking down -Z.
func Identity() Pose {
	return Pose{Orientation: mgl64.QuatIdent()}
}

// NewPose builds a pose and renormalizes the orientation.
func NewPose(pos mgl64.Vec3, rot mgl64.Quat) Pose {
	return Pose{Position: pos, Orientation: rot}.Normalized()
}

// Valid reports whether every component is finite and the orientation can be
// normalized.
func (p Pose) Valid() bool {
	for _, c := range []float64{
		p.Position[0], p.Position[1], p.Position[2],
		p.Orientation.W, p.Orientation.V[0], p.Orientation.V[1], p.Orientation.V[2],
	} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return p.Orientation.Len() > 1e-9
}

// Normalized returns p with a unit orientation. A degenerate quaternion
// becomes the identity.
func (p Pose) Normalized() Pose {
	l := p.Orientation.Len()
	if l < 1e-9 || math.IsNaN(l) {
		p.Orientation = mgl64.QuatIdent()
		return p
	}
	p.Orientation = p.Orientation.Scale(1 / l)
	return p
}

// Mul composes p then q: the result maps q-local coordinates through q and
// then through p.
func (p Pose) Mul(q Pose) Pose {
	return Pose{
		Position:    p.Position.Add(p.Orientation.Rotate(q.Position)),
		Orientation: p.Orientation.Mul(q.Orientation),
	}.Normalized()
}

// Inverse returns the pose that undoes p.
func (p Pose) Inverse() Pose {
	inv := p.Orientation.Conjugate()
	return Pose{
		Position:    inv.Rotate(p.Position).Mul(-1),
		Orientation: inv,
	}
}

// TransformPoint maps a local point into the parent space.
func (p Pose) TransformPoint(v mgl64.Vec3) mgl64.Vec3 {
	return p.Position.Add(p.Orientation.Rotate(v))
}

// TransformDir maps a local direction into the parent space.
func (p Pose) TransformDir(v mgl64.Vec3) mgl64.Vec3 {
	return p.Orientation.Rotate(v)
}

func (p Pose) Forward() mgl64.Vec3 { return p.Orientation.Rotate(axisZ.Mul(-1)) }
func (p Pose) Right() mgl64.Vec3   { return p.Orientation.Rotate(axisX) }
func (p Pose) Up() mgl64.Vec3      { return p.Orientation.Rotate(axisY) }
func (p Pose) Normal() mgl64.Vec3  { return p.Orientation.Rotate(axisZ) }

// ApproxEqual compares two poses with a tolerance. q and -q are the same
// rotation.
func (p Pose) ApproxEqual(q Pose, eps float64) bool {
	if !p.Position.ApproxEqualThreshold(q.Position, eps) {
		return false
	}
	d := math.Abs(p.Orientation.Dot(q.Orientation))
	return math.Abs(1-d) <= eps
}

// Backhand reports whether the controller's back of hand is turned toward
// the reference: the lateral axis (+X for a right hand, -X for a left hand)
// tilts out of the reference plane, toward the reference's +Z, by more than
// threshold radians. The reference is a panel (its +Z faces the viewer) or
// the headset (its +Z points back at the wearer).
func Backhand(controller, reference mgl64.Quat, leftHanded bool, threshold float64) bool {
	lateral := controller.Rotate(axisX)
	if leftHanded {
		lateral = lateral.Mul(-1)
	}
	facing := reference.Rotate(axisZ)
	return lateral.Dot(facing) > math.Sin(threshold)
}

// LookRotation builds an orientation whose forward (-Z) is dir and whose up
// is as close to up as possible.
func LookRotation(dir, up mgl64.Vec3) mgl64.Quat {
	f := dir.Normalize()
	r := f.Cross(up)
	if r.Len() < 1e-9 {
		r = f.Cross(axisZ)
	}
	r = r.Normalize()
	u := r.Cross(f)
	m := mgl64.Mat3FromCols(r, u, f.Mul(-1))
	return mgl64.Mat4ToQuat(m.Mat4()).Normalize()
}
