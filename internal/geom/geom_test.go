package geom

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoseValid(t *testing.T) {
	assert.True(t, Identity().Valid())

	p := Identity()
	p.Position[1] = math.NaN()
	assert.False(t, p.Valid())

	p = Identity()
	p.Orientation = mgl64.Quat{}
	assert.False(t, p.Valid())

	p = Identity()
	p.Orientation.V[2] = math.Inf(1)
	assert.False(t, p.Valid())
}

func TestNormalized(t *testing.T) {
	p := Pose{Orientation: mgl64.Quat{W: 2}}
	assert.InDelta(t, 1.0, p.Normalized().Orientation.Len(), 1e-12)

	p = Pose{Orientation: mgl64.Quat{}}
	assert.Equal(t, mgl64.QuatIdent(), p.Normalized().Orientation)
}

func TestMulInverse(t *testing.T) {
	a := NewPose(mgl64.Vec3{1, 2, 3}, mgl64.QuatRotate(0.7, mgl64.Vec3{0, 1, 0}))
	b := NewPose(mgl64.Vec3{-0.5, 0, 2}, mgl64.QuatRotate(-1.1, mgl64.Vec3{1, 0, 0}))

	got := a.Mul(b).Mul(b.Inverse())
	assert.True(t, got.ApproxEqual(a, 1e-9))

	pt := mgl64.Vec3{0.3, -0.2, 1}
	back := a.Inverse().TransformPoint(a.TransformPoint(pt))
	assert.True(t, back.ApproxEqualThreshold(pt, 1e-9))
}

func TestAxes(t *testing.T) {
	p := Identity()
	assert.Equal(t, mgl64.Vec3{0, 0, -1}, p.Forward())
	assert.Equal(t, mgl64.Vec3{1, 0, 0}, p.Right())

	turned := NewPose(mgl64.Vec3{}, mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 1, 0}))
	assert.True(t, turned.Forward().ApproxEqualThreshold(mgl64.Vec3{-1, 0, 0}, 1e-9))
}

func TestBackhand(t *testing.T) {
	threshold := mgl64.DegToRad(45)
	panel := mgl64.QuatIdent()

	// Neutral grip: lateral axis lies in the panel plane.
	assert.False(t, Backhand(mgl64.QuatIdent(), panel, false, threshold))

	// Roll the right hand so +X turns toward +Z (back of hand at the viewer).
	rolled := mgl64.QuatRotate(-math.Pi/2, mgl64.Vec3{0, 1, 0})
	assert.True(t, Backhand(rolled, panel, false, threshold))

	// The same roll on a left hand turns the palm toward the viewer instead.
	assert.False(t, Backhand(rolled, panel, true, threshold))

	slight := mgl64.QuatRotate(-mgl64.DegToRad(20), mgl64.Vec3{0, 1, 0})
	assert.False(t, Backhand(slight, panel, false, threshold))
}

func TestLookRotation(t *testing.T) {
	dir := mgl64.Vec3{1, 0, -1}.Normalize()
	q := LookRotation(dir, mgl64.Vec3{0, 1, 0})
	p := Pose{Orientation: q}
	assert.True(t, p.Forward().ApproxEqualThreshold(dir, 1e-9))
	assert.InDelta(t, 0, p.Right().Y(), 1e-9)
}

func TestDesktopMapping(t *testing.T) {
	r := Rect{X: 100, Y: 50, W: 1920, H: 1080}

	m := DesktopMapping(r, TransformNormal)
	assert.Equal(t, mgl64.Vec2{100, 50}, m.Apply(mgl64.Vec2{0, 0}))
	assert.Equal(t, mgl64.Vec2{1060, 590}, m.Apply(mgl64.Vec2{0.5, 0.5}))

	m = DesktopMapping(r, Transform180)
	assert.Equal(t, mgl64.Vec2{2020, 1130}, m.Apply(mgl64.Vec2{0, 0}))

	m = DesktopMapping(r, Transform90)
	assert.Equal(t, mgl64.Vec2{2020, 50}, m.Apply(mgl64.Vec2{0, 0}))
	assert.Equal(t, mgl64.Vec2{100, 1130}, m.Apply(mgl64.Vec2{1, 1}))
}

func TestContainRect(t *testing.T) {
	r := ContainRect(1, 2)
	require.InDelta(t, 0.25, r.Min.Y(), 1e-12)
	require.InDelta(t, 0.75, r.Max.Y(), 1e-12)
	assert.Equal(t, 0.0, r.Min.X())

	r = ContainRect(2, 1)
	assert.InDelta(t, 0.25, r.Min.X(), 1e-12)
	assert.InDelta(t, 0.75, r.Max.X(), 1e-12)

	assert.Equal(t, FullUV, ContainRect(16.0/9, 16.0/9))
	assert.Equal(t, FullUV, ContainRect(0, 1))
}

func TestUVRectNormalize(t *testing.T) {
	r := UVRect{Min: mgl64.Vec2{0, 0.25}, Max: mgl64.Vec2{1, 0.75}}
	assert.Equal(t, mgl64.Vec2{0.5, 0.5}, r.Normalize(mgl64.Vec2{0.5, 0.5}))
	assert.Equal(t, mgl64.Vec2{0.5, 0}, r.Normalize(mgl64.Vec2{0.5, 0.1}))
	assert.Equal(t, mgl64.Vec2{0.5, 1}, r.Normalize(mgl64.Vec2{0.5, 0.9}))
}
