package geom

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// OutputTransform is the rotation/flip a compositor applies to an output
// before presenting it in the logical desktop space.
type OutputTransform int

const (
	TransformNormal OutputTransform = iota
	Transform90
	Transform180
	Transform270
	TransformFlipped
	TransformFlipped90
	TransformFlipped180
	TransformFlipped270
)

// Affine2 maps a normalized buffer coordinate to desktop pixels:
//
//	x = X[0]*u + Y[0]*v + T[0]
//	y = X[1]*u + Y[1]*v + T[1]
type Affine2 struct {
	X, Y, T mgl64.Vec2
}

// Apply maps uv through the affine.
func (a Affine2) Apply(uv mgl64.Vec2) mgl64.Vec2 {
	return a.X.Mul(uv[0]).Add(a.Y.Mul(uv[1])).Add(a.T)
}

// Rect is an axis aligned rectangle.
type Rect struct {
	X, Y, W, H float64
}

// Empty reports a rectangle without area.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// DesktopMapping builds the uv to pixel affine for an output placed at
// logical rect r with transform t.
func DesktopMapping(r Rect, t OutputTransform) Affine2 {
	switch t {
	case Transform90, TransformFlipped90:
		return Affine2{
			X: mgl64.Vec2{0, r.H},
			Y: mgl64.Vec2{-r.W, 0},
			T: mgl64.Vec2{r.X + r.W, r.Y},
		}
	case Transform180, TransformFlipped180:
		return Affine2{
			X: mgl64.Vec2{-r.W, 0},
			Y: mgl64.Vec2{0, -r.H},
			T: mgl64.Vec2{r.X + r.W, r.Y + r.H},
		}
	case Transform270, TransformFlipped270:
		return Affine2{
			X: mgl64.Vec2{0, -r.H},
			Y: mgl64.Vec2{r.W, 0},
			T: mgl64.Vec2{r.X, r.Y + r.H},
		}
	}
	return Affine2{
		X: mgl64.Vec2{r.W, 0},
		Y: mgl64.Vec2{0, r.H},
		T: mgl64.Vec2{r.X, r.Y},
	}
}

// UVRect is a sub-rectangle of the unit square.
type UVRect struct {
	Min, Max mgl64.Vec2
}

// FullUV covers the whole panel.
var FullUV = UVRect{Max: mgl64.Vec2{1, 1}}

// Normalize clamps uv into the rect and rescales it to [0,1]².
func (r UVRect) Normalize(uv mgl64.Vec2) mgl64.Vec2 {
	var out mgl64.Vec2
	for i := 0; i < 2; i++ {
		span := r.Max[i] - r.Min[i]
		if span <= 0 {
			out[i] = 0.5
			continue
		}
		out[i] = mgl64.Clamp((uv[i]-r.Min[i])/span, 0, 1)
	}
	return out
}

// ContainRect returns the centered sub-rect of a panel with aspect
// panelAspect that shows content of aspect contentAspect without stretching.
func ContainRect(panelAspect, contentAspect float64) UVRect {
	if panelAspect <= 0 || contentAspect <= 0 || math.Abs(contentAspect-panelAspect) <= 1e-9*panelAspect {
		return FullUV
	}
	if contentAspect > panelAspect {
		h := panelAspect / contentAspect
		return UVRect{Min: mgl64.Vec2{0, (1 - h) / 2}, Max: mgl64.Vec2{1, (1 + h) / 2}}
	}
	w := contentAspect / panelAspect
	return UVRect{Min: mgl64.Vec2{(1 - w) / 2, 0}, Max: mgl64.Vec2{(1 + w) / 2, 1}}
}
