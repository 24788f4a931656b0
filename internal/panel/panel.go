// Package panel owns the overlay panels placed in the immersive space.
//
// The Registry is the single owner of every panel. Mutations go through the
// registry and publish a new immutable Snapshot; readers on the tick path
// only load the current snapshot and never lock.
package panel

import (
	"errors"
	"math"

	"deskxr/internal/geom"
	"deskxr/internal/types"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	ErrNotFound    = errors.New("panel not found")
	ErrInvalidSize = errors.New("panel size must be positive")
)

// ID identifies a panel for its whole lifetime. IDs are never reused.
type ID int

type Kind int

const (
	KindScreen Kind = iota
	KindKeyboard
	KindWatch
)

func (k Kind) String() string {
	switch k {
	case KindKeyboard:
		return "keyboard"
	case KindWatch:
		return "watch"
	}
	return "screen"
}

type AnchorKind int

const (
	AnchorWorld AnchorKind = iota
	AnchorHead
	AnchorController
)

// Anchor is what a panel's local pose is relative to.
type Anchor struct {
	Kind       AnchorKind
	Controller int
}

var WorldAnchor = Anchor{Kind: AnchorWorld}

// Fit controls how content that does not match the panel aspect is shown.
type Fit int

const (
	FitContain Fit = iota
	FitStretch
)

// Content is the texture source of a panel.
type Content interface {
	Current() *types.Frame
	Unavailable() bool
}

// Spec describes a panel to create.
type Spec struct {
	Name      string
	Kind      Kind
	Anchor    Anchor
	Pose      geom.Pose
	Width     float64
	Height    float64
	Content   Content
	Visible   bool
	Grabbable bool
	Fit       Fit

	// Desktop is the output's rect in logical desktop pixels. Empty means
	// the native content size at the origin.
	Desktop   geom.Rect
	Transform geom.OutputTransform

	ContentWidth  int
	ContentHeight int
}

// Panel is a value copy of a registered panel.
type Panel struct {
	Spec
	ID ID

	order       int
	mapping     geom.Affine2
	contentRect geom.UVRect
}

// Order is the insertion order, used to break ray-cast ties.
func (p *Panel) Order() int { return p.order }

// Mapping is the uv to desktop pixel affine of the content area.
func (p *Panel) Mapping() geom.Affine2 { return p.mapping }

// ContentRect is the part of the panel showing content, in panel uv.
func (p *Panel) ContentRect() geom.UVRect { return p.contentRect }

// PixelAt maps a panel uv to absolute desktop pixels. uv outside the content
// area clamps to its edge.
func (p *Panel) PixelAt(uv mgl64.Vec2) mgl64.Vec2 {
	return p.mapping.Apply(p.contentRect.Normalize(uv))
}

// Mapped reports whether uv can be mapped to desktop pixels yet: a panel
// without a desktop rect waits for its first frame.
func (p *Panel) Mapped() bool {
	return !p.Desktop.Empty() || (p.ContentWidth > 0 && p.ContentHeight > 0)
}

func validSize(w, h float64) bool {
	return w > 0 && h > 0 && !math.IsInf(w, 0) && !math.IsInf(h, 0)
}

func (p *Panel) recompute() {
	cw, ch := float64(p.ContentWidth), float64(p.ContentHeight)
	rect := p.Desktop
	if rect.Empty() && cw > 0 && ch > 0 {
		rect = geom.Rect{W: cw, H: ch}
		switch p.Transform {
		case geom.Transform90, geom.Transform270, geom.TransformFlipped90, geom.TransformFlipped270:
			rect.W, rect.H = ch, cw
		}
	}
	p.mapping = geom.DesktopMapping(rect, p.Transform)

	if p.Fit == FitStretch || cw <= 0 || ch <= 0 {
		p.contentRect = geom.FullUV
		return
	}
	p.contentRect = geom.ContainRect(p.Width/p.Height, cw/ch)
}

// contentAspect is the native aspect, 0 when unknown.
func (p *Panel) contentAspect() float64 {
	if p.ContentWidth <= 0 || p.ContentHeight <= 0 {
		return 0
	}
	return float64(p.ContentWidth) / float64(p.ContentHeight)
}

func (p *Panel) resize(width float64) {
	if a := p.contentAspect(); a > 0 && p.Fit == FitContain {
		p.Height = width / a
	} else {
		p.Height *= width / p.Width
	}
	p.Width = width
	p.recompute()
}

func (p *Panel) setContent(w, h int) {
	p.ContentWidth, p.ContentHeight = w, h
	if a := p.contentAspect(); a > 0 && p.Fit == FitContain {
		p.Height = p.Width / a
	}
	p.recompute()
}
