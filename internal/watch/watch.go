// Package watch renders the wrist clock panel.
package watch

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"time"

	"deskxr/internal/capture"
	"deskxr/internal/geom"
	"deskxr/internal/types"

	"github.com/disintegration/imaging"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/gogpu/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Panel size in metres and its pose on the wrist, relative to the
// controller aim pose.
const (
	Width  = 0.115
	Height = 0.0575
)

// Pose faces the watch back toward the user, slightly below and behind the
// controller.
func Pose() geom.Pose {
	return geom.NewPose(mgl64.Vec3{0, -0.05, 0.05}, mgl64.Quat{W: 0, V: mgl64.Vec3{0, 1, 0}})
}

// Render draws the clock face for t at w x h pixels.
func Render(t time.Time, w, h int) *image.RGBA {
	dc := gg.NewContext(w, h)
	defer dc.Close()
	dc.ClearWithColor(gg.RGB(0.05, 0.05, 0.07))
	r := float64(h) * 0.18
	dc.DrawRoundedRectangle(2, 2, float64(w)-4, float64(h)-4, r)
	dc.SetRGB(0.12, 0.13, 0.17)
	_ = dc.Fill()

	face := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(face, face.Bounds(), dc.Image(), image.Point{}, draw.Src)

	clock := label(t.Format("15:04"), color.White)
	date := label(t.Format("Jan 02"), color.RGBA{0x9a, 0xa4, 0xb8, 0xff})

	// basicfont is 13px tall; scale the labels up to the face size.
	clock = imaging.Resize(clock, 0, h/2, imaging.NearestNeighbor)
	date = imaging.Resize(date, 0, h/5, imaging.NearestNeighbor)
	paste(face, clock, h/12)
	paste(face, date, h/12+clock.Bounds().Dy()+h/16)
	return face
}

func label(s string, c color.Color) *image.NRGBA {
	d := &font.Drawer{Src: image.NewUniform(c), Face: basicfont.Face7x13}
	w := d.MeasureString(s).Ceil()
	img := image.NewNRGBA(image.Rect(0, 0, w, 13))
	d.Dst = img
	d.Dot = fixed.P(0, 11)
	d.DrawString(s)
	return img
}

// paste draws src horizontally centred at row y.
func paste(dst *image.RGBA, src *image.NRGBA, y int) {
	x := (dst.Bounds().Dx() - src.Bounds().Dx()) / 2
	r := src.Bounds().Add(image.Pt(x, y))
	draw.Draw(dst, r, src, image.Point{}, draw.Over)
}

// Source republishes the clock face whenever the displayed minute changes.
type Source struct {
	Width, Height int
	Now           func() time.Time
	Poll          time.Duration
}

func (s *Source) Name() string { return "watch" }

func (s *Source) Run(ctx context.Context, feed *capture.Feed) error {
	now := s.Now
	if now == nil {
		now = time.Now
	}
	w, h := s.Width, s.Height
	if w <= 0 || h <= 0 {
		w, h = 240, 120
	}
	poll := s.Poll
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	seq := feed.Seq()
	var shown time.Time
	for {
		t := now().Truncate(time.Minute)
		if !t.Equal(shown) {
			shown = t
			seq++
			frame := types.FrameFromImage(Render(t, w, h))
			frame.Seq = seq
			frame.Timestamp = time.Now()
			if err := feed.Push(frame); errors.Is(err, capture.ErrFeedClosed) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
