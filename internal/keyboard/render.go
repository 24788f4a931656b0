package keyboard

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"time"
	"unicode"

	"deskxr/internal/capture"
	"deskxr/internal/types"

	"github.com/gogpu/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

type palette struct {
	bg, key, hover, down [3]float64
}

var defaultPalette = palette{
	bg:    [3]float64{0.07, 0.08, 0.10},
	key:   [3]float64{0.20, 0.22, 0.26},
	hover: [3]float64{0.32, 0.35, 0.42},
	down:  [3]float64{0.16, 0.45, 0.80},
}

// Renderer draws the keyboard texture. Unit is the size of one key unit
// in pixels.
type Renderer struct {
	Unit int
}

func (r Renderer) unit() int {
	if r.Unit <= 0 {
		return 48
	}
	return r.Unit
}

// Size is the texture size for a layout.
func (r Renderer) Size(l *Layout) (int, int) {
	w, h := l.Size()
	u := float64(r.unit())
	return int(w * u), int(h * u)
}

func (r Renderer) Render(v View) *image.RGBA {
	u := float64(r.unit())
	pw, ph := r.Size(v.Layout)
	dc := gg.NewContext(pw, ph)
	defer dc.Close()

	p := defaultPalette
	dc.ClearWithColor(gg.RGB(p.bg[0], p.bg[1], p.bg[2]))
	pad := u * 0.06
	for i := range v.Layout.Cells() {
		c := &v.Layout.Cells()[i]
		col := p.key
		switch {
		case v.Held[c.Code] || (c.Modifier.Latching() && v.Latched&c.Modifier != 0):
			col = p.down
		case v.Hovered[c.Index]:
			col = p.hover
		}
		dc.DrawRoundedRectangle(c.X*u+pad, c.Y*u+pad, c.W*u-2*pad, c.H*u-2*pad, u*0.12)
		dc.SetRGB(col[0], col[1], col[2])
		_ = dc.Fill()
	}

	img, ok := dc.Image().(*image.RGBA)
	if !ok {
		src := dc.Image()
		img = image.NewRGBA(src.Bounds())
		draw.Draw(img, img.Bounds(), src, image.Point{}, draw.Src)
	}

	d := &font.Drawer{Dst: img, Src: image.NewUniform(color.White), Face: basicfont.Face7x13}
	shifted := v.Latched&ModShift != 0
	caps := v.Latched&ModCapsLock != 0
	for i := range v.Layout.Cells() {
		c := &v.Layout.Cells()[i]
		label := keyLabel(c.Key, shifted, caps)
		if label == "" {
			continue
		}
		adv := d.MeasureString(label).Ceil()
		cx := int((c.X + c.W/2) * u)
		cy := int((c.Y + c.H/2) * u)
		d.Dot = fixed.P(cx-adv/2, cy+4)
		d.DrawString(label)
	}
	return img
}

func keyLabel(k Key, shifted, caps bool) string {
	if k.Shift == "" {
		return k.Label
	}
	letter := len([]rune(k.Label)) == 1 && unicode.IsLetter([]rune(k.Label)[0])
	if shifted != (caps && letter) {
		return k.Shift
	}
	return k.Label
}

// Source renders the keyboard into a feed whenever its state changes.
type Source struct {
	Keyboard *Keyboard
	Renderer Renderer
	// Poll is how often the state version is checked.
	Poll time.Duration
}

func (s *Source) Name() string { return "keyboard" }

func (s *Source) Run(ctx context.Context, feed *capture.Feed) error {
	poll := s.Poll
	if poll <= 0 {
		poll = 16 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	seq := feed.Seq()
	rendered := ^uint64(0)
	for {
		if v := s.Keyboard.Version(); v != rendered {
			rendered = v
			seq++
			frame := types.FrameFromImage(s.Renderer.Render(s.Keyboard.View()))
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
