package types

import (
	"image"
	"image/color"
	"time"
)

type PixelFormat int

const (
	PixFmtBGRA PixelFormat = iota
	PixFmtRGBA
)

func (f PixelFormat) String() string {
	if f == PixFmtRGBA {
		return "rgba"
	}
	return "bgra"
}

// Frame is a captured desktop frame. Frames are immutable once handed to a
// feed; producers must not reuse Data afterward.
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Stride    int
	Format    PixelFormat
	Seq       uint64
	Timestamp time.Time

	// SourceWidth and SourceHeight are the captured size when the frame was
	// scaled down for display. Zero means Width and Height.
	SourceWidth  int
	SourceHeight int
}

// SourceSize is the size of the frame as captured.
func (f *Frame) SourceSize() (w, h int) {
	if f.SourceWidth > 0 && f.SourceHeight > 0 {
		return f.SourceWidth, f.SourceHeight
	}
	return f.Width, f.Height
}

// Aspect is width over height, 0 for an empty frame.
func (f *Frame) Aspect() float64 {
	if f == nil || f.Height == 0 {
		return 0
	}
	return float64(f.Width) / float64(f.Height)
}

// Image converts the frame to an RGBA image.
func (f *Frame) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			off := y*f.Stride + x*4
			px := f.Data[off : off+4]
			if f.Format == PixFmtBGRA {
				img.SetRGBA(x, y, color.RGBA{px[2], px[1], px[0], 255})
			} else {
				img.SetRGBA(x, y, color.RGBA{px[0], px[1], px[2], px[3]})
			}
		}
	}
	return img
}

// FrameFromImage copies an image into an RGBA frame.
func FrameFromImage(img image.Image) *Frame {
	b := img.Bounds()
	f := &Frame{
		Width:  b.Dx(),
		Height: b.Dy(),
		Stride: b.Dx() * 4,
		Format: PixFmtRGBA,
	}
	f.Data = make([]byte, f.Stride*f.Height)
	if rgba, ok := img.(*image.RGBA); ok && rgba.Stride == f.Stride && b.Min == (image.Point{}) {
		copy(f.Data, rgba.Pix)
		return f
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
			off := y*f.Stride + x*4
			f.Data[off], f.Data[off+1], f.Data[off+2], f.Data[off+3] = c.R, c.G, c.B, c.A
		}
	}
	return f
}

type EventType string

const (
	EventPointerMove EventType = "mousemove"
	EventButtonDown  EventType = "mousedown"
	EventButtonUp    EventType = "mouseup"
	EventScroll      EventType = "wheel"
	EventKeyDown     EventType = "keydown"
	EventKeyUp       EventType = "keyup"
)

// Pointer buttons use the DOM numbering the remote agent expects.
const (
	ButtonLeft   = 0
	ButtonMiddle = 1
	ButtonRight  = 2
)

// WheelStep is the scroll delta of one wheel notch, in pixels.
const WheelStep = 40

// InputEvent is a synthetic desktop input event. X/Y are absolute desktop
// pixels. KeyCode is a Linux evdev code; Code is the DOM code name.
type InputEvent struct {
	Type    EventType `json:"type"`
	X       float64   `json:"x,omitempty"`
	Y       float64   `json:"y,omitempty"`
	DX      float64   `json:"dx,omitempty"`
	DY      float64   `json:"dy,omitempty"`
	Button  int       `json:"button,omitempty"`
	Key     string    `json:"key,omitempty"`
	Code    string    `json:"code,omitempty"`
	KeyCode uint16    `json:"keycode,omitempty"`
	Surface string    `json:"surface,omitempty"`
	PanelID int       `json:"panel,omitempty"`
}

// MediaCapturer grabs frames on demand from a local display.
type MediaCapturer interface {
	Width() int
	Height() int
	Grab() (*Frame, error)
	Close()
}

// EventInjector delivers input events to the desktop. Inject must not block
// for long; an error means the event was not delivered.
type EventInjector interface {
	Inject(event InputEvent) error
	Close()
}

// ExtentSetter is optionally implemented by an EventInjector that needs the
// size of the whole logical desktop to scale absolute pointer positions.
type ExtentSetter interface {
	SetDesktopExtent(width, height float64)
}
