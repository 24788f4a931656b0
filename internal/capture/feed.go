// Package capture ingests desktop frames and exposes the newest one to the
// tick through a lock-free slot.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"sync"
	"sync/atomic"

	"deskxr/internal/types"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
)

var (
	ErrStaleFrame   = errors.New("stale frame")
	ErrTextureAlloc = errors.New("texture allocation failed")
	ErrInvalidFrame = errors.New("invalid frame")
	ErrFeedClosed   = errors.New("feed closed")
)

type Status int32

const (
	StatusWaiting Status = iota
	StatusLive
	StatusUnavailable
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusLive:
		return "live"
	case StatusUnavailable:
		return "unavailable"
	case StatusClosed:
		return "closed"
	}
	return "waiting"
}

// Allocator reserves texture storage for a new resolution or format.
type Allocator interface {
	Allocate(width, height int, format types.PixelFormat) error
}

type AllocatorFunc func(width, height int, format types.PixelFormat) error

func (f AllocatorFunc) Allocate(width, height int, format types.PixelFormat) error {
	return f(width, height, format)
}

// PixelBudget refuses allocations larger than the given number of pixels.
type PixelBudget int

func (b PixelBudget) Allocate(width, height int, _ types.PixelFormat) error {
	if int64(width)*int64(height) > int64(b) {
		return fmt.Errorf("%dx%d exceeds budget of %d pixels", width, height, int(b))
	}
	return nil
}

// Source delivers frames into a feed until ctx is done.
type Source interface {
	Name() string
	Run(ctx context.Context, feed *Feed) error
}

// Sizer is implemented by sources that know their frame size before the
// first frame.
type Sizer interface {
	NativeSize() (width, height int)
}

type Stats struct {
	Name          string `json:"name"`
	Status        string `json:"status"`
	Seq           uint64 `json:"seq"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Accepted      uint64 `json:"accepted"`
	Dropped       uint64 `json:"dropped"`
	AllocFailures uint64 `json:"alloc_failures"`
}

type Option func(*Feed)

func WithAllocator(a Allocator) Option {
	return func(f *Feed) { f.alloc = a }
}

// WithMaxSize downscales frames larger than w x h, keeping their aspect.
func WithMaxSize(w, h int) Option {
	return func(f *Feed) { f.maxW, f.maxH = w, h }
}

func WithLogger(log zerolog.Logger) Option {
	return func(f *Feed) { f.log = log }
}

// Feed holds the newest frame of one capture stream. Writers serialize on a
// mutex; readers only load the atomic slot, so the tick never blocks on
// capture and never sees a partially written frame.
type Feed struct {
	name  string
	alloc Allocator
	maxW  int
	maxH  int
	log   zerolog.Logger

	mu     sync.Mutex
	width  int
	height int
	format types.PixelFormat
	last   uint64

	current     atomic.Pointer[types.Frame]
	placeholder *types.Frame
	status      atomic.Int32

	accepted  atomic.Uint64
	dropped   atomic.Uint64
	allocFail atomic.Uint64
}

func NewFeed(name string, opts ...Option) *Feed {
	f := &Feed{
		name: name,
		log:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(f)
	}
	f.log = f.log.With().Str("component", "feed").Str("feed", name).Logger()
	f.placeholder = Placeholder(640, 360)
	return f
}

func (f *Feed) Name() string { return f.name }

// Push offers a frame. Frames whose sequence number is not strictly higher
// than the last accepted one are dropped with ErrStaleFrame. A resolution or
// format change asks the allocator for new storage; on failure the feed keeps
// its last frame, reports Unavailable and returns ErrTextureAlloc.
func (f *Feed) Push(frame *types.Frame) error {
	if err := validate(frame); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if Status(f.status.Load()) == StatusClosed {
		return ErrFeedClosed
	}
	if frame.Seq <= f.last {
		f.dropped.Add(1)
		return fmt.Errorf("seq %d after %d: %w", frame.Seq, f.last, ErrStaleFrame)
	}
	f.last = frame.Seq

	out := f.fit(frame)
	if out.Width != f.width || out.Height != f.height || out.Format != f.format || f.current.Load() == nil {
		if f.alloc != nil {
			if err := f.alloc.Allocate(out.Width, out.Height, out.Format); err != nil {
				f.allocFail.Add(1)
				if Status(f.status.Swap(int32(StatusUnavailable))) != StatusUnavailable {
					f.log.Warn().Err(err).Int("width", out.Width).Int("height", out.Height).Msg("content unavailable")
				}
				return fmt.Errorf("%dx%d %s: %w: %w", out.Width, out.Height, out.Format, ErrTextureAlloc, err)
			}
		}
		if f.width != 0 {
			f.log.Info().
				Int("from_w", f.width).Int("from_h", f.height).
				Int("to_w", out.Width).Int("to_h", out.Height).
				Msg("resolution changed")
		}
		f.width, f.height, f.format = out.Width, out.Height, out.Format
	}

	f.current.Store(out)
	f.accepted.Add(1)
	if Status(f.status.Swap(int32(StatusLive))) == StatusUnavailable {
		f.log.Info().Msg("content available again")
	}
	return nil
}

func (f *Feed) fit(frame *types.Frame) *types.Frame {
	if f.maxW <= 0 || f.maxH <= 0 || (frame.Width <= f.maxW && frame.Height <= f.maxH) {
		return frame
	}
	scaled := imaging.Fit(frame.Image(), f.maxW, f.maxH, imaging.Linear)
	out := types.FrameFromImage(scaled)
	out.Seq = frame.Seq
	out.Timestamp = frame.Timestamp
	out.SourceWidth, out.SourceHeight = frame.SourceSize()
	return out
}

// Current returns the frame to display. Before the first frame it returns a
// placeholder with sequence 0.
func (f *Feed) Current() *types.Frame {
	if cur := f.current.Load(); cur != nil {
		return cur
	}
	return f.placeholder
}

// Seq is the sequence number of the displayed frame.
func (f *Feed) Seq() uint64 {
	if cur := f.current.Load(); cur != nil {
		return cur.Seq
	}
	return 0
}

func (f *Feed) Status() Status { return Status(f.status.Load()) }

func (f *Feed) Unavailable() bool {
	s := f.Status()
	return s == StatusUnavailable || s == StatusClosed
}

func (f *Feed) Stats() Stats {
	s := Stats{
		Name:          f.name,
		Status:        f.Status().String(),
		Seq:           f.Seq(),
		Accepted:      f.accepted.Load(),
		Dropped:       f.dropped.Load(),
		AllocFailures: f.allocFail.Load(),
	}
	if cur := f.current.Load(); cur != nil {
		s.Width, s.Height = cur.Width, cur.Height
	}
	return s
}

// Close stops accepting frames and drops the held frame.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status.Store(int32(StatusClosed))
	f.current.Store(nil)
}

func validate(frame *types.Frame) error {
	if frame == nil {
		return fmt.Errorf("nil frame: %w", ErrInvalidFrame)
	}
	if frame.Width <= 0 || frame.Height <= 0 || frame.Stride < frame.Width*4 {
		return fmt.Errorf("%dx%d stride %d: %w", frame.Width, frame.Height, frame.Stride, ErrInvalidFrame)
	}
	if len(frame.Data) < frame.Stride*(frame.Height-1)+frame.Width*4 {
		return fmt.Errorf("%d bytes for %dx%d: %w", len(frame.Data), frame.Width, frame.Height, ErrInvalidFrame)
	}
	return nil
}

// Placeholder is shown on panels whose feed has not produced a frame yet.
func Placeholder(w, h int) *types.Frame {
	bg := imaging.New(w, h, color.NRGBA{R: 24, G: 26, B: 32, A: 255})
	bar := imaging.New(w/3, h/24+1, color.NRGBA{R: 90, G: 96, B: 110, A: 255})
	img := imaging.PasteCenter(bg, bar)
	return types.FrameFromImage(img)
}
