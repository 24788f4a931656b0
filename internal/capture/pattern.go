package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"deskxr/internal/types"

	"github.com/rs/zerolog"
)

// PatternSource produces a moving test pattern. It stands in for a desktop
// when running headless.
type PatternSource struct {
	Width  int
	Height int
	FPS    int
}

func (p *PatternSource) Name() string { return fmt.Sprintf("pattern:%dx%d", p.Width, p.Height) }

func (p *PatternSource) NativeSize() (int, int) { return p.Width, p.Height }

func (p *PatternSource) Run(ctx context.Context, feed *Feed) error {
	fps := p.FPS
	if fps <= 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	seq := feed.Seq()
	for n := 0; ; n++ {
		seq++
		if err := feed.Push(PatternFrame(p.Width, p.Height, n, seq)); errors.Is(err, ErrFeedClosed) {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PatternFrame renders frame n of the test pattern: colour bars with a bright
// column sweeping left to right.
func PatternFrame(w, h, n int, seq uint64) *types.Frame {
	bars := [][3]byte{
		{192, 192, 192}, {192, 192, 0}, {0, 192, 192}, {0, 192, 0},
		{192, 0, 192}, {192, 0, 0}, {0, 0, 192},
	}
	f := &types.Frame{
		Width:     w,
		Height:    h,
		Stride:    w * 4,
		Format:    types.PixFmtBGRA,
		Seq:       seq,
		Timestamp: time.Now(),
	}
	f.Data = make([]byte, f.Stride*h)
	sweep := n % w
	for x := 0; x < w; x++ {
		c := bars[x*len(bars)/w]
		if x >= sweep && x < sweep+w/64+1 {
			c = [3]byte{255, 255, 255}
		}
		for y := 0; y < h; y++ {
			off := y*f.Stride + x*4
			f.Data[off], f.Data[off+1], f.Data[off+2], f.Data[off+3] = c[2], c[1], c[0], 255
		}
	}
	return f
}

// PollSource grabs from a local capturer at a fixed rate. Open is called
// again after a grab failure, which is how a display resolution change is
// picked up.
type PollSource struct {
	Label string
	FPS   int
	Open  func() (types.MediaCapturer, error)
	Log   zerolog.Logger
}

func (p *PollSource) Name() string { return p.Label }

func (p *PollSource) Run(ctx context.Context, feed *Feed) error {
	fps := p.FPS
	if fps <= 0 {
		fps = 30
	}
	log := p.Log.With().Str("component", "capture").Str("source", p.Label).Logger()

	grabber, err := p.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", p.Label, err)
	}
	defer func() {
		if grabber != nil {
			grabber.Close()
		}
	}()
	log.Info().Int("width", grabber.Width()).Int("height", grabber.Height()).Int("fps", fps).Msg("capturing")

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	seq := feed.Seq()
	var grabbed, failed int64
	lastLog := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if grabber == nil {
			if grabber, err = p.Open(); err != nil {
				log.Debug().Err(err).Msg("reopen failed")
				grabber = nil
				continue
			}
			log.Info().Int("width", grabber.Width()).Int("height", grabber.Height()).Msg("capture reopened")
		}

		f, err := grabber.Grab()
		if err != nil {
			failed++
			log.Warn().Err(err).Msg("grab failed, reopening")
			grabber.Close()
			grabber = nil
			continue
		}
		seq++
		f.Seq = seq
		f.Timestamp = time.Now()
		if err := feed.Push(f); errors.Is(err, ErrFeedClosed) {
			return nil
		}
		grabbed++

		if time.Since(lastLog) >= 5*time.Second {
			log.Debug().Int64("grabbed", grabbed).Int64("failed", failed).Uint64("seq", feed.Seq()).Msg("capture stats")
			lastLog = time.Now()
		}
	}
}
