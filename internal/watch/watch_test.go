package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"deskxr/internal/capture"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSize(t *testing.T) {
	img := Render(time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC), 240, 120)
	assert.Equal(t, 240, img.Bounds().Dx())
	assert.Equal(t, 120, img.Bounds().Dy())

	// The clock label puts light pixels in the upper half.
	lit := 0
	for y := 0; y < 60; y++ {
		for x := 0; x < 240; x++ {
			if img.RGBAAt(x, y).R > 200 {
				lit++
			}
		}
	}
	assert.Positive(t, lit)
}

func TestPoseFacesBack(t *testing.T) {
	p := Pose()
	n := p.Orientation.Rotate(mgl64.Vec3{0, 0, 1})
	assert.InDelta(t, -1, n.Z(), 1e-9)
	assert.InDelta(t, 0.05, p.Position.Z(), 1e-9)
}

func TestSourceRepublishesOnMinute(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 1, 2, 15, 4, 10, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	feed := capture.NewFeed("watch")
	src := &Source{Width: 60, Height: 30, Now: clock, Poll: time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go src.Run(ctx, feed)

	require.Eventually(t, func() bool { return feed.Seq() == 1 }, 2*time.Second, time.Millisecond)
	mu.Lock()
	now = now.Add(30 * time.Second)
	mu.Unlock()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, uint64(1), feed.Seq(), "same minute")

	mu.Lock()
	now = now.Add(time.Minute)
	mu.Unlock()
	require.Eventually(t, func() bool { return feed.Seq() == 2 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 60, feed.Current().Width)
}
