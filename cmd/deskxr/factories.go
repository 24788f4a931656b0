package main

import (
	"context"
	"fmt"
	"time"

	"deskxr/internal/capture"
	"deskxr/internal/config"
	"deskxr/internal/input"
	"deskxr/internal/types"

	"github.com/rs/zerolog"
)

const remoteDialTimeout = 10 * time.Second

// newSink opens the configured injection backend. width and height are the
// logical desktop extent for backends that scale absolute positions.
func newSink(ctx context.Context, cfg config.InputConfig, width, height float64, log zerolog.Logger) (types.EventInjector, error) {
	switch cfg.Backend {
	case "uinput":
		return input.NewUinput(cfg.Device, width, height)
	case "xtest":
		return input.NewXTest(cfg.Display)
	case "remote":
		ctx, cancel := context.WithTimeout(ctx, remoteDialTimeout)
		defer cancel()
		return input.DialRemote(ctx, input.RemoteConfig{URL: cfg.RemoteURL, Token: cfg.RemoteToken}, log)
	case "none":
		return input.NewNull(log), nil
	}
	return nil, fmt.Errorf("unknown input backend %q", cfg.Backend)
}

func newSource(sc config.ScreenConfig, fps int, log zerolog.Logger) (capture.Source, error) {
	switch sc.Source {
	case "xshm":
		rect := sc.DesktopRect()
		return &capture.PollSource{
			Label: "xshm:" + sc.Name,
			FPS:   fps,
			Open:  func() (types.MediaCapturer, error) { return capture.OpenXShm(sc.Display, rect) },
			Log:   log,
		}, nil
	case "stream":
		if sc.Listen == "" {
			return nil, fmt.Errorf("stream source needs a listen address")
		}
		s := capture.NewStreamSource(sc.Listen, log)
		if _, err := s.Listen(); err != nil {
			return nil, err
		}
		return s, nil
	case "pattern", "":
		w, h := sc.Width, sc.Height
		if w <= 0 || h <= 0 {
			w, h = 1920, 1080
		}
		return &capture.PatternSource{Width: w, Height: h, FPS: fps}, nil
	}
	return nil, fmt.Errorf("unknown capture source %q", sc.Source)
}
