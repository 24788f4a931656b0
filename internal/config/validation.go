package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrInvalid = errors.New("invalid configuration")

// inRange rejects zero, NaN and values outside [from, to].
func inRange(errs *[]string, name string, v, from, to float64) {
	if v == 0 || math.IsNaN(v) || v < from || v > to {
		*errs = append(*errs, fmt.Sprintf("%s needs to be between %g and %g (got %g)", name, from, to, v))
	}
}

// Validate checks every value and reports all problems at once.
func Validate(c *Config) error {
	var errs []string

	if c.TickRate < 1 || c.TickRate > 1000 {
		errs = append(errs, "tick_rate must be between 1 and 1000")
	}

	in := c.Interaction
	inRange(&errs, "interaction.grab_threshold", in.GrabThreshold, 0, 1)
	inRange(&errs, "interaction.trigger_threshold", in.TriggerThreshold, 0, 1)
	inRange(&errs, "interaction.scrolling_speed", in.ScrollingSpeed, 0, 10)
	inRange(&errs, "interaction.desktop_view_scale", in.DesktopViewScale, 0, 5)
	inRange(&errs, "interaction.backhand_angle_deg", in.BackhandAngleDeg, 0, 90)
	inRange(&errs, "interaction.resize_rate", in.ResizeRate, 0, 10)
	if in.ClickFreezeTimeMs < 0 {
		errs = append(errs, "interaction.click_freeze_time_ms must be non-negative")
	}
	if in.ScrollIntervalMs <= 0 {
		errs = append(errs, "interaction.scroll_interval_ms must be positive")
	}
	if in.MinPanelWidth <= 0 || in.MaxPanelWidth < in.MinPanelWidth {
		errs = append(errs, "interaction.min_panel_width must be positive and not above max_panel_width")
	}

	inRange(&errs, "keyboard.scale", c.Keyboard.Scale, 0, 5)
	if c.Keyboard.Volume < 0 || c.Keyboard.Volume > 1 {
		errs = append(errs, "keyboard.volume must be between 0 and 1")
	}
	inRange(&errs, "watch.scale", c.Watch.Scale, 0, 5)

	if c.Capture.FPS < 1 || c.Capture.FPS > 240 {
		errs = append(errs, "capture.fps must be between 1 and 240")
	}
	if c.Capture.MaxTextureWidth < 0 || c.Capture.MaxTextureHeight < 0 || c.Capture.TextureBudget < 0 {
		errs = append(errs, "capture texture limits must be non-negative")
	}

	names := make(map[string]bool)
	for i, s := range c.Screens {
		label := fmt.Sprintf("screens[%d]", i)
		if s.Name == "" {
			errs = append(errs, label+".name cannot be empty")
		} else if names[s.Name] {
			errs = append(errs, fmt.Sprintf("duplicate screen name %q", s.Name))
		}
		names[s.Name] = true
		switch s.Source {
		case "xshm":
			if s.Width <= 0 || s.Height <= 0 {
				errs = append(errs, label+" width and height are required for xshm sources")
			}
		case "pattern":
		case "stream":
			if s.Listen == "" {
				errs = append(errs, label+".listen is required for stream sources")
			}
		default:
			errs = append(errs, fmt.Sprintf("%s.source must be one of: xshm, stream, pattern (got: %s)", label, s.Source))
		}
		if s.Width < 0 || s.Height < 0 {
			errs = append(errs, label+" size must be non-negative")
		}
		if _, err := s.OutputTransform(); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", label, err))
		}
	}

	switch c.Input.Backend {
	case "uinput", "xtest", "none":
	case "remote":
		if c.Input.RemoteURL == "" {
			errs = append(errs, "input.remote_url is required for the remote backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("input.backend must be one of: uinput, xtest, remote, none (got: %s)", c.Input.Backend))
	}
	if c.Input.QueueDepth < 1 || c.Input.FailureThreshold < 1 || c.Input.RetryIntervalMs < 1 {
		errs = append(errs, "input.queue_depth, failure_threshold and retry_interval_ms must be positive")
	}

	if c.Pose.Listen == "" {
		errs = append(errs, "pose.listen cannot be empty")
	}
	if c.Pose.LostAfterMs < 1 {
		errs = append(errs, "pose.lost_after_ms must be positive")
	}
	if c.Status.Enabled && c.Status.Token == "" {
		errs = append(errs, "status.token is required when the status server is enabled")
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Sprintf("logging.format must be console or json (got: %s)", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  %s", ErrInvalid, strings.Join(errs, "\n  "))
	}
	return nil
}
