package main

import (
	"errors"
	"fmt"
	"math"
	"net"
	"os/signal"
	"syscall"

	"deskxr/internal/audio"
	"deskxr/internal/compositor"
	"deskxr/internal/config"
	"deskxr/internal/geom"
	"deskxr/internal/gesture"
	"deskxr/internal/input"
	"deskxr/internal/keyboard"
	"deskxr/internal/panel"
	"deskxr/internal/pose"
	"deskxr/internal/server"
	"deskxr/internal/session"
	tlsutil "deskxr/internal/tls"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// screenDistance is how far in front of the user screens are placed.
const screenDistance = 2.0

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the overlay",
		RunE:  runOverlay,
	}
	f := cmd.Flags()
	f.String("input", "", "Input backend (uinput, xtest, remote, none)")
	f.String("pose-listen", "", "UDP address for tracking samples")
	f.Bool("status", false, "Serve the status endpoint")
	f.String("status-addr", "", "Status endpoint listen address")
	f.String("status-token", "", "Bearer token for the status endpoint")
	f.Bool("headless", false, "Run without a tracking runtime")
	return cmd
}

func runOverlay(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd, map[string]string{
		"input.backend":  "input",
		"pose.listen":    "pose-listen",
		"status.enabled": "status",
		"status.addr":    "status-addr",
		"status.token":   "status-token",
	})
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	headless, _ := cmd.Flags().GetBool("headless")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		kb    *keyboard.Keyboard
		keys  input.Keys
		click input.Clicker
	)
	if cfg.Keyboard.Enabled {
		layout := keyboard.Default()
		if cfg.Keyboard.Layout != "" {
			if layout, err = keyboard.Load(cfg.Keyboard.Layout); err != nil {
				return err
			}
		}
		kb = keyboard.New(layout)
		keys = kb
		if cfg.Keyboard.SoundEnabled {
			p, err := audio.NewPulse(cfg.Keyboard.Volume, log)
			if err != nil {
				log.Warn().Err(err).Msg("key click sound disabled")
			} else {
				defer p.Close()
				click = p
			}
		}
	}

	var poses pose.Source
	if headless {
		poses = pose.NewScript()
	} else {
		poses, err = pose.NewUDPSource(cfg.Pose.Listen, cfg.Pose.LostAfter(), log)
		if err != nil {
			return err
		}
	}

	w, h := desktopExtent(cfg.Screens)
	sink, err := newSink(ctx, cfg.Input, w, h, log)
	if err != nil {
		poses.Close()
		return fmt.Errorf("input backend %s: %w", cfg.Input.Backend, err)
	}

	router := input.NewRouter(input.Config{
		QueueDepth:       cfg.Input.QueueDepth,
		FailureThreshold: cfg.Input.FailureThreshold,
		RetryInterval:    cfg.Input.RetryInterval(),
		Backend:          cfg.Input.Backend,
	}, sink, keys, click, log)

	sess, err := session.New(sessionConfig(cfg), session.Deps{
		Poses:      poses,
		Router:     router,
		Compositor: &compositor.Recorder{},
		Keyboard:   kb,
	}, log)
	if err != nil {
		return err
	}

	if err := addPanels(sess, cfg, log); err != nil {
		sess.Teardown()
		return err
	}

	var srv *server.Server
	if cfg.Status.Enabled {
		if srv, err = newStatusServer(cfg.Status, sess, log); err != nil {
			sess.Teardown()
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sess.Run(gctx) })
	if kb != nil && cfg.Keyboard.Layout != "" {
		g.Go(func() error {
			if err := keyboard.WatchLayout(gctx, cfg.Keyboard.Layout, kb, log); err != nil {
				log.Warn().Err(err).Msg("layout reload disabled")
			}
			return nil
		})
	}
	if srv != nil {
		g.Go(func() error { return srv.ListenAndServe(gctx) })
	}

	err = g.Wait()
	if errors.Is(err, pose.ErrRuntimeLost) {
		return fmt.Errorf("exiting: %w", err)
	}
	return err
}

func sessionConfig(cfg *config.Config) session.Config {
	sc := session.DefaultConfig()
	sc.TickInterval = cfg.TickInterval()
	sc.MaxTextureWidth = cfg.Capture.MaxTextureWidth
	sc.MaxTextureHeight = cfg.Capture.MaxTextureHeight
	sc.TextureBudget = cfg.Capture.TextureBudget

	ic := cfg.Interaction
	sc.Thresholds.Trigger = ic.TriggerThreshold
	sc.Thresholds.Grip = ic.GrabThreshold

	gc := gesture.DefaultConfig()
	gc.ClickFreeze = ic.ClickFreeze()
	gc.ScrollInterval = ic.ScrollInterval()
	gc.ScrollingSpeed = ic.ScrollingSpeed
	gc.ResizeRate = ic.ResizeRate
	gc.MinWidth = ic.MinPanelWidth
	gc.MaxWidth = ic.MaxPanelWidth
	gc.BackhandAngle = mgl64.DegToRad(ic.BackhandAngleDeg)
	sc.Gesture = gc
	return sc
}

func desktopExtent(screens []config.ScreenConfig) (w, h float64) {
	for _, s := range screens {
		r := s.DesktopRect()
		w = math.Max(w, r.X+r.W)
		h = math.Max(h, r.Y+r.H)
	}
	return w, h
}

// addPanels lays the screens out side by side on an arc facing the user,
// then adds the keyboard and watch.
func addPanels(sess *session.Session, cfg *config.Config, log zerolog.Logger) error {
	width := 1.6 * cfg.Interaction.DesktopViewScale
	n := len(cfg.Screens)
	for i, sc := range cfg.Screens {
		src, err := newSource(sc, cfg.Capture.FPS, log)
		if err != nil {
			return fmt.Errorf("screen %q: %w", sc.Name, err)
		}
		transform, err := sc.OutputTransform()
		if err != nil {
			return fmt.Errorf("screen %q: %w", sc.Name, err)
		}
		x := (float64(i) - float64(n-1)/2) * (width + 0.1)
		pos := mgl64.Vec3{x, 0, -screenDistance}
		fit := panel.FitContain
		if sc.Stretch {
			fit = panel.FitStretch
		}
		if _, err := sess.AddScreen(panel.Spec{
			Name:      sc.Name,
			Pose:      geom.NewPose(pos, geom.LookRotation(pos, mgl64.Vec3{0, 1, 0})),
			Width:     width,
			Fit:       fit,
			Desktop:   sc.DesktopRect(),
			Transform: transform,
		}, src); err != nil {
			return fmt.Errorf("screen %q: %w", sc.Name, err)
		}
	}

	if cfg.Keyboard.Enabled {
		if _, err := sess.AddKeyboard(keyboard.Renderer{}, cfg.Keyboard.Scale); err != nil {
			return err
		}
	}
	if cfg.Watch.Enabled {
		if _, err := sess.AddWatch(int(pose.HandLeft), cfg.Watch.Scale); err != nil {
			return err
		}
	}
	return nil
}

func newStatusServer(cfg config.StatusConfig, sess *session.Session, log zerolog.Logger) (*server.Server, error) {
	sc := server.Config{Addr: cfg.Addr, Token: cfg.Token}
	if cfg.TLS {
		host, _, _ := net.SplitHostPort(cfg.Addr)
		tc, fp, err := tlsutil.SelfSigned(host)
		if err != nil {
			return nil, fmt.Errorf("self-signed cert: %w", err)
		}
		log.Info().Str("sha256", fp).Msg("self-signed certificate")
		sc.TLS = tc
	}
	return server.New(sc, sess, log), nil
}
