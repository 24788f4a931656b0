package pose

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"deskxr/internal/geom"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
)

// WirePose is a pose as sent by a tracking bridge: p = [x,y,z],
// q = [x,y,z,w].
type WirePose struct {
	P [3]float64 `json:"p"`
	Q [4]float64 `json:"q"`
}

func (w WirePose) Pose() geom.Pose {
	return geom.Pose{
		Position:    mgl64.Vec3{w.P[0], w.P[1], w.P[2]},
		Orientation: mgl64.Quat{W: w.Q[3], V: mgl64.Vec3{w.Q[0], w.Q[1], w.Q[2]}},
	}
}

type WireController struct {
	Hand    string     `json:"hand"`
	Aim     WirePose   `json:"aim"`
	Tracked bool       `json:"tracked"`
	Trigger float64    `json:"trigger"`
	Grip    float64    `json:"grip"`
	Stick   [2]float64 `json:"stick"`
	Menu    bool       `json:"menu"`
}

// WireSample is one datagram from the tracking bridge.
type WireSample struct {
	Head        WirePose         `json:"head"`
	HeadTracked bool             `json:"head_tracked"`
	Controllers []WireController `json:"controllers"`
	Bye         bool             `json:"bye,omitempty"`
}

func (w *WireSample) Sample(at time.Time) Sample {
	s := Sample{
		Time:        at,
		Head:        w.Head.Pose(),
		HeadTracked: w.HeadTracked,
	}
	s.Controllers[0].Hand = HandLeft
	s.Controllers[1].Hand = HandRight
	for _, c := range w.Controllers {
		idx := int(HandRight)
		if strings.EqualFold(c.Hand, "left") {
			idx = int(HandLeft)
		}
		s.Controllers[idx] = ControllerSample{
			Hand:    Hand(idx),
			Aim:     c.Aim.Pose(),
			Tracked: c.Tracked,
			Trigger: c.Trigger,
			Grip:    c.Grip,
			StickX:  c.Stick[0],
			StickY:  c.Stick[1],
			Menu:    c.Menu,
		}
	}
	return s
}

// UDPSource listens for JSON pose datagrams from an external tracking
// bridge. The newest datagram wins; nothing is buffered.
type UDPSource struct {
	conn      net.PacketConn
	lostAfter time.Duration
	log       zerolog.Logger

	latest   atomic.Pointer[Sample]
	lastSeen atomic.Int64
	bye      atomic.Bool
	once     sync.Once
}

// NewUDPSource listens on listenAddr. lostAfter is how long the bridge may
// stay silent, after its first datagram, before the runtime counts as lost;
// zero disables the check.
func NewUDPSource(listenAddr string, lostAfter time.Duration, log zerolog.Logger) (*UDPSource, error) {
	if listenAddr == "" {
		return nil, fmt.Errorf("udp listen address is required")
	}
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %q: %w", listenAddr, err)
	}
	s := &UDPSource{
		conn:      conn,
		lostAfter: lostAfter,
		log:       log.With().Str("component", "pose-udp").Logger(),
	}
	s.log.Info().Str("addr", conn.LocalAddr().String()).Msg("listening for tracking samples")
	go s.readLoop()
	return s, nil
}

func (s *UDPSource) Addr() net.Addr { return s.conn.LocalAddr() }

func (s *UDPSource) readLoop() {
	buf := make([]byte, 8192)
	seenFirst := false
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn().Err(err).Msg("udp read error")
			continue
		}
		var w WireSample
		if err := json.Unmarshal(buf[:n], &w); err != nil {
			s.log.Debug().Err(err).Msg("dropping malformed sample")
			continue
		}
		if !seenFirst {
			seenFirst = true
			s.log.Info().Str("from", addr.String()).Msg("first tracking sample")
		}
		if w.Bye {
			s.bye.Store(true)
			continue
		}
		now := time.Now()
		sample := w.Sample(now)
		s.latest.Store(&sample)
		s.lastSeen.Store(now.UnixNano())
	}
}

// Sample returns the newest datagram. Before the first datagram controllers
// are reported untracked.
func (s *UDPSource) Sample(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	if s.bye.Load() {
		return Sample{}, fmt.Errorf("bridge shut down: %w", ErrRuntimeLost)
	}
	latest := s.latest.Load()
	if latest == nil {
		return Sample{Time: time.Now(), Head: geom.Identity()}, nil
	}
	if s.lostAfter > 0 {
		silent := time.Since(time.Unix(0, s.lastSeen.Load()))
		if silent > s.lostAfter {
			return Sample{}, fmt.Errorf("no samples for %v: %w", silent.Round(time.Millisecond), ErrRuntimeLost)
		}
	}
	return *latest, nil
}

func (s *UDPSource) Close() error {
	var err error
	s.once.Do(func() { err = s.conn.Close() })
	return err
}
