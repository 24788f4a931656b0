package input

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"

	"deskxr/internal/types"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

type RemoteConfig struct {
	// URL is the WHEP endpoint of the remote desktop agent.
	URL   string
	Token string
	// Client defaults to http.DefaultClient.
	Client *http.Client
}

// Remote delivers events as JSON over the "input" data channel of a WebRTC
// session with a remote desktop agent. The session is negotiated with a
// single WHEP style offer/answer exchange.
type Remote struct {
	cfg      RemoteConfig
	pc       *webrtc.PeerConnection
	dc       *webrtc.DataChannel
	resource string
	log      zerolog.Logger

	mu     sync.Mutex
	closed bool
	opened chan struct{}
}

// DialRemote negotiates the session and waits for the input channel to open.
func DialRemote(ctx context.Context, cfg RemoteConfig, log zerolog.Logger) (*Remote, error) {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	log = log.With().Str("component", "input").Str("sink", "remote").Logger()

	// LAN only, no STUN/TURN.
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	ordered := true
	dc, err := pc.CreateDataChannel("input", &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create input channel: %w", err)
	}

	r := &Remote{cfg: cfg, pc: pc, dc: dc, log: log, opened: make(chan struct{})}
	var once sync.Once
	dc.OnOpen(func() { once.Do(func() { close(r.opened) }) })
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Info().Str("state", state.String()).Msg("peer connection state")
	})

	if err := r.negotiate(ctx); err != nil {
		pc.Close()
		return nil, err
	}

	select {
	case <-r.opened:
		return r, nil
	case <-ctx.Done():
		r.Close()
		return nil, fmt.Errorf("wait for input channel: %w", ctx.Err())
	}
}

func (r *Remote) negotiate(ctx context.Context) error {
	offer, err := r.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(r.pc)
	if err := r.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local desc: %w", err)
	}
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL,
		bytes.NewBufferString(r.pc.LocalDescription().SDP))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/sdp")
	if r.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
	}
	resp, err := r.cfg.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post offer: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read answer: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("offer rejected: %s", resp.Status)
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		if base, err := url.Parse(r.cfg.URL); err == nil {
			if ref, err := base.Parse(loc); err == nil {
				r.resource = ref.String()
			}
		}
	}

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: string(body)}
	if err := r.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote desc: %w", err)
	}
	return nil
}

func (r *Remote) Inject(ev types.InputEvent) error {
	if r.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrSinkUnavailable
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := r.dc.SendText(string(data)); err != nil {
		return fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
	}
	return nil
}

// Close ends the session and deletes the remote resource.
func (r *Remote) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true

	if r.resource != "" {
		req, err := http.NewRequest(http.MethodDelete, r.resource, nil)
		if err == nil {
			if r.cfg.Token != "" {
				req.Header.Set("Authorization", "Bearer "+r.cfg.Token)
			}
			if resp, err := r.cfg.Client.Do(req); err == nil {
				resp.Body.Close()
			} else {
				r.log.Debug().Err(err).Msg("delete session")
			}
		}
	}
	r.pc.Close()
}
