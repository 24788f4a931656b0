package input

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"deskxr/internal/types"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// agent answers WHEP offers and records what arrives on the input channel.
type agent struct {
	t       *testing.T
	mu      sync.Mutex
	pc      *webrtc.PeerConnection
	got     []types.InputEvent
	deleted bool
}

func (a *agent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer secret" {
		http.Error(w, "unauthorized", 401)
		return
	}
	if r.Method == http.MethodDelete {
		a.mu.Lock()
		a.deleted = true
		a.mu.Unlock()
		w.WriteHeader(200)
		return
	}
	body, _ := io.ReadAll(r.Body)
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(a.t, err)
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != "input" {
			return
		}
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			var ev types.InputEvent
			if json.Unmarshal(msg.Data, &ev) == nil {
				a.mu.Lock()
				a.got = append(a.got, ev)
				a.mu.Unlock()
			}
		})
	})
	require.NoError(a.t, pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: string(body)}))
	answer, err := pc.CreateAnswer(nil)
	require.NoError(a.t, err)
	gather := webrtc.GatheringCompletePromise(pc)
	require.NoError(a.t, pc.SetLocalDescription(answer))
	<-gather

	a.mu.Lock()
	a.pc = pc
	a.mu.Unlock()
	w.Header().Set("Content-Type", "application/sdp")
	w.Header().Set("Location", "/whep/session-1")
	w.WriteHeader(201)
	w.Write([]byte(pc.LocalDescription().SDP))
}

func (a *agent) events() []types.InputEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.InputEvent(nil), a.got...)
}

func TestRemoteSinkDeliversJSON(t *testing.T) {
	if testing.Short() {
		t.Skip("negotiates a loopback WebRTC session")
	}
	a := &agent{t: t}
	srv := httptest.NewServer(a)
	defer srv.Close()
	defer func() {
		if a.pc != nil {
			a.pc.Close()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	remote, err := DialRemote(ctx, RemoteConfig{URL: srv.URL + "/whep", Token: "secret"}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, remote.Inject(types.InputEvent{Type: types.EventPointerMove, X: 10, Y: 20, Surface: "DP-1"}))
	require.NoError(t, remote.Inject(types.InputEvent{Type: types.EventKeyDown, KeyCode: 30, Code: "KeyA"}))
	require.Eventually(t, func() bool { return len(a.events()) == 2 }, 10*time.Second, 10*time.Millisecond)

	got := a.events()
	assert.Equal(t, types.EventPointerMove, got[0].Type)
	assert.Equal(t, 20.0, got[0].Y)
	assert.Equal(t, "KeyA", got[1].Code)

	remote.Close()
	a.mu.Lock()
	assert.True(t, a.deleted)
	a.mu.Unlock()
	assert.ErrorIs(t, remote.Inject(types.InputEvent{Type: types.EventKeyUp}), ErrSinkUnavailable)
}

func TestRemoteRejectedOffer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", 401)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := DialRemote(ctx, RemoteConfig{URL: srv.URL}, zerolog.Nop())
	assert.ErrorContains(t, err, "offer rejected")
}
