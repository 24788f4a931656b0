package server

import (
	"context"
	"encoding/json"
	"image/png"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"deskxr/internal/capture"
	"deskxr/internal/panel"
	"deskxr/internal/session"
	"deskxr/internal/types"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	frames map[panel.ID]*types.Frame
	closed []panel.ID
	ended  bool
}

func (f *fakeSession) Status() session.Status {
	return session.Status{ID: "abc", Ticks: 42, Panels: []session.PanelStatus{{ID: 1, Name: "DP-1", Kind: "screen"}}}
}

func (f *fakeSession) Frame(id panel.ID) (*types.Frame, bool) {
	fr, ok := f.frames[id]
	return fr, ok
}

func (f *fakeSession) ClosePanel(id panel.ID) error {
	if f.ended {
		return session.ErrClosed
	}
	if _, ok := f.frames[id]; !ok {
		return panel.ErrNotFound
	}
	f.closed = append(f.closed, id)
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeSession) {
	fs := &fakeSession{frames: map[panel.ID]*types.Frame{1: capture.PatternFrame(32, 16, 0, 1)}}
	srv := httptest.NewServer(New(Config{Token: "secret"}, fs, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return srv, fs
}

func do(t *testing.T, method, url, token string) *http.Response {
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestStatusRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodGet, srv.URL+"/status", "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized, do(t, http.MethodGet, srv.URL+"/status", "wrong").StatusCode)
	assert.Equal(t, http.StatusOK, do(t, http.MethodGet, srv.URL+"/healthz", "").StatusCode)

	resp := do(t, http.MethodGet, srv.URL+"/status", "secret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st session.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, uint64(42), st.Ticks)
	require.Len(t, st.Panels, 1)
	assert.Equal(t, "DP-1", st.Panels[0].Name)
}

func TestDebugFrameIsPNG(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/debug/frame/1", "secret")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())

	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, srv.URL+"/debug/frame/9", "secret").StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, srv.URL+"/debug/frame/x", "secret").StatusCode)
}

func TestClosePanel(t *testing.T) {
	srv, fs := newTestServer(t)
	assert.Equal(t, http.StatusNoContent, do(t, http.MethodDelete, srv.URL+"/panels/1", "secret").StatusCode)
	assert.Equal(t, []panel.ID{1}, fs.closed)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodDelete, srv.URL+"/panels/2", "secret").StatusCode)
}

func TestClosePanelAfterSessionEnd(t *testing.T) {
	srv, fs := newTestServer(t)
	fs.ended = true
	assert.Equal(t, http.StatusServiceUnavailable, do(t, http.MethodDelete, srv.URL+"/panels/1", "secret").StatusCode)
	assert.Empty(t, fs.closed)
}

func TestEmptyTokenDeniesEverything(t *testing.T) {
	s := New(Config{}, &fakeSession{}, zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListenAndServeStops(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	s := New(Config{Addr: addr, Token: "secret"}, &fakeSession{}, zerolog.Nop())
	errc := make(chan error, 1)
	go func() { errc <- s.ListenAndServe(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
