// Package server exposes the running session over HTTP: a JSON status
// document, a PNG of any panel's current texture, and panel removal.
package server

import (
	"context"
	"crypto/subtle"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"net"
	"net/http"
	"strconv"
	"time"

	"deskxr/internal/panel"
	"deskxr/internal/session"
	"deskxr/internal/types"

	"github.com/rs/zerolog"
)

// Session is the part of a session the server reads and controls.
type Session interface {
	Status() session.Status
	Frame(id panel.ID) (*types.Frame, bool)
	ClosePanel(id panel.ID) error
}

type Config struct {
	Addr  string
	Token string
	// TLS, when set, is served instead of plain HTTP.
	TLS *tls.Config
}

type Server struct {
	cfg  Config
	sess Session
	log  zerolog.Logger
}

func New(cfg Config, sess Session, log zerolog.Logger) *Server {
	return &Server{cfg: cfg, sess: sess, log: log.With().Str("component", "server").Logger()}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /status", s.authed(s.handleStatus))
	mux.HandleFunc("GET /debug/frame/{panel}", s.authed(s.handleDebugFrame))
	mux.HandleFunc("DELETE /panels/{panel}", s.authed(s.handleClosePanel))
	return mux
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		TLSConfig:         s.cfg.TLS,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Bool("tls", s.cfg.TLS != nil).Msg("status server listening")
	if s.cfg.TLS != nil {
		err = srv.ServeTLS(ln, "", "")
	} else {
		err = srv.Serve(ln)
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) checkAuth(r *http.Request) bool {
	if s.cfg.Token == "" {
		return false
	}
	want := "Bearer " + s.cfg.Token
	return subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(want)) == 1
}

func (s *Server) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.checkAuth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"ok":true}`)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.sess.Status()); err != nil {
		s.log.Debug().Err(err).Msg("write status")
	}
}

func panelID(r *http.Request) (panel.ID, bool) {
	n, err := strconv.Atoi(r.PathValue("panel"))
	return panel.ID(n), err == nil
}

func (s *Server) handleDebugFrame(w http.ResponseWriter, r *http.Request) {
	id, ok := panelID(r)
	if !ok {
		http.Error(w, "bad panel id", http.StatusBadRequest)
		return
	}
	frame, ok := s.sess.Frame(id)
	if !ok {
		http.Error(w, "no frame", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := png.Encode(w, frame.Image()); err != nil {
		s.log.Debug().Err(err).Int("panel", int(id)).Msg("encode frame")
	}
}

func (s *Server) handleClosePanel(w http.ResponseWriter, r *http.Request) {
	id, ok := panelID(r)
	if !ok {
		http.Error(w, "bad panel id", http.StatusBadRequest)
		return
	}
	if err := s.sess.ClosePanel(id); err != nil {
		switch {
		case errors.Is(err, panel.ErrNotFound):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, session.ErrClosed):
			http.Error(w, "session closed", http.StatusServiceUnavailable)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
