package session

import (
	"time"

	"deskxr/internal/capture"
	"deskxr/internal/gesture"
	"deskxr/internal/input"
	"deskxr/internal/panel"
)

type PanelStatus struct {
	ID      int            `json:"id"`
	Name    string         `json:"name"`
	Kind    string         `json:"kind"`
	Visible bool           `json:"visible"`
	Width   float64        `json:"width"`
	Height  float64        `json:"height"`
	Feed    *capture.Stats `json:"feed,omitempty"`
}

// Status is published once per tick and may be read from any goroutine.
type Status struct {
	ID             string                     `json:"id"`
	Started        time.Time                  `json:"started"`
	Ticks          uint64                     `json:"ticks"`
	ScreensVisible bool                       `json:"screens_visible"`
	Panels         []PanelStatus              `json:"panels"`
	Controllers    []gesture.ControllerStatus `json:"controllers"`
	Input          input.Status               `json:"input"`
}

func (s *Session) Status() Status {
	return *s.status.Load()
}

func (s *Session) publish(view *panel.View) {
	st := &Status{
		ID:             s.ID,
		Started:        s.started,
		Ticks:          s.tick,
		ScreensVisible: s.screens,
		Panels:         make([]PanelStatus, 0, len(view.Panels)),
		Controllers:    s.gestures.Status(),
		Input:          s.router.Status(),
	}
	s.mu.Lock()
	for _, vp := range view.Panels {
		ps := PanelStatus{
			ID:      int(vp.ID),
			Name:    vp.Name,
			Kind:    vp.Kind.String(),
			Visible: vp.Visible,
			Width:   vp.Width,
			Height:  vp.Height,
		}
		if f, ok := s.feeds[vp.ID]; ok {
			stats := f.feed.Stats()
			ps.Feed = &stats
		}
		st.Panels = append(st.Panels, ps)
	}
	s.mu.Unlock()
	s.status.Store(st)
}
