package keyboard

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// WatchLayout reloads the layout file into kb whenever it changes, until
// ctx is done. Editors replace files on save, so the parent directory is
// watched. A file that fails to parse keeps the previous layout.
func WatchLayout(ctx context.Context, path string, kb *Keyboard, log zerolog.Logger) error {
	log = log.With().Str("component", "keyboard").Str("layout", path).Logger()
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("layout watcher: %w", err)
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	// Saves arrive as bursts of events.
	const settle = 100 * time.Millisecond
	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(settle, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			l, err := Load(abs)
			if err != nil {
				log.Warn().Err(err).Msg("layout reload failed, keeping previous")
				continue
			}
			kb.SetLayout(l)
			log.Info().Int("keys", len(l.Cells())).Msg("layout reloaded")
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("layout watcher error")
		}
	}
}
