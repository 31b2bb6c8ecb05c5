// Package watcher reloads configuration when the profile file or
// credential directory changes on disk. Every reload goes through the
// preserve bracket so an external edit never reverts the user's runtime
// model choice.
package watcher

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marcus/pilot/internal/logging"
)

// debounce coalesces bursts of filesystem events (editors write several
// times per save).
const debounce = 500 * time.Millisecond

// Watcher triggers a reload callback on filesystem changes.
type Watcher struct {
	fsw      *fsnotify.Watcher
	onChange func()
}

// New creates a watcher over the given paths. onChange runs debounced,
// on the watcher goroutine.
func New(paths []string, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := fsw.Add(p); err != nil {
			logging.Component("watcher").Warn().Err(err).Str("path", p).Msg("cannot watch path")
		}
	}
	return &Watcher{fsw: fsw, onChange: onChange}, nil
}

// Run processes events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	log := logging.Component("watcher")
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			log.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("change detected")
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("watch error")
		case <-fire:
			w.onChange()
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
