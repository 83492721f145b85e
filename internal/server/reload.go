package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// reloadDebounce waits for the last write before reloading, so an editor
// writing in chunks triggers one reload, not five.
const reloadDebounce = 500 * time.Millisecond

// Reloader watches the configuration file and hot-swaps the policy bundle on
// change. A failed reload keeps the running policy.
type Reloader struct {
	watcher *fsnotify.Watcher
	server  *Server
	log     *logrus.Logger
}

// NewReloader creates a file watcher over the given paths. Paths that do not
// exist are skipped; a gateway running on pure defaults has nothing to watch.
func NewReloader(server *Server, log *logrus.Logger, paths []string) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := watcher.Add(p); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch %q: %w", p, err)
		}
	}

	return &Reloader{watcher: watcher, server: server, log: log}, nil
}

// Run blocks until ctx is cancelled, reloading the policy after each burst of
// file changes.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(reloadDebounce, func() {
					if err := r.server.Reload(); err != nil {
						r.log.WithError(err).Error("policy reload failed, keeping current policy")
					}
				})
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.log.WithError(err).Warn("file watcher error")
		}
	}
}
