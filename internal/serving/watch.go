package serving

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

type watcher struct {
	fsw  *fsnotify.Watcher
	done chan struct{}
}

// Watch caches the fallback document and drops the cached copy whenever the
// file changes under dir. It must be called before serving starts.
func (s *Static) Watch(dir string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &watcher{fsw: fsw, done: make(chan struct{})}
	s.watcher = w
	s.cache = true

	target := filepath.Clean(filepath.Join(dir, filepath.FromSlash(s.index)))
	go func() {
		defer close(w.done)
		for {
			select {
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) == target {
					s.logger.Debug().Str("op", ev.Op.String()).Str("file", ev.Name).Msg("fallback document changed")
					s.invalidate()
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				s.logger.Warn().Err(err).Msg("static watcher error")
			}
		}
	}()
	return nil
}

func (w *watcher) close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
