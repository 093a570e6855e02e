// Package confwatcher contains a configuration watcher.
package confwatcher

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// additional wait time after a write event, to avoid reading a
// half-written file.
const debounceDelay = 10 * time.Millisecond

// ConfWatcher is a configuration file watcher.
type ConfWatcher struct {
	confPath string
	inner    *fsnotify.Watcher

	// out
	signal chan struct{}
	done   chan struct{}
}

// New allocates a ConfWatcher.
func New(confPath string) (*ConfWatcher, error) {
	inner, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// watch the parent directory too, since some editors replace the
	// file on save instead of writing it in place.
	if _, err := os.Stat(confPath); err == nil {
		err = inner.Add(filepath.Dir(confPath))
		if err != nil {
			inner.Close()
			return nil, err
		}
	}

	w := &ConfWatcher{
		confPath: confPath,
		inner:    inner,
		signal:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	go w.run()
	return w, nil
}

// Close closes a ConfWatcher.
func (w *ConfWatcher) Close() {
	go func() {
		for range w.signal {
		}
	}()
	w.inner.Close()
	<-w.done
}

func (w *ConfWatcher) run() {
	defer close(w.done)

outer:
	for {
		select {
		case event, ok := <-w.inner.Events:
			if !ok {
				break outer
			}

			if filepath.Clean(event.Name) != filepath.Clean(w.confPath) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				time.Sleep(debounceDelay)
				w.signal <- struct{}{}
			}

		case _, ok := <-w.inner.Errors:
			if !ok {
				break outer
			}
		}
	}

	close(w.signal)
}

// Watch returns a channel that is signaled when the configuration file
// has changed.
func (w *ConfWatcher) Watch() chan struct{} {
	return w.signal
}
