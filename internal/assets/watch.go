package assets

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Faultbox/midgard-anim/internal/logger"
)

// debounce drops repeated events for the same file within this window.
const debounce = 100 * time.Millisecond

// Watcher reports the names of model definitions that change on disk.
type Watcher struct {
	watcher    *fsnotify.Watcher
	log        *zap.Logger
	invalidate func(name string)

	// Events receives a model name per change. Closed once the watcher stops.
	Events chan string
	// Errors receives watcher failures. Closed once the watcher stops.
	Errors chan error

	closeCh chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewWatcher watches dirs for model definition changes.
func NewWatcher(dirs ...string) (*Watcher, error) {
	return newWatcher(dirs, logger.Named("assets"), nil)
}

// Watch starts watching every model directory of the manager. A changed
// model is dropped from the cache before its name is delivered.
func (m *Manager) Watch() (*Watcher, error) {
	return newWatcher(m.Dirs(), m.log, m.Invalidate)
}

func newWatcher(dirs []string, log *zap.Logger, invalidate func(string)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	watcher := &Watcher{
		watcher:    w,
		log:        log,
		invalidate: invalidate,
		Events:     make(chan string, 16),
		Errors:     make(chan error, 1),
		closeCh:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	go watcher.run()
	return watcher, nil
}

// Close stops the watcher and waits for it to exit.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.watcher.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	defer close(w.Errors)
	defer close(w.Events)

	last := make(map[string]time.Time)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !IsModelFile(event.Name) {
				continue
			}
			now := time.Now()
			if t, ok := last[event.Name]; ok && now.Sub(t) < debounce {
				continue
			}
			last[event.Name] = now

			name := ModelName(event.Name)
			if w.invalidate != nil {
				w.invalidate(name)
			}
			w.log.Debug("model changed", zap.String("name", name), zap.Stringer("op", event.Op))
			select {
			case w.Events <- name:
			case <-w.closeCh:
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.Errors <- err:
			case <-w.closeCh:
				return
			default:
				w.log.Warn("watcher error dropped", zap.Error(err))
			}
		case <-w.closeCh:
			return
		}
	}
}
