package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/inspectbridge/inspectbridge/internal/event"
	"github.com/inspectbridge/inspectbridge/internal/logging"
)

// debounceWindow collapses editor write bursts (truncate+write+chmod) into
// one reload event.
const debounceWindow = 200 * time.Millisecond

// Watcher publishes config.reloaded events when a config file changes on
// disk, so clients on the event stream can refresh without a bridge restart.
type Watcher struct {
	directory string
	bus       *event.Bus
	fsw       *fsnotify.Watcher

	mu      sync.Mutex
	started bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher creates a config watcher for the global config directory and
// the project directory.
func NewWatcher(directory string, bus *event.Bus) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		directory: directory,
		bus:       bus,
		fsw:       fsw,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start begins watching. Directories that do not exist yet are skipped;
// config files created later in an already-watched directory are still seen.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	dirs := []string{GetPaths().Config}
	if w.directory != "" {
		dirs = append(dirs, w.directory, filepath.Join(w.directory, ".inspectbridge"))
	}
	for _, dir := range dirs {
		// Add fails for missing directories; watching is best effort.
		w.fsw.Add(dir)
	}

	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	log := logging.Component("config")

	var timer *time.Timer
	var timerCh <-chan time.Time
	pending := ""

	for {
		select {
		case <-w.stopCh:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isConfigFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			pending = ev.Name
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerCh = timer.C
			} else {
				timer.Reset(debounceWindow)
			}

		case <-timerCh:
			log.Info().Str("path", pending).Msg("config file changed")
			w.publish(pending)
			timer = nil
			timerCh = nil

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("config watch error")
		}
	}
}

func isConfigFile(path string) bool {
	base := filepath.Base(path)
	for _, name := range configFileNames() {
		if base == name {
			return true
		}
	}
	return false
}

func (w *Watcher) publish(path string) {
	ev := event.Event{Type: event.ConfigReloaded, Data: event.ConfigReloadedData{Path: path}}
	if w.bus != nil {
		w.bus.PublishSync(ev)
	} else {
		event.PublishSync(ev)
	}
}

// Stop halts the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	w.fsw.Close()
	if started {
		<-w.doneCh
	}
}
