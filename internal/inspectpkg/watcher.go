package inspectpkg

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/inspectbridge/inspectbridge/internal/event"
	"github.com/inspectbridge/inspectbridge/internal/logging"
	"github.com/inspectbridge/inspectbridge/pkg/types"
)

const (
	// ProbeInterval is the re-check interval once the package is available.
	ProbeInterval = 15 * time.Second
	// ProbeInitialInterval is the initial backoff interval while the binary
	// is missing.
	ProbeInitialInterval = time.Second
	// ProbeMaxInterval caps the backoff while the binary is missing.
	ProbeMaxInterval = time.Minute
)

// Watcher periodically re-resolves package availability and publishes
// package.changed events when the binary path or version changes. While the
// binary is missing it probes with exponential backoff so a freshly installed
// package is picked up quickly without hammering the filesystem forever.
type Watcher struct {
	discoverer *Discoverer
	bus        *event.Bus

	// Overridable in tests.
	probeEvery     time.Duration
	backoffInitial time.Duration

	mu      sync.RWMutex
	current Availability
	started bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWatcher creates a watcher around a discoverer. The initial availability
// is resolved synchronously so callers can gate features immediately.
func NewWatcher(discoverer *Discoverer, bus *event.Bus) *Watcher {
	return &Watcher{
		discoverer:     discoverer,
		bus:            bus,
		probeEvery:     ProbeInterval,
		backoffInitial: ProbeInitialInterval,
		current:        discoverer.Resolve(),
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Current returns the last resolved availability.
func (w *Watcher) Current() Availability {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins the probe loop.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()
	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	log := logging.Component("inspectpkg")

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.backoffInitial
	b.MaxInterval = ProbeMaxInterval
	b.MaxElapsedTime = 0 // probe forever
	b.Reset()

	for {
		var wait time.Duration
		if w.Current().Available {
			wait = w.probeEvery
			b.Reset()
		} else {
			wait = b.NextBackOff()
		}

		select {
		case <-w.stopCh:
			return
		case <-time.After(wait):
		}

		next := w.discoverer.Resolve()

		w.mu.Lock()
		prev := w.current
		changed := !prev.Equal(next)
		if changed {
			w.current = next
		}
		w.mu.Unlock()

		if !changed {
			continue
		}

		version := ""
		if next.Version != nil {
			version = next.Version.String()
		}
		log.Info().
			Bool("available", next.Available).
			Str("binPath", next.BinPath).
			Str("version", version).
			Msg("inspect package changed")

		w.publish(next)
	}
}

func (w *Watcher) publish(a Availability) {
	data := event.PackageChangedData{
		Availability: types.Availability{
			Available: a.Available,
			BinPath:   a.BinPath,
		},
	}
	if a.Version != nil {
		data.Availability.Version = a.Version.String()
	}

	ev := event.Event{Type: event.PackageChanged, Data: data}
	if w.bus != nil {
		w.bus.PublishSync(ev)
	} else {
		event.PublishSync(ev)
	}
}

// Stop halts the probe loop. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	started := w.started
	w.mu.Unlock()

	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}

	if started {
		<-w.doneCh
	}
}
