package inspectpkg

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspectbridge/inspectbridge/internal/event"
)

func TestWatcher_Current(t *testing.T) {
	t.Setenv("VIRTUAL_ENV", "")
	d := NewDiscoverer("")
	d.lookPath = func(string) (string, error) { return "/usr/bin/inspect", nil }
	d.runVersion = func(string) (string, error) { return "0.3.46", nil }

	w := NewWatcher(d, event.NewBus())
	a := w.Current()
	assert.True(t, a.Available)
	assert.Equal(t, "/usr/bin/inspect", a.BinPath)
}

func TestWatcher_PublishesOnChange(t *testing.T) {
	t.Setenv("VIRTUAL_ENV", "")

	var mu sync.Mutex
	installed := false

	d := NewDiscoverer("")
	d.lookPath = func(string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if installed {
			return "/usr/bin/inspect", nil
		}
		return "", fmt.Errorf("not found")
	}
	d.runVersion = func(string) (string, error) { return "0.3.46", nil }

	bus := event.NewBus()
	defer bus.Close()

	var events []event.PackageChangedData
	var evMu sync.Mutex
	bus.Subscribe(event.PackageChanged, func(e event.Event) {
		evMu.Lock()
		events = append(events, e.Data.(event.PackageChangedData))
		evMu.Unlock()
	})

	w := NewWatcher(d, bus)
	w.probeEvery = 20 * time.Millisecond
	w.backoffInitial = 20 * time.Millisecond
	require.False(t, w.Current().Available)

	w.Start()
	defer w.Stop()

	mu.Lock()
	installed = true
	mu.Unlock()

	assert.Eventually(t, func() bool {
		evMu.Lock()
		defer evMu.Unlock()
		for _, data := range events {
			if data.Availability.Available && data.Availability.Version == "0.3.46" {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	assert.True(t, w.Current().Available)
}

func TestWatcher_StopIdempotent(t *testing.T) {
	t.Setenv("VIRTUAL_ENV", "")
	d := NewDiscoverer("")
	d.lookPath = func(string) (string, error) { return "", fmt.Errorf("not found") }

	w := NewWatcher(d, event.NewBus())
	w.Start()
	w.Stop()
	w.Stop()
}
