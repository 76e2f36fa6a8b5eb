package inspectpkg

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/inspectbridge/inspectbridge/internal/event"
	"github.com/inspectbridge/inspectbridge/internal/logging"
)

// DefaultPollInterval is how often signal directories are scanned.
const DefaultPollInterval = 2 * time.Second

// MalformedSignalFileError reports a signal file whose contents could not be
// parsed. The poller logs it and skips the cycle instead of crashing.
type MalformedSignalFileError struct {
	Path string
	Err  error
}

func (e *MalformedSignalFileError) Error() string {
	return fmt.Sprintf("malformed signal file %s: %v", e.Path, e.Err)
}

func (e *MalformedSignalFileError) Unwrap() error { return e.Err }

// SignalSpec binds a glob of signal files to the event they announce.
type SignalSpec struct {
	Glob  string
	Event event.EventType
}

// DefaultSignalSpecs returns the signal globs under the package's runtime
// state directory.
func DefaultSignalSpecs(stateDir string) []SignalSpec {
	return []SignalSpec{
		{Glob: filepath.Join(stateDir, "view", "*.json"), Event: event.LogProduced},
		{Glob: filepath.Join(stateDir, "scans", "*.json"), Event: event.ScanProduced},
	}
}

// signalDocument is the JSON signal format written by newer package versions.
type signalDocument struct {
	Location    string `json:"location"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

// Poller scans signal-file globs on a fixed interval and publishes an event
// whenever a file appears or its modification time advances. Polling is
// deliberate: the files are written by a separate process and no portable
// cross-process event primitive is assumed.
type Poller struct {
	specs    []SignalSpec
	interval time.Duration
	bus      *event.Bus
	caps     func() Capabilities

	mu      sync.Mutex
	mtimes  map[string]time.Time
	started bool
	primed  bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewPoller creates a signal-file poller. caps supplies the current
// capability set so the parse format follows the installed package version.
func NewPoller(specs []SignalSpec, interval time.Duration, bus *event.Bus, caps func() Capabilities) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		specs:    specs,
		interval: interval,
		bus:      bus,
		caps:     caps,
		mtimes:   make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins polling. The first cycle only records existing files so stale
// signals from previous sessions are not replayed.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()
	go p.run()
}

func (p *Poller) run() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

// poll runs one scan cycle across all specs.
func (p *Poller) poll() {
	log := logging.Component("inspectpkg")

	p.mu.Lock()
	prime := !p.primed
	p.primed = true
	p.mu.Unlock()

	for _, spec := range p.specs {
		matches, err := doublestar.FilepathGlob(spec.Glob)
		if err != nil {
			log.Warn().Err(err).Str("glob", spec.Glob).Msg("signal glob failed")
			continue
		}

		for _, path := range matches {
			info, err := os.Stat(path)
			if err != nil {
				continue
			}

			p.mu.Lock()
			prev, seen := p.mtimes[path]
			changed := !seen || info.ModTime().After(prev)
			if changed {
				p.mtimes[path] = info.ModTime()
			}
			p.mu.Unlock()

			if !changed || prime {
				continue
			}

			location, workspaceID, err := p.readSignal(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("skipping malformed signal file")
				continue
			}

			p.publish(spec.Event, location, workspaceID)
		}
	}
}

func (p *Poller) readSignal(path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	return parseSignal(path, data, p.caps())
}

// parseSignal decodes one signal file. Newer package versions write JSON with
// a location field and optionally workspace_id; older versions write the bare
// log path as text.
func parseSignal(path string, data []byte, caps Capabilities) (location, workspaceID string, err error) {
	if caps.SignalFormatJSON {
		var doc signalDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return "", "", &MalformedSignalFileError{Path: path, Err: err}
		}
		if doc.Location == "" {
			return "", "", &MalformedSignalFileError{Path: path, Err: fmt.Errorf("missing location field")}
		}
		if !caps.SignalWorkspaceID {
			doc.WorkspaceID = ""
		}
		return doc.Location, doc.WorkspaceID, nil
	}

	bare := strings.TrimSpace(string(data))
	if bare == "" {
		return "", "", &MalformedSignalFileError{Path: path, Err: fmt.Errorf("empty signal file")}
	}
	return bare, "", nil
}

func (p *Poller) publish(t event.EventType, location, workspaceID string) {
	var data any
	switch t {
	case event.ScanProduced:
		data = event.ScanProducedData{Location: location, WorkspaceID: workspaceID}
	default:
		data = event.LogProducedData{Location: location, WorkspaceID: workspaceID}
	}

	ev := event.Event{Type: t, Data: data}
	if p.bus != nil {
		p.bus.PublishSync(ev)
	} else {
		event.PublishSync(ev)
	}
}

// Stop halts the poll loop. Safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()

	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}

	if started {
		<-p.doneCh
	}
}
