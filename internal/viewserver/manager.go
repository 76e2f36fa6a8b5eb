package viewserver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/inspectbridge/inspectbridge/internal/event"
	"github.com/inspectbridge/inspectbridge/internal/flight"
	"github.com/inspectbridge/inspectbridge/internal/logging"
	"github.com/inspectbridge/inspectbridge/internal/portalloc"
	"github.com/inspectbridge/inspectbridge/internal/procspawn"
	"github.com/inspectbridge/inspectbridge/pkg/types"
)

// DefaultLaunchTimeout bounds the wait for the readiness sentinel. A child
// that hangs without erroring would otherwise suspend callers forever.
const DefaultLaunchTimeout = 90 * time.Second

// Endpoint is the port and bearer credential of a running server. Both are
// generated fresh on every launch and cleared on shutdown.
type Endpoint struct {
	Port      int
	AuthToken string
}

// ManagerConfig wires one lifecycle manager.
type ManagerConfig struct {
	Profile ExecProfile

	// Resolve returns the inspect binary path, or an error (typically
	// *PackageNotFoundError) when the package is unavailable.
	Resolve func() (string, error)

	// Spawner starts child processes. Defaults to the real one.
	Spawner procspawn.Spawner

	// Bus receives lifecycle events. Nil publishes to the global bus.
	Bus *event.Bus

	// LaunchTimeout bounds the readiness wait. Zero means
	// DefaultLaunchTimeout; negative disables the timeout.
	LaunchTimeout time.Duration

	// OutputWriter, when set, receives the child's combined output.
	// Closed by Dispose.
	OutputWriter io.WriteCloser

	// AllocatePort overrides the port allocator. Defaults to portalloc.Find.
	AllocatePort func(preferred int) (int, error)
}

// Manager owns the child process, port, and auth token of one logical
// server. At most one live child exists per manager; a new launch is only
// attempted when no handle exists or the previous process has exited.
type Manager struct {
	profile       ExecProfile
	resolve       func() (string, error)
	spawner       procspawn.Spawner
	bus           *event.Bus
	launchTimeout time.Duration
	log           zerolog.Logger

	// Test seams.
	allocatePort func(preferred int) (int, error)
	newToken     func() string

	group flight.Group

	mu       sync.Mutex
	state    types.ServerState
	handle   procspawn.Handle
	endpoint Endpoint
	output   io.WriteCloser
	disposed bool
}

// NewManager creates a manager for one exec profile.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Profile.Name == "" {
		return nil, fmt.Errorf("profile name is required")
	}
	if cfg.Resolve == nil {
		return nil, fmt.Errorf("binary resolver is required")
	}
	if cfg.Spawner == nil {
		cfg.Spawner = procspawn.New()
	}
	timeout := cfg.LaunchTimeout
	if timeout == 0 {
		timeout = DefaultLaunchTimeout
	}
	if cfg.AllocatePort == nil {
		cfg.AllocatePort = portalloc.Find
	}

	return &Manager{
		profile:       cfg.Profile,
		resolve:       cfg.Resolve,
		spawner:       cfg.Spawner,
		bus:           cfg.Bus,
		launchTimeout: timeout,
		log:           logging.Component("viewserver").With().Str("profile", cfg.Profile.Name).Logger(),
		allocatePort:  cfg.AllocatePort,
		newToken:      uuid.NewString,
		state:         types.ServerStopped,
		output:        cfg.OutputWriter,
	}, nil
}

// EnsureRunning starts the server if needed and returns its endpoint. The
// call suspends until the readiness sentinel appears in the child's output.
// Concurrent callers share a single in-flight launch; once Running the call
// is a no-op. A process that died since the last call is detected by its
// exit code and relaunched.
func (m *Manager) EnsureRunning(ctx context.Context) (Endpoint, error) {
	v, err := m.group.Do(m.profile.Name, func() (any, error) {
		return m.ensure(ctx)
	})
	if err != nil {
		return Endpoint{}, err
	}
	return v.(Endpoint), nil
}

func (m *Manager) ensure(ctx context.Context) (Endpoint, error) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return Endpoint{}, fmt.Errorf("%s server manager disposed", m.profile.Name)
	}

	if m.state == types.ServerRunning && m.handle != nil {
		if _, exited := m.handle.ExitCode(); !exited {
			ep := m.endpoint
			m.mu.Unlock()
			return ep, nil
		}
		// The process died after reaching Running. No automatic restart
		// happened; this call performs the relaunch.
		m.log.Warn().Msg("server process died, relaunching")
		m.state = types.ServerStopped
		m.handle = nil
		m.endpoint = Endpoint{}
	}
	m.mu.Unlock()

	return m.launch(ctx)
}

func (m *Manager) launch(ctx context.Context) (Endpoint, error) {
	// Binary resolution comes first: when the package is missing we fail
	// before touching the port allocator or spawning anything.
	bin, err := m.resolve()
	if err != nil {
		return Endpoint{}, err
	}

	port, err := m.allocatePort(m.profile.DefaultPort)
	if err != nil {
		return Endpoint{}, fmt.Errorf("no port available for %s server: %w", m.profile.Name, err)
	}

	token := m.newToken()
	launchID := ulid.Make().String()
	args := m.profile.Args(port)

	log := m.log.With().Str("launchID", launchID).Logger()
	log.Info().
		Int("port", port).
		Str("cmd", procspawn.CommandLine(bin, args)).
		Msg("launching server")

	ready := make(chan struct{})
	watch := newSentinelWatch(ReadinessSentinel, func() { close(ready) })

	onOutput := func(chunk []byte) {
		m.mu.Lock()
		out := m.output
		m.mu.Unlock()
		if out != nil {
			out.Write(chunk)
		}
		watch.feed(chunk)
	}

	m.setState(types.ServerStarting)

	handle, err := m.spawner.Start(ctx, procspawn.Spec{
		Path: bin,
		Args: args,
		Env: map[string]string{
			TokenEnv:  token,
			"COLUMNS": terminalColumns,
		},
	}, onOutput)
	if err != nil {
		m.setState(types.ServerStopped)
		return Endpoint{}, &LaunchFailedError{Profile: m.profile.Name, Err: err}
	}

	m.mu.Lock()
	m.handle = handle
	m.mu.Unlock()

	var timeoutCh <-chan time.Time
	if m.launchTimeout > 0 {
		timer := time.NewTimer(m.launchTimeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-ready:
		ep := Endpoint{Port: port, AuthToken: token}
		m.mu.Lock()
		m.state = types.ServerRunning
		m.endpoint = ep
		m.mu.Unlock()

		log.Info().Int("pid", handle.PID()).Msg("server ready")
		m.publish(event.ViewServerStarted, event.ViewServerStartedData{
			Name: m.profile.Name,
			Port: port,
			PID:  handle.PID(),
		})
		return ep, nil

	case <-handle.Done():
		code, _ := handle.ExitCode()
		m.clearProcess()
		log.Error().Int("exitCode", code).Msg("server exited before becoming ready")
		return Endpoint{}, &LaunchFailedError{
			Profile:  m.profile.Name,
			ExitCode: code,
			Output:   watch.tail(),
		}

	case <-timeoutCh:
		handle.Kill()
		m.clearProcess()
		return Endpoint{}, &LaunchTimeoutError{Profile: m.profile.Name, Timeout: m.launchTimeout}

	case <-ctx.Done():
		handle.Kill()
		m.clearProcess()
		return Endpoint{}, ctx.Err()
	}
}

func (m *Manager) setState(s types.ServerState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) clearProcess() {
	m.mu.Lock()
	m.state = types.ServerStopped
	m.handle = nil
	m.endpoint = Endpoint{}
	m.mu.Unlock()
}

// Shutdown kills the current process and clears the endpoint. Called when
// the installed package version changes so a stale-version server is never
// reused, and on bridge shutdown.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	handle := m.handle
	wasRunning := m.state != types.ServerStopped
	m.state = types.ServerStopped
	m.handle = nil
	m.endpoint = Endpoint{}
	m.mu.Unlock()

	if handle != nil {
		handle.Kill()
	}
	if wasRunning {
		m.log.Info().Msg("server shut down")
		m.publish(event.ViewServerStopped, event.ViewServerStoppedData{
			Name:   m.profile.Name,
			Reason: "shutdown",
		})
	}
}

// Dispose shuts the server down and releases the output writer. Idempotent.
func (m *Manager) Dispose() {
	m.Shutdown()

	m.mu.Lock()
	out := m.output
	m.output = nil
	m.disposed = true
	m.mu.Unlock()

	if out != nil {
		out.Close()
	}
}

// Status reports the manager's current state.
func (m *Manager) Status() types.ServerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := types.ServerStatus{
		Name:  m.profile.Name,
		State: m.state,
		Port:  m.endpoint.Port,
	}
	if m.handle != nil {
		st.PID = m.handle.PID()
	}
	return st
}

// CurrentEndpoint returns the current endpoint. Zero value unless Running.
func (m *Manager) CurrentEndpoint() Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint
}

func (m *Manager) publish(t event.EventType, data any) {
	ev := event.Event{Type: t, Data: data}
	if m.bus != nil {
		m.bus.PublishSync(ev)
	} else {
		event.PublishSync(ev)
	}
}

// sentinelWatch scans a combined output stream for a substring, tolerating
// chunk boundaries, and keeps a bounded tail for error reporting.
type sentinelWatch struct {
	mu       sync.Mutex
	sentinel []byte
	window   []byte
	tailBuf  bytes.Buffer
	found    bool
	onFound  func()
}

const tailLimit = 2048

func newSentinelWatch(sentinel string, onFound func()) *sentinelWatch {
	return &sentinelWatch{sentinel: []byte(sentinel), onFound: onFound}
}

func (s *sentinelWatch) feed(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tailBuf.Len() < tailLimit {
		n := tailLimit - s.tailBuf.Len()
		if n > len(chunk) {
			n = len(chunk)
		}
		s.tailBuf.Write(chunk[:n])
	}

	if s.found {
		return
	}

	s.window = append(s.window, chunk...)
	if bytes.Contains(s.window, s.sentinel) {
		s.found = true
		s.window = nil
		s.onFound()
		return
	}

	// Only the last len(sentinel)-1 bytes can still contribute to a match.
	if keep := len(s.sentinel) - 1; len(s.window) > keep {
		s.window = s.window[len(s.window)-keep:]
	}
}

func (s *sentinelWatch) tail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tailBuf.String()
}
