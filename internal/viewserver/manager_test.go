package viewserver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inspectbridge/inspectbridge/internal/event"
	"github.com/inspectbridge/inspectbridge/internal/procspawn"
	"github.com/inspectbridge/inspectbridge/pkg/types"
)

// stubHandle is a scriptable process handle.
type stubHandle struct {
	pid    int
	done   chan struct{}
	mu     sync.Mutex
	exited bool
	code   int
	killed bool
}

func newStubHandle(pid int) *stubHandle {
	return &stubHandle{pid: pid, done: make(chan struct{})}
}

func (h *stubHandle) PID() int { return h.pid }

func (h *stubHandle) ExitCode() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.code, h.exited
}

func (h *stubHandle) Kill() error {
	h.mu.Lock()
	h.killed = true
	h.mu.Unlock()
	h.exit(-1)
	return nil
}

func (h *stubHandle) Done() <-chan struct{} { return h.done }

func (h *stubHandle) exit(code int) {
	h.mu.Lock()
	if h.exited {
		h.mu.Unlock()
		return
	}
	h.exited = true
	h.code = code
	h.mu.Unlock()
	close(h.done)
}

// stubSpawner records launches and runs a per-launch script against the
// output callback.
type stubSpawner struct {
	mu       sync.Mutex
	launches []procspawn.Spec
	handles  []*stubHandle
	starts   atomic.Int32

	// script runs in its own goroutine after each Start. Nil emits the
	// readiness line immediately.
	script func(launch int, h *stubHandle, onOutput procspawn.OutputFunc)
}

func (s *stubSpawner) Start(ctx context.Context, spec procspawn.Spec, onOutput procspawn.OutputFunc) (procspawn.Handle, error) {
	n := int(s.starts.Add(1)) - 1

	s.mu.Lock()
	s.launches = append(s.launches, spec)
	h := newStubHandle(1000 + n)
	s.handles = append(s.handles, h)
	script := s.script
	s.mu.Unlock()

	if script == nil {
		script = func(int, *stubHandle, procspawn.OutputFunc) {
			onOutput([]byte("Running on http://127.0.0.1\n"))
		}
	}
	go script(n, h, onOutput)
	return h, nil
}

func (s *stubSpawner) launch(i int) procspawn.Spec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launches[i]
}

func (s *stubSpawner) handle(i int) *stubHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[i]
}

func newTestManager(t *testing.T, sp procspawn.Spawner) (*Manager, *event.Bus) {
	t.Helper()

	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })

	m, err := NewManager(ManagerConfig{
		Profile: ViewProfile(),
		Resolve: func() (string, error) { return "/opt/venv/bin/inspect", nil },
		Spawner: sp,
		Bus:     bus,
	})
	require.NoError(t, err)
	t.Cleanup(m.Dispose)

	tokens := 0
	m.allocatePort = func(preferred int) (int, error) { return preferred, nil }
	m.newToken = func() string {
		tokens++
		return fmt.Sprintf("token-%d", tokens)
	}
	return m, bus
}

func TestManager_EnsureRunningLaunchesOnce(t *testing.T) {
	sp := &stubSpawner{}
	m, _ := newTestManager(t, sp)

	ep, err := m.EnsureRunning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7575, ep.Port)
	assert.Equal(t, "token-1", ep.AuthToken)

	spec := sp.launch(0)
	assert.Equal(t, "/opt/venv/bin/inspect", spec.Path)
	assert.Equal(t, []string{"view", "start", "--port", "7575"}, spec.Args)
	assert.Equal(t, "token-1", spec.Env[TokenEnv])
	assert.Equal(t, "150", spec.Env["COLUMNS"])

	// Second call is a no-op against the running server.
	ep2, err := m.EnsureRunning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ep, ep2)
	assert.Equal(t, int32(1), sp.starts.Load())
}

func TestManager_ConcurrentCallersShareOneLaunch(t *testing.T) {
	sp := &stubSpawner{
		script: func(_ int, _ *stubHandle, onOutput procspawn.OutputFunc) {
			time.Sleep(50 * time.Millisecond)
			onOutput([]byte("Running on http://127.0.0.1:7575\n"))
		},
	}
	m, _ := newTestManager(t, sp)

	const callers = 10
	endpoints := make([]Endpoint, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			endpoints[i], errs[i] = m.EnsureRunning(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), sp.starts.Load(), "concurrent callers must share one launch")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, endpoints[0], endpoints[i])
	}
}

func TestManager_SentinelSplitAcrossChunks(t *testing.T) {
	sp := &stubSpawner{
		script: func(_ int, _ *stubHandle, onOutput procspawn.OutputFunc) {
			onOutput([]byte("Starting up\nRunn"))
			time.Sleep(50 * time.Millisecond)
			onOutput([]byte("ing on http://127.0.0.1:7575\n"))
		},
	}
	m, _ := newTestManager(t, sp)

	ep, err := m.EnsureRunning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7575, ep.Port)
}

func TestManager_RestartAfterDeath(t *testing.T) {
	sp := &stubSpawner{}
	m, _ := newTestManager(t, sp)

	ep1, err := m.EnsureRunning(context.Background())
	require.NoError(t, err)

	sp.handle(0).exit(1)

	ep2, err := m.EnsureRunning(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), sp.starts.Load())
	assert.NotEqual(t, ep1.AuthToken, ep2.AuthToken, "each launch gets a fresh token")
	assert.Equal(t, "token-2", sp.launch(1).Env[TokenEnv])
}

func TestManager_PackageMissingFailsBeforePortAllocation(t *testing.T) {
	sp := &stubSpawner{}
	bus := event.NewBus()
	defer bus.Close()

	m, err := NewManager(ManagerConfig{
		Profile: ViewProfile(),
		Resolve: func() (string, error) { return "", &PackageNotFoundError{} },
		Spawner: sp,
		Bus:     bus,
	})
	require.NoError(t, err)
	defer m.Dispose()

	allocated := false
	m.allocatePort = func(preferred int) (int, error) {
		allocated = true
		return preferred, nil
	}

	_, err = m.EnsureRunning(context.Background())

	var notFound *PackageNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.False(t, allocated, "no port work when the package is missing")
	assert.Equal(t, int32(0), sp.starts.Load())
}

func TestManager_ExitBeforeReady(t *testing.T) {
	sp := &stubSpawner{
		script: func(_ int, h *stubHandle, onOutput procspawn.OutputFunc) {
			onOutput([]byte("Traceback (most recent call last):\n"))
			h.exit(3)
		},
	}
	m, _ := newTestManager(t, sp)

	_, err := m.EnsureRunning(context.Background())

	var failed *LaunchFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 3, failed.ExitCode)
	assert.Contains(t, failed.Output, "Traceback")

	assert.Equal(t, types.ServerStopped, m.Status().State)
}

func TestManager_LaunchTimeout(t *testing.T) {
	sp := &stubSpawner{
		script: func(_ int, _ *stubHandle, onOutput procspawn.OutputFunc) {
			onOutput([]byte("still loading...\n"))
		},
	}
	bus := event.NewBus()
	defer bus.Close()

	m, err := NewManager(ManagerConfig{
		Profile:       ViewProfile(),
		Resolve:       func() (string, error) { return "/usr/bin/inspect", nil },
		Spawner:       sp,
		Bus:           bus,
		LaunchTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	defer m.Dispose()
	m.allocatePort = func(preferred int) (int, error) { return preferred, nil }

	_, err = m.EnsureRunning(context.Background())

	var timeout *LaunchTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.True(t, sp.handle(0).killed)
}

func TestManager_ShutdownClearsEndpointAndPublishes(t *testing.T) {
	sp := &stubSpawner{}
	m, bus := newTestManager(t, sp)

	var mu sync.Mutex
	var stopped []event.ViewServerStoppedData
	bus.Subscribe(event.ViewServerStopped, func(e event.Event) {
		mu.Lock()
		stopped = append(stopped, e.Data.(event.ViewServerStoppedData))
		mu.Unlock()
	})

	_, err := m.EnsureRunning(context.Background())
	require.NoError(t, err)

	m.Shutdown()

	assert.Equal(t, Endpoint{}, m.CurrentEndpoint())
	assert.Equal(t, types.ServerStopped, m.Status().State)
	assert.True(t, sp.handle(0).killed)

	mu.Lock()
	require.Len(t, stopped, 1)
	assert.Equal(t, "view", stopped[0].Name)
	mu.Unlock()

	// Shutdown again is a no-op.
	m.Shutdown()
	mu.Lock()
	assert.Len(t, stopped, 1)
	mu.Unlock()
}

func TestManager_StartedEventCarriesPortAndPID(t *testing.T) {
	sp := &stubSpawner{}
	m, bus := newTestManager(t, sp)

	var mu sync.Mutex
	var started []event.ViewServerStartedData
	bus.Subscribe(event.ViewServerStarted, func(e event.Event) {
		mu.Lock()
		started = append(started, e.Data.(event.ViewServerStartedData))
		mu.Unlock()
	})

	ep, err := m.EnsureRunning(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, started, 1)
	assert.Equal(t, "view", started[0].Name)
	assert.Equal(t, ep.Port, started[0].Port)
	assert.Equal(t, 1000, started[0].PID)
}

func TestManager_DisposedRejectsEnsure(t *testing.T) {
	sp := &stubSpawner{}
	m, _ := newTestManager(t, sp)

	m.Dispose()

	_, err := m.EnsureRunning(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disposed")
}
