package testutil

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/inspectbridge/inspectbridge/internal/bridge"
	"github.com/inspectbridge/inspectbridge/internal/procspawn"
	"github.com/inspectbridge/inspectbridge/internal/server"
	"github.com/inspectbridge/inspectbridge/pkg/types"
)

// TestServer wraps a bridge server instance for testing.
type TestServer struct {
	Server  *server.Server
	App     *bridge.App
	Backend *FakeViewServer
	BaseURL string
	Config  *types.Config
	TempDir string
	WorkDir string
	port    int
}

// TestServerOption configures TestServer
type TestServerOption func(*testServerConfig)

type testServerConfig struct {
	workDir string
	envFile string
	version string
}

// WithWorkDir sets the working directory
func WithWorkDir(dir string) TestServerOption {
	return func(c *testServerConfig) {
		c.workDir = dir
	}
}

// WithEnvFile sets the .env file to load
func WithEnvFile(path string) TestServerOption {
	return func(c *testServerConfig) {
		c.envFile = path
	}
}

// WithPackageVersion sets the version the fake inspect binary reports
func WithPackageVersion(version string) TestServerOption {
	return func(c *testServerConfig) {
		c.version = version
	}
}

// StartTestServer creates and starts a bridge test server whose managed
// view servers resolve to a FakeViewServer backend.
func StartTestServer(opts ...TestServerOption) (*TestServer, error) {
	cfg := &testServerConfig{version: "0.3.70"}
	for _, opt := range opts {
		opt(cfg)
	}

	// Load environment variables
	if cfg.envFile != "" {
		_ = godotenv.Load(cfg.envFile)
	} else {
		_ = godotenv.Load("../../.env")
		_ = godotenv.Load("../.env")
		_ = godotenv.Load(".env")
	}

	// Create temp directory for test data
	tempDir, err := os.MkdirTemp("", "inspectbridge-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	workDir := cfg.workDir
	if workDir == "" {
		workDir = tempDir
	}

	// Stand-in inspect CLI reporting the configured version
	binPath, err := writeFakeInspectBin(tempDir, cfg.version)
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}

	backend := NewFakeViewServer()

	appConfig := &types.Config{
		InspectBin: binPath,
		Servers: map[string]types.ServerConfig{
			"view": {Port: backend.Port()},
			"scan": {Port: backend.Port()},
		},
	}

	app, err := bridge.New(bridge.Config{
		Dir:          workDir,
		AppConfig:    appConfig,
		Spawner:      NewFakeSpawner(),
		AllocatePort: func(preferred int) (int, error) { return preferred, nil },
	})
	if err != nil {
		backend.Close()
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to build bridge: %w", err)
	}
	app.Start()

	// Find available port
	port, err := findAvailablePort()
	if err != nil {
		app.Stop()
		backend.Close()
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Port = port

	srv := server.New(serverConfig, app)

	// Start server in background
	go func() {
		_ = srv.Start()
	}()

	// Wait for server to be ready
	baseURL := fmt.Sprintf("http://localhost:%d", port)
	if err := waitForServer(baseURL, 10*time.Second); err != nil {
		srv.Shutdown(context.Background())
		app.Stop()
		backend.Close()
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("server failed to start: %w", err)
	}

	return &TestServer{
		Server:  srv,
		App:     app,
		Backend: backend,
		BaseURL: baseURL,
		Config:  appConfig,
		TempDir: tempDir,
		WorkDir: workDir,
		port:    port,
	}, nil
}

// Stop shuts down the test server and cleans up
func (ts *TestServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if ts.Server != nil {
		if err := ts.Server.Shutdown(ctx); err != nil {
			return err
		}
	}
	if ts.App != nil {
		ts.App.Stop()
	}
	if ts.Backend != nil {
		ts.Backend.Close()
	}
	if ts.TempDir != "" {
		os.RemoveAll(ts.TempDir)
	}

	return nil
}

// Client returns a new test client for this server
func (ts *TestServer) Client() *TestClient {
	return NewTestClient(ts.BaseURL)
}

// SSEClient returns a new SSE client for this server
func (ts *TestServer) SSEClient() *SSEClient {
	return NewSSEClient(ts.BaseURL)
}

// SignalDir returns the directory the bridge polls for signal files of the
// given kind ("view" or "scans").
func (ts *TestServer) SignalDir(kind string) string {
	return filepath.Join(ts.WorkDir, bridge.StateDirName, kind)
}

// writeFakeInspectBin writes a shell script that mimics `inspect --version`.
func writeFakeInspectBin(dir, version string) (string, error) {
	path := filepath.Join(dir, "inspect")
	script := fmt.Sprintf("#!/bin/sh\necho \"inspect, version %s\"\n", version)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return "", fmt.Errorf("failed to write fake inspect bin: %w", err)
	}
	return path, nil
}

// findAvailablePort finds an available TCP port
func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// waitForServer waits for the server to be ready
func waitForServer(baseURL string, timeout time.Duration) error {
	client := NewTestClient(baseURL)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		resp, err := client.Get(context.Background(), "/status")
		if err == nil && resp.IsSuccess() {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("server not ready after %v", timeout)
}

// FakeSpawner fakes view-server processes that report readiness at once.
type FakeSpawner struct{}

// NewFakeSpawner returns a spawner whose processes never really start.
func NewFakeSpawner() *FakeSpawner {
	return &FakeSpawner{}
}

type fakeHandle struct{ done chan struct{} }

func (h *fakeHandle) PID() int              { return 4242 }
func (h *fakeHandle) ExitCode() (int, bool) { return 0, false }
func (h *fakeHandle) Done() <-chan struct{} { return h.done }
func (h *fakeHandle) Kill() error {
	select {
	case <-h.done:
	default:
		close(h.done)
	}
	return nil
}

// Start satisfies procspawn.Spawner.
func (s *FakeSpawner) Start(ctx context.Context, spec procspawn.Spec, onOutput procspawn.OutputFunc) (procspawn.Handle, error) {
	go onOutput([]byte("Running on http://127.0.0.1\n"))
	return &fakeHandle{done: make(chan struct{})}, nil
}
