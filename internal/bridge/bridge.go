// Package bridge wires the inspect package watcher, the managed view
// servers, and the signal-file poller into one application object.
package bridge

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/inspectbridge/inspectbridge/internal/event"
	"github.com/inspectbridge/inspectbridge/internal/inspectpkg"
	"github.com/inspectbridge/inspectbridge/internal/logging"
	"github.com/inspectbridge/inspectbridge/internal/procspawn"
	"github.com/inspectbridge/inspectbridge/internal/viewserver"
	"github.com/inspectbridge/inspectbridge/pkg/types"
)

// StateDirName is the directory under the workspace where the inspect
// package drops its signal files.
const StateDirName = ".inspect"

// Config assembles one bridge application.
type Config struct {
	// Dir is the workspace directory signal files are polled under.
	Dir string

	// AppConfig is the loaded bridge configuration.
	AppConfig *types.Config

	// Bus carries all bridge events. Nil creates a fresh bus.
	Bus *event.Bus

	// Spawner overrides the process spawner (tests). Nil uses the real one.
	Spawner procspawn.Spawner

	// AllocatePort overrides the port allocator (tests).
	AllocatePort func(preferred int) (int, error)

	// ServerLogPath, when set, names the file each managed server's
	// combined output is appended to, keyed by profile name.
	ServerLogPath func(profile string) string
}

// App owns the long-lived pieces of the bridge: package watcher, signal
// poller, and one lifecycle manager per server profile.
type App struct {
	dir        string
	appConfig  *types.Config
	bus        *event.Bus
	discoverer *inspectpkg.Discoverer
	watcher    *inspectpkg.Watcher
	poller     *inspectpkg.Poller
	log        zerolog.Logger

	managers map[string]*viewserver.Manager
	clients  map[string]*viewserver.Client

	mu      sync.Mutex
	started bool
	unsub   func()
}

// New builds the application graph. Nothing is started yet; call Start.
func New(cfg Config) (*App, error) {
	appConfig := cfg.AppConfig
	if appConfig == nil {
		appConfig = &types.Config{}
	}
	bus := cfg.Bus
	if bus == nil {
		bus = event.NewBus()
	}

	discoverer := inspectpkg.NewDiscoverer(appConfig.InspectBin)
	watcher := inspectpkg.NewWatcher(discoverer, bus)

	app := &App{
		dir:        cfg.Dir,
		appConfig:  appConfig,
		bus:        bus,
		discoverer: discoverer,
		watcher:    watcher,
		log:        logging.Component("bridge"),
		managers:   make(map[string]*viewserver.Manager),
		clients:    make(map[string]*viewserver.Client),
	}

	pollInterval := time.Duration(appConfig.PollIntervalMs) * time.Millisecond
	app.poller = inspectpkg.NewPoller(
		inspectpkg.DefaultSignalSpecs(filepath.Join(cfg.Dir, StateDirName)),
		pollInterval,
		bus,
		app.Capabilities,
	)

	for _, profile := range []viewserver.ExecProfile{viewserver.ViewProfile(), viewserver.ScanProfile()} {
		profile := app.applyOverrides(profile)
		if sc, ok := appConfig.Servers[profile.Name]; ok && sc.Disabled != nil && *sc.Disabled {
			continue
		}

		m, err := viewserver.NewManager(viewserver.ManagerConfig{
			Profile:       profile,
			Resolve:       app.resolveFor(profile.Name),
			Spawner:       cfg.Spawner,
			Bus:           bus,
			LaunchTimeout: launchTimeout(appConfig.LaunchTimeoutMs),
			AllocatePort:  cfg.AllocatePort,
			OutputWriter:  openServerLog(cfg.ServerLogPath, profile.Name, app.log),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build %s server manager: %w", profile.Name, err)
		}
		app.managers[profile.Name] = m
		app.clients[profile.Name] = viewserver.NewClient(m)
	}

	return app, nil
}

func (a *App) applyOverrides(p viewserver.ExecProfile) viewserver.ExecProfile {
	if a.appConfig.ViewLogLevel != "" {
		p.LogLevel = a.appConfig.ViewLogLevel
	}
	if sc, ok := a.appConfig.Servers[p.Name]; ok {
		if sc.Port != 0 {
			p.DefaultPort = sc.Port
		}
		p.ExtraArgs = append(p.ExtraArgs, sc.Args...)
	}
	return p
}

// openServerLog opens the append-only output log for one server profile. A
// failure disables output logging for that profile instead of failing the
// bridge.
func openServerLog(pathFor func(string) string, profile string, log zerolog.Logger) io.WriteCloser {
	if pathFor == nil {
		return nil
	}
	path := pathFor(profile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("server output logging disabled")
		return nil
	}
	return f
}

func launchTimeout(ms int) time.Duration {
	switch {
	case ms == 0:
		return 0 // manager default
	case ms < 0:
		return -1 // disabled
	default:
		return time.Duration(ms) * time.Millisecond
	}
}

// resolveFor builds the binary resolver for one profile. Resolution happens
// fresh on every launch so a package installed after bridge startup is
// picked up without waiting for the watcher's next probe.
func (a *App) resolveFor(name string) func() (string, error) {
	return func() (string, error) {
		avail := a.discoverer.Resolve()
		if !avail.Available {
			return "", &viewserver.PackageNotFoundError{}
		}

		if name == "scan" && !inspectpkg.CapabilitiesFor(avail.Version).ScanServer {
			return "", fmt.Errorf("scan view requires inspect >= 0.3.61, found %s", versionString(avail))
		}
		return avail.BinPath, nil
	}
}

func versionString(a inspectpkg.Availability) string {
	if a.Version == nil {
		return "unknown version"
	}
	return a.Version.String()
}

// Capabilities returns the capability set of the currently installed
// package version.
func (a *App) Capabilities() inspectpkg.Capabilities {
	return inspectpkg.CapabilitiesFor(a.watcher.Current().Version)
}

// Start launches the watcher and poller and arms version-change teardown.
func (a *App) Start() {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	a.mu.Unlock()

	// Any change to the installed package invalidates running servers:
	// they were launched from the old binary and must not serve requests
	// for the new one. The next request relaunches from scratch.
	a.unsub = a.bus.Subscribe(event.PackageChanged, func(e event.Event) {
		data := e.Data.(event.PackageChangedData)
		a.log.Info().
			Bool("available", data.Availability.Available).
			Str("version", data.Availability.Version).
			Msg("inspect package changed, shutting down view servers")
		a.shutdownServers()
	})

	a.watcher.Start()
	a.poller.Start()
}

func (a *App) shutdownServers() {
	for _, m := range a.managers {
		m.Shutdown()
	}
}

// Stop tears down everything: poller, watcher, and all managed servers.
func (a *App) Stop() {
	a.mu.Lock()
	unsub := a.unsub
	a.unsub = nil
	a.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	a.poller.Stop()
	a.watcher.Stop()

	for _, m := range a.managers {
		m.Dispose()
	}
}

// Bus returns the application event bus.
func (a *App) Bus() *event.Bus {
	return a.bus
}

// Client returns the proxy client for a server profile.
func (a *App) Client(name string) (*viewserver.Client, error) {
	c, ok := a.clients[name]
	if !ok {
		return nil, fmt.Errorf("no such server profile: %s", name)
	}
	return c, nil
}

// Manager returns the lifecycle manager for a server profile.
func (a *App) Manager(name string) (*viewserver.Manager, error) {
	m, ok := a.managers[name]
	if !ok {
		return nil, fmt.Errorf("no such server profile: %s", name)
	}
	return m, nil
}

// Status snapshots package availability and all managed servers.
func (a *App) Status() types.BridgeStatus {
	avail := a.watcher.Current()

	st := types.BridgeStatus{
		Package: types.Availability{
			Available: avail.Available,
			BinPath:   avail.BinPath,
		},
	}
	if avail.Version != nil {
		st.Package.Version = avail.Version.String()
	}

	names := make([]string, 0, len(a.managers))
	for name := range a.managers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st.Servers = append(st.Servers, a.managers[name].Status())
	}
	return st
}
