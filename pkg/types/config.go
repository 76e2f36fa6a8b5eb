package types

// Config represents the inspectbridge configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Bridge server settings
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	Hostname string `json:"hostname,omitempty" yaml:"hostname,omitempty"`

	// Log level for the bridge itself (DEBUG|INFO|WARN|ERROR)
	LogLevel string `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`

	// Explicit path to the inspect CLI binary. When empty the binary is
	// resolved from the active virtual environment and then PATH.
	InspectBin string `json:"inspectBin,omitempty" yaml:"inspectBin,omitempty"`

	// Log level passed to spawned view servers (--log-level)
	ViewLogLevel string `json:"viewLogLevel,omitempty" yaml:"viewLogLevel,omitempty"`

	// Signal-file poll interval in milliseconds. Zero means the default.
	PollIntervalMs int `json:"pollIntervalMs,omitempty" yaml:"pollIntervalMs,omitempty"`

	// Launch timeout in milliseconds for spawned servers waiting on their
	// readiness sentinel. Zero means the default; negative disables the
	// timeout entirely.
	LaunchTimeoutMs int `json:"launchTimeoutMs,omitempty" yaml:"launchTimeoutMs,omitempty"`

	// Per logical-server overrides keyed by profile name ("view", "eval",
	// "scan").
	Servers map[string]ServerConfig `json:"servers,omitempty" yaml:"servers,omitempty"`
}

// ServerConfig holds overrides for one logical server profile.
type ServerConfig struct {
	// Preferred port. The port allocator falls back to a free port when
	// this one is taken.
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// Extra arguments appended to the start command.
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`

	// Disable this profile entirely.
	Disabled *bool `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Availability describes whether the inspect package is usable.
type Availability struct {
	Available bool   `json:"available"`
	BinPath   string `json:"binPath,omitempty"`
	Version   string `json:"version,omitempty"`
}

// ServerState is the lifecycle state of one managed server.
type ServerState string

const (
	ServerStopped  ServerState = "stopped"
	ServerStarting ServerState = "starting"
	ServerRunning  ServerState = "running"
)

// ServerStatus reports one managed server for the /status endpoint.
type ServerStatus struct {
	Name  string      `json:"name"`
	State ServerState `json:"state"`
	Port  int         `json:"port,omitempty"`
	PID   int         `json:"pid,omitempty"`
}

// BridgeStatus is the full /status payload.
type BridgeStatus struct {
	Package Availability   `json:"package"`
	Servers []ServerStatus `json:"servers"`
}
