package viewserver

import "strconv"

const (
	// TokenEnv is the environment variable the spawned server reads its
	// bearer credential from.
	TokenEnv = "INSPECT_VIEW_AUTHORIZATION_TOKEN"

	// ReadinessSentinel is the substring in combined stdout+stderr output
	// that signals the server bound its port. It is the sole readiness
	// signal; the binary is a black box beyond it.
	ReadinessSentinel = "Running on "

	// terminalColumns is exported to the child so its log rendering wraps
	// consistently regardless of the parent terminal.
	terminalColumns = "150"
)

// ExecProfile describes how to launch one logical server. Supplied once at
// manager construction and never mutated.
type ExecProfile struct {
	// Name is the lock key and status identifier ("view", "scan", "eval").
	Name string
	// DisplayName is used in user-facing messages.
	DisplayName string
	// StartCommand is the subcommand invoked on the inspect binary.
	StartCommand []string
	// DefaultPort is the preferred port handed to the port allocator.
	DefaultPort int
	// LogLevel, when set, is passed as --log-level.
	LogLevel string
	// ExtraArgs are appended after the generated flags.
	ExtraArgs []string
}

// Args builds the full argument list for a launch on the given port.
func (p ExecProfile) Args(port int) []string {
	args := append([]string{}, p.StartCommand...)
	args = append(args, "--port", strconv.Itoa(port))
	if p.LogLevel != "" {
		args = append(args, "--log-level", p.LogLevel)
	}
	args = append(args, p.ExtraArgs...)
	return args
}

// ViewProfile is the log view server.
func ViewProfile() ExecProfile {
	return ExecProfile{
		Name:         "view",
		DisplayName:  "Inspect View",
		StartCommand: []string{"view", "start"},
		DefaultPort:  7575,
	}
}

// ScanProfile is the scan view server. Only usable when the installed
// package version has the scan subcommand.
func ScanProfile() ExecProfile {
	return ExecProfile{
		Name:         "scan",
		DisplayName:  "Inspect Scan View",
		StartCommand: []string{"scan", "view", "start"},
		DefaultPort:  7576,
	}
}
