// Package inspectpkg locates the inspect CLI and tracks its runtime state.
//
// The bridge treats the inspect Python package as a black box: this package
// only resolves its binary, probes its version, and polls the signal files it
// writes. Everything behind the binary's HTTP API belongs to viewserver.
package inspectpkg

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// DefaultBinaryName is the CLI entry point installed by the inspect package.
const DefaultBinaryName = "inspect"

// Availability describes whether the inspect binary is usable right now.
type Availability struct {
	Available bool
	BinPath   string
	Version   *semver.Version
}

// Equal reports whether two availability snapshots describe the same binary.
func (a Availability) Equal(other Availability) bool {
	if a.Available != other.Available || a.BinPath != other.BinPath {
		return false
	}
	if (a.Version == nil) != (other.Version == nil) {
		return false
	}
	return a.Version == nil || a.Version.Equal(other.Version)
}

// Discoverer resolves the inspect binary path and version.
type Discoverer struct {
	binOverride string

	// Test seams; default to exec.LookPath and a real --version run.
	lookPath   func(file string) (string, error)
	runVersion func(bin string) (string, error)
}

// NewDiscoverer creates a discoverer. binOverride, when non-empty, wins over
// environment based resolution.
func NewDiscoverer(binOverride string) *Discoverer {
	return &Discoverer{
		binOverride: binOverride,
		lookPath:    exec.LookPath,
		runVersion:  runVersionCommand,
	}
}

// Resolve recomputes availability: explicit override, then the active virtual
// environment's bin directory, then PATH. The version is probed from the
// resolved binary; a binary that cannot report a version is still considered
// available (capability negotiation falls back to the oldest behavior).
func (d *Discoverer) Resolve() Availability {
	bin := d.resolveBin()
	if bin == "" {
		return Availability{}
	}

	out, err := d.runVersion(bin)
	if err != nil {
		return Availability{Available: true, BinPath: bin}
	}

	return Availability{
		Available: true,
		BinPath:   bin,
		Version:   parseVersionOutput(out),
	}
}

func (d *Discoverer) resolveBin() string {
	if d.binOverride != "" {
		if _, err := os.Stat(d.binOverride); err == nil {
			return d.binOverride
		}
		return ""
	}

	if venv := os.Getenv("VIRTUAL_ENV"); venv != "" {
		candidate := filepath.Join(venv, venvBinDir(), exeName(DefaultBinaryName))
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	path, err := d.lookPath(DefaultBinaryName)
	if err != nil {
		return ""
	}
	return path
}

func venvBinDir() string {
	if runtime.GOOS == "windows" {
		return "Scripts"
	}
	return "bin"
}

func exeName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// runVersionCommand executes `<bin> --version` and returns its output.
func runVersionCommand(bin string) (string, error) {
	out, err := exec.Command(bin, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("version probe failed: %w", err)
	}
	return string(out), nil
}

var versionRe = regexp.MustCompile(`\d+\.\d+\.\d+(?:[-.+][0-9A-Za-z.-]+)?`)

// parseVersionOutput extracts a semantic version from CLI version output such
// as "inspect, version 0.3.46". Returns nil when no version is present.
func parseVersionOutput(out string) *semver.Version {
	match := versionRe.FindString(strings.TrimSpace(out))
	if match == "" {
		return nil
	}
	v, err := semver.NewVersion(match)
	if err != nil {
		return nil
	}
	return v
}
