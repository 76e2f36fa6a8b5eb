package inspectpkg

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersionOutput(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		expected string
	}{
		{"plain", "0.3.46", "0.3.46"},
		{"cli banner", "inspect, version 0.3.46", "0.3.46"},
		{"trailing newline", "inspect, version 0.3.46\n", "0.3.46"},
		{"prerelease", "inspect, version 0.4.0-dev.12", "0.4.0-dev.12"},
		{"garbage", "command not found", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := parseVersionOutput(tt.output)
			if tt.expected == "" {
				assert.Nil(t, v)
				return
			}
			require.NotNil(t, v)
			assert.Equal(t, tt.expected, v.String())
		})
	}
}

func TestResolve_Override(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "inspect")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	d := NewDiscoverer(bin)
	d.runVersion = func(string) (string, error) { return "inspect, version 0.3.50", nil }

	a := d.Resolve()
	assert.True(t, a.Available)
	assert.Equal(t, bin, a.BinPath)
	require.NotNil(t, a.Version)
	assert.Equal(t, "0.3.50", a.Version.String())
}

func TestResolve_OverrideMissing(t *testing.T) {
	d := NewDiscoverer(filepath.Join(t.TempDir(), "missing"))
	a := d.Resolve()
	assert.False(t, a.Available)
	assert.Empty(t, a.BinPath)
}

func TestResolve_LookPath(t *testing.T) {
	d := NewDiscoverer("")
	d.lookPath = func(file string) (string, error) {
		assert.Equal(t, DefaultBinaryName, file)
		return "/usr/local/bin/inspect", nil
	}
	d.runVersion = func(bin string) (string, error) {
		assert.Equal(t, "/usr/local/bin/inspect", bin)
		return "0.3.46", nil
	}
	t.Setenv("VIRTUAL_ENV", "")

	a := d.Resolve()
	assert.True(t, a.Available)
	assert.Equal(t, "/usr/local/bin/inspect", a.BinPath)
}

func TestResolve_VirtualEnvWins(t *testing.T) {
	venv := t.TempDir()
	binDir := filepath.Join(venv, venvBinDir())
	require.NoError(t, os.MkdirAll(binDir, 0o755))
	bin := filepath.Join(binDir, exeName(DefaultBinaryName))
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755))

	t.Setenv("VIRTUAL_ENV", venv)

	d := NewDiscoverer("")
	d.lookPath = func(string) (string, error) {
		t.Fatal("PATH lookup should not run when the virtual env has the binary")
		return "", nil
	}
	d.runVersion = func(string) (string, error) { return "0.3.46", nil }

	a := d.Resolve()
	assert.True(t, a.Available)
	assert.Equal(t, bin, a.BinPath)
}

func TestResolve_NotInstalled(t *testing.T) {
	t.Setenv("VIRTUAL_ENV", "")
	d := NewDiscoverer("")
	d.lookPath = func(string) (string, error) { return "", fmt.Errorf("not found") }

	a := d.Resolve()
	assert.False(t, a.Available)
}

func TestResolve_VersionProbeFailure(t *testing.T) {
	t.Setenv("VIRTUAL_ENV", "")
	d := NewDiscoverer("")
	d.lookPath = func(string) (string, error) { return "/usr/bin/inspect", nil }
	d.runVersion = func(string) (string, error) { return "", fmt.Errorf("exit 1") }

	a := d.Resolve()
	assert.True(t, a.Available, "binary without a version stays available")
	assert.Nil(t, a.Version)
}

func TestAvailability_Equal(t *testing.T) {
	v1 := semver.MustParse("0.3.46")
	v2 := semver.MustParse("0.3.47")

	a := Availability{Available: true, BinPath: "/bin/inspect", Version: v1}
	same := Availability{Available: true, BinPath: "/bin/inspect", Version: semver.MustParse("0.3.46")}
	bumped := Availability{Available: true, BinPath: "/bin/inspect", Version: v2}
	moved := Availability{Available: true, BinPath: "/opt/inspect", Version: v1}

	assert.True(t, a.Equal(same))
	assert.False(t, a.Equal(bumped))
	assert.False(t, a.Equal(moved))
	assert.False(t, a.Equal(Availability{}))
	assert.True(t, Availability{}.Equal(Availability{}))
	assert.False(t, a.Equal(Availability{Available: true, BinPath: "/bin/inspect"}))
}
