package inspectpkg

import (
	"sync"

	"github.com/Masterminds/semver/v3"
)

// Capabilities describes version-gated behavior of the installed package.
// Resolved once per observed version and cached, instead of scattering
// version comparisons through the callers.
type Capabilities struct {
	// SignalFormatJSON: signal files contain a JSON document rather than a
	// bare path string.
	SignalFormatJSON bool
	// SignalWorkspaceID: JSON signal files may carry a workspace_id field.
	SignalWorkspaceID bool
	// ScanServer: the CLI exposes the scan subcommand and its REST surface.
	ScanServer bool
}

var (
	signalJSONSince      = semver.MustParse("0.3.8")
	workspaceIDSince     = semver.MustParse("0.3.46")
	scanServerSince      = semver.MustParse("0.3.61")
	oldestCapabilitySet  = Capabilities{}
	capabilityCache      = map[string]Capabilities{}
	capabilityCacheMutex sync.Mutex
)

// CapabilitiesFor returns the capability set for a package version. A nil
// version (binary present but version unknown) gets the oldest behavior.
func CapabilitiesFor(v *semver.Version) Capabilities {
	if v == nil {
		return oldestCapabilitySet
	}

	capabilityCacheMutex.Lock()
	defer capabilityCacheMutex.Unlock()

	key := v.String()
	if caps, ok := capabilityCache[key]; ok {
		return caps
	}

	caps := Capabilities{
		SignalFormatJSON:  !v.LessThan(signalJSONSince),
		SignalWorkspaceID: !v.LessThan(workspaceIDSince),
		ScanServer:        !v.LessThan(scanServerSince),
	}
	capabilityCache[key] = caps
	return caps
}
