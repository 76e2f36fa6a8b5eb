package event

import "github.com/inspectbridge/inspectbridge/pkg/types"

// ViewServerStartedData is the data for view.server.started events.
type ViewServerStartedData struct {
	Name string `json:"name"`
	Port int    `json:"port"`
	PID  int    `json:"pid"`
}

// ViewServerStoppedData is the data for view.server.stopped events.
type ViewServerStoppedData struct {
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
}

// PackageChangedData is the data for package.changed events. It carries the
// new availability; subscribers compare versions to decide whether running
// servers must be torn down.
type PackageChangedData struct {
	Availability types.Availability `json:"availability"`
}

// LogProducedData is the data for log.produced events.
type LogProducedData struct {
	Location    string `json:"location"`
	WorkspaceID string `json:"workspaceID,omitempty"`
}

// ScanProducedData is the data for scan.produced events.
type ScanProducedData struct {
	Location    string `json:"location"`
	WorkspaceID string `json:"workspaceID,omitempty"`
}

// ConfigReloadedData is the data for config.reloaded events.
type ConfigReloadedData struct {
	Path string `json:"path"`
}
