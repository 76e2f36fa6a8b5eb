package viewserver

import (
	"fmt"
	"time"
)

// PackageNotFoundError means the inspect binary could not be resolved. It is
// fatal per call: the manager never retries on its own, the caller re-invokes
// once the package-availability watcher reports the binary.
type PackageNotFoundError struct{}

func (e *PackageNotFoundError) Error() string {
	return "inspect package not found: install it with `pip install inspect-ai`"
}

// LaunchFailedError means the spawned process errored or exited before
// emitting its readiness sentinel.
type LaunchFailedError struct {
	Profile  string
	ExitCode int
	Output   string
	Err      error
}

func (e *LaunchFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s server failed to launch: %v", e.Profile, e.Err)
	}
	return fmt.Sprintf("%s server exited with code %d before becoming ready: %s", e.Profile, e.ExitCode, e.Output)
}

func (e *LaunchFailedError) Unwrap() error { return e.Err }

// LaunchTimeoutError means the process kept running but never printed its
// readiness sentinel within the configured window.
type LaunchTimeoutError struct {
	Profile string
	Timeout time.Duration
}

func (e *LaunchTimeoutError) Error() string {
	return fmt.Sprintf("%s server not ready after %s", e.Profile, e.Timeout)
}

// HTTPStatusError carries a non-2xx response from the local server.
type HTTPStatusError struct {
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Body)
}
