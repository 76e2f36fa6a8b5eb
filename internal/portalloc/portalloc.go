// Package portalloc finds available local TCP ports for spawned servers.
package portalloc

import (
	"fmt"
	"net"
)

// MaxProbes is the number of sequential candidate ports tried after the
// preferred one before falling back to an ephemeral port.
const MaxProbes = 32

// Find returns an available TCP port on the loopback interface, preferring
// the requested one. When the preferred port is taken it walks forward up to
// MaxProbes candidates, then asks the OS for an ephemeral port. Each
// candidate is verified bindable by briefly binding and releasing a probe
// listener.
func Find(preferred int) (int, error) {
	if preferred <= 0 || preferred > 65535 {
		return 0, fmt.Errorf("invalid preferred port: %d", preferred)
	}

	for i := 0; i < MaxProbes; i++ {
		candidate := preferred + i
		if candidate > 65535 {
			break
		}
		if probe(candidate) {
			return candidate, nil
		}
	}

	// Let the OS pick any free port.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("no available port near %d: %w", preferred, err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	return port, nil
}

// probe reports whether the port can be bound right now.
func probe(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	l.Close()
	return true
}
