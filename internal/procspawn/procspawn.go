// Package procspawn launches and tracks child processes for the bridge.
//
// The Spawner interface exists so the view-server lifecycle manager can be
// exercised in tests with a scripted stub instead of real processes.
package procspawn

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Spec describes one child process to launch.
type Spec struct {
	// Path is the resolved executable path.
	Path string
	// Args is the argument list, excluding the executable itself.
	Args []string
	// Dir is the working directory. Empty means inherit.
	Dir string
	// Env holds extra environment variables merged over the parent's.
	Env map[string]string
}

// OutputFunc receives combined stdout+stderr chunks as they arrive.
type OutputFunc func(chunk []byte)

// Handle tracks one running child process.
type Handle interface {
	// PID returns the operating system process id.
	PID() int
	// ExitCode returns the exit code and whether the process has exited.
	ExitCode() (int, bool)
	// Kill terminates the process. Safe to call after exit.
	Kill() error
	// Done is closed once the process has exited and its output drained.
	Done() <-chan struct{}
}

// Spawner starts child processes.
type Spawner interface {
	Start(ctx context.Context, spec Spec, onOutput OutputFunc) (Handle, error)
}

// ExecSpawner is the os/exec backed Spawner.
type ExecSpawner struct{}

// New returns the real process spawner.
func New() *ExecSpawner {
	return &ExecSpawner{}
}

// Start launches the process described by spec. The returned handle is valid
// immediately; output callbacks fire from reader goroutines until both pipes
// close.
func (s *ExecSpawner) Start(ctx context.Context, spec Spec, onOutput OutputFunc) (Handle, error) {
	if spec.Path == "" {
		return nil, fmt.Errorf("empty executable path")
	}

	// The child outlives ctx: a launch triggered by an HTTP request must not
	// die when that request ends. Cancellation is the caller killing the
	// handle.
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir

	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", spec.Path, err)
	}

	h := &execHandle{
		cmd:  cmd,
		done: make(chan struct{}),
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go h.readPipe(stdout, onOutput, &readers)
	go h.readPipe(stderr, onOutput, &readers)

	go func() {
		readers.Wait()
		err := cmd.Wait()

		h.mu.Lock()
		h.exited = true
		if err == nil {
			h.exitCode = 0
		} else if exitErr, ok := err.(*exec.ExitError); ok {
			h.exitCode = exitErr.ExitCode()
		} else {
			h.exitCode = -1
		}
		h.mu.Unlock()

		close(h.done)
	}()

	return h, nil
}

// execHandle implements Handle over *exec.Cmd.
type execHandle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu       sync.Mutex
	exited   bool
	exitCode int
}

func (h *execHandle) readPipe(r io.Reader, onOutput OutputFunc, wg *sync.WaitGroup) {
	defer wg.Done()

	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 && onOutput != nil {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			onOutput(chunk)
		}
		if err != nil {
			return
		}
	}
}

func (h *execHandle) PID() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *execHandle) ExitCode() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode, h.exited
}

func (h *execHandle) Kill() error {
	h.mu.Lock()
	exited := h.exited
	h.mu.Unlock()

	if exited || h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}

func (h *execHandle) Done() <-chan struct{} {
	return h.done
}
