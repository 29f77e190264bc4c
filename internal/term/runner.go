package term

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
)

const defaultTimeout = 30 * time.Second

// Runner executes terminal commands for one session under a PTY and streams
// output chunks. The chunk boundaries carry no meaning; consumers
// concatenate them in arrival order.
type Runner struct {
	Shell   string
	Timeout time.Duration

	mu  sync.Mutex
	cwd string
}

func NewRunner(shell string, timeout time.Duration) *Runner {
	if shell == "" {
		shell = "/bin/bash"
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Runner{Shell: shell, Timeout: timeout}
}

// Init resolves the working-directory hint and records it for subsequent
// commands. An unusable hint falls back to the home directory, then "/".
func (r *Runner) Init(hint string) string {
	cwd := hint
	if cwd == "" || !isDir(cwd) {
		if home, err := os.UserHomeDir(); err == nil && isDir(home) {
			cwd = home
		} else {
			cwd = "/"
		}
	}
	r.mu.Lock()
	r.cwd = cwd
	r.mu.Unlock()
	return cwd
}

// Cwd returns the resolved working directory, resolving the default if Init
// has not been called yet.
func (r *Runner) Cwd() string {
	r.mu.Lock()
	cwd := r.cwd
	r.mu.Unlock()
	if cwd == "" {
		return r.Init("")
	}
	return cwd
}

// Execute runs one command in the session shell, invoking emit for each
// output chunk as it arrives. The exit code is returned once all output has
// been emitted; err is non-nil only when the command could not run at all
// (start failure, timeout).
func (r *Runner) Execute(ctx context.Context, command string, emit func(chunk []byte)) (exitCode int, err error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.Shell, "-c", command)
	cmd.Dir = r.Cwd()

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return -1, fmt.Errorf("start pty: %w", err)
	}
	defer ptmx.Close()

	buf := make([]byte, 4096)
	for {
		n, readErr := ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			emit(chunk)
		}
		if readErr != nil {
			// The pty master returns an error once the child exits; the
			// exit status comes from Wait below.
			break
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return -1, fmt.Errorf("command timed out after %s", r.Timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, err
	}
	return 0, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
