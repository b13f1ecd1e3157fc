// Package command runs external tools and captures their output.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/anthr76/pkgbump/internal/logger"
	"go.trai.ch/zerr"
)

// ErrNotInstalled is returned when the executable is not on PATH.
var ErrNotInstalled = errors.New("executable not found")

// Cmd describes one subprocess invocation.
type Cmd struct {
	Name string
	Args []string
	// Dir is the working directory. Empty means the current one.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
}

// String renders the command line for logs and errors.
func (c Cmd) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Runner executes commands. Run always returns a non-nil Result; when the
// command exits non-zero the error carries stderr and exit_code metadata.
type Runner interface {
	Run(ctx context.Context, c Cmd) (*Result, error)
}

// Exec is the Runner backed by os/exec.
type Exec struct{}

// Run implements Runner.
func (Exec) Run(ctx context.Context, c Cmd) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...) //nolint:gosec // fixed tool names from config
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	logger.DebugKV(ctx, "running command", "command", c.String(), "dir", c.Dir)
	err := cmd.Run()

	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		logger.DebugKV(ctx, "command finished", "command", c.Name, "duration", time.Since(start))
		return res, nil
	}

	res.ExitCode = -1
	if errors.Is(err, exec.ErrNotFound) {
		return res, fmt.Errorf("%w: %s", ErrNotInstalled, c.Name)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}

	return res, Failed(err, c, res)
}

// Failed wraps err with the command line and captured output.
func Failed(err error, c Cmd, res *Result) error {
	wrapped := zerr.Wrap(err, c.Name+" failed")
	wrapped = zerr.With(wrapped, "command", c.String())
	if res != nil {
		wrapped = zerr.With(wrapped, "exit_code", res.ExitCode)
		if s := strings.TrimSpace(string(res.Stderr)); s != "" {
			wrapped = zerr.With(wrapped, "stderr", s)
		}
	}
	return wrapped
}

