// Package loader runs compiled templates behind an isolation boundary: a
// child process started from a private sandbox directory. Everything the
// child loads disappears with the process, and the directory is removed
// when the boundary is closed.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/conneroisu/t4go/internal/errors"
	"github.com/conneroisu/t4go/pkg/tt"
)

// responseFile is the name of the child's response inside the sandbox.
const responseFile = "response.msgpack"

// fatalMarkers identify runtime failures that end the child process and
// are surfaced to the caller instead of reported as diagnostics.
var fatalMarkers = []string{
	"fatal error:",
	"runtime: out of memory",
	"goroutine stack exceeds",
	"stack overflow",
}

// IsolationContext is a call-scoped sandbox. Close must be called; it kills
// a running child and removes the sandbox synchronously.
type IsolationContext struct {
	dir  string
	keep bool

	mutex  sync.Mutex
	child  *os.Process
	closed bool
}

// NewIsolationContext creates a sandbox under parent (the system temp dir
// when empty). keep leaves the directory behind on Close.
func NewIsolationContext(parent string, keep bool) (*IsolationContext, error) {
	dir, err := os.MkdirTemp(parent, "t4go-run-")
	if err != nil {
		return nil, errors.FileOperationError("create", "sandbox directory", err)
	}
	return &IsolationContext{dir: dir, keep: keep}, nil
}

// Dir returns the sandbox directory.
func (c *IsolationContext) Dir() string {
	return c.dir
}

// Close kills a live child and removes the sandbox. It is idempotent.
func (c *IsolationContext) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var killErr, removeErr error
	if c.child != nil {
		if err := c.child.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			killErr = errors.NewRuntimeError(errors.CodeChildProcess, "cannot kill template process", err, false)
		}
		c.child = nil
	}
	if !c.keep {
		if err := os.RemoveAll(c.dir); err != nil {
			removeErr = errors.FileOperationError("remove", c.dir, err)
		}
	}
	return errors.CombineErrors(killErr, removeErr)
}

// ChildResult is the raw outcome of one child run.
type ChildResult struct {
	Response *tt.Response
	ExitCode int
	// Stdout is whatever the template printed outside its output buffer.
	Stdout string
	Stderr string
}

// Run starts program inside the sandbox, sends req and waits for the
// response. Cancellation, a killed child and runtime crashes are returned
// as fatal errors.
func (c *IsolationContext) Run(ctx context.Context, program string, req *tt.Request) (*ChildResult, error) {
	input, err := msgpack.Marshal(req)
	if err != nil {
		return nil, errors.NewInternalError(errors.CodeChildProcess, "cannot encode request", err)
	}

	respPath := filepath.Join(c.dir, responseFile)
	_ = os.Remove(respPath)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, program)
	cmd.Dir = c.dir
	cmd.Env = append(os.Environ(), tt.ResponseEnv+"="+respPath)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := c.start(cmd); err != nil {
		return nil, err
	}
	waitErr := cmd.Wait()
	c.release()

	res := &ChildResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctx.Err() != nil {
		return res, errors.NewRuntimeError(errors.CodeChildProcess, "template execution was cancelled", ctx.Err(), true)
	}
	if marker := fatalMarker(res.Stderr); marker != "" {
		return res, errors.NewRuntimeError(errors.CodeChildProcess,
			fmt.Sprintf("template process crashed (%s): %s", marker, firstLines(res.Stderr, 5)), waitErr, true)
	}
	if killedBySignal(cmd.ProcessState) {
		return res, errors.NewRuntimeError(errors.CodeChildProcess,
			fmt.Sprintf("template process was killed: %s", cmd.ProcessState), waitErr, true)
	}

	data, readErr := os.ReadFile(respPath)
	if readErr != nil {
		msg := fmt.Sprintf("template process exited with code %d without a response", res.ExitCode)
		if text := strings.TrimSpace(res.Stderr); text != "" {
			msg += ": " + firstLines(text, 5)
		}
		return res, errors.NewRuntimeError(errors.CodeChildProcess, msg, readErr, true)
	}
	var resp tt.Response
	if err := msgpack.Unmarshal(data, &resp); err != nil {
		return res, errors.NewRuntimeError(errors.CodeChildProcess, "corrupt response from template process", err, true)
	}
	res.Response = &resp
	return res, nil
}

func (c *IsolationContext) start(cmd *exec.Cmd) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.closed {
		return errors.NewRuntimeError(errors.CodeChildProcess, "isolation context is closed", nil, true)
	}
	if err := cmd.Start(); err != nil {
		return errors.NewRuntimeError(errors.CodeLoadFailed, "cannot start template process", err, true)
	}
	c.child = cmd.Process
	return nil
}

func (c *IsolationContext) release() {
	c.mutex.Lock()
	c.child = nil
	c.mutex.Unlock()
}

func fatalMarker(stderr string) string {
	for _, m := range fatalMarkers {
		if strings.Contains(stderr, m) {
			return strings.TrimSuffix(m, ":")
		}
	}
	return ""
}

func killedBySignal(ps *os.ProcessState) bool {
	if ps == nil {
		return false
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok {
		return ws.Signaled()
	}
	return !ps.Exited()
}

func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = append(lines[:n], "...")
	}
	return strings.Join(lines, "\n")
}
