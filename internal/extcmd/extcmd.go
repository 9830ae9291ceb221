// Package extcmd runs the external sequence tools (clustering engine and
// aligner) and turns their failures into typed errors.
package extcmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrExternalTask matches every failed tool invocation.
var ErrExternalTask = errors.New("external task failed")

// stderr is truncated to this many bytes in error messages.
const tailBytes = 2048

// Error describes one failed invocation.
type Error struct {
	Tool   string
	Args   []string
	Code   int // -1 when the process never ran or was killed
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Tool, e.Code)
	if e.Err != nil && e.Code < 0 {
		msg = fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrExternalTask) match any *Error.
func (e *Error) Is(target error) bool { return target == ErrExternalTask }

// Run executes tool with args, capturing stderr. The process is killed when
// ctx is cancelled.
func Run(ctx context.Context, tool string, args ...string) error {
	cmd := exec.CommandContext(ctx, tool, args...)
	stderr := new(bytes.Buffer)
	cmd.Stderr = stderr
	err := cmd.Run()
	if err == nil {
		return nil
	}
	e := &Error{Tool: tool, Args: args, Code: -1, Stderr: tail(stderr.Bytes()), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		e.Code = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		e.Err = ctxErr
		e.Code = -1
	}
	return e
}

func tail(b []byte) string {
	if len(b) > tailBytes {
		b = b[len(b)-tailBytes:]
	}
	return string(b)
}
