// internal/writers/registry.go
package writers

import (
	"fmt"
	"io"
	"sort"

	"bci/internal/runner"
)

// RunWriters maps a summary format to its handler. Handlers register in
// init() blocks.
var RunWriters = map[string]func(w io.Writer, list []runner.Result, header bool) error{}

// RegisterRun adds a handler (idempotent, last wins).
func RegisterRun(format string, fn func(io.Writer, []runner.Result, bool) error) {
	RunWriters[format] = fn
}

// Formats lists the registered formats.
func Formats() []string {
	out := make([]string, 0, len(RunWriters))
	for f := range RunWriters {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// WriteRuns dispatches to the handler registered for format.
func WriteRuns(format string, w io.Writer, list []runner.Result, header bool) error {
	fn, ok := RunWriters[format]
	if !ok {
		return fmt.Errorf("unknown output format %q (no writer registered)", format)
	}
	return fn(w, list, header)
}
