// Package aligner wraps the external multiple sequence aligner.
package aligner

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"bci/internal/extcmd"
)

// Aligner aligns the FASTA file in and writes the alignment to out.
type Aligner interface {
	Align(ctx context.Context, in, out string) error
}

// Muscle runs muscle v5 (`-align in -output out`).
type Muscle struct {
	Binary  string // defaults to "muscle"
	Threads int
}

// Args builds the muscle argv.
func (m Muscle) Args(in, out string) []string {
	threads := m.Threads
	if threads < 1 {
		threads = 1
	}
	return []string{"-align", in, "-output", out, "-quiet", "-threads", strconv.Itoa(threads)}
}

func (m Muscle) Align(ctx context.Context, in, out string) error {
	bin := m.Binary
	if bin == "" {
		bin = "muscle"
	}
	if err := extcmd.Run(ctx, bin, m.Args(in, out)...); err != nil {
		return fmt.Errorf("align %s: %w", in, err)
	}
	if _, err := os.Stat(out); err != nil {
		return &extcmd.Error{Tool: bin, Args: m.Args(in, out), Err: fmt.Errorf("alignment %s missing", out)}
	}
	return nil
}

// OutputPath is where the alignment of in is written.
func OutputPath(in string) string { return in + ".aln" }
