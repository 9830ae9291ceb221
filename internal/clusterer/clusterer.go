// Package clusterer drives the external greedy clustering engine (vsearch or
// a compatible binary) and reads back its membership and not-matched files.
package clusterer

import (
	"context"
	"fmt"
	"strconv"

	"bci/internal/extcmd"
)

// UserFields is the membership column layout requested from the engine.
const UserFields = "query+target+id+gaps+qstrand+qcov"

// Task is one clustering invocation at a single identity threshold.
type Task struct {
	Input      string  // FASTA/FASTQ sequence file
	Threshold  float64 // identity in (0,1]
	UserOut    string  // membership output (tab separated)
	NotMatched string  // seeds that matched nothing, FASTA, one line per sequence
	Threads    int
}

// Engine clusters one input at one threshold.
type Engine interface {
	Cluster(ctx context.Context, t Task) error
}

// Vsearch runs `vsearch -cluster_smallmem`.
type Vsearch struct {
	Binary string // defaults to "vsearch"
}

func (v Vsearch) binary() string {
	if v.Binary == "" {
		return "vsearch"
	}
	return v.Binary
}

// Args builds the engine argv for t: forward strand only, first accepted hit
// wins, no rejects, unwrapped not-matched output and full dynamic programming.
func (Vsearch) Args(t Task) []string {
	threads := t.Threads
	if threads < 1 {
		threads = 1
	}
	return []string{
		"-cluster_smallmem", t.Input,
		"-strand", "plus",
		"-id", strconv.FormatFloat(t.Threshold, 'f', -1, 64),
		"-userout", t.UserOut,
		"-userfields", UserFields,
		"-maxaccepts", "1",
		"-maxrejects", "0",
		"-notmatched", t.NotMatched,
		"-fasta_width", "0",
		"-fulldp",
		"-threads", strconv.Itoa(threads),
		"-usersort",
	}
}

// Cluster runs the engine and checks that the not-matched file was written.
func (v Vsearch) Cluster(ctx context.Context, t Task) error {
	if err := extcmd.Run(ctx, v.binary(), v.Args(t)...); err != nil {
		return fmt.Errorf("cluster at %.2f: %w", t.Threshold, err)
	}
	return checkOutput(v.binary(), t)
}

func checkOutput(tool string, t Task) error {
	if !exists(t.NotMatched) {
		return &extcmd.Error{
			Tool: tool,
			Code: 0,
			Err:  fmt.Errorf("not-matched output %s missing at %.2f", t.NotMatched, t.Threshold),
		}
	}
	return nil
}

// FileStem is the per-threshold path prefix used inside a work directory,
// "<dir>/<sample>-0.970".
func FileStem(dir, sample string, threshold float64) string {
	return fmt.Sprintf("%s/%s-%.3f", dir, sample, threshold)
}

// NewTask fills the output paths for one threshold from FileStem.
func NewTask(dir, sample, input string, threshold float64, threads int) Task {
	stem := FileStem(dir, sample, threshold)
	return Task{
		Input:      input,
		Threshold:  threshold,
		UserOut:    stem + ".utmp",
		NotMatched: stem + ".htmp",
		Threads:    threads,
	}
}
