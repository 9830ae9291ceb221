// internal/app/app.go
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"bci/internal/cli"
	"bci/internal/cliutil"
	"bci/internal/cmdutil"
	"bci/internal/config"
	"bci/internal/output"
	"bci/internal/project"
	"bci/internal/runner"
	"bci/internal/seqstore"
	"bci/internal/transform"
	"bci/internal/writers"
)

// Exit codes.
const (
	ExitOK         = 0
	ExitUsage      = 2
	ExitWrite      = 3
	ExitUnreliable = 4
	ExitCancelled  = 130
)

// session carries what both commands share once flags and config are
// resolved.
type session struct {
	opts     cli.Options
	cfg      config.Config
	log      *logrus.Logger
	progress io.Writer
	stdout   *bufio.Writer
	stderr   io.Writer
}

// flushCode flushes stdout and maps a flush failure onto the exit code.
func (s *session) flushCode(code int) int {
	if err := s.stdout.Flush(); writers.IsBrokenPipe(err) {
		return code
	} else if err != nil {
		_, _ = fmt.Fprintln(s.stderr, err)
		return ExitWrite
	}
	return code
}

func RunContext(parent context.Context, argv []string, stdout, stderr io.Writer) int {
	outw := bufio.NewWriter(stdout)
	defer func() { _ = outw.Flush() }()
	s := &session{stdout: outw, stderr: stderr}

	opts, err := cli.ParseArgs("bci", argv, outw)
	if errors.Is(err, cli.ErrHelp) {
		return s.flushCode(ExitOK)
	}
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return ExitUsage
	}
	s.opts = opts

	if s.cfg, err = config.Load(opts.Config, opts.Overrides); err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return ExitUsage
	}
	s.log = cmdutil.NewLogger(stderr, opts.Quiet, opts.Verbose)
	if !opts.Quiet && !opts.Verbose {
		s.progress = stderr
	}
	s.log.WithField("overrides", opts.OverrideKeys()).Debug("configuration resolved")

	switch opts.Command {
	case cli.CmdProject:
		return s.runProject(parent)
	default:
		return s.runSamples(parent)
	}
}

func Run(argv []string, stdout, stderr io.Writer) int {
	return RunContext(context.Background(), argv, stdout, stderr)
}

func (s *session) runnerOptions(floorPct int) runner.Options {
	o := s.cfg.RunnerOptions(floorPct, s.log)
	o.SkipDiversity = s.opts.SkipDiversity
	o.Simulated = s.opts.Simulated
	o.Progress = s.progress
	return o
}

// runSamples handles `bci run`: every input is loaded before any external
// process starts, then swept (and transformed) in turn.
func (s *session) runSamples(ctx context.Context) int {
	paths, err := cliutil.ExpandPositionals(s.opts.Inputs)
	if err != nil {
		_, _ = fmt.Fprintln(s.stderr, err)
		return ExitUsage
	}
	kind, err := transform.Parse(s.opts.Transform, s.cfg.Fraction, s.cfg.Resample)
	if err != nil {
		_, _ = fmt.Fprintln(s.stderr, err)
		return ExitUsage
	}
	samples := make([]*seqstore.Collection, 0, len(paths))
	for _, p := range paths {
		c, err := seqstore.Load(p, seqstore.LoadOptions{})
		if err != nil {
			_, _ = fmt.Fprintln(s.stderr, err)
			return ExitUsage
		}
		samples = append(samples, c)
	}

	type job struct {
		idx int
		c   *seqstore.Collection
	}
	jobs := make([]job, len(samples))
	for i, c := range samples {
		jobs[i] = job{i, c}
	}
	repeat := 1
	if _, reset := kind.(transform.Reset); !reset {
		repeat = s.opts.Repeat
	}

	stream, finish := s.sink()
	n, err := cmdutil.RunStream(ctx, jobs, func(ctx context.Context, j job) ([]runner.Result, error) {
		opts := s.runnerOptions(s.cfg.MinThreshold)
		if opts.Seed != 0 {
			opts.Seed += int64(j.idx)
		}
		r, err := runner.New(j.c, opts)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		var out []runner.Result
		for i := 0; i < repeat; i++ {
			if _, err := r.Transform(kind); err != nil {
				return out, err
			}
			res, err := r.Execute(ctx)
			if err != nil {
				return out, err
			}
			out = append(out, res)
		}
		return out, nil
	}, stream)
	list, werr := finish()
	return s.finish(ctx, list, n, err, werr, 0)
}

// runProject handles `bci project`.
func (s *session) runProject(ctx context.Context) int {
	seed := s.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	p, err := project.Load(s.opts.ASVTable, s.opts.FASTA, project.Options{
		SiteMap:        s.opts.SiteMap,
		DropDuplicates: !s.opts.KeepDuplicates,
		SubsetSamples:  s.opts.Subset,
		Rand:           rand.New(rand.NewSource(seed)),
		Log:            s.log,
	})
	if err != nil {
		_, _ = fmt.Fprintln(s.stderr, err)
		return ExitUsage
	}
	if _, _, err := p.WriteFASTAs(s.cfg.Outdir); err != nil {
		_, _ = fmt.Fprintln(s.stderr, err)
		return ExitWrite
	}

	outcomes, err := p.RunAll(ctx, project.RunOptions{
		Runner:   s.runnerOptions(s.cfg.ProjectMinThreshold),
		Parallel: s.cfg.ParallelRuns,
		Resample: s.cfg.Resample,
		Samples:  s.opts.Samples,
		Sites:    s.opts.Sites && p.Sites != nil,
	})
	stream, finish := s.sink()
	failed := 0
	sent := 0
	var werr error
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			continue
		}
		if werr = stream(o.Result); werr != nil {
			break
		}
		sent++
	}
	list, ferr := finish()
	if werr == nil {
		werr = ferr
	}
	return s.finish(ctx, list, sent, err, werr, failed)
}

// sink returns a per-result send func and a finish func yielding every
// result sent. jsonl is streamed as results arrive; text and json are
// written by finish.
func (s *session) sink() (func(runner.Result) error, func() ([]runner.Result, error)) {
	var list []runner.Result
	if s.cfg.Output != "jsonl" {
		return func(r runner.Result) error {
				list = append(list, r)
				return nil
			}, func() ([]runner.Result, error) {
				return list, writers.WriteRuns(s.cfg.Output, s.stdout, list, s.opts.Header)
			}
	}
	in, done := writers.StartRunJSONLWriter(s.stdout, 0)
	var encErr error
	stopped := false
	return func(r runner.Result) error {
			list = append(list, r)
			if stopped {
				return nil
			}
			select {
			case in <- r:
			case encErr = <-done:
				// encoder gave up; keep collecting for the exports
				stopped = true
			}
			return nil
		}, func() ([]runner.Result, error) {
			close(in)
			if stopped {
				return list, encErr
			}
			return list, <-done
		}
}

// finish maps the batch outcome onto an exit code and writes the export
// files for every completed run.
func (s *session) finish(ctx context.Context, list []runner.Result, n int, runErr, writeErr error, failed int) int {
	if ctx.Err() != nil {
		_, _ = fmt.Fprintln(s.stderr, "cancelled")
		return ExitCancelled
	}
	if writeErr != nil && !writers.IsBrokenPipe(writeErr) {
		_, _ = fmt.Fprintln(s.stderr, writeErr)
		return ExitWrite
	}
	if len(list) > 0 {
		paths, err := output.Exports(s.cfg.Outdir, list)
		if err != nil {
			_, _ = fmt.Fprintln(s.stderr, err)
			return ExitWrite
		}
		s.log.WithFields(logrus.Fields{"files": len(paths), "outdir": s.cfg.Outdir}).Info("exports written")
	}
	code := s.flushCode(ExitOK)
	if code != ExitOK {
		return code
	}
	if runErr != nil {
		_, _ = fmt.Fprintln(s.stderr, runErr)
		return ExitUsage
	}

	unreliable := failed
	for _, r := range list {
		if !r.Reliable() {
			unreliable++
		}
	}
	s.log.WithFields(logrus.Fields{"runs": n, "unreliable": unreliable}).Debug("done")
	if unreliable > 0 {
		if s.opts.Strict {
			_, _ = fmt.Fprintf(s.stderr, "%d unreliable result(s)\n", unreliable)
			return ExitUnreliable
		}
		s.log.WithField("count", unreliable).Warn("some results are unreliable; see missing/anomalies")
	}
	return ExitOK
}
