package project

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"bci/internal/runner"
	"bci/internal/seqstore"
	"bci/internal/transform"
)

// DefaultFloorPct is the ladder floor used for project runs.
const DefaultFloorPct = 70

// RunOptions control RunAll.
type RunOptions struct {
	Runner   runner.Options
	Parallel int  // concurrent sample/site runs (>=1)
	Resample int  // resample each collection to this size first; 0 disables
	Samples  bool // run every sample
	Sites    bool // run every site (needs a site map)
}

// Outcome pairs one collection name with its run result or error.
type Outcome struct {
	Name   string
	Kind   string // "sample" or "site"
	Result runner.Result
	Err    error
}

// RunAll runs the pipeline over the selected samples and sites, at most
// Parallel at a time. Every run gets its own work directory and random
// source. Per-run failures are reported in the Outcome; the returned error is
// only set on cancellation.
func (p *Project) RunAll(ctx context.Context, ro RunOptions) ([]Outcome, error) {
	type job struct {
		name, kind string
		c          *seqstore.Collection
	}
	var jobs []job
	if ro.Samples {
		for _, s := range p.SampleNames() {
			jobs = append(jobs, job{s, "sample", p.samples[s]})
		}
	}
	if ro.Sites {
		for _, s := range p.SiteNames() {
			jobs = append(jobs, job{s, "site", p.sites[s]})
		}
	}
	if ro.Runner.FloorPct == 0 && ro.Runner.Ladder == nil {
		ro.Runner.FloorPct = DefaultFloorPct
	}
	if ro.Parallel < 1 {
		ro.Parallel = 1
	}
	if ro.Parallel > 1 {
		// concurrent bars would interleave on one writer
		ro.Runner.Progress = nil
	}
	log := ro.Runner.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log.WithFields(logrus.Fields{"runs": len(jobs), "parallel": ro.Parallel}).Info("processing project")

	out := make([]Outcome, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ro.Parallel)
	for i, j := range jobs {
		i, j := i, j // per-iteration copies (go 1.21 loop semantics)
		opts := ro.Runner
		if opts.Seed != 0 {
			opts.Seed += int64(i)
		}
		g.Go(func() error {
			res, err := runOne(gctx, j.c, opts, ro.Resample)
			out[i] = Outcome{Name: j.name, Kind: j.kind, Result: res, Err: err}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.WithFields(logrus.Fields{j.kind: j.name}).WithError(err).Error("run failed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, ctx.Err()
}

func runOne(ctx context.Context, c *seqstore.Collection, opts runner.Options, resample int) (runner.Result, error) {
	if c.Len() == 0 {
		return runner.Result{Sample: c.Label, Label: c.Label}, fmt.Errorf("collection %s is empty", c.Label)
	}
	r, err := runner.New(c, opts)
	if err != nil {
		return runner.Result{}, err
	}
	defer r.Close()
	if resample > 0 {
		k, err := transform.NewResample(resample)
		if err != nil {
			return runner.Result{}, err
		}
		if _, err := r.Transform(k); err != nil {
			return runner.Result{}, err
		}
	}
	return r.Execute(ctx)
}
