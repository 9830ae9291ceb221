package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/sirupsen/logrus"
	pb "gopkg.in/cheggaaa/pb.v1"

	"bci/internal/aligner"
	"bci/internal/clusterer"
	"bci/internal/diversity"
	"bci/internal/otu"
	"bci/internal/pipeline"
	"bci/internal/recombine"
	"bci/internal/seqstore"
	"bci/internal/sweep"
)

// Result is the outcome of one Execute.
type Result struct {
	RunID  string
	Sample string
	Label  string
	Seed   int64
	Curve  sweep.Curve

	OTUThreshold float64
	Diversity    *diversity.Result // nil when the step was skipped
	DiversityErr error             // why the step was skipped
	SimulatedPi  *diversity.Result // only with Options.Simulated
	Combined     string            // recombined alignment, inside the work dir
}

// Reliable is false when any clustering or alignment task failed or the
// curve broke monotonicity.
func (res Result) Reliable() bool {
	if !res.Curve.Reliable() {
		return false
	}
	return res.Diversity == nil || len(res.Diversity.Missing) == 0
}

// Execute sweeps the current collection and then runs the diversity study.
// Task failures are reported inside the Result; the returned error is
// reserved for failures that leave no usable curve (bad input, cancellation,
// work directory errors).
func (r *Run) Execute(ctx context.Context) (Result, error) {
	label := r.current.Label
	log := r.log.WithField("label", label)
	res := Result{RunID: r.ID, Sample: r.Sample, Label: label, Seed: r.opts.Seed, OTUThreshold: r.opts.OTUThreshold}

	input := r.dir.Join(label + "." + r.current.Format.Ext())
	if err := seqstore.WriteFile(input, r.current); err != nil {
		return res, err
	}

	bar, done := r.progress(len(r.ladder), "sweep ")
	curve, err := sweep.Run(ctx, sweep.Config{
		Engine:  r.opts.Engine,
		Dir:     r.dir.Path(),
		Workers: r.opts.Workers,
		Threads: r.opts.Threads,
		Log:     log,
		OnDone:  bar,
	}, label, input, r.ladder)
	done()
	if err != nil {
		return res, err
	}
	r.history.Append(curve)
	res.Curve = curve
	log.WithField("bci", curve.DisplaySorted()).Info("sweep complete")

	if r.opts.Simulated {
		sim := diversity.ByCluster(r.current.Records)
		res.SimulatedPi = &sim
	}
	if r.opts.SkipDiversity {
		return res, nil
	}

	div, combined, err := r.diversity(ctx, log, label, input, curve)
	switch {
	case err == nil:
		res.Diversity, res.Combined = div, combined
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return res, err
	default:
		res.DiversityErr = err
		log.WithError(err).Warn("skipping nucleotide diversity")
	}
	return res, nil
}

func (r *Run) diversity(ctx context.Context, log logrus.FieldLogger, label, input string, curve sweep.Curve) (*diversity.Result, string, error) {
	t := r.opts.OTUThreshold
	entry, ok := curve.At(t)
	if !ok {
		task := clusterer.NewTask(r.dir.Path(), label+"-otu", input, t, r.opts.Threads)
		entry = sweep.Entry{Threshold: t, UserOut: task.UserOut, NotMatched: task.NotMatched}
		entry.Err = r.opts.Engine.Cluster(ctx, task)
	}
	if entry.Err != nil {
		return nil, "", fmt.Errorf("clustering at OTU threshold %.2f failed: %w", t, entry.Err)
	}
	m, err := clusterer.LoadMembership(entry.UserOut, entry.NotMatched)
	if err != nil {
		return nil, "", err
	}
	if m.Empty() {
		return nil, "", fmt.Errorf("%w %.2f", ErrEmptyDiversityInput, t)
	}

	if r.opts.PseudoVariableSites > 0 {
		log.WithField("sites", r.opts.PseudoVariableSites).Warn("adding pseudo-variable sites to singletons; π is approximate")
	}
	groups, err := otu.Build(m, r.current, otu.Options{PseudoVariableSites: r.opts.PseudoVariableSites})
	if err != nil {
		return nil, "", err
	}
	tag := strconv.FormatFloat(t, 'f', -1, 64)
	fastaDir := r.dir.Join(label, "OTU-"+tag+"_fastas")
	paths, err := otu.WriteFASTA(fastaDir, groups)
	if err != nil {
		return nil, "", err
	}

	tasks := make([]pipeline.Task, len(paths))
	for i, p := range paths {
		in, out := p, aligner.OutputPath(p)
		tasks[i] = pipeline.Task{ID: groups[i].ID, Run: func(ctx context.Context) error {
			return r.opts.Aligner.Align(ctx, in, out)
		}}
	}
	bar, done := r.progress(len(tasks), "align ")
	results := pipeline.RunAll(ctx, pipeline.Config{Workers: r.opts.Workers, OnDone: bar}, tasks)
	done()
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	failed := map[string]error{}
	var aligned []string
	for _, res := range results {
		if res.Err != nil {
			failed[res.ID] = res.Err
			log.WithField("group", res.ID).WithError(res.Err).Warn("alignment failed")
			continue
		}
		aligned = append(aligned, aligner.OutputPath(paths[res.Index]))
	}

	recs, err := recombine.Files(aligned)
	if err != nil {
		return nil, "", err
	}
	combined := filepath.Join(fastaDir, "combined-aligned-"+tag+".fasta")
	if err := recombine.WriteFile(combined, recs); err != nil {
		return nil, "", err
	}
	div := diversity.ByCluster(recs)
	for id, err := range failed {
		div.Missing[id] = err
	}
	for id, err := range div.Missing {
		if _, ok := failed[id]; !ok {
			log.WithField("group", id).WithError(err).Warn("π not computed")
		}
	}
	log.WithFields(logrus.Fields{"groups": len(groups), "pi": len(div.Pi), "missing": len(div.Missing)}).Info("diversity complete")
	return &div, combined, nil
}

// progress returns a task hook and a finish func. Both are no-ops when
// progress output is disabled.
func (r *Run) progress(n int, prefix string) (func(pipeline.Result), func()) {
	if r.opts.Progress == nil || n == 0 {
		return nil, func() {}
	}
	bar := pb.New(n).Prefix(r.current.Label + " " + prefix)
	bar.Output = r.opts.Progress
	bar.ShowSpeed = false
	bar.Start()
	return func(pipeline.Result) { bar.Increment() }, bar.Finish
}
