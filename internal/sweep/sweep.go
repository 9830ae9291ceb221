package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"bci/internal/clusterer"
	"bci/internal/pipeline"
)

// Config controls one sweep.
type Config struct {
	Engine  clusterer.Engine
	Dir     string // per-run work directory receiving the engine outputs
	Workers int    // concurrent engine processes
	Threads int    // threads per engine process

	// LinesPerRecord of the not-matched file; 2 for unwrapped FASTA.
	LinesPerRecord int

	Log    logrus.FieldLogger
	OnDone func(pipeline.Result) // progress hook
}

// Run clusters input once per ladder threshold and returns the curve labelled
// label. Failed thresholds are kept as entries carrying their error; Run
// itself only fails on an invalid ladder or configuration.
func Run(ctx context.Context, cfg Config, label, input string, ladder Ladder) (Curve, error) {
	if err := ladder.Validate(); err != nil {
		return Curve{}, err
	}
	if cfg.Engine == nil {
		return Curve{}, fmt.Errorf("sweep: no clustering engine")
	}
	if cfg.LinesPerRecord < 1 {
		cfg.LinesPerRecord = 2
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	entries := make([]Entry, len(ladder))
	tasks := make([]pipeline.Task, len(ladder))
	for i, t := range ladder {
		ct := clusterer.NewTask(cfg.Dir, label, input, t, cfg.Threads)
		entries[i] = Entry{Threshold: t, UserOut: ct.UserOut, NotMatched: ct.NotMatched}
		i := i
		tasks[i] = pipeline.Task{
			ID: fmt.Sprintf("%.2f", t),
			Run: func(ctx context.Context) error {
				if err := cfg.Engine.Cluster(ctx, ct); err != nil {
					return err
				}
				n, err := clusterer.CountSeeds(ct.NotMatched, cfg.LinesPerRecord)
				if err != nil {
					return err
				}
				// each task owns exactly one slot
				entries[i].Clusters = n
				return nil
			},
		}
	}

	start := time.Now()
	results := pipeline.RunAll(ctx, pipeline.Config{Workers: cfg.Workers, OnDone: cfg.OnDone}, tasks)
	for _, r := range results {
		if r.Err != nil {
			entries[r.Index].Err = r.Err
			entries[r.Index].Clusters = 0
			log.WithFields(logrus.Fields{"label": label, "threshold": r.ID}).WithError(r.Err).Warn("clustering task failed")
		}
	}

	c := Curve{Label: label, Entries: entries}
	for _, a := range c.Anomalies() {
		log.WithFields(logrus.Fields{
			"label":     label,
			"threshold": fmt.Sprintf("%.2f", a.Threshold),
			"clusters":  a.Clusters,
			"previous":  a.PrevClusters,
		}).Warn("cluster count increased as threshold relaxed")
	}
	log.WithFields(logrus.Fields{
		"label":      label,
		"thresholds": len(ladder),
		"failed":     len(c.Missing()),
		"elapsed":    time.Since(start).Round(time.Millisecond),
	}).Debug("sweep finished")
	if err := ctx.Err(); err != nil {
		return c, err
	}
	return c, nil
}
