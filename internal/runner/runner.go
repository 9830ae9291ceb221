// Package runner ties one sample's pipeline together: optional community
// transformation, the threshold sweep and the per-OTU diversity study. A Run
// owns its work directory, its random source and its curve history.
package runner

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bci/internal/aligner"
	"bci/internal/clusterer"
	"bci/internal/seqstore"
	"bci/internal/sweep"
	"bci/internal/transform"
	"bci/internal/workdir"
)

// ErrEmptyDiversityInput means the membership at the OTU threshold has no
// seeds. The diversity step is skipped; the curve is still reported.
var ErrEmptyDiversityInput = errors.New("no clusters at OTU threshold")

// Options configure a Run. Zero values fall back to the defaults below.
type Options struct {
	Engine  clusterer.Engine
	Aligner aligner.Aligner

	FloorPct int          // ladder floor in percent, exclusive (80)
	Ladder   sweep.Ladder // overrides FloorPct when set
	Workers  int          // concurrent external processes (NumCPU)
	Threads  int          // threads per clustering process (4)

	OTUThreshold        float64 // diversity-study threshold (0.97)
	PseudoVariableSites int
	SkipDiversity       bool
	Simulated           bool // also compute π over the known species prefixes

	Seed     int64 // 0 seeds from the clock
	WorkRoot string
	Keep     bool

	Log      logrus.FieldLogger
	Progress io.Writer // progress bars; nil disables them
}

func (o *Options) defaults() {
	if o.Engine == nil {
		o.Engine = clusterer.Vsearch{}
	}
	if o.Aligner == nil {
		o.Aligner = aligner.Muscle{Threads: 2}
	}
	if o.FloorPct == 0 {
		o.FloorPct = 80
	}
	if o.Workers < 1 {
		o.Workers = runtime.NumCPU()
	}
	if o.Threads < 1 {
		o.Threads = 4
	}
	if o.OTUThreshold == 0 {
		o.OTUThreshold = 0.97
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
}

// Run is one sample's pipeline.
type Run struct {
	ID     string
	Sample string

	opts    Options
	ladder  sweep.Ladder
	source  *seqstore.Collection
	current *seqstore.Collection
	dir     *workdir.Dir
	rng     *rand.Rand
	history *sweep.History
	log     logrus.FieldLogger
}

// Open loads the sample at path and prepares a Run for it.
func Open(path string, opts Options) (*Run, error) {
	c, err := seqstore.Load(path, seqstore.LoadOptions{})
	if err != nil {
		return nil, err
	}
	return New(c, opts)
}

// New prepares a Run over an already loaded collection. The collection label
// is used as the sample name.
func New(c *seqstore.Collection, opts Options) (*Run, error) {
	opts.defaults()
	ladder := opts.Ladder
	if ladder == nil {
		var err error
		if ladder, err = sweep.NewLadder(100, opts.FloorPct, 1); err != nil {
			return nil, err
		}
	}
	if err := ladder.Validate(); err != nil {
		return nil, err
	}
	if opts.OTUThreshold <= 0 || opts.OTUThreshold > 1 {
		return nil, fmt.Errorf("OTU threshold %v outside (0,1]", opts.OTUThreshold)
	}
	dir, err := workdir.Create(opts.WorkRoot, c.Label, opts.Keep)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	return &Run{
		ID:      id,
		Sample:  c.Label,
		opts:    opts,
		ladder:  ladder,
		source:  c,
		current: c,
		dir:     dir,
		rng:     rand.New(rand.NewSource(opts.Seed)),
		history: sweep.NewHistory(),
		log:     opts.Log.WithFields(logrus.Fields{"sample": c.Label, "run": id[:8]}),
	}, nil
}

// Seed is the seed of the run's random source.
func (r *Run) Seed() int64 { return r.opts.Seed }

// Ladder is the threshold ladder swept by Execute.
func (r *Run) Ladder() sweep.Ladder { return r.ladder }

// History holds every curve computed by this run.
func (r *Run) History() *sweep.History { return r.history }

// WorkDir is the run's scratch directory.
func (r *Run) WorkDir() string { return r.dir.Path() }

// Current is the collection the next Execute will process.
func (r *Run) Current() *seqstore.Collection { return r.current }

// Transform replaces the current collection with k applied to the loaded
// sample. Transformations never stack.
func (r *Run) Transform(k transform.Kind) (*seqstore.Collection, error) {
	out, err := transform.Apply(r.source, k, r.rng)
	if err != nil {
		return nil, err
	}
	if out.WithReplacement {
		r.log.WithField("label", out.Collection.Label).Warn("resample count exceeds sample size, drawing with replacement")
	}
	r.current = out.Collection
	r.log.WithFields(logrus.Fields{"label": out.Collection.Label, "records": out.Collection.Len()}).Debug("transformed")
	return r.current, nil
}

// Close removes the work directory.
func (r *Run) Close() error { return r.dir.Close() }
