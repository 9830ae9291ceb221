// internal/cli/options.go
package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/alecthomas/kingpin/v2"

	"bci/internal/version"
)

// Commands.
const (
	CmdRun     = "run"
	CmdProject = "project"
)

// ErrHelp reports that usage or version text was printed and nothing else
// should run.
var ErrHelp = errors.New("help requested")

// Options holds all CLI flags and arguments. Settings that also live in the
// config file are not stored here; explicitly set ones land in Overrides
// keyed like the config file.
type Options struct {
	Command string

	Config        string
	Quiet         bool
	Verbose       bool
	Header        bool // true unless --no-header
	Strict        bool
	SkipDiversity bool
	Overrides     map[string]any

	// run
	Inputs    []string
	Transform string
	Repeat    int
	Simulated bool

	// project
	ASVTable       string
	FASTA          string
	SiteMap        string
	KeepDuplicates bool
	Subset         int
	Samples        bool
	Sites          bool
}

// OverrideKeys lists the explicitly set config keys, sorted.
func (o Options) OverrideKeys() []string {
	keys := make([]string, 0, len(o.Overrides))
	for k := range o.Overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type flagger interface {
	Flag(name, help string) *kingpin.FlagClause
}

// overrides remembers which config-backed flags the user actually gave.
type overrides struct {
	set map[string]*bool
	get map[string]func() any
}

func (s *overrides) add(key string, set *bool, get func() any) {
	s.set[key] = set
	s.get[key] = get
}

func (s *overrides) collect() map[string]any {
	out := map[string]any{}
	for k, set := range s.set {
		if *set {
			out[k] = s.get[k]()
		}
	}
	return out
}

func (s *overrides) intFlag(f flagger, name, key, help string) *kingpin.FlagClause {
	var v int
	var set bool
	c := f.Flag(name, help).IsSetByUser(&set)
	c.IntVar(&v)
	s.add(key, &set, func() any { return v })
	return c
}

func (s *overrides) int64Flag(f flagger, name, key, help string) *kingpin.FlagClause {
	var v int64
	var set bool
	c := f.Flag(name, help).IsSetByUser(&set)
	c.Int64Var(&v)
	s.add(key, &set, func() any { return v })
	return c
}

func (s *overrides) floatFlag(f flagger, name, key, help string) *kingpin.FlagClause {
	var v float64
	var set bool
	c := f.Flag(name, help).IsSetByUser(&set)
	c.Float64Var(&v)
	s.add(key, &set, func() any { return v })
	return c
}

func (s *overrides) stringFlag(f flagger, name, key, help string) *kingpin.FlagClause {
	var v string
	var set bool
	c := f.Flag(name, help).IsSetByUser(&set)
	c.StringVar(&v)
	s.add(key, &set, func() any { return v })
	return c
}

func (s *overrides) boolFlag(f flagger, name, key, help string) *kingpin.FlagClause {
	var v bool
	var set bool
	c := f.Flag(name, help).IsSetByUser(&set)
	c.BoolVar(&v)
	s.add(key, &set, func() any { return v })
	return c
}

// ParseArgs registers all commands and flags on a fresh kingpin application
// and parses argv. Usage, version and parse errors are written to usage.
func ParseArgs(name string, argv []string, usage io.Writer) (Options, error) {
	opt := Options{}
	ov := &overrides{set: map[string]*bool{}, get: map[string]func() any{}}

	app := kingpin.New(name, "Biodiversity Change Index: clustering-threshold curves and per-OTU nucleotide diversity.")
	app.Version(fmt.Sprintf("%s version %s", name, version.Version))
	app.HelpFlag.Short('h')
	app.UsageWriter(usage)
	app.ErrorWriter(usage)
	terminated := false
	app.Terminate(func(int) { terminated = true })

	// Global
	app.Flag("config", "config file (yaml, toml or json)").PlaceHolder("FILE").StringVar(&opt.Config)
	app.Flag("quiet", "errors only on stderr, no progress bars").Short('q').BoolVar(&opt.Quiet)
	app.Flag("verbose", "debug logging").BoolVar(&opt.Verbose)
	app.Flag("header", "print the TSV header line (text output)").Default("true").BoolVar(&opt.Header)
	app.Flag("strict", "exit 4 when any result is unreliable").BoolVar(&opt.Strict)
	app.Flag("skip-diversity", "only compute the clustering curve").BoolVar(&opt.SkipDiversity)
	ov.stringFlag(app, "output", "output", "stdout summary: text | json | jsonl [text]").Short('o')
	ov.stringFlag(app, "outdir", "outdir", "directory for .bci/.pis exports [bci_results]")
	ov.intFlag(app, "workers", "workers", "concurrent external processes [NumCPU]").Short('j')
	ov.intFlag(app, "threads", "threads", "threads per clustering process [4]").Short('t')
	ov.intFlag(app, "align-threads", "align_threads", "threads per alignment process [2]")
	ov.intFlag(app, "otu-threshold", "otu_threshold", "identity percent used for the diversity study [97]")
	ov.intFlag(app, "pseudo-variable-sites", "pseudo_variable_sites", "append a variant copy of every singleton with N altered sites [0]")
	ov.int64Flag(app, "seed", "seed", "random seed (0 = from clock) [0]")
	ov.stringFlag(app, "vsearch", "vsearch", "clustering engine binary [vsearch]")
	ov.stringFlag(app, "muscle", "muscle", "aligner binary [muscle]")
	ov.stringFlag(app, "workdir-root", "workdir_root", "parent of per-run work directories [.]")
	ov.boolFlag(app, "keep-workdir", "keep_workdir", "keep per-run work directories")

	// run
	run := app.Command(CmdRun, "Compute the BCI of one or more samples.")
	run.Arg("inputs", "FASTA/FASTQ/PHYLIP sample files (globs allowed)").Required().StringsVar(&opt.Inputs)
	ov.intFlag(run, "min-threshold", "min_threshold", "exclusive floor of the threshold ladder in percent [80]").Short('m')
	run.Flag("transform", "community transformation: reset | disturbance | invasion | resample").Default("reset").StringVar(&opt.Transform)
	ov.floatFlag(run, "fraction", "fraction", "fraction for disturbance/invasion [0.5]").Short('f')
	ov.intFlag(run, "count", "resample", "record count for resample [0]").Short('n')
	run.Flag("repeat", "repeat the transformation N times with fresh draws").Default("1").IntVar(&opt.Repeat)
	run.Flag("simulated", "inputs are simulated communities: also report π per known species").BoolVar(&opt.Simulated)

	// project
	proj := app.Command(CmdProject, "Run every sample and site of an ASV study.")
	proj.Flag("asv-table", "ASV presence table (first column ids, one column per sample)").Required().StringVar(&opt.ASVTable)
	proj.Flag("fasta", "ASV sequences").Required().StringVar(&opt.FASTA)
	proj.Flag("sitemap", "optional sample,site map").StringVar(&opt.SiteMap)
	proj.Flag("keep-duplicates", "keep repeated sequences within a site").BoolVar(&opt.KeepDuplicates)
	proj.Flag("subset", "draw N samples per site (0 = all)").Default("0").IntVar(&opt.Subset)
	proj.Flag("samples", "run every sample").Default("true").BoolVar(&opt.Samples)
	proj.Flag("sites", "run every site (needs --sitemap)").Default("true").BoolVar(&opt.Sites)
	ov.intFlag(proj, "min-threshold", "project_min_threshold", "exclusive floor of the threshold ladder in percent [70]").Short('m')
	ov.intFlag(proj, "resample", "resample", "resample every collection to N records first (0 = off) [0]")
	ov.intFlag(proj, "parallel", "parallel_runs", "concurrent sample/site runs [1]").Short('p')

	cmd, err := app.Parse(argv)
	if terminated {
		return opt, ErrHelp
	}
	if err != nil {
		return opt, err
	}
	opt.Command = cmd
	opt.Overrides = ov.collect()

	// Validation
	switch cmd {
	case CmdRun:
		if opt.Repeat < 1 {
			return opt, errors.New("--repeat must be ≥ 1")
		}
	case CmdProject:
		if opt.Subset < 0 {
			return opt, errors.New("--subset must be ≥ 0")
		}
		if !opt.Samples && (!opt.Sites || opt.SiteMap == "") {
			return opt, errors.New("nothing to run: --no-samples needs --sites and --sitemap")
		}
	}
	return opt, nil
}
