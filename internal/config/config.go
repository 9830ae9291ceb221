// Package config layers the tool settings: built-in defaults, an optional
// config file, BCI_* environment variables and explicit command-line flags,
// in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"bci/internal/aligner"
	"bci/internal/clusterer"
	"bci/internal/runner"
)

// EnvPrefix is prepended to every key for environment lookups
// (BCI_MIN_THRESHOLD, BCI_VSEARCH, ...).
const EnvPrefix = "BCI"

// Config holds the resolved settings.
type Config struct {
	MinThreshold        int     `mapstructure:"min_threshold"`
	Workers             int     `mapstructure:"workers"`
	Threads             int     `mapstructure:"threads"`
	OTUThreshold        int     `mapstructure:"otu_threshold"`
	PseudoVariableSites int     `mapstructure:"pseudo_variable_sites"`
	Resample            int     `mapstructure:"resample"`
	Fraction            float64 `mapstructure:"fraction"`
	Seed                int64   `mapstructure:"seed"`
	Vsearch             string  `mapstructure:"vsearch"`
	Muscle              string  `mapstructure:"muscle"`
	AlignThreads        int     `mapstructure:"align_threads"`
	WorkdirRoot         string  `mapstructure:"workdir_root"`
	KeepWorkdir         bool    `mapstructure:"keep_workdir"`
	Outdir              string  `mapstructure:"outdir"`
	Output              string  `mapstructure:"output"`
	ProjectMinThreshold int     `mapstructure:"project_min_threshold"`
	ParallelRuns        int     `mapstructure:"parallel_runs"`
}

// Defaults returns the built-in values for every key.
func Defaults() map[string]any {
	return map[string]any{
		"min_threshold":         80,
		"workers":               runtime.NumCPU(),
		"threads":               4,
		"otu_threshold":         97,
		"pseudo_variable_sites": 0,
		"resample":              0,
		"fraction":              0.5,
		"seed":                  0,
		"vsearch":               "vsearch",
		"muscle":                "muscle",
		"align_threads":         2,
		"workdir_root":          ".",
		"keep_workdir":          false,
		"outdir":                "bci_results",
		"output":                "text",
		"project_min_threshold": 70,
		"parallel_runs":         1,
	}
}

// Load resolves the settings. file may be empty; overrides hold the values
// of flags the user set explicitly, keyed like the config file.
func Load(file string, overrides map[string]any) (Config, error) {
	v := viper.New()
	for k, val := range Defaults() {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}
	for k, val := range overrides {
		v.Set(k, val)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return c, c.Validate()
}

// Validate checks ranges. Percent thresholds are integers in (0,100].
func (c Config) Validate() error {
	var errs []error
	pct := func(name string, p int) {
		if p <= 0 || p > 100 {
			errs = append(errs, fmt.Errorf("%s must be in 1..100, got %d", name, p))
		}
	}
	pct("min_threshold", c.MinThreshold)
	pct("otu_threshold", c.OTUThreshold)
	pct("project_min_threshold", c.ProjectMinThreshold)
	if c.MinThreshold == 100 {
		errs = append(errs, errors.New("min_threshold must be below 100"))
	}
	if c.ProjectMinThreshold == 100 {
		errs = append(errs, errors.New("project_min_threshold must be below 100"))
	}
	if c.Workers < 1 || c.Threads < 1 || c.AlignThreads < 1 || c.ParallelRuns < 1 {
		errs = append(errs, errors.New("workers, threads, align_threads and parallel_runs must be >= 1"))
	}
	if c.PseudoVariableSites < 0 {
		errs = append(errs, errors.New("pseudo_variable_sites must be >= 0"))
	}
	if c.Resample < 0 {
		errs = append(errs, errors.New("resample must be >= 0"))
	}
	if c.Fraction < 0 || c.Fraction > 1 {
		errs = append(errs, fmt.Errorf("fraction must be in [0,1], got %v", c.Fraction))
	}
	switch c.Output {
	case "text", "json", "jsonl":
	default:
		errs = append(errs, fmt.Errorf("invalid output %q", c.Output))
	}
	return errors.Join(errs...)
}

// RunnerOptions maps the settings onto runner options. floorPct selects
// between MinThreshold and ProjectMinThreshold.
func (c Config) RunnerOptions(floorPct int, log logrus.FieldLogger) runner.Options {
	return runner.Options{
		Engine:              clusterer.Vsearch{Binary: c.Vsearch},
		Aligner:             aligner.Muscle{Binary: c.Muscle, Threads: c.AlignThreads},
		FloorPct:            floorPct,
		Workers:             c.Workers,
		Threads:             c.Threads,
		OTUThreshold:        float64(c.OTUThreshold) / 100,
		PseudoVariableSites: c.PseudoVariableSites,
		Seed:                c.Seed,
		WorkRoot:            c.WorkdirRoot,
		Keep:                c.KeepWorkdir,
		Log:                 log,
	}
}
