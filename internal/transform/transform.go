// Package transform derives new communities from a loaded sample by
// simulating disturbance, invasion or resampling.
package transform

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"bci/internal/seqstore"
)

// ErrInvalidParameter marks an out-of-range fraction or count.
var ErrInvalidParameter = errors.New("invalid transformation parameter")

// Kind is one of Reset, Disturbance, Invasion or Resample.
type Kind interface {
	kind()
	// Suffix is appended to the sample name to build the output label.
	Suffix() string
}

// Reset restores the untouched sample.
type Reset struct{}

// Disturbance removes each record independently with probability Fraction.
type Disturbance struct{ Fraction float64 }

// Invasion replaces each record after the first with a copy of the first
// (the invader) with probability Fraction.
type Invasion struct{ Fraction float64 }

// Resample draws Count records. Draws are with replacement when Count exceeds
// the collection size.
type Resample struct{ Count int }

func (Reset) kind()       {}
func (Disturbance) kind() {}
func (Invasion) kind()    {}
func (Resample) kind()    {}

func (Reset) Suffix() string         { return "" }
func (d Disturbance) Suffix() string { return "-dist-" + formatFraction(d.Fraction) }
func (v Invasion) Suffix() string    { return "-inva-" + formatFraction(v.Fraction) }
func (r Resample) Suffix() string    { return "-resa-" + strconv.Itoa(r.Count) }

func formatFraction(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func checkFraction(f float64) error {
	if math.IsNaN(f) || f < 0 || f > 1 {
		return fmt.Errorf("%w: fraction %v not in [0,1]", ErrInvalidParameter, f)
	}
	return nil
}

// NewDisturbance validates f.
func NewDisturbance(f float64) (Disturbance, error) {
	if err := checkFraction(f); err != nil {
		return Disturbance{}, err
	}
	return Disturbance{Fraction: f}, nil
}

// NewInvasion validates f.
func NewInvasion(f float64) (Invasion, error) {
	if err := checkFraction(f); err != nil {
		return Invasion{}, err
	}
	return Invasion{Fraction: f}, nil
}

// NewResample validates n.
func NewResample(n int) (Resample, error) {
	if n <= 0 {
		return Resample{}, fmt.Errorf("%w: count %d must be positive", ErrInvalidParameter, n)
	}
	return Resample{Count: n}, nil
}

// Parse maps a command-line name onto a Kind. Names may be abbreviated to
// their first four letters ("dist", "inva", "resa").
func Parse(name string, fraction float64, count int) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch {
	case n == "" || n == "reset" || n == "raw":
		return Reset{}, nil
	case strings.HasPrefix("disturbance", n) && len(n) >= 4:
		return NewDisturbance(fraction)
	case strings.HasPrefix("invasion", n) && len(n) >= 4:
		return NewInvasion(fraction)
	case strings.HasPrefix("resample", n) && len(n) >= 4:
		return NewResample(count)
	}
	return nil, fmt.Errorf("%w: unknown transformation %q (want reset, disturbance, invasion, resample)", ErrInvalidParameter, name)
}

// Outcome is the result of Apply.
type Outcome struct {
	Collection *seqstore.Collection
	// WithReplacement is set when a resample had to draw with replacement.
	WithReplacement bool
}

// Apply builds a new collection from c. The input is never modified. The
// sample name is taken from c.Label.
func Apply(c *seqstore.Collection, k Kind, rng *rand.Rand) (Outcome, error) {
	if rng == nil {
		return Outcome{}, errors.New("transform: nil random source")
	}
	label := c.Label + k.Suffix()
	switch v := k.(type) {
	case Reset:
		return Outcome{Collection: c.Clone(label)}, nil

	case Disturbance:
		if err := checkFraction(v.Fraction); err != nil {
			return Outcome{}, err
		}
		out := c.Derive(label, c.Len())
		for _, r := range c.Records {
			if rng.Float64() >= v.Fraction {
				out.Records = append(out.Records, r)
			}
		}
		return Outcome{Collection: out}, nil

	case Invasion:
		if err := checkFraction(v.Fraction); err != nil {
			return Outcome{}, err
		}
		out := c.Derive(label, c.Len())
		if c.Len() == 0 {
			return Outcome{Collection: out}, nil
		}
		invader := c.Records[0]
		out.Records = append(out.Records, invader)
		for _, r := range c.Records[1:] {
			if rng.Float64() < v.Fraction {
				out.Records = append(out.Records, invader)
			} else {
				out.Records = append(out.Records, r)
			}
		}
		return Outcome{Collection: out}, nil

	case Resample:
		if v.Count <= 0 {
			return Outcome{}, fmt.Errorf("%w: count %d must be positive", ErrInvalidParameter, v.Count)
		}
		n := c.Len()
		if n == 0 {
			return Outcome{}, fmt.Errorf("%w: cannot resample an empty collection", ErrInvalidParameter)
		}
		var idx []int
		replace := v.Count > n
		if replace {
			idx = make([]int, v.Count)
			for i := range idx {
				idx[i] = rng.Intn(n)
			}
		} else {
			idx = rng.Perm(n)[:v.Count]
		}
		sort.Ints(idx)
		out := c.Derive(label, len(idx))
		for _, i := range idx {
			out.Records = append(out.Records, c.Records[i])
		}
		return Outcome{Collection: out, WithReplacement: replace}, nil
	}
	return Outcome{}, fmt.Errorf("%w: unsupported kind %T", ErrInvalidParameter, k)
}
