// Package sweep runs the clustering engine over a descending ladder of
// identity thresholds and assembles the resulting cluster counts into a BCI
// curve.
package sweep

import (
	"errors"
	"fmt"
)

// ErrBadLadder is returned for empty or non-descending ladders.
var ErrBadLadder = errors.New("invalid threshold ladder")

// Ladder is a strictly descending list of thresholds in (0,1].
type Ladder []float64

// NewLadder builds top, top-step, ... down to but excluding floor, all in
// integer percent. NewLadder(100, 80, 1) is 1.00 ... 0.81.
func NewLadder(topPct, floorPct, stepPct int) (Ladder, error) {
	if stepPct < 1 {
		return nil, fmt.Errorf("%w: step %d%% must be positive", ErrBadLadder, stepPct)
	}
	if topPct > 100 || floorPct < 0 || floorPct >= topPct {
		return nil, fmt.Errorf("%w: need 0 <= floor (%d%%) < top (%d%%) <= 100", ErrBadLadder, floorPct, topPct)
	}
	var l Ladder
	for p := topPct; p > floorPct; p -= stepPct {
		l = append(l, float64(p)/100)
	}
	return l, nil
}

// Validate checks the ladder invariants.
func (l Ladder) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("%w: empty", ErrBadLadder)
	}
	for i, t := range l {
		if t <= 0 || t > 1 {
			return fmt.Errorf("%w: threshold %v outside (0,1]", ErrBadLadder, t)
		}
		if i > 0 && t >= l[i-1] {
			return fmt.Errorf("%w: %v does not descend from %v", ErrBadLadder, t, l[i-1])
		}
	}
	return nil
}

// Index returns the position of t on the ladder, or -1.
func (l Ladder) Index(t float64) int {
	for i, v := range l {
		if v-t < 1e-9 && t-v < 1e-9 {
			return i
		}
	}
	return -1
}
