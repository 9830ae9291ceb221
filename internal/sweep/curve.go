package sweep

import (
	"sort"
	"sync"
)

// Entry is the outcome at one threshold. Clusters is meaningful only when
// Err is nil.
type Entry struct {
	Threshold  float64
	Clusters   int
	Err        error
	UserOut    string
	NotMatched string
}

// OK reports whether the clustering task succeeded.
func (e Entry) OK() bool { return e.Err == nil }

// Curve is a BCI curve in ladder order (tightest threshold first).
type Curve struct {
	Label   string
	Entries []Entry
}

// Anomaly is a monotonicity violation: the count at a looser threshold is
// larger than at the previous successful, tighter one.
type Anomaly struct {
	Threshold     float64
	Clusters      int
	PrevThreshold float64
	PrevClusters  int
}

// Counts returns cluster counts of successful entries in ladder order.
func (c *Curve) Counts() []int {
	out := make([]int, 0, len(c.Entries))
	for _, e := range c.Entries {
		if e.OK() {
			out = append(out, e.Clusters)
		}
	}
	return out
}

// Missing returns the thresholds whose task failed.
func (c *Curve) Missing() []float64 {
	var out []float64
	for _, e := range c.Entries {
		if !e.OK() {
			out = append(out, e.Threshold)
		}
	}
	return out
}

// Anomalies compares each successful entry with the previous successful one.
// Violations are reported, never corrected.
func (c *Curve) Anomalies() []Anomaly {
	var out []Anomaly
	prev := -1
	for i, e := range c.Entries {
		if !e.OK() {
			continue
		}
		if prev >= 0 && e.Clusters > c.Entries[prev].Clusters {
			p := c.Entries[prev]
			out = append(out, Anomaly{Threshold: e.Threshold, Clusters: e.Clusters, PrevThreshold: p.Threshold, PrevClusters: p.Clusters})
		}
		prev = i
	}
	return out
}

// Reliable is true when every task succeeded and the curve is monotone.
func (c *Curve) Reliable() bool {
	return len(c.Missing()) == 0 && len(c.Anomalies()) == 0
}

// DisplaySorted returns the successful counts sorted in descending order.
// On a monotone curve this equals Counts.
func (c *Curve) DisplaySorted() []int {
	out := c.Counts()
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	return out
}

// At returns the entry at threshold t.
func (c *Curve) At(t float64) (Entry, bool) {
	for _, e := range c.Entries {
		if e.Threshold-t < 1e-9 && t-e.Threshold < 1e-9 {
			return e, true
		}
	}
	return Entry{}, false
}

// History keeps every completed curve per label. Curves are appended only
// once a sweep finished, so readers never see a partial curve.
type History struct {
	mu     sync.RWMutex
	labels []string
	curves map[string][]Curve
}

// NewHistory returns an empty History.
func NewHistory() *History {
	return &History{curves: make(map[string][]Curve)}
}

// Append records a completed curve under its label.
func (h *History) Append(c Curve) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.curves[c.Label]; !ok {
		h.labels = append(h.labels, c.Label)
	}
	cp := c
	cp.Entries = append([]Entry(nil), c.Entries...)
	h.curves[c.Label] = append(h.curves[c.Label], cp)
}

// Get returns a copy of the curves recorded for label.
func (h *History) Get(label string) []Curve {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Curve(nil), h.curves[label]...)
}

// Labels returns labels in first-append order.
func (h *History) Labels() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.labels...)
}
