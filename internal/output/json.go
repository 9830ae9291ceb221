// internal/output/json.go
package output

import (
	"io"
	"sort"

	"bci/internal/diversity"
	"bci/internal/jsonutil"
	"bci/internal/runner"
	"bci/pkg/api"
)

// ToAPIRun converts a run result to the stable wire schema (v1).
func ToAPIRun(res runner.Result) api.RunV1 {
	v := api.RunV1{
		RunID:        res.RunID,
		Sample:       res.Sample,
		Label:        res.Label,
		Seed:         res.Seed,
		Entries:      make([]api.EntryV1, 0, len(res.Curve.Entries)),
		BCI:          res.Curve.DisplaySorted(),
		Missing:      res.Curve.Missing(),
		OTUThreshold: res.OTUThreshold,
		Reliable:     res.Reliable(),
	}
	for _, e := range res.Curve.Entries {
		ev := api.EntryV1{Threshold: e.Threshold}
		if e.Err != nil {
			ev.Error = e.Err.Error()
		} else {
			n := e.Clusters
			ev.Clusters = &n
		}
		v.Entries = append(v.Entries, ev)
	}
	for _, a := range res.Curve.Anomalies() {
		v.Anomalies = append(v.Anomalies, api.AnomalyV1{
			Threshold: a.Threshold, Clusters: a.Clusters,
			PrevThreshold: a.PrevThreshold, PrevClusters: a.PrevClusters,
		})
	}
	if res.Diversity != nil {
		v.Pi = toAPIPi(res.Diversity)
		for id := range res.Diversity.Missing {
			v.PiMissing = append(v.PiMissing, id)
		}
		sort.Strings(v.PiMissing)
	}
	if res.DiversityErr != nil {
		v.DiversitySkipped = res.DiversityErr.Error()
	}
	if res.SimulatedPi != nil {
		v.SimulatedPi = toAPIPi(res.SimulatedPi)
	}
	return v
}

func toAPIPi(d *diversity.Result) []api.ClusterPiV1 {
	out := make([]api.ClusterPiV1, 0, len(d.Pi))
	for _, id := range d.Order {
		if pi, ok := d.Pi[id]; ok {
			out = append(out, api.ClusterPiV1{Cluster: id, Pi: pi})
		}
	}
	return out
}

func toAPIRuns(list []runner.Result) []api.RunV1 {
	out := make([]api.RunV1, 0, len(list))
	for _, r := range list {
		out = append(out, ToAPIRun(r))
	}
	return out
}

// WriteJSON writes a single JSON array of v1 runs (pretty-indented).
func WriteJSON(w io.Writer, list []runner.Result) error {
	return jsonutil.EncodePretty(w, toAPIRuns(list))
}
