// pkg/api/run_v1.go
package api

// RunV1 is the stable JSON/JSONL schema for one BCI run.
// Keep fields, names, and types stable. Add new fields only with ",omitempty".
type RunV1 struct {
	RunID  string `json:"run_id"`
	Sample string `json:"sample"`
	Label  string `json:"label"`
	Seed   int64  `json:"seed"`

	Entries []EntryV1 `json:"entries"` // ladder order, tightest first
	BCI     []int     `json:"bci"`     // successful counts, descending

	Missing   []float64   `json:"missing,omitempty"`
	Anomalies []AnomalyV1 `json:"anomalies,omitempty"`

	OTUThreshold     float64       `json:"otu_threshold"`
	Pi               []ClusterPiV1 `json:"pi,omitempty"`
	PiMissing        []string      `json:"pi_missing,omitempty"`
	DiversitySkipped string        `json:"diversity_skipped,omitempty"`
	SimulatedPi      []ClusterPiV1 `json:"simulated_pi,omitempty"`

	Reliable bool `json:"reliable"`
}

// EntryV1 is one threshold of the curve. Error is set instead of Clusters
// when the clustering task failed.
type EntryV1 struct {
	Threshold float64 `json:"threshold"`
	Clusters  *int    `json:"clusters,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// AnomalyV1 reports a count that rose as the threshold relaxed.
type AnomalyV1 struct {
	Threshold     float64 `json:"threshold"`
	Clusters      int     `json:"clusters"`
	PrevThreshold float64 `json:"prev_threshold"`
	PrevClusters  int     `json:"prev_clusters"`
}

// ClusterPiV1 is π for one OTU or species.
type ClusterPiV1 struct {
	Cluster string  `json:"cluster"`
	Pi      float64 `json:"pi"`
}
