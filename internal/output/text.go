// internal/output/text.go
package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"bci/internal/runner"
)

// TSVHeader is the header row of the text summary.
const TSVHeader = "sample\tlabel\tbci\tmissing\tanomalies\tpi_clusters\tpi_mean\treliable"

// WriteText prints one TSV line per run.
func WriteText(w io.Writer, list []runner.Result, header bool) error {
	if header {
		if _, err := fmt.Fprintln(w, TSVHeader); err != nil {
			return err
		}
	}
	for _, r := range list {
		if _, err := fmt.Fprintln(w, TextRow(r)); err != nil {
			return err
		}
	}
	return nil
}

// TextRow renders one run as a TSV row. pi_clusters and pi_mean are "-"
// when diversity was skipped.
func TextRow(r runner.Result) string {
	piN, piMean := "-", "-"
	if r.Diversity != nil {
		vals := r.Diversity.Values()
		piN = strconv.Itoa(len(vals))
		if len(vals) > 0 {
			var sum float64
			for _, v := range vals {
				sum += v
			}
			piMean = strconv.FormatFloat(sum/float64(len(vals)), 'g', 6, 64)
		}
	}
	return strings.Join([]string{
		r.Sample,
		r.Label,
		JoinInts(r.Curve.DisplaySorted()),
		strconv.Itoa(len(r.Curve.Missing())),
		strconv.Itoa(len(r.Curve.Anomalies())),
		piN,
		piMean,
		strconv.FormatBool(r.Reliable()),
	}, "\t")
}

// JoinInts renders counts comma-separated.
func JoinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, ",")
}

// JoinFloats renders values comma-separated in shortest form.
func JoinFloats(xs []float64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}
