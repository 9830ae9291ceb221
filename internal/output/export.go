package output

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"bci/internal/runner"
)

// Exported file extensions.
const (
	BCIExt = ".bci"
	PisExt = ".pis"
)

// Exports writes <dir>/<label>.bci and <dir>/<label>.pis. Runs sharing a
// label (repeated transformations) get one line each, in run order. A .bci
// line holds the successful counts in descending order; a .pis line holds the
// π values in descending order. Labels whose runs produced no π get no .pis
// file. It returns the written paths.
func Exports(dir string, list []runner.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	var labels []string
	byLabel := map[string][]runner.Result{}
	for _, r := range list {
		if _, ok := byLabel[r.Label]; !ok {
			labels = append(labels, r.Label)
		}
		byLabel[r.Label] = append(byLabel[r.Label], r)
	}

	var written []string
	for _, label := range labels {
		runs := byLabel[label]
		var bciLines, pisLines []string
		for _, r := range runs {
			bciLines = append(bciLines, JoinInts(r.Curve.DisplaySorted()))
			if r.Diversity != nil {
				pisLines = append(pisLines, JoinFloats(PisDescending(r)))
			}
		}
		p := filepath.Join(dir, label+BCIExt)
		if err := writeLines(p, bciLines); err != nil {
			return written, err
		}
		written = append(written, p)
		if len(pisLines) > 0 {
			p = filepath.Join(dir, label+PisExt)
			if err := writeLines(p, pisLines); err != nil {
				return written, err
			}
			written = append(written, p)
		}
	}
	return written, nil
}

// PisDescending returns the run's π values sorted high to low.
func PisDescending(r runner.Result) []float64 {
	if r.Diversity == nil {
		return nil
	}
	vals := r.Diversity.Values()
	sort.Sort(sort.Reverse(sort.Float64Slice(vals)))
	return vals
}

func writeLines(path string, lines []string) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(fh)
	for _, l := range lines {
		if _, err := fmt.Fprintln(bw, l); err != nil {
			fh.Close()
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}
