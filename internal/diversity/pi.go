// Package diversity computes nucleotide diversity (π) over aligned groups.
package diversity

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/andrew-torda/matrix"

	"bci/internal/seqstore"
)

// ErrRaggedAlignment is returned when group members differ in length.
var ErrRaggedAlignment = errors.New("aligned sequences differ in length")

const gapChar = '-'

// excluded symbols are not counted as bases.
func excluded(c byte) bool { return c == gapChar || c == 'N' }

// Pi is the average number of pairwise differences per site. Columns are
// tallied per symbol (upper-cased, gaps and N ignored). For each column with
// n > 1 counted bases every unordered pair of distinct bases adds
// count_a*count_b / C(n,2). The sum is divided by the alignment length.
func Pi(seqs [][]byte) (float64, error) {
	if len(seqs) <= 1 {
		return 0, nil
	}
	ncol := len(seqs[0])
	for i, s := range seqs {
		if len(s) != ncol {
			return 0, fmt.Errorf("%w: member %d has %d columns, want %d", ErrRaggedAlignment, i, len(s), ncol)
		}
	}
	if ncol == 0 {
		return 0, nil
	}

	counts, nsym := usageSite(seqs, ncol)
	var pi float64
	for col := 0; col < ncol; col++ {
		var n float64
		for sym := 0; sym < nsym; sym++ {
			n += float64(counts.Mat[sym][col])
		}
		if n <= 1 {
			continue
		}
		pairs := n * (n - 1) / 2
		for a := 0; a < nsym; a++ {
			ca := float64(counts.Mat[a][col])
			if ca == 0 {
				continue
			}
			for b := a + 1; b < nsym; b++ {
				pi += ca * float64(counts.Mat[b][col]) / pairs
			}
		}
	}
	return pi / float64(ncol), nil
}

// usageSite counts how often each symbol appears in each column.
// counts.Mat is [symbol][column].
func usageSite(seqs [][]byte, ncol int) (*matrix.FMatrix2d, int) {
	var mapping [256]int
	for i := range mapping {
		mapping[i] = -1
	}
	nsym := 0
	for _, s := range seqs {
		for _, c := range bytes.ToUpper(s) {
			if !excluded(c) && mapping[c] < 0 {
				mapping[c] = nsym
				nsym++
			}
		}
	}
	counts := matrix.NewFMatrix2d(max(nsym, 1), ncol)
	for _, s := range seqs {
		for i, c := range bytes.ToUpper(s) {
			if m := mapping[c]; m >= 0 {
				counts.Mat[m][i]++
			}
		}
	}
	return counts, nsym
}

// Result maps cluster ids to π.
type Result struct {
	Pi      map[string]float64
	Order   []string         // cluster ids in first-appearance order
	Missing map[string]error // clusters whose π could not be computed
}

// NewResult returns an empty Result.
func NewResult() Result {
	return Result{Pi: map[string]float64{}, Missing: map[string]error{}}
}

// Values returns π in cluster order, skipping missing clusters.
func (r Result) Values() []float64 {
	out := make([]float64, 0, len(r.Pi))
	for _, id := range r.Order {
		if v, ok := r.Pi[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

// ClusterOf is the id prefix before the last '_': "seed7_3" -> "seed7".
func ClusterOf(id string) string {
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		return id[:i]
	}
	return id
}

// ByCluster groups records by ClusterOf and computes π per group.
func ByCluster(recs []seqstore.Record) Result {
	res := NewResult()
	groups := map[string][][]byte{}
	for _, r := range recs {
		id := ClusterOf(r.ID)
		if _, ok := groups[id]; !ok {
			res.Order = append(res.Order, id)
		}
		groups[id] = append(groups[id], r.Seq)
	}
	for _, id := range res.Order {
		pi, err := Pi(groups[id])
		if err != nil {
			res.Missing[id] = err
			continue
		}
		res.Pi[id] = pi
	}
	return res
}
