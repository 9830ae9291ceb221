// Package recombine reassembles wrapped aligner output into single-line
// FASTA records.
package recombine

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"bci/internal/seqstore"
)

// ErrOrphanSequence marks sequence data that precedes the first header.
var ErrOrphanSequence = errors.New("sequence data before first header")

// Lines rebuilds records from FASTA lines. A line starting with '>' opens a
// record; following lines are trimmed and concatenated. Blank lines are
// ignored and a header with an empty id, the artifact left by concatenating
// aligner outputs, is dropped together with any data it owns.
func Lines(lines []string) ([]seqstore.Record, error) {
	var (
		out  []seqstore.Record
		cur  *seqstore.Record
		skip bool
	)
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if line[0] == '>' {
			f := strings.Fields(line[1:])
			if len(f) == 0 {
				cur, skip = nil, true
				continue
			}
			out = append(out, seqstore.Record{ID: f[0]})
			cur, skip = &out[len(out)-1], false
			continue
		}
		if cur == nil {
			if skip {
				continue
			}
			return nil, fmt.Errorf("%w: line %d", ErrOrphanSequence, i+1)
		}
		cur.Seq = append(cur.Seq, line...)
	}
	return out, nil
}

// Read applies Lines to everything in r.
func Read(r io.Reader) ([]seqstore.Record, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return Lines(lines)
}

// Files concatenates the given alignment files in order and recombines them.
func Files(paths []string) ([]seqstore.Record, error) {
	readers := make([]io.Reader, 0, 2*len(paths))
	var files []*os.File
	defer func() {
		for _, f := range files {
			f.Close()
		}
	}()
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
		// a file may lack its final newline
		readers = append(readers, f, strings.NewReader("\n"))
	}
	return Read(io.MultiReader(readers...))
}

// Write emits one header line and one sequence line per record.
func Write(w io.Writer, recs []seqstore.Record) error {
	return seqstore.Write(w, &seqstore.Collection{Format: seqstore.FASTA, Records: recs})
}

// WriteFile writes recs to path.
func WriteFile(path string, recs []seqstore.Record) error {
	return seqstore.WriteFile(path, &seqstore.Collection{Format: seqstore.FASTA, Records: recs})
}
