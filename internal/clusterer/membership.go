package clusterer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	mmap "github.com/edsrzf/mmap-go"
)

// Membership is the seed to hits assignment produced at one threshold.
type Membership struct {
	Seeds     []string            // seeds with at least one hit, first appearance order
	Hits      map[string][]string // seed -> hits in file order
	Unmatched []string            // ids from the not-matched file
}

// Empty reports whether no seed attracted any hit.
func (m *Membership) Empty() bool { return len(m.Seeds) == 0 }

// Clustered returns the set of ids that are either a seed or a hit.
func (m *Membership) Clustered() map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range m.Seeds {
		set[s] = struct{}{}
		for _, h := range m.Hits[s] {
			set[h] = struct{}{}
		}
	}
	return set
}

// ParseMembership reads the tab-separated membership file. Only the first
// two columns (query, target) are used; the rest are tolerated.
func ParseMembership(r io.Reader) (*Membership, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	m := &Membership{Hits: make(map[string][]string)}
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("membership line %d: %w", line, err)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("membership line %d: want at least 2 fields, got %d", line, len(rec))
		}
		query, target := rec[0], rec[1]
		if _, ok := m.Hits[target]; !ok {
			m.Seeds = append(m.Seeds, target)
		}
		m.Hits[target] = append(m.Hits[target], query)
	}
	return m, nil
}

// LoadMembership reads both engine outputs of one task.
func LoadMembership(userOut, notMatched string) (*Membership, error) {
	fh, err := os.Open(userOut)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	m, err := ParseMembership(fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", userOut, err)
	}
	if notMatched != "" {
		ids, err := headerIDs(notMatched)
		if err != nil {
			return nil, err
		}
		m.Unmatched = ids
	}
	return m, nil
}

func headerIDs(path string) ([]string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	var ids []string
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, ">") {
			f := strings.Fields(line[1:])
			if len(f) > 0 {
				ids = append(ids, f[0])
			}
		}
	}
	return ids, sc.Err()
}

// CountSeeds is the number of records in a not-matched file: its line count
// divided by linesPerRecord. The file is memory mapped.
func CountSeeds(path string, linesPerRecord int) (int, error) {
	if linesPerRecord < 1 {
		linesPerRecord = 2
	}
	n, err := countLines(path)
	if err != nil {
		return 0, err
	}
	return n / linesPerRecord, nil
}

func countLines(path string) (int, error) {
	fp, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer fp.Close()
	st, err := fp.Stat()
	if err != nil {
		return 0, err
	}
	// mmap refuses zero-length files.
	if st.Size() == 0 {
		return 0, nil
	}
	mm, err := mmap.Map(fp, mmap.RDONLY, 0)
	if err != nil {
		return 0, err
	}
	defer mm.Unmap()
	n := bytes.Count(mm, []byte{'\n'})
	if mm[len(mm)-1] != '\n' {
		n++
	}
	return n, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
