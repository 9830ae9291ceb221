package project

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ErrBadTable marks a malformed ASV table or site map.
var ErrBadTable = errors.New("malformed table")

// sniff picks tab or comma from the first non-comment line.
func sniff(head []byte) rune {
	for _, line := range bytes.Split(head, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if bytes.IndexByte(line, '\t') >= 0 {
			return '\t'
		}
		if bytes.IndexByte(line, ';') >= 0 && bytes.IndexByte(line, ',') < 0 {
			return ';'
		}
		return ','
	}
	return ','
}

func newCSV(r io.Reader, comments bool) *csv.Reader {
	br := bufio.NewReaderSize(r, 64*1024)
	head, _ := br.Peek(8 * 1024)
	cr := csv.NewReader(br)
	cr.Comma = sniff(head)
	if comments {
		cr.Comment = '#'
	}
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return cr
}

// ASVTable is an occurrence table: rows are ASV ids, columns are samples.
type ASVTable struct {
	Samples []string            // column order
	ASVs    map[string][]string // sample -> ASV ids with a non-zero count, row order
}

// ReadASVTable parses a delimited table whose first column holds ASV ids and
// whose header row names the samples. Any non-zero cell marks presence. The
// header may start with '#' ("#OTU ID").
func ReadASVTable(r io.Reader) (*ASVTable, error) {
	cr := newCSV(r, false)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrBadTable, err)
	}
	if len(header) < 2 {
		return nil, fmt.Errorf("%w: header needs an id column and at least one sample", ErrBadTable)
	}
	t := &ASVTable{ASVs: make(map[string][]string, len(header)-1)}
	for _, s := range header[1:] {
		s = strings.TrimSpace(s)
		if _, dup := t.ASVs[s]; dup {
			return nil, fmt.Errorf("%w: duplicate sample column %q", ErrBadTable, s)
		}
		t.Samples = append(t.Samples, s)
		t.ASVs[s] = nil
	}
	row := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrBadTable, row, err)
		}
		if len(rec) != len(header) {
			return nil, fmt.Errorf("%w: row %d has %d fields, want %d", ErrBadTable, row, len(rec), len(header))
		}
		id := strings.TrimSpace(rec[0])
		for i, cell := range rec[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d column %q: %v", ErrBadTable, row, t.Samples[i], err)
			}
			if v != 0 {
				t.ASVs[t.Samples[i]] = append(t.ASVs[t.Samples[i]], id)
			}
		}
	}
	return t, nil
}

// SiteMap assigns samples to sites.
type SiteMap struct {
	Sites   []string            // first-appearance order
	Samples map[string][]string // site -> samples, deduplicated
}

// ReadSiteMap parses "sample,site" rows. Lines starting with '#' are comments.
func ReadSiteMap(r io.Reader) (*SiteMap, error) {
	cr := newCSV(r, true)
	m := &SiteMap{Samples: map[string][]string{}}
	seen := map[[2]string]bool{}
	row := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("%w: site map row %d: %v", ErrBadTable, row, err)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("%w: site map row %d: want sample and site", ErrBadTable, row)
		}
		sample, site := strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1])
		if sample == "" || site == "" {
			continue
		}
		if _, ok := m.Samples[site]; !ok {
			m.Sites = append(m.Sites, site)
		}
		if !seen[[2]string{site, sample}] {
			seen[[2]string{site, sample}] = true
			m.Samples[site] = append(m.Samples[site], sample)
		}
	}
	return m, nil
}
