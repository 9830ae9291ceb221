package seqstore

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// IsPhylip reports whether a path names a sequential PHYLIP file.
func IsPhylip(path string) bool {
	switch strings.ToLower(filepath.Ext(strings.TrimSuffix(path, ".gz"))) {
	case ".phy", ".phylip":
		return true
	}
	return false
}

// LoadPhylip reads a PHYLIP file into a FASTA collection.
func LoadPhylip(path string) (*Collection, error) {
	rc, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	c, err := ReadPhylip(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.Label = SampleName(path)
	return c, nil
}

// ReadPhylip parses sequential one-line-per-taxon PHYLIP. The header line is
// skipped; every following non-blank line is "<name> <sequence>".
func ReadPhylip(r io.Reader) (*Collection, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	c := &Collection{Format: FASTA}
	seen := make(map[string]struct{})
	line := 0
	for sc.Scan() {
		line++
		if line == 1 {
			continue
		}
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		f := strings.Fields(text)
		if len(f) != 2 {
			return nil, fmt.Errorf("phylip line %d: want 2 fields, got %d", line, len(f))
		}
		if _, dup := seen[f[0]]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, f[0])
		}
		seen[f[0]] = struct{}{}
		c.Records = append(c.Records, Record{ID: f[0], Seq: []byte(f[1])})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return c, nil
}
