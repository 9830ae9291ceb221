package seqstore

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/io/seqio/fastq"
	"github.com/biogo/biogo/seq/linear"
)

var (
	// ErrInputNotFound is returned when a sample file does not exist.
	ErrInputNotFound = errors.New("input not found")
	// ErrDuplicateID is returned when a loaded store repeats an identifier.
	ErrDuplicateID = errors.New("duplicate sequence identifier")
)

// LoadOptions tunes how records are read.
type LoadOptions struct {
	// TrimAnnotations cuts identifiers at the first ';' ("asv1;size=12" -> "asv1").
	TrimAnnotations bool
	// AllowDuplicates skips the unique-identifier check.
	AllowDuplicates bool
}

// Load reads a FASTA, FASTQ or PHYLIP file (optionally gzip-compressed) into
// a Collection labelled with the sample name.
func Load(path string, opts LoadOptions) (*Collection, error) {
	if path != "-" {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
			}
			return nil, err
		}
	}
	if IsPhylip(path) {
		return LoadPhylip(path)
	}
	rc, err := openReader(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	c, err := Read(rc, DetectFormat(path), opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.Label = SampleName(path)
	return c, nil
}

// Read parses records from r in the given format.
func Read(r io.Reader, format Format, opts LoadOptions) (*Collection, error) {
	var sc *seqio.Scanner
	switch format {
	case FASTQ:
		sc = seqio.NewScanner(fastq.NewReader(r, linear.NewQSeq("", nil, alphabet.DNA, alphabet.Sanger)))
	default:
		sc = seqio.NewScanner(fasta.NewReader(r, linear.NewSeq("", nil, alphabet.DNAgapped)))
	}

	c := &Collection{Format: format}
	seen := make(map[string]struct{})
	for sc.Next() {
		rec := toRecord(sc.Seq())
		if opts.TrimAnnotations {
			rec.ID = TrimAnnotation(rec.ID)
		}
		if !opts.AllowDuplicates {
			if _, dup := seen[rec.ID]; dup {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateID, rec.ID)
			}
			seen[rec.ID] = struct{}{}
		}
		c.Records = append(c.Records, rec)
	}
	if err := sc.Error(); err != nil {
		return nil, err
	}
	return c, nil
}

// TrimAnnotation drops everything from the first ';' in an identifier.
func TrimAnnotation(id string) string {
	if i := strings.IndexByte(id, ';'); i >= 0 {
		return id[:i]
	}
	return id
}

func toRecord(s interface{ Name() string }) Record {
	switch v := s.(type) {
	case *linear.QSeq:
		seq := make([]byte, len(v.Seq))
		qual := make([]byte, len(v.Seq))
		for i, ql := range v.Seq {
			seq[i] = byte(ql.L)
			qual[i] = ql.Q.Encode(alphabet.Sanger)
		}
		return Record{ID: v.Name(), Seq: seq, Qual: qual}
	case *linear.Seq:
		seq := make([]byte, len(v.Seq))
		for i, l := range v.Seq {
			seq[i] = byte(l)
		}
		return Record{ID: v.Name(), Seq: seq}
	}
	return Record{ID: s.Name()}
}

func openReader(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".gz") {
		gr, err := gzip.NewReader(fh)
		if err != nil {
			fh.Close()
			return nil, err
		}
		return struct {
			io.Reader
			io.Closer
		}{Reader: gr, Closer: fh}, nil
	}
	return fh, nil
}
