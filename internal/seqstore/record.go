// Package seqstore holds sample sequences in memory. A Collection is loaded
// once from a FASTA or FASTQ source and is never mutated afterwards; every
// transformation produces a new Collection.
package seqstore

import (
	"path/filepath"
	"strings"
)

// Format is the on-disk layout of a collection.
type Format int

const (
	FASTA Format = iota
	FASTQ
)

// LinesPerRecord is the number of lines one record occupies when written.
func (f Format) LinesPerRecord() int {
	if f == FASTQ {
		return 4
	}
	return 2
}

// Ext is the file extension used when a collection is written to disk.
func (f Format) Ext() string {
	if f == FASTQ {
		return "fastq"
	}
	return "fasta"
}

func (f Format) String() string { return f.Ext() }

// DetectFormat guesses the format from a file name. Any extension carrying a
// 'q' (fq, fastq, fq.gz) is FASTQ; everything else is FASTA.
func DetectFormat(path string) Format {
	base := strings.TrimSuffix(filepath.Base(path), ".gz")
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(base), "."))
	if strings.Contains(ext, "q") {
		return FASTQ
	}
	return FASTA
}

// SampleName is the file name up to its first dot: "data/S01.R1.fa" -> "S01".
func SampleName(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}

// Record is one sequence. Qual is only set for FASTQ sources.
type Record struct {
	ID   string
	Seq  []byte
	Qual []byte
}

// Collection is an ordered set of records tagged with a provenance label.
// Collections produced by invasion or resampling may repeat a record.
type Collection struct {
	Label   string
	Format  Format
	Records []Record
}

// Len returns the number of records.
func (c *Collection) Len() int { return len(c.Records) }

// Derive returns an empty collection with the same format and a new label.
func (c *Collection) Derive(label string, capacity int) *Collection {
	return &Collection{Label: label, Format: c.Format, Records: make([]Record, 0, capacity)}
}

// Clone copies the record slice header-deep. Sequence bytes are shared;
// records are immutable once loaded.
func (c *Collection) Clone(label string) *Collection {
	out := c.Derive(label, len(c.Records))
	out.Records = append(out.Records, c.Records...)
	return out
}

// Index maps each identifier to the position of its first occurrence.
func (c *Collection) Index() map[string]int {
	m := make(map[string]int, len(c.Records))
	for i, r := range c.Records {
		if _, ok := m[r.ID]; !ok {
			m[r.ID] = i
		}
	}
	return m
}

// Lookup returns the first record with the given identifier.
func (c *Collection) Lookup(id string) (Record, bool) {
	for _, r := range c.Records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}
