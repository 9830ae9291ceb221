// Package otu turns the clustering membership at one fixed threshold into
// per-OTU sequence groups ready for alignment.
package otu

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bci/internal/clusterer"
	"bci/internal/seqstore"
)

// ErrUnknownMember is returned when the membership names an id the
// collection does not contain.
var ErrUnknownMember = errors.New("membership id not in collection")

// Group is one OTU (seed plus hits) or one singleton sequence.
type Group struct {
	ID        string
	Members   []seqstore.Record
	Singleton bool
}

// Options tune group construction.
type Options struct {
	// PseudoVariableSites adds, for every singleton, a second member in
	// which the first k 'a' bases are replaced by 't'.
	PseudoVariableSites int
}

// Build groups c according to m. Seeds keep their first-appearance order and
// list their hits in file order followed by the seed itself. Every record of
// c that is neither a seed nor a hit becomes a lower-cased singleton group.
// Trailing gap characters are stripped from every sequence.
func Build(m *clusterer.Membership, c *seqstore.Collection, opts Options) ([]Group, error) {
	index := c.Index()
	seqOf := func(id string) ([]byte, error) {
		i, ok := index[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMember, id)
		}
		return bytes.TrimRight(c.Records[i].Seq, "-"), nil
	}

	var groups []Group
	for _, seed := range m.Seeds {
		ids := append(append([]string(nil), m.Hits[seed]...), seed)
		g := Group{ID: seed, Members: make([]seqstore.Record, 0, len(ids))}
		for k, id := range ids {
			s, err := seqOf(id)
			if err != nil {
				return nil, err
			}
			g.Members = append(g.Members, seqstore.Record{ID: fmt.Sprintf("%s_%d", seed, k), Seq: s})
		}
		groups = append(groups, g)
	}

	clustered := m.Clustered()
	for _, r := range c.Records {
		if _, ok := clustered[r.ID]; ok {
			continue
		}
		// mark so duplicated ids in derived collections fold into one group
		clustered[r.ID] = struct{}{}
		s := bytes.ToLower(bytes.TrimRight(r.Seq, "-"))
		g := Group{ID: r.ID, Singleton: true, Members: []seqstore.Record{{ID: r.ID + "_0", Seq: s}}}
		if opts.PseudoVariableSites > 0 {
			g.Members = append(g.Members, seqstore.Record{
				ID:  r.ID + "_1",
				Seq: bytes.Replace(s, []byte("a"), []byte("t"), opts.PseudoVariableSites),
			})
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// FileName is a filesystem-safe name for a group FASTA file.
func FileName(id string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		}
		return '_'
	}, id)
	if safe == "" || safe == "." || safe == ".." {
		safe = "_" + safe
	}
	return safe + ".fasta"
}

// WriteFASTA writes one file per group into dir and returns the paths in
// group order. Distinct ids that sanitize to the same name get a numeric
// suffix.
func WriteFASTA(dir string, groups []Group) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	used := make(map[string]int, len(groups))
	paths := make([]string, 0, len(groups))
	for _, g := range groups {
		name := FileName(g.ID)
		if n := used[name]; n > 0 {
			used[name] = n + 1
			name = fmt.Sprintf("%s.%d.fasta", strings.TrimSuffix(name, ".fasta"), n)
		} else {
			used[name] = 1
		}
		p := filepath.Join(dir, name)
		if err := seqstore.WriteFile(p, &seqstore.Collection{Format: seqstore.FASTA, Records: g.Members}); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
