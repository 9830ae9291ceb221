// Package project builds per-sample and per-site collections from an ASV
// occurrence table, a sequence file and an optional site map, and runs the
// BCI pipeline over each of them.
package project

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"bci/internal/seqstore"
)

// ErrUnknownASV is returned when the table names an id missing from the
// sequence file.
var ErrUnknownASV = errors.New("ASV id not in sequence file")

// Options control how a Project is assembled.
type Options struct {
	SiteMap        string // optional "sample,site" file
	DropDuplicates bool   // drop repeated sequences within a site
	SubsetSamples  int    // draw this many samples per site; 0 uses all
	Rand           *rand.Rand
	Log            logrus.FieldLogger
}

// Project holds the tables and sequences of one study.
type Project struct {
	Table   *ASVTable
	Sites   *SiteMap // nil without a site map
	Seqs    *seqstore.Collection
	byID    map[string]int
	opts    Options
	samples map[string]*seqstore.Collection
	sites   map[string]*seqstore.Collection
}

// Load reads the ASV table and sequences (and site map when set) and builds
// every sample and site collection.
func Load(asvTable, fasta string, opts Options) (*Project, error) {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(1))
	}
	tf, err := os.Open(asvTable)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", seqstore.ErrInputNotFound, asvTable)
		}
		return nil, err
	}
	defer tf.Close()
	table, err := ReadASVTable(tf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", asvTable, err)
	}

	seqs, err := seqstore.Load(fasta, seqstore.LoadOptions{TrimAnnotations: true})
	if err != nil {
		return nil, err
	}

	var sites *SiteMap
	if opts.SiteMap != "" {
		sf, err := os.Open(opts.SiteMap)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", seqstore.ErrInputNotFound, opts.SiteMap)
			}
			return nil, err
		}
		defer sf.Close()
		if sites, err = ReadSiteMap(sf); err != nil {
			return nil, fmt.Errorf("%s: %w", opts.SiteMap, err)
		}
	}
	return New(table, sites, seqs, opts)
}

// New assembles a Project from parsed inputs.
func New(table *ASVTable, sites *SiteMap, seqs *seqstore.Collection, opts Options) (*Project, error) {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(1))
	}
	p := &Project{
		Table:   table,
		Sites:   sites,
		Seqs:    seqs,
		byID:    seqs.Index(),
		opts:    opts,
		samples: map[string]*seqstore.Collection{},
		sites:   map[string]*seqstore.Collection{},
	}
	for _, s := range table.Samples {
		c, err := p.collect(s, table.ASVs[s], false)
		if err != nil {
			return nil, fmt.Errorf("sample %s: %w", s, err)
		}
		p.samples[s] = c
		opts.Log.WithFields(logrus.Fields{"sample": s, "asvs": c.Len()}).Debug("sample collection")
	}
	if sites != nil {
		for _, site := range sites.Sites {
			c, err := p.siteCollection(site)
			if err != nil {
				return nil, fmt.Errorf("site %s: %w", site, err)
			}
			p.sites[SiteName(site)] = c
		}
	}
	return p, nil
}

// SiteName is the file-safe form of a site name (spaces become '_').
func SiteName(site string) string { return strings.ReplaceAll(site, " ", "_") }

func (p *Project) collect(label string, ids []string, dropDup bool) (*seqstore.Collection, error) {
	c := &seqstore.Collection{Label: label, Format: seqstore.FASTA, Records: make([]seqstore.Record, 0, len(ids))}
	seen := map[string]bool{}
	for _, id := range ids {
		i, ok := p.byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownASV, id)
		}
		r := p.Seqs.Records[i]
		if dropDup {
			if seen[string(r.Seq)] {
				continue
			}
			seen[string(r.Seq)] = true
		}
		c.Records = append(c.Records, seqstore.Record{ID: r.ID, Seq: r.Seq})
	}
	return c, nil
}

func (p *Project) siteCollection(site string) (*seqstore.Collection, error) {
	samples := p.Sites.Samples[site]
	if n := p.opts.SubsetSamples; n > 0 {
		if n > len(samples) {
			return nil, fmt.Errorf("subset of %d samples exceeds the %d at this site", n, len(samples))
		}
		perm := p.opts.Rand.Perm(len(samples))[:n]
		picked := make([]string, n)
		for i, j := range perm {
			picked[i] = samples[j]
		}
		samples = picked
	}
	var ids []string
	for _, s := range samples {
		asvs, ok := p.Table.ASVs[s]
		if !ok {
			return nil, fmt.Errorf("sample %q not in ASV table", s)
		}
		ids = append(ids, asvs...)
	}
	return p.collect(SiteName(site), ids, p.opts.DropDuplicates)
}

// SampleNames lists samples in table column order.
func (p *Project) SampleNames() []string { return append([]string(nil), p.Table.Samples...) }

// SiteNames lists file-safe site names in site map order.
func (p *Project) SiteNames() []string {
	if p.Sites == nil {
		return nil
	}
	out := make([]string, 0, len(p.Sites.Sites))
	for _, s := range p.Sites.Sites {
		out = append(out, SiteName(s))
	}
	return out
}

// Sample returns the collection of one sample.
func (p *Project) Sample(name string) (*seqstore.Collection, bool) {
	c, ok := p.samples[name]
	return c, ok
}

// Site returns the collection of one site (file-safe name).
func (p *Project) Site(name string) (*seqstore.Collection, bool) {
	c, ok := p.sites[name]
	return c, ok
}

// WriteFASTAs writes sample_fastas/<sample>.fasta and site_fastas/<site>.fasta
// under dir and returns the written paths keyed by name.
func (p *Project) WriteFASTAs(dir string) (samples, sites map[string]string, err error) {
	samples = map[string]string{}
	for _, s := range p.Table.Samples {
		path := filepath.Join(dir, "sample_fastas", s+".fasta")
		if err := seqstore.WriteFile(path, p.samples[s]); err != nil {
			return nil, nil, err
		}
		samples[s] = path
	}
	sites = map[string]string{}
	if p.Sites == nil {
		return samples, sites, nil
	}
	siteDir := filepath.Join(dir, "site_fastas")
	if err := os.RemoveAll(siteDir); err != nil {
		return nil, nil, err
	}
	for _, name := range p.SiteNames() {
		path := filepath.Join(siteDir, name+".fasta")
		if err := seqstore.WriteFile(path, p.sites[name]); err != nil {
			return nil, nil, err
		}
		sites[name] = path
	}
	return samples, sites, nil
}
