package project

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"bci/internal/aligner"
	"bci/internal/clusterer"
	"bci/internal/faketool"
	"bci/internal/runner"
	"bci/internal/seqstore"
	"bci/internal/sweep"
)

func TestMain(m *testing.M) {
	faketool.Main()
	os.Exit(m.Run())
}

const asvCSV = `#OTU ID,S1,S2,S3
z1,3,0,1
z2,0,5,1
z3,1.5,0,0
`

const fasta = `>z1;size=10
ACGTACGTAC
GTACGT
>z2;size=4
TTTTACGTACGTACGT
>z3
ACGTACGTACGTACGA
`

const sitemap = `# sample,site
S1,North shore
S2,North shore
S3,South
`

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func write(t *testing.T, dir, name, data string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestReadASVTableTab(t *testing.T) {
	in := "id\tA\tB\nx\t0\t2\ny\t1\t0\n"
	tab, err := ReadASVTable(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string][]string{"A": {"y"}, "B": {"x"}}, tab.ASVs); diff != "" {
		t.Fatalf("asvs (-want +got):\n%s", diff)
	}
}

func TestReadASVTableBadCell(t *testing.T) {
	if _, err := ReadASVTable(strings.NewReader("id,A\nx,lots\n")); !errors.Is(err, ErrBadTable) {
		t.Fatalf("want ErrBadTable, got %v", err)
	}
}

func TestReadSiteMap(t *testing.T) {
	m, err := ReadSiteMap(strings.NewReader(sitemap + "S1,North shore\n"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"North shore", "South"}, m.Sites); diff != "" {
		t.Fatalf("sites:\n%s", diff)
	}
	if diff := cmp.Diff([]string{"S1", "S2"}, m.Samples["North shore"]); diff != "" {
		t.Fatalf("samples:\n%s", diff)
	}
}

func load(t *testing.T, opts Options) (*Project, string) {
	t.Helper()
	dir := t.TempDir()
	opts.SiteMap = write(t, dir, "sites.csv", sitemap)
	opts.Log = quietLog()
	p, err := Load(write(t, dir, "asv.csv", asvCSV), write(t, dir, "asvs.fa", fasta), opts)
	if err != nil {
		t.Fatal(err)
	}
	return p, dir
}

func ids(c *seqstore.Collection) []string {
	var out []string
	for _, r := range c.Records {
		out = append(out, r.ID)
	}
	return out
}

func TestLoadCollections(t *testing.T) {
	p, dir := load(t, Options{DropDuplicates: true})
	s1, _ := p.Sample("S1")
	if diff := cmp.Diff([]string{"z1", "z3"}, ids(s1)); diff != "" {
		t.Fatalf("S1 (-want +got):\n%s", diff)
	}
	if string(s1.Records[0].Seq) != "ACGTACGTACGTACGT" {
		t.Fatalf("multi-line seq = %s", s1.Records[0].Seq)
	}
	north, ok := p.Site("North_shore")
	if !ok {
		t.Fatalf("sites = %v", p.SiteNames())
	}
	// z1,z3 from S1 then z2 from S2
	if diff := cmp.Diff([]string{"z1", "z3", "z2"}, ids(north)); diff != "" {
		t.Fatalf("north (-want +got):\n%s", diff)
	}
	samples, sites, err := p.WriteFASTAs(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(samples["S3"]); err != nil {
		t.Fatal(err)
	}
	if filepath.Base(sites["North_shore"]) != "North_shore.fasta" {
		t.Fatalf("site paths = %v", sites)
	}
}

func TestDropDuplicates(t *testing.T) {
	seqs := &seqstore.Collection{Records: []seqstore.Record{
		{ID: "a", Seq: []byte("AAAA")}, {ID: "b", Seq: []byte("AAAA")}, {ID: "c", Seq: []byte("CCCC")},
	}}
	tab := &ASVTable{Samples: []string{"X", "Y"}, ASVs: map[string][]string{"X": {"a", "c"}, "Y": {"b", "c"}}}
	sm := &SiteMap{Sites: []string{"s"}, Samples: map[string][]string{"s": {"X", "Y"}}}

	p, err := New(tab, sm, seqs, Options{DropDuplicates: true, Log: quietLog()})
	if err != nil {
		t.Fatal(err)
	}
	c, _ := p.Site("s")
	if diff := cmp.Diff([]string{"a", "c"}, ids(c)); diff != "" {
		t.Fatalf("dedup (-want +got):\n%s", diff)
	}
	p, _ = New(tab, sm, seqs, Options{Log: quietLog()})
	c, _ = p.Site("s")
	if c.Len() != 4 {
		t.Fatalf("without dedup = %v", ids(c))
	}
}

func TestSubsetSamples(t *testing.T) {
	p, _ := load(t, Options{SubsetSamples: 1, Rand: rand.New(rand.NewSource(5))})
	north, _ := p.Site("North_shore")
	if n := north.Len(); n != 2 && n != 1 {
		t.Fatalf("subset size = %d", n)
	}
}

func TestUnknownASV(t *testing.T) {
	seqs := &seqstore.Collection{Records: []seqstore.Record{{ID: "a", Seq: []byte("A")}}}
	tab := &ASVTable{Samples: []string{"X"}, ASVs: map[string][]string{"X": {"ghost"}}}
	if _, err := New(tab, nil, seqs, Options{Log: quietLog()}); !errors.Is(err, ErrUnknownASV) {
		t.Fatalf("want ErrUnknownASV, got %v", err)
	}
}

func TestRunAll(t *testing.T) {
	t.Setenv(faketool.EnvEnable, "1")
	p, dir := load(t, Options{DropDuplicates: true})
	out, err := p.RunAll(context.Background(), RunOptions{
		Runner: runner.Options{
			Engine:   clusterer.Vsearch{Binary: os.Args[0]},
			Aligner:  aligner.Muscle{Binary: os.Args[0]},
			Ladder:   sweep.Ladder{1.0, 0.97, 0.8},
			Workers:  2,
			Seed:     3,
			WorkRoot: dir,
			Log:      quietLog(),
		},
		Parallel: 2,
		Samples:  true,
		Sites:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 5 {
		t.Fatalf("outcomes = %d", len(out))
	}
	for _, o := range out {
		if o.Err != nil {
			t.Fatalf("%s %s: %v", o.Kind, o.Name, o.Err)
		}
		if len(o.Result.Curve.Entries) != 3 {
			t.Fatalf("%s curve = %+v", o.Name, o.Result.Curve)
		}
	}
	if out[0].Name != "S1" || out[3].Name != "North_shore" || out[3].Kind != "site" {
		t.Fatalf("order = %+v", out)
	}
	// z1 and z3 differ at one of 16 positions
	if diff := cmp.Diff([]int{2, 2, 1}, out[0].Result.Curve.Counts()); diff != "" {
		t.Fatalf("S1 counts (-want +got):\n%s", diff)
	}
	// work dirs are gone
	left, _ := filepath.Glob(filepath.Join(dir, ".tmpdir-*"))
	if len(left) != 0 {
		t.Fatalf("leftover work dirs: %v", left)
	}
}
