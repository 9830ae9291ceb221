package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"bci/internal/aligner"
	"bci/internal/clusterer"
	"bci/internal/faketool"
	"bci/internal/seqstore"
	"bci/internal/sweep"
	"bci/internal/transform"
)

func TestMain(m *testing.M) {
	faketool.Main()
	os.Exit(m.Run())
}

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func fakeOptions(t *testing.T) Options {
	t.Helper()
	t.Setenv(faketool.EnvEnable, "1")
	return Options{
		Engine:   clusterer.Vsearch{Binary: os.Args[0]},
		Aligner:  aligner.Muscle{Binary: os.Args[0]},
		Ladder:   sweep.Ladder{1.0, 0.97, 0.9},
		Workers:  2,
		Threads:  1,
		Seed:     11,
		WorkRoot: t.TempDir(),
		Log:      quietLog(),
	}
}

// sample has two OTUs at 0.97 (a1..a3 and b1..b2, each 1 mismatch in 40bp)
// plus one singleton.
func writeSample(t *testing.T) string {
	t.Helper()
	a := strings.Repeat("ACGT", 10)
	b := strings.Repeat("GGCA", 10)
	c := strings.Repeat("TTAA", 10)
	mut := func(s string, i int) string { return s[:i] + "C" + s[i+1:] }
	recs := []struct{ id, seq string }{
		{"a1", a}, {"a2", mut(a, 0)}, {"a3", mut(a, 2)},
		{"b1", b}, {"b2", mut(b, 0)},
		{"c1", c},
	}
	var sb strings.Builder
	for _, r := range recs {
		fmt.Fprintf(&sb, ">%s\n%s\n", r.id, r.seq)
	}
	p := filepath.Join(t.TempDir(), "S01.fasta")
	if err := os.WriteFile(p, []byte(sb.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestExecute(t *testing.T) {
	r, err := Open(writeSample(t), fakeOptions(t))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	res, err := r.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Label != "S01" || res.RunID == "" {
		t.Fatalf("result = %+v", res)
	}
	if diff := cmp.Diff([]int{6, 3, 3}, res.Curve.Counts()); diff != "" {
		t.Fatalf("counts (-want +got):\n%s", diff)
	}
	if res.Diversity == nil {
		t.Fatalf("diversity skipped: %v", res.DiversityErr)
	}
	if diff := cmp.Diff([]string{"a1", "b1", "c1"}, res.Diversity.Order); diff != "" {
		t.Fatalf("clusters (-want +got):\n%s", diff)
	}
	// a-group: 3 members, two columns with one variant each: 2*(2/3)/40
	if got, want := res.Diversity.Pi["a1"], 2*(2.0/3.0)/40; got-want > 1e-9 || want-got > 1e-9 {
		t.Fatalf("pi(a1) = %v, want %v", got, want)
	}
	if res.Diversity.Pi["c1"] != 0 {
		t.Fatalf("singleton pi = %v", res.Diversity.Pi["c1"])
	}
	if !res.Reliable() {
		t.Fatal("clean run reported unreliable")
	}
	if _, err := os.Stat(res.Combined); err != nil {
		t.Fatalf("combined alignment: %v", err)
	}
	if len(r.History().Get("S01")) != 1 {
		t.Fatal("curve not recorded in history")
	}

	dir := r.WorkDir()
	r.Close()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("workdir survived Close: %v", err)
	}
}

func TestExecuteOffLadderThreshold(t *testing.T) {
	opts := fakeOptions(t)
	opts.OTUThreshold = 0.95
	r, err := Open(writeSample(t), opts)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	res, err := r.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Diversity == nil || len(res.Diversity.Order) != 3 {
		t.Fatalf("diversity = %+v err=%v", res.Diversity, res.DiversityErr)
	}
}

func TestExecuteEmptyDiversity(t *testing.T) {
	opts := fakeOptions(t)
	p := filepath.Join(t.TempDir(), "S02.fasta")
	os.WriteFile(p, []byte(">x\nAAAA\n>y\nCCCC\n"), 0o644)
	r, err := Open(p, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	res, err := r.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(res.DiversityErr, ErrEmptyDiversityInput) || res.Diversity != nil {
		t.Fatalf("diversity err = %v", res.DiversityErr)
	}
	if diff := cmp.Diff([]int{2, 2, 2}, res.Curve.Counts()); diff != "" {
		t.Fatalf("curve lost: %s", diff)
	}
}

func TestExecuteAlignmentFailure(t *testing.T) {
	opts := fakeOptions(t)
	t.Setenv(faketool.EnvFailGroup, "b1")
	r, err := Open(writeSample(t), opts)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	res, err := r.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Diversity == nil || res.Diversity.Missing["b1"] == nil {
		t.Fatalf("missing = %v", res.Diversity)
	}
	if _, ok := res.Diversity.Pi["a1"]; !ok {
		t.Fatal("sibling group lost")
	}
	if res.Reliable() {
		t.Fatal("run with failed alignment reported reliable")
	}
}

func TestExecuteClusterFailureAtOTU(t *testing.T) {
	opts := fakeOptions(t)
	t.Setenv(faketool.EnvFailAt, "0.97")
	r, err := Open(writeSample(t), opts)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	res, err := r.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.DiversityErr == nil || len(res.Curve.Missing()) != 1 {
		t.Fatalf("res = %+v", res)
	}
}

func TestTransformThenExecute(t *testing.T) {
	r, err := Open(writeSample(t), fakeOptions(t))
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	c, err := r.Transform(transform.Invasion{Fraction: 1})
	if err != nil {
		t.Fatal(err)
	}
	if c.Label != "S01-inva-1" {
		t.Fatalf("label = %s", c.Label)
	}
	res, err := r.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{1, 1, 1}, res.Curve.Counts()); diff != "" {
		t.Fatalf("invaded counts:\n%s", diff)
	}
	if _, err := r.Transform(transform.Reset{}); err != nil {
		t.Fatal(err)
	}
	if r.Current().Len() != 6 {
		t.Fatalf("reset size = %d", r.Current().Len())
	}
	if diff := cmp.Diff([]string{"S01-inva-1"}, r.History().Labels()); diff != "" {
		t.Fatalf("labels:\n%s", diff)
	}
}

func TestOpenMissing(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "none.fa"), Options{Log: quietLog()})
	if !errors.Is(err, seqstore.ErrInputNotFound) {
		t.Fatalf("want ErrInputNotFound, got %v", err)
	}
}

func TestSimulated(t *testing.T) {
	opts := fakeOptions(t)
	opts.Simulated = true
	opts.SkipDiversity = true
	p := filepath.Join(t.TempDir(), "sim.fasta")
	os.WriteFile(p, []byte(">r0_1\nAAAA\n>r0_2\nAAAT\n>r1_1\nCCCC\n"), 0o644)
	r, err := Open(p, opts)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	res, err := r.Execute(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.SimulatedPi == nil || res.SimulatedPi.Pi["r0"] != 0.25 || res.Diversity != nil {
		t.Fatalf("simulated = %+v", res.SimulatedPi)
	}
}
