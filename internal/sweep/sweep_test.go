package sweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"bci/internal/clusterer"
	"bci/internal/extcmd"
	"bci/internal/faketool"
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

func writeFasta(t *testing.T, dir, name string, seqs []string) string {
	t.Helper()
	var b strings.Builder
	for i, s := range seqs {
		fmt.Fprintf(&b, ">r%d\n%s\n", i, s)
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func fakeConfig(dir string) Config {
	return Config{Engine: clusterer.Vsearch{Binary: os.Args[0]}, Dir: dir, Workers: 3, Threads: 1, Log: quietLog()}
}

func TestNewLadder(t *testing.T) {
	l, err := NewLadder(100, 80, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(l) != 20 || l[0] != 1.0 || l[19] != 0.81 {
		t.Fatalf("ladder = %v", l)
	}
	if err := l.Validate(); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLadder(100, 100, 1); !errors.Is(err, ErrBadLadder) {
		t.Fatalf("floor==top err = %v", err)
	}
	if err := (Ladder{0.9, 0.95}).Validate(); !errors.Is(err, ErrBadLadder) {
		t.Fatalf("ascending accepted: %v", err)
	}
}

func TestAnomalies(t *testing.T) {
	c := Curve{Entries: []Entry{
		{Threshold: 1.0, Clusters: 10},
		{Threshold: 0.99, Err: errors.New("x")},
		{Threshold: 0.98, Clusters: 12},
		{Threshold: 0.97, Clusters: 5},
	}}
	want := []Anomaly{{Threshold: 0.98, Clusters: 12, PrevThreshold: 1.0, PrevClusters: 10}}
	if diff := cmp.Diff(want, c.Anomalies()); diff != "" {
		t.Fatalf("anomalies (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{12, 10, 5}, c.DisplaySorted()); diff != "" {
		t.Fatalf("display:\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0.99}, c.Missing()); diff != "" {
		t.Fatalf("missing:\n%s", diff)
	}
	if c.Reliable() {
		t.Fatal("curve with anomaly reported reliable")
	}
}

func TestRunIdentical(t *testing.T) {
	t.Setenv(faketool.EnvEnable, "1")
	dir := t.TempDir()
	seqs := make([]string, 10)
	for i := range seqs {
		seqs[i] = "ACGTACGTAC"
	}
	in := writeFasta(t, dir, "S01.fasta", seqs)
	c, err := Run(context.Background(), fakeConfig(dir), "S01", in, Ladder{1.0, 0.95, 0.90})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{1, 1, 1}, c.Counts()); diff != "" {
		t.Fatalf("counts (-want +got):\n%s", diff)
	}
}

func TestRunDistinct(t *testing.T) {
	t.Setenv(faketool.EnvEnable, "1")
	dir := t.TempDir()
	// r_i differs from the base at i+1 positions
	base := []byte("AAAAAAAAAAAAAAAAAAAA")
	var seqs []string
	for i := 0; i < 10; i++ {
		s := append([]byte(nil), base...)
		for j := 0; j <= i; j++ {
			s[j] = 'C'
		}
		seqs = append(seqs, string(s))
	}
	in := writeFasta(t, dir, "S02.fasta", seqs)
	ladder, _ := NewLadder(100, 50, 5)
	c, err := Run(context.Background(), fakeConfig(dir), "S02", in, ladder)
	if err != nil {
		t.Fatal(err)
	}
	counts := c.Counts()
	if counts[0] != 10 {
		t.Fatalf("count at 1.00 = %d", counts[0])
	}
	if len(c.Anomalies()) != 0 {
		t.Fatalf("curve not monotone: %v", counts)
	}
}

func TestRunPartialFailure(t *testing.T) {
	t.Setenv(faketool.EnvEnable, "1")
	t.Setenv(faketool.EnvFailAt, "0.95")
	dir := t.TempDir()
	in := writeFasta(t, dir, "S03.fasta", []string{"AAAA", "AAAT", "CCCC"})
	c, err := Run(context.Background(), fakeConfig(dir), "S03", in, Ladder{1.0, 0.95, 0.75})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{0.95}, c.Missing()); diff != "" {
		t.Fatalf("missing:\n%s", diff)
	}
	e, _ := c.At(0.95)
	if !errors.Is(e.Err, extcmd.ErrExternalTask) {
		t.Fatalf("entry err = %v", e.Err)
	}
	if diff := cmp.Diff([]int{3, 2}, c.Counts()); diff != "" {
		t.Fatalf("counts:\n%s", diff)
	}
}

func TestRunDetectsInflation(t *testing.T) {
	t.Setenv(faketool.EnvEnable, "1")
	t.Setenv(faketool.EnvInflateAt, "0.9")
	dir := t.TempDir()
	in := writeFasta(t, dir, "S04.fasta", []string{"AAAAAAAAAA", "AAAAAAAAAA"})
	c, err := Run(context.Background(), fakeConfig(dir), "S04", in, Ladder{1.0, 0.9})
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Anomalies()) != 1 {
		t.Fatalf("anomalies = %v (counts %v)", c.Anomalies(), c.Counts())
	}
}

func TestHistoryConcurrent(t *testing.T) {
	h := NewHistory()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Append(Curve{Label: fmt.Sprintf("L%d", i%2), Entries: []Entry{{Threshold: 1, Clusters: i}}})
		}(i)
	}
	wg.Wait()
	if len(h.Labels()) != 2 || len(h.Get("L0"))+len(h.Get("L1")) != 8 {
		t.Fatalf("history labels=%v", h.Labels())
	}
	for _, c := range h.Get("L0") {
		if len(c.Entries) != 1 {
			t.Fatalf("torn curve %+v", c)
		}
	}
}
