package recombine

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bci/internal/seqstore"
)

func wrap(recs []seqstore.Record, width int) []string {
	var lines []string
	for _, r := range recs {
		lines = append(lines, ">"+r.ID)
		s := string(r.Seq)
		for len(s) > width {
			lines = append(lines, s[:width])
			s = s[width:]
		}
		lines = append(lines, s)
	}
	return lines
}

func TestRoundTrip(t *testing.T) {
	recs := []seqstore.Record{
		{ID: "s1_0", Seq: []byte(strings.Repeat("ACGT", 50))},
		{ID: "s1_1", Seq: []byte(strings.Repeat("AC-T", 50))},
		{ID: "x_0", Seq: []byte("acg")},
	}
	for _, width := range []int{1, 7, 80, 1000} {
		got, err := Lines(wrap(recs, width))
		if err != nil {
			t.Fatalf("width %d: %v", width, err)
		}
		if diff := cmp.Diff(recs, got); diff != "" {
			t.Fatalf("width %d (-want +got):\n%s", width, diff)
		}
	}
}

func TestLeadingEmptyRecord(t *testing.T) {
	got, err := Lines([]string{"", ">", "", ">a_0", "AC", "GT", "", ">b_0", "TT"})
	if err != nil {
		t.Fatal(err)
	}
	want := []seqstore.Record{{ID: "a_0", Seq: []byte("ACGT")}, {ID: "b_0", Seq: []byte("TT")}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}

func TestOrphan(t *testing.T) {
	if _, err := Lines([]string{"ACGT", ">a", "AC"}); !errors.Is(err, ErrOrphanSequence) {
		t.Fatalf("want ErrOrphanSequence, got %v", err)
	}
}

func TestFilesAndWrite(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.fasta.aln")
	b := filepath.Join(dir, "b.fasta.aln")
	os.WriteFile(a, []byte(">a_0\nAC\nGT"), 0o644)
	os.WriteFile(b, []byte(">b_0\nTT\n>b_1\nT-\n"), 0o644)
	recs, err := Files([]string{a, b})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := Write(&buf, recs); err != nil {
		t.Fatal(err)
	}
	if got := buf.String(); got != ">a_0\nACGT\n>b_0\nTT\n>b_1\nT-\n" {
		t.Fatalf("combined = %q", got)
	}
}
