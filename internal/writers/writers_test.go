package writers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"syscall"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bci/internal/runner"
	"bci/internal/sweep"
)

func results() []runner.Result {
	return []runner.Result{
		{Sample: "S01", Label: "S01", Curve: sweep.Curve{Entries: []sweep.Entry{{Threshold: 1, Clusters: 4}, {Threshold: 0.9, Clusters: 2}}}},
		{Sample: "S02", Label: "S02", Curve: sweep.Curve{Entries: []sweep.Entry{{Threshold: 1, Clusters: 3}}}},
	}
}

func TestUnknownFormatError(t *testing.T) {
	err := WriteRuns("nope-format", io.Discard, nil, false)
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Fatalf("want unknown format error, got %v", err)
	}
}

func TestFormats(t *testing.T) {
	if diff := cmp.Diff([]string{"json", "jsonl", "text"}, Formats()); diff != "" {
		t.Fatalf("formats (-want +got):\n%s", diff)
	}
}

func TestJSONL(t *testing.T) {
	var b bytes.Buffer
	if err := WriteRuns("jsonl", &b, results(), false); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d", len(lines))
	}
	var v struct {
		Label string `json:"label"`
		BCI   []int  `json:"bci"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &v); err != nil {
		t.Fatal(err)
	}
	if v.Label != "S01" || len(v.BCI) != 2 || v.BCI[0] != 4 {
		t.Fatalf("decoded = %+v", v)
	}
}

func TestTextNoHeader(t *testing.T) {
	var b bytes.Buffer
	if err := WriteRuns("text", &b, results(), false); err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(b.String(), "sample\t") {
		t.Fatal("header written when disabled")
	}
}

func TestIsBrokenPipe(t *testing.T) {
	if !IsBrokenPipe(syscall.EPIPE) || !IsBrokenPipe(io.ErrClosedPipe) {
		t.Fatal("broken pipe not recognised")
	}
	if IsBrokenPipe(errors.New("disk full")) || IsBrokenPipe(nil) {
		t.Fatal("false positive")
	}
}
