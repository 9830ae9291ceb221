// Package faketool stands in for vsearch and muscle in tests. A test binary
// calls Main from TestMain; when EnvEnable is set the process behaves like
// the external tool named by its arguments and exits.
//
// The fake clustering engine is greedy: records are visited in file order and
// join the first seed whose identity (matching positions over the longer
// length) reaches the threshold. The fake aligner pads every member with
// trailing gaps to the longest length and wraps lines at 80 columns.
package faketool

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"bci/internal/seqstore"
)

const (
	// EnvEnable turns the test binary into a fake tool.
	EnvEnable = "BCI_FAKE_TOOL"
	// EnvFailAt makes the clustering engine fail at the listed thresholds
	// ("0.9,0.85").
	EnvFailAt = "BCI_FAKE_FAIL_AT"
	// EnvInflateAt adds one spurious seed at the listed thresholds, which
	// breaks curve monotonicity.
	EnvInflateAt = "BCI_FAKE_INFLATE_AT"
	// EnvFailGroup makes the aligner fail for inputs whose name contains it.
	EnvFailGroup = "BCI_FAKE_FAIL_GROUP"
)

// Main runs the fake tool and exits if EnvEnable is set; otherwise it
// returns immediately.
func Main() {
	if os.Getenv(EnvEnable) == "" {
		return
	}
	args := flags(os.Args[1:])
	var err error
	switch {
	case args["-cluster_smallmem"] != "":
		err = vsearch(args)
	case args["-align"] != "":
		err = muscle(args)
	default:
		err = fmt.Errorf("unknown invocation %v", os.Args[1:])
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "faketool:", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func flags(argv []string) map[string]string {
	m := map[string]string{}
	for i := 0; i < len(argv); i++ {
		if !strings.HasPrefix(argv[i], "-") {
			continue
		}
		if i+1 < len(argv) && !strings.HasPrefix(argv[i+1], "-") {
			m[argv[i]] = argv[i+1]
			i++
		} else {
			m[argv[i]] = "true"
		}
	}
	return m
}

func listed(env string, v float64) bool {
	for _, s := range strings.Split(os.Getenv(env), ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err == nil && abs(f-v) < 1e-9 {
			return true
		}
	}
	return false
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// Identity is the fraction of matching positions over the longer sequence,
// compared case-insensitively.
func Identity(a, b []byte) float64 {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	if n == 0 {
		return 1
	}
	same := 0
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i]|0x20 == b[i]|0x20 {
			same++
		}
	}
	return float64(same) / float64(n)
}

func vsearch(args map[string]string) error {
	t, err := strconv.ParseFloat(args["-id"], 64)
	if err != nil {
		return err
	}
	if listed(EnvFailAt, t) {
		return fmt.Errorf("injected failure at %v", t)
	}
	c, err := seqstore.Load(args["-cluster_smallmem"], seqstore.LoadOptions{AllowDuplicates: true})
	if err != nil {
		return err
	}
	var seeds []seqstore.Record
	var rows []string
	for _, r := range c.Records {
		joined := false
		for _, s := range seeds {
			if id := Identity(r.Seq, s.Seq); id >= t {
				rows = append(rows, fmt.Sprintf("%s\t%s\t%.1f\t0\t+\t100.0", r.ID, s.ID, id*100))
				joined = true
				break
			}
		}
		if !joined {
			seeds = append(seeds, r)
		}
	}
	if listed(EnvInflateAt, t) {
		seeds = append(seeds, seqstore.Record{ID: "spurious", Seq: []byte("A")})
	}

	uo, err := os.Create(args["-userout"])
	if err != nil {
		return err
	}
	for _, row := range rows {
		fmt.Fprintln(uo, row)
	}
	if err := uo.Close(); err != nil {
		return err
	}
	return seqstore.WriteFile(args["-notmatched"], &seqstore.Collection{Format: seqstore.FASTA, Records: seeds})
}

func muscle(args map[string]string) error {
	in := args["-align"]
	if g := os.Getenv(EnvFailGroup); g != "" && strings.Contains(in, g) {
		return fmt.Errorf("injected failure for %s", in)
	}
	c, err := seqstore.Load(in, seqstore.LoadOptions{AllowDuplicates: true})
	if err != nil {
		return err
	}
	width := 0
	for _, r := range c.Records {
		if len(r.Seq) > width {
			width = len(r.Seq)
		}
	}
	fh, err := os.Create(args["-output"])
	if err != nil {
		return err
	}
	w := bufio.NewWriter(fh)
	for _, r := range c.Records {
		seq := append([]byte{}, r.Seq...)
		for len(seq) < width {
			seq = append(seq, '-')
		}
		fmt.Fprintf(w, ">%s\n", r.ID)
		for len(seq) > 80 {
			fmt.Fprintf(w, "%s\n", seq[:80])
			seq = seq[80:]
		}
		fmt.Fprintf(w, "%s\n", seq)
	}
	if err := w.Flush(); err != nil {
		fh.Close()
		return err
	}
	return fh.Close()
}
