package seqstore

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Write emits records unwrapped: two lines per FASTA record, four per FASTQ
// record. FASTQ records without quality get a constant 'I' string.
func Write(w io.Writer, c *Collection) error {
	bw := bufio.NewWriterSize(w, 64<<10)
	for _, r := range c.Records {
		var err error
		if c.Format == FASTQ {
			q := r.Qual
			if len(q) != len(r.Seq) {
				q = constantQual(len(r.Seq))
			}
			_, err = fmt.Fprintf(bw, "@%s\n%s\n+\n%s\n", r.ID, r.Seq, q)
		} else {
			_, err = fmt.Fprintf(bw, ">%s\n%s\n", r.ID, r.Seq)
		}
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes c to path, creating parent directories.
func WriteFile(path string, c *Collection) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(fh, c); err != nil {
		fh.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return fh.Close()
}

func constantQual(n int) []byte {
	q := make([]byte, n)
	for i := range q {
		q[i] = 'I'
	}
	return q
}
