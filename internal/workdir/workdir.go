// Package workdir provides the scratch directory owned by one run.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir is a run-private directory. Close removes it unless Keep is set.
type Dir struct {
	path string
	keep bool
}

// Create makes a fresh directory ".tmpdir-<sample>-*" under root.
func Create(root, sample string, keep bool) (*Dir, error) {
	if root == "" {
		root = "."
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	p, err := os.MkdirTemp(root, fmt.Sprintf(".tmpdir-%s-", sample))
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	abs, err := filepath.Abs(p)
	if err == nil {
		p = abs
	}
	return &Dir{path: p, keep: keep}, nil
}

// Path is the absolute directory path.
func (d *Dir) Path() string { return d.path }

// Join returns a path inside the directory.
func (d *Dir) Join(elem ...string) string {
	return filepath.Join(append([]string{d.path}, elem...)...)
}

// Kept reports whether Close leaves the directory in place.
func (d *Dir) Kept() bool { return d.keep }

// Close removes the directory. It is safe to call more than once.
func (d *Dir) Close() error {
	if d == nil || d.keep || d.path == "" {
		return nil
	}
	err := os.RemoveAll(d.path)
	d.path = ""
	return err
}
