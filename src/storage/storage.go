// Package storage owns the application directory that holds capture handoff
// files and logs.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var ErrUnavailable = errors.New("storage directory unavailable")

const CapturesDirName = "captures"

type Dir struct {
	Root string
}

// Ensure creates root (and the capture subdirectory) when missing and checks
// that it is writable. Any failure wraps ErrUnavailable.
func Ensure(root string) (*Dir, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty path", ErrUnavailable)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	d := &Dir{Root: abs}
	if err := os.MkdirAll(d.Captures(), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	probe, err := os.CreateTemp(abs, ".probe-*")
	if err != nil {
		return nil, fmt.Errorf("%w: not writable: %v", ErrUnavailable, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return d, nil
}

func (d *Dir) Captures() string { return filepath.Join(d.Root, CapturesDirName) }

// LowSpace reports whether the volume holding the directory has fewer than
// thresholdMB megabytes free. Probe errors are returned with free=0.
func (d *Dir) LowSpace(thresholdMB int) (low bool, free uint64, err error) {
	free, err = FreeBytes(d.Root)
	if err != nil {
		return false, 0, err
	}
	return free < uint64(thresholdMB)*1024*1024, free, nil
}
