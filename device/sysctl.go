package device

import (
	"fmt"
	"os"
	"strings"
)

// ScopedSysctl reads a /proc/sys value once, lets the caller override it,
// and restores the original value on Close. The harness uses it for
// /proc/sys/vm/dirty_expire_centisecs (forcing dirty pages to be
// write-back eligible sooner) scoped to a single run.
type ScopedSysctl struct {
	path     string
	original string
}

// OpenScopedSysctl reads path's current value and returns a handle that
// can set a new value and later restore the original.
func OpenScopedSysctl(path string) (*ScopedSysctl, error) {
	original, err := readSysctl(path)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrSysctlRead, path, err)
	}
	return &ScopedSysctl{path: path, original: original}, nil
}

// Set writes a new value to the sysctl.
func (s *ScopedSysctl) Set(value string) error {
	if err := writeSysctl(s.path, value); err != nil {
		return fmt.Errorf("%w %s: %v", ErrSysctlWrite, s.path, err)
	}
	return nil
}

// Restore writes back the value observed at open time. Idempotent: it
// can be called more than once, and Close calls it exactly once.
func (s *ScopedSysctl) Restore() error {
	if s.original == "" {
		return nil
	}
	return writeSysctl(s.path, s.original)
}

// Close restores the original value. After an earlier Restore it writes
// the same original value again.
func (s *ScopedSysctl) Close() error {
	return s.Restore()
}

func readSysctl(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\n"), nil
}

func writeSysctl(path, value string) error {
	return os.WriteFile(path, []byte(value), 0644)
}

// DropCaches writes to /proc/sys/vm/drop_caches to force dentries, inodes,
// and page cache to be dropped before a read-oriented check, the way the
// original harness's clear_caches does between mount attempts.
func DropCaches() error {
	const path = "/proc/sys/vm/drop_caches"
	if err := writeSysctl(path, "3"); err != nil {
		return fmt.Errorf("%w %s: %v", ErrSysctlWrite, path, err)
	}
	return nil
}

// DirtyExpireCentisecsPath is the tunable ScopedSysctl opens to force
// dirty pages to become write-back eligible almost immediately, widening
// the window of writes the wrapper can observe as unflushed.
const DirtyExpireCentisecsPath = "/proc/sys/vm/dirty_expire_centisecs"
