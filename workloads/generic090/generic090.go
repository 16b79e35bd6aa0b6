// Package generic090 bundles a sample crash-consistency workload,
// reproducing xfstests generic/090: write a file, fsync it, hardlink it,
// sync the file system, extend the file, fsync again, then check that
// the extension survives a crash once the second fsync has completed.
package generic090

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/crashmonkey-go/crashmonkey/plugin"
	"github.com/crashmonkey-go/crashmonkey/results"
)

const (
	fooName   = "foo"
	barName   = "bar"
	chunkSize = 32768
	textSize  = 2 * chunkSize
	filePerm  = 0777
)

func init() {
	plugin.RegisterWorkload("generic090", func() plugin.Workload {
		return &Generic090{}
	})
}

// Generic090 implements plugin.Workload for the generic/090 scenario.
type Generic090 struct {
	mountPoint string
	text       []byte
}

// SetMountPoint sets where the workload creates its files; callers set
// it before calling Setup.
func (g *Generic090) SetMountPoint(path string) {
	g.mountPoint = path
}

func (g *Generic090) fooPath() string { return filepath.Join(g.mountPoint, fooName) }
func (g *Generic090) barPath() string { return filepath.Join(g.mountPoint, barName) }

// Setup creates foo with 32KiB of random data, fsyncs it, hardlinks it
// to bar, and syncs the file system.
func (g *Generic090) Setup() int {
	f, err := os.OpenFile(g.fooPath(), os.O_RDWR|os.O_CREATE, filePerm)
	if err != nil {
		return -1
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	if _, err := rand.Read(buf); err != nil {
		return -2
	}
	if _, err := f.WriteAt(buf, 0); err != nil {
		return -2
	}
	if err := f.Sync(); err != nil {
		return -3
	}
	if err := os.Link(g.fooPath(), g.barPath()); err != nil {
		return -4
	}
	syscall.Sync()
	return 0
}

// Run reopens foo, appends another 32KiB, fsyncs, records the file's
// full contents for later comparison, and marks a checkpoint.
func (g *Generic090) Run() int {
	f, err := os.OpenFile(g.fooPath(), os.O_RDWR|os.O_CREATE, filePerm)
	if err != nil {
		return -1
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	if _, err := rand.Read(buf); err != nil {
		return -2
	}
	if _, err := f.WriteAt(buf, chunkSize); err != nil {
		return -2
	}
	if err := f.Sync(); err != nil {
		return -3
	}

	text := make([]byte, textSize)
	if _, err := f.ReadAt(text, 0); err != nil {
		return -4
	}
	g.text = text

	if err := plugin.Checkpoint(1); err != nil {
		return -5
	}
	return 0
}

// CheckTest verifies that, once the checkpoint taken at the end of Run
// is present, foo's full contents match what Run recorded.
func (g *Generic090) CheckTest(lastCheckpoint uint32, out *results.DataTestResult) int {
	if lastCheckpoint < 1 {
		// The crash state doesn't include the second fsync; nothing to
		// check yet.
		return 0
	}

	got, err := os.ReadFile(g.fooPath())
	if err != nil {
		out.ErrorKind = results.DataOther
		out.Description = fmt.Sprintf("reading %s: %v", g.fooPath(), err)
		return -1
	}
	if len(got) != textSize {
		out.ErrorKind = results.DataFileDataCorrupted
		out.Description = "addition to file not persisted after fsync"
		return -1
	}
	if !bytes.Equal(got, g.text) {
		out.ErrorKind = results.DataFileDataCorrupted
		out.Description = "addition to file not persisted after fsync"
		return -1
	}
	return 0
}
