package generic090

import (
	"os"
	"testing"

	"github.com/crashmonkey-go/crashmonkey/plugin"
	"github.com/crashmonkey-go/crashmonkey/results"
)

func TestGeneric090RegisteredUnderName(t *testing.T) {
	t.Parallel()

	factory, ok := plugin.LookupWorkload("generic090")
	if !ok {
		t.Fatal(`workload "generic090" not registered`)
	}
	if _, ok := factory().(*Generic090); !ok {
		t.Fatalf("factory() type = %T, want *Generic090", factory())
	}
}

func TestGeneric090SetupRunCheck(t *testing.T) {
	t.Parallel()

	g := &Generic090{}
	g.SetMountPoint(t.TempDir())

	if code := g.Setup(); code != 0 {
		t.Fatalf("Setup() = %d, want 0", code)
	}
	if _, err := os.Stat(g.barPath()); err != nil {
		t.Fatalf("hardlink bar not created: %v", err)
	}

	if code := g.Run(); code != 0 {
		t.Fatalf("Run() = %d, want 0", code)
	}

	var out results.DataTestResult
	if code := g.CheckTest(1, &out); code != 0 {
		t.Fatalf("CheckTest() = %d, want 0", code)
	}
	if out.ErrorKind != results.DataClean {
		t.Fatalf("CheckTest() reported %v: %s", out.ErrorKind, out.Description)
	}
}

func TestGeneric090CheckTestBeforeCheckpointIsANoOp(t *testing.T) {
	t.Parallel()

	g := &Generic090{}
	g.SetMountPoint(t.TempDir())
	if code := g.Setup(); code != 0 {
		t.Fatalf("Setup() = %d, want 0", code)
	}
	if code := g.Run(); code != 0 {
		t.Fatalf("Run() = %d, want 0", code)
	}

	var out results.DataTestResult
	if code := g.CheckTest(0, &out); code != 0 {
		t.Fatalf("CheckTest(0, ...) = %d, want 0", code)
	}
	if out.ErrorKind != results.DataClean {
		t.Fatalf("CheckTest(0, ...) reported %v, want DataClean since the crash state predates the checkpoint", out.ErrorKind)
	}
}

func TestGeneric090CheckTestDetectsMissingAppend(t *testing.T) {
	t.Parallel()

	g := &Generic090{}
	dir := t.TempDir()
	g.SetMountPoint(dir)
	if code := g.Setup(); code != 0 {
		t.Fatalf("Setup() = %d, want 0", code)
	}
	if code := g.Run(); code != 0 {
		t.Fatalf("Run() = %d, want 0", code)
	}

	// Simulate a crash that lost the second 32KiB append: truncate foo
	// back down to its pre-Run size.
	if err := os.Truncate(g.fooPath(), chunkSize); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	var out results.DataTestResult
	if code := g.CheckTest(1, &out); code >= 0 {
		t.Fatalf("CheckTest() = %d, want negative", code)
	}
	if out.ErrorKind != results.DataFileDataCorrupted {
		t.Fatalf("ErrorKind = %v, want DataFileDataCorrupted", out.ErrorKind)
	}
}
