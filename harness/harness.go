// Package harness runs the crash-state test loop: for each permuted
// prefix of a recorded write log, restore a clean snapshot, replay the
// prefix, let the kernel and fsck recover it, then ask the workload
// whether the result is consistent.
package harness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crashmonkey-go/crashmonkey/device"
	"github.com/crashmonkey-go/crashmonkey/epoch"
	"github.com/crashmonkey-go/crashmonkey/permuter"
	"github.com/crashmonkey-go/crashmonkey/plugin"
	"github.com/crashmonkey-go/crashmonkey/results"
)

// Config controls one crash-state test run.
type Config struct {
	FsType       string
	MountOpts    string
	SnapshotPath string
	NumRounds    int
	ProgressStep int // report progress every ProgressStep rounds; 0 selects 1024, negative disables
	Logger       *slog.Logger
}

// Runner drives the crash-state test loop against an acquired device
// Harness, a loaded Permuter, and a loaded Workload.
type Runner struct {
	dev      *device.Harness
	permuter permuter.Permuter
	workload plugin.Workload
	cfg      Config
}

// NewRunner builds a Runner. dev must already have acquired its
// resources (device.NewHarness); permuter must already have had Init
// called with the recorded log.
func NewRunner(dev *device.Harness, p permuter.Permuter, w plugin.Workload, cfg Config) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ProgressStep == 0 {
		cfg.ProgressStep = 1024
	}
	return &Runner{dev: dev, permuter: p, workload: w, cfg: cfg}
}

// Run executes up to cfg.NumRounds crash-state checks, stopping early if
// the permuter runs out of distinct states. It returns every round's
// outcome plus the accumulated timing buckets.
func (r *Runner) Run(ctx context.Context) (*results.TestSuiteResult, Timings, error) {
	var suite results.TestSuiteResult
	var timings Timings
	suite.SetRequested(r.cfg.NumRounds)

	runStart := time.Now()
	for round := 0; round < r.cfg.NumRounds; round++ {
		if ctx.Err() != nil {
			return &suite, timings, ctx.Err()
		}
		if r.cfg.ProgressStep > 0 && round > 0 && round%r.cfg.ProgressStep == 0 {
			r.cfg.Logger.Info("crash state progress", "round", round)
		}

		permuteStart := time.Now()
		state, ok := r.permuter.GenerateCrashState()
		timings.Permute += millis(time.Since(permuteStart))
		if !ok {
			break
		}

		info, err := r.runOneRound(ctx, state, &timings)
		if err != nil {
			return &suite, timings, err
		}
		suite.AddCompleted(info)
	}

	timings.Total = millis(time.Since(runStart))
	if suite.Completed() < r.cfg.NumRounds {
		r.cfg.Logger.Info("permuter exhausted before reaching requested rounds",
			"completed", suite.Completed(), "requested", r.cfg.NumRounds)
	}
	return &suite, timings, nil
}

func (r *Runner) runOneRound(ctx context.Context, state epoch.CrashState, timings *Timings) (results.SingleTestInfo, error) {
	snap := r.dev.Snapshot()

	if err := snap.Wipe(); err != nil {
		return results.SingleTestInfo{}, fmt.Errorf("harness: wipe snapshot: %w", err)
	}

	snapshotStart := time.Now()
	if err := snap.Restore(ctx, false); err != nil {
		timings.Snapshot += millis(time.Since(snapshotStart))
		return results.SingleTestInfo{
			FsTest: results.FileSystemTestResult{ErrorKind: results.FSSnapshotRestore},
		}, nil
	}
	timings.Snapshot += millis(time.Since(snapshotStart))

	writeStart := time.Now()
	writeErr := writeCrashState(snap, state)
	timings.BioWrite += millis(time.Since(writeStart))
	if writeErr != nil {
		return results.SingleTestInfo{
			FsTest: results.FileSystemTestResult{ErrorKind: results.FSBioWrite},
		}, nil
	}

	// Mount and unmount once so the kernel can run its own journal
	// recovery and clean up orphan lists before fsck inspects the image.
	fsKind := results.FSClean
	if err := r.dev.Mount(); err != nil {
		fsKind = results.FSKernelMount
	}
	_ = r.dev.Unmount()

	fsckStart := time.Now()
	fsckRes, err := device.Fsck(r.cfg.SnapshotPath, r.cfg.FsType)
	timings.Fsck += millis(time.Since(fsckStart))
	if err != nil {
		return results.SingleTestInfo{
			FsTest: results.FileSystemTestResult{ErrorKind: results.FSCheck},
		}, nil
	}
	if fsckRes.ExitCode != 0 && fsckRes.ExitCode != 1 {
		return results.SingleTestInfo{
			FsTest: results.FileSystemTestResult{ErrorKind: results.FSCheck, FsckExitCode: fsckRes.ExitCode},
		}, nil
	}

	if err := r.dev.Mount(); err != nil {
		return results.SingleTestInfo{
			FsTest: results.FileSystemTestResult{ErrorKind: results.FSUnmountable, FsckExitCode: fsckRes.ExitCode},
		}, nil
	}
	defer r.dev.Unmount()

	var dataResult results.DataTestResult
	testStart := time.Now()
	checkRes := r.workload.CheckTest(lastCheckpoint(state), &dataResult)
	timings.TestCase += millis(time.Since(testStart))

	if checkRes < 0 && dataResult.ErrorKind == results.DataClean {
		dataResult.ErrorKind = results.DataOther
	}
	if checkRes == 0 && fsckRes.ExitCode != 0 {
		fsKind = results.FSFixed
	}
	return results.SingleTestInfo{
		FsTest:   results.FileSystemTestResult{ErrorKind: fsKind, FsckExitCode: fsckRes.ExitCode},
		DataTest: dataResult,
	}, nil
}

// writeCrashState replays every write-flagged op in state onto snap at
// its recorded sector offset, skipping synthetic checkpoint markers and
// any non-write op (a pure FLUSH/barrier carries no payload).
func writeCrashState(snap *device.Snapshot, state epoch.CrashState) error {
	for _, op := range state {
		w := op.Write
		if !w.HasWriteFlag() || w.IsCheckpoint() {
			continue
		}
		start, _ := w.ByteRange()
		if err := snap.WriteAt(w.Payload, int64(start)); err != nil {
			return err
		}
	}
	return nil
}

// lastCheckpoint returns the highest checkpoint number whose marker
// appears in state: since checkpoint markers are inserted into the log
// by the workload at the same position as every op preceding them, a
// checkpoint's presence in a permuted prefix guarantees every op before
// it is present too, under the epoch-order-preserving permuter
// contract.
func lastCheckpoint(state epoch.CrashState) uint32 {
	var last uint32
	var seen bool
	for _, op := range state {
		if !op.Write.IsCheckpoint() {
			continue
		}
		n := uint32(op.Write.Sector)
		if !seen || n > last {
			last = n
			seen = true
		}
	}
	return last
}

func millis(d time.Duration) Duration {
	return Duration(d.Milliseconds())
}
