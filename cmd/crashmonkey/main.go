// Command crashmonkey drives one crash-consistency test run: it records a
// workload's writes, replays permuted crash-state prefixes against a
// copy-on-write snapshot, and reports how many survive fsck and the
// workload's own data check.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/crashmonkey-go/crashmonkey/device"
	"github.com/crashmonkey-go/crashmonkey/epoch"
	"github.com/crashmonkey-go/crashmonkey/harness"
	"github.com/crashmonkey-go/crashmonkey/logio"
	"github.com/crashmonkey-go/crashmonkey/permuter"
	"github.com/crashmonkey-go/crashmonkey/permuter/random"
	"github.com/crashmonkey-go/crashmonkey/plugin"

	// Side-effect imports: each registers itself with the permuter or
	// plugin registry.
	_ "github.com/crashmonkey-go/crashmonkey/permuter/exhaustive"
	_ "github.com/crashmonkey-go/crashmonkey/workloads/generic090"
)

type flags struct {
	device       string
	flagsDevice  string
	fsType       string
	mountOpts    string
	workloadName string
	permuterName string
	rounds       int
	seed         int64
	numDisks     int
	numSnapshots int
	diskSizeKB   int
	verbose      bool
	saveLogPath  string
	compressLog  bool
	dirtyExpire  string
	partition    bool
	saveImage    string
}

func parseFlags() flags {
	var f flags
	pflag.StringVar(&f.device, "device", "", "backing device path for the cow_brd clone (required)")
	pflag.StringVar(&f.flagsDevice, "flags-device", "", "auxiliary device the wrapper uses to recover per-bio flags")
	pflag.StringVar(&f.fsType, "fs-type", "ext4", "file system type to format and check")
	pflag.StringVar(&f.mountOpts, "mount-opts", "", "extra mount options")
	pflag.StringVar(&f.workloadName, "workload", "generic090", "registered workload name")
	pflag.StringVar(&f.permuterName, "permuter", "random", "registered permuter name (random, exhaustive)")
	pflag.IntVar(&f.rounds, "rounds", 1000, "maximum number of crash states to test")
	pflag.Int64Var(&f.seed, "seed", random.DefaultSeed, "seed for the random permuter")
	pflag.IntVar(&f.numDisks, "num-disks", 1, "cow_brd num_disks module parameter")
	pflag.IntVar(&f.numSnapshots, "num-snapshots", 1, "cow_brd num_snapshots module parameter")
	pflag.IntVar(&f.diskSizeKB, "disk-size-kb", 1048576, "cow_brd disk_size module parameter, in KiB")
	pflag.BoolVar(&f.verbose, "verbose", false, "print external command output")
	pflag.StringVar(&f.saveLogPath, "save-log", "", "path to persist the recorded write log (default crashmonkey-<run-id>.log)")
	pflag.BoolVar(&f.compressLog, "compress-log", false, "zstd-compress the saved write log")
	pflag.StringVar(&f.dirtyExpire, "dirty-expire-centisecs", "0", "scoped override for vm.dirty_expire_centisecs, held for the whole run")
	pflag.BoolVar(&f.partition, "partition", false, "partition the device with fdisk before formatting")
	pflag.StringVar(&f.saveImage, "save-image", "", "path to save a raw copy of the post-setup snapshot image")
	pflag.Parse()
	return f
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(logger, parseFlags()); err != nil {
		logger.Error("run failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, f flags) error {
	if f.device == "" {
		return fmt.Errorf("crashmonkey: --device is required")
	}

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)
	if f.saveLogPath == "" {
		f.saveLogPath = fmt.Sprintf("crashmonkey-%s.log", runID)
	}

	ctx := context.Background()

	cfg := device.HarnessConfig{
		NumDisks:       f.numDisks,
		NumSnapshots:   f.numSnapshots,
		DiskSizeKB:     f.diskSizeKB,
		SnapshotPath:   f.device,
		FlagsDevice:    f.flagsDevice,
		FsType:         f.fsType,
		MountOpts:      f.mountOpts,
		Verbose:        f.verbose,
		DirtyExpireVal: f.dirtyExpire,
	}

	dev, err := device.NewHarness(ctx, cfg)
	if err != nil {
		return fmt.Errorf("crashmonkey: acquire device harness: %w", err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			logger.Error("device harness teardown", "err", err)
		}
	}()

	workloadFactory, ok := plugin.LookupWorkload(f.workloadName)
	if !ok {
		return fmt.Errorf("crashmonkey: no workload registered as %q", f.workloadName)
	}
	workload := workloadFactory()
	if mp, ok := workload.(interface{ SetMountPoint(string) }); ok {
		mp.SetMountPoint(device.MountPoint)
	}

	plugin.SetCheckpointSink(func(n uint32) error {
		return dev.Wrapper().Checkpoint(n)
	})

	if f.partition {
		if err := device.PartitionDrive(f.device, f.verbose); err != nil {
			return fmt.Errorf("crashmonkey: partition device: %w", err)
		}
	}
	if err := device.Mkfs(f.device, f.fsType, f.verbose); err != nil {
		return fmt.Errorf("crashmonkey: format device: %w", err)
	}
	if err := dev.Mount(); err != nil {
		return fmt.Errorf("crashmonkey: mount for setup: %w", err)
	}
	if code := workload.Setup(); code != 0 {
		return fmt.Errorf("crashmonkey: workload setup failed, code %d", code)
	}

	if f.saveImage != "" {
		if err := device.SaveImage(f.saveImage, dev.Snapshot(), int64(f.diskSizeKB)*1024); err != nil {
			return fmt.Errorf("crashmonkey: save post-setup image: %w", err)
		}
	}

	if err := dev.Wrapper().ClearLog(); err != nil {
		return fmt.Errorf("crashmonkey: clear log: %w", err)
	}
	if err := dev.Wrapper().LogOn(); err != nil {
		return fmt.Errorf("crashmonkey: enable logging: %w", err)
	}
	runCode := workload.Run()
	if err := dev.Wrapper().LogOff(); err != nil {
		return fmt.Errorf("crashmonkey: disable logging: %w", err)
	}
	if runCode != 0 {
		return fmt.Errorf("crashmonkey: workload run failed, code %d", runCode)
	}

	writes, err := logio.Drain(dev.Wrapper())
	if err != nil {
		return fmt.Errorf("crashmonkey: drain recorded log: %w", err)
	}
	if err := dev.Unmount(); err != nil {
		return fmt.Errorf("crashmonkey: unmount after recording: %w", err)
	}

	if f.saveLogPath != "" {
		if err := logio.Save(f.saveLogPath, writes, f.compressLog); err != nil {
			return fmt.Errorf("crashmonkey: save log: %w", err)
		}
	}

	log := epoch.NewDiskLog(writes)
	logger.Info("recorded write log", "writes", len(writes), "epochs", len(log.Epochs))

	p, err := newPermuter(f, log)
	if err != nil {
		return err
	}

	runner := harness.NewRunner(dev, p, workload, harness.Config{
		FsType:       f.fsType,
		MountOpts:    f.mountOpts,
		SnapshotPath: f.device,
		NumRounds:    f.rounds,
		Logger:       logger,
	})

	suite, timings, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("crashmonkey: run: %w", err)
	}

	fmt.Println(suite.Summarize().String())
	logger.Info("timings", "breakdown", timings.String())
	return nil
}

func newPermuter(f flags, log epoch.DiskLog) (permuter.Permuter, error) {
	if f.permuterName == "random" {
		p := random.New(f.seed)
		p.Init(log)
		return p, nil
	}
	factory, ok := permuter.Lookup(f.permuterName)
	if !ok {
		return nil, fmt.Errorf("crashmonkey: no permuter registered as %q", f.permuterName)
	}
	p := factory()
	p.Init(log)
	return p, nil
}
