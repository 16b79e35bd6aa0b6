package device

import (
	"context"
	"errors"
	"fmt"
)

// HarnessConfig configures the resources Harness acquires.
type HarnessConfig struct {
	NumDisks       int
	NumSnapshots   int
	DiskSizeKB     int
	SnapshotPath   string
	FlagsDevice    string
	FsType         string
	MountOpts      string
	Verbose        bool
	DirtyExpireVal string
}

// Harness owns the external kernel-module, snapshot, and mount resources
// for one test run, acquiring them in a fixed order and tearing them
// down in reverse, idempotently, so a partial-acquisition failure leaves
// nothing behind.
//
// Acquisition order: CoW module -> CoW fd -> wrapper module -> wrapper
// ioctl fd -> mount.
//
// A Harness is not safe for concurrent use.
type Harness struct {
	cfg HarnessConfig

	cow             *CowDisk
	snapshot        *Snapshot
	wrapperInserted bool
	wrapper         *Wrapper
	mounted         bool
	expire          *ScopedSysctl
}

// NewHarness acquires every resource in order. If any step fails, every
// resource acquired before it is released before the error is returned.
func NewHarness(ctx context.Context, cfg HarnessConfig) (*Harness, error) {
	h := &Harness{cfg: cfg}

	cow, err := InsertCowBrd(cfg.NumDisks, cfg.NumSnapshots, cfg.DiskSizeKB, cfg.Verbose)
	if err != nil {
		return nil, err
	}
	h.cow = cow

	snap, err := cow.Snapshot()
	if err != nil {
		h.Close()
		return nil, err
	}
	h.snapshot = snap

	opened, err := OpenSnapshot(cfg.SnapshotPath)
	if err != nil {
		h.Close()
		return nil, err
	}
	h.snapshot.fd = opened.fd
	h.snapshot.path = cfg.SnapshotPath

	if err := InsertWrapper(cfg.SnapshotPath, cfg.FlagsDevice, cfg.Verbose); err != nil {
		h.Close()
		return nil, err
	}
	h.wrapperInserted = true

	wrapper, err := OpenWrapper()
	if err != nil {
		h.Close()
		return nil, err
	}
	h.wrapper = wrapper

	if cfg.DirtyExpireVal != "" {
		expire, err := OpenScopedSysctl(DirtyExpireCentisecsPath)
		if err != nil {
			h.Close()
			return nil, err
		}
		if err := expire.Set(cfg.DirtyExpireVal); err != nil {
			_ = expire.Close()
			h.Close()
			return nil, err
		}
		h.expire = expire
	}

	return h, nil
}

// Snapshot returns the active snapshot handle.
func (h *Harness) Snapshot() *Snapshot {
	return h.snapshot
}

// Wrapper returns the active wrapper handle.
func (h *Harness) Wrapper() *Wrapper {
	return h.wrapper
}

// Mount mounts the wrapper device at MountPoint.
func (h *Harness) Mount() error {
	if err := Mount(h.cfg.SnapshotPath, h.cfg.FsType, h.cfg.MountOpts); err != nil {
		return err
	}
	h.mounted = true
	return nil
}

// Unmount unmounts MountPoint, if mounted. Idempotent.
func (h *Harness) Unmount() error {
	if !h.mounted {
		return nil
	}
	if err := Unmount(); err != nil {
		return err
	}
	h.mounted = false
	return nil
}

// Close releases every acquired resource in reverse acquisition order,
// collecting every error encountered rather than stopping at the first,
// so a failure tearing down one resource doesn't strand the rest.
func (h *Harness) Close() error {
	var errs []error

	if h.mounted {
		if err := Unmount(); err != nil {
			errs = append(errs, err)
		} else {
			h.mounted = false
		}
	}
	if h.expire != nil {
		if err := h.expire.Close(); err != nil {
			errs = append(errs, err)
		}
		h.expire = nil
	}
	if h.wrapper != nil {
		if err := h.wrapper.Close(); err != nil {
			errs = append(errs, err)
		}
		h.wrapper = nil
	}
	if h.wrapperInserted {
		if err := RemoveWrapper(h.cfg.Verbose); err != nil {
			errs = append(errs, err)
		}
		h.wrapperInserted = false
	}
	if h.snapshot != nil {
		if err := h.snapshot.Close(); err != nil {
			errs = append(errs, err)
		}
		h.snapshot = nil
	}
	if h.cow != nil {
		if err := h.cow.Remove(h.cfg.Verbose); err != nil {
			errs = append(errs, err)
		}
		h.cow = nil
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("device: harness teardown: %w", errors.Join(errs...))
}
