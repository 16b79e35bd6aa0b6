package device

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// MountPoint is the single mount point the harness uses to run fsck
// recovery and inspect workload results, mirroring the original
// harness's fixed MNT_MNT_POINT.
const MountPoint = "/mnt/crashmonkey"

// Mount mounts device at MountPoint with the given file system type and
// raw mount data (e.g. "data=ordered" for ext4).
func Mount(device, fsType, data string) error {
	if _, err := os.Stat(device); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMntBadDev, device, err)
	}
	if err := unix.Mount(device, MountPoint, fsType, 0, data); err != nil {
		return fmt.Errorf("%w %s at %s as %s: %v", ErrMount, device, MountPoint, fsType, err)
	}
	return nil
}

// Unmount unmounts MountPoint.
func Unmount() error {
	if err := unix.Unmount(MountPoint, 0); err != nil {
		return fmt.Errorf("%w %s: %v", ErrUnmount, MountPoint, err)
	}
	return nil
}

// Mkfs formats device with fsType's default mkfs tool, discarding
// confirmation prompts the way scripted use requires.
func Mkfs(device, fsType string, verbose bool) error {
	args := []string{"-F", "-t", fsType, device}
	result, err := runCommand("mkfs", args...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMkfs, err)
	}
	if !result.IsSuccess() {
		if verbose {
			return fmt.Errorf("%w: exit %d: %s", ErrMkfs, result.ExitCode, result.Stderr)
		}
		return fmt.Errorf("%w: exit %d", ErrMkfs, result.ExitCode)
	}
	return nil
}

// FsckResult is the outcome of running fsck against a device.
type FsckResult struct {
	ExitCode int
	Output   string
}

// Fsck runs a forced, non-interactive fsck against device and reports
// its exit code without treating a nonzero code as a Go error: fsck's
// exit status is itself the signal the caller classifies (clean, fixed,
// unrecoverable).
func Fsck(device, fsType string) (FsckResult, error) {
	result, err := runCommand("fsck", "-t", fsType, "-f", "-y", device)
	if err != nil {
		return FsckResult{}, fmt.Errorf("%w: %v", ErrFsck, err)
	}
	return FsckResult{ExitCode: result.ExitCode, Output: result.Stdout + result.Stderr}, nil
}
