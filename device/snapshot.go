package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sys/unix"
)

// cow_brd ioctl codes. These are defined by the cow_brd kernel module's
// own header, not by this repository; the values here are placeholders,
// not taken from that header.
const (
	ioctlCowSnapshot        = 0xff10
	ioctlCowRestoreSnapshot = 0xff11
	ioctlCowWipe            = 0xff12

	cowBrdControlPath = "/dev/cow_ram0"
	cowBrdModuleName  = "cow_brd.ko"
)

// partitionRescanRetryWindow bounds how long Snapshot.Restore retries a
// BLKRRPART rescan against a transient EBUSY before giving up, the same
// condition the original harness spun on unconditionally.
const partitionRescanRetryWindow = 5 * time.Second

// CowDisk is a handle on the cow_brd control device, the RAM-backed block
// device that snapshots are taken against.
type CowDisk struct {
	fd int
}

// InsertCowBrd loads the cow_brd kernel module with the given geometry
// and opens its control device.
func InsertCowBrd(numDisks, numSnapshots int, diskSizeKB int, verbose bool) (*CowDisk, error) {
	args := []string{cowBrdModuleName,
		fmt.Sprintf("num_disks=%d", numDisks),
		fmt.Sprintf("num_snapshots=%d", numSnapshots),
		fmt.Sprintf("disk_size=%d", diskSizeKB),
	}
	if err := insertModule("insmod", args, verbose, ErrCowInsert); err != nil {
		return nil, err
	}
	fd, err := unix.Open(cowBrdControlPath, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		_ = removeModule(cowBrdModuleName, verbose, ErrCowRemove)
		return nil, fmt.Errorf("%w: %v", ErrCowOpenDev, err)
	}
	return &CowDisk{fd: fd}, nil
}

// Remove closes the control fd and unloads cow_brd. Idempotent.
func (c *CowDisk) Remove(verbose bool) error {
	if c.fd >= 0 {
		_ = unix.Close(c.fd)
		c.fd = -1
	}
	return removeModule(cowBrdModuleName, verbose, ErrCowRemove)
}

// Snapshot takes a fresh copy-on-write snapshot of the backing disk. The
// returned handle has no device node open (its fd is -1); it cannot read
// or write until an fd is attached, as NewHarness does.
func (c *CowDisk) Snapshot() (*Snapshot, error) {
	if err := ioctlNoArgErr(c.fd, ioctlCowSnapshot); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotTake, err)
	}
	return &Snapshot{fd: -1}, nil
}

// Snapshot is a handle on one cow_brd snapshot device node.
type Snapshot struct {
	fd   int
	path string
}

// OpenSnapshot opens the snapshot device node at path for reading and
// writing crash states.
func OpenSnapshot(path string) (*Snapshot, error) {
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("device: open snapshot device: %w", err)
	}
	return &Snapshot{fd: fd, path: path}, nil
}

// Close releases the snapshot fd. Idempotent.
func (s *Snapshot) Close() error {
	if s.fd < 0 {
		return nil
	}
	fd := s.fd
	s.fd = -1
	return unix.Close(fd)
}

// Fd returns the raw file descriptor, for WriteAt/ReadAt-style callers
// that need direct positioned I/O against the snapshot device.
func (s *Snapshot) Fd() int {
	return s.fd
}

// WriteAt writes data at the given byte offset, looping on short writes
// the way the original harness's test_write_data retries a partial
// write(2) until the whole payload lands.
func (s *Snapshot) WriteAt(data []byte, offset int64) error {
	written := 0
	for written < len(data) {
		n, err := unix.Pwrite(s.fd, data[written:], offset+int64(written))
		if err != nil {
			return fmt.Errorf("device: write at offset %d: %w", offset+int64(written), err)
		}
		if n == 0 {
			return fmt.Errorf("device: write at offset %d: zero bytes written", offset+int64(written))
		}
		written += n
	}
	return nil
}

// Restore rewinds the snapshot layer back to the state it was in when
// Snapshot was taken, discarding everything written since. When rescan
// is true it additionally asks the kernel to reread the partition table,
// retrying on EBUSY up to partitionRescanRetryWindow: the only retry
// point in the whole device-control surface.
func (s *Snapshot) Restore(ctx context.Context, rescan bool) error {
	if err := ioctlNoArgErr(s.fd, ioctlCowRestoreSnapshot); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotRestore, err)
	}
	if !rescan {
		return nil
	}

	backoff := retry.WithMaxDuration(partitionRescanRetryWindow, retry.NewConstant(50*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		rerr := ioctlNoArgErr(s.fd, unix.BLKRRPART)
		if rerr == nil {
			return nil
		}
		if errors.Is(rerr, unix.EBUSY) {
			return retry.RetryableError(rerr)
		}
		return rerr
	})
	if err != nil {
		return fmt.Errorf("%w: rescan partition table: %v", ErrPartitionRescan, err)
	}
	return nil
}

// Wipe clears the outstanding snapshot layer. The crash-state loop calls
// it before each restore, and LoadImage before writing a fresh disk image.
func (s *Snapshot) Wipe() error {
	if err := ioctlNoArgErr(s.fd, ioctlCowWipe); err != nil {
		return fmt.Errorf("%w: %v", ErrSnapshotWipe, err)
	}
	return nil
}

func ioctlNoArgErr(fd int, req uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
