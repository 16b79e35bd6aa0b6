package device

import "errors"

// Sentinel errors for the external resources Harness acquires and
// releases, in acquisition order. Each is wrapped together with the text
// of the underlying os/exec or syscall error, so callers can errors.Is
// against the stage that failed; the underlying error itself is only
// formatted into the message, not wrapped.
var (
	ErrCowInsert  = errors.New("device: insert cow_brd module")
	ErrCowRemove  = errors.New("device: remove cow_brd module")
	ErrCowOpenDev = errors.New("device: open cow_brd control device")

	ErrWrapperInsert  = errors.New("device: insert disk_wrapper module")
	ErrWrapperRemove  = errors.New("device: remove disk_wrapper module")
	ErrWrapperOpenDev = errors.New("device: open disk_wrapper ioctl device")

	ErrMount     = errors.New("device: mount")
	ErrUnmount   = errors.New("device: unmount")
	ErrMntBadDev = errors.New("device: mount target is not a valid device")

	// ErrLvmPvInit is carried forward from the original harness's error
	// taxonomy for an LVM-backed variant of device acquisition; this
	// implementation's own acquisition chain (cow_brd + disk_wrapper) has
	// no LVM step, so nothing in this package returns it today.
	ErrLvmPvInit = errors.New("device: initialize LVM physical volume")

	ErrSnapshotTake    = errors.New("device: take cow snapshot")
	ErrSnapshotRestore = errors.New("device: restore cow snapshot")
	ErrSnapshotWipe    = errors.New("device: wipe cow snapshot")

	ErrPartitionRescan = errors.New("device: rescan partition table")
	ErrPartitionDrive  = errors.New("device: partition drive")
	ErrWipePartitions  = errors.New("device: wipe partitions")

	ErrSysctlRead  = errors.New("device: read sysctl")
	ErrSysctlWrite = errors.New("device: write sysctl")

	ErrMkfs  = errors.New("device: mkfs")
	ErrFsck  = errors.New("device: fsck")
)
