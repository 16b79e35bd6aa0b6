// Package device manages the external kernel-module and mount resources
// the harness drives: the CoW RAM block device, the block-layer logging
// wrapper, and the single mount point, plus the process-wide tunables the
// harness temporarily overrides.
package device

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Wrapper ioctl codes on /dev/hwm.
const (
	ioctlLogOff      = 0xff00
	ioctlLogOn       = 0xff01
	ioctlGetLogMeta  = 0xff02
	ioctlGetLogData  = 0xff03
	ioctlNextEnt     = 0xff04
	ioctlClrLog      = 0xff05
	// ioctlCheckpoint is a harness extension beyond the original wrapper
	// ioctl set: it appends a synthetic, zero-size log entry carrying a
	// checkpoint number in place of a sector, so Checkpoint() calls show
	// up in the drained log at the position they were issued.
	ioctlCheckpoint = 0xff06

	wrapperDevicePath = "/dev/hwm"
)

// DiskWriteOpMeta mirrors the kernel wrapper's disk_write_op_meta wire
// layout exactly: native byte order, three native-word fields followed by
// a 32-bit size, since this is a kernel-local interface rather than a
// portable wire format.
type DiskWriteOpMeta struct {
	BiFlags     uint64
	BiRw        uint64
	WriteSector uint64
	Size        uint32
}

// ErrNoLogData is returned by GetLogMeta/NextEntry when the log is empty
// (kernel ENODATA).
var ErrNoLogData = errors.New("device: wrapper log is empty")

// ErrLogFault is returned when the kernel reports EFAULT while draining
// the log; the caller must treat the log as corrupt and discard it.
var ErrLogFault = errors.New("device: wrapper log drain faulted")

// Wrapper is a handle on the block-layer logging wrapper's ioctl device.
type Wrapper struct {
	fd int
}

// OpenWrapper opens the wrapper ioctl device. The wrapper kernel module
// must already be inserted.
func OpenWrapper() (*Wrapper, error) {
	fd, err := unix.Open(wrapperDevicePath, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrapperOpenDev, err)
	}
	return &Wrapper{fd: fd}, nil
}

// Close releases the wrapper ioctl fd. Idempotent.
func (w *Wrapper) Close() error {
	if w.fd < 0 {
		return nil
	}
	fd := w.fd
	w.fd = -1
	return unix.Close(fd)
}

// LogOn starts recording.
func (w *Wrapper) LogOn() error {
	return ioctlNoArg(w.fd, ioctlLogOn)
}

// LogOff stops recording.
func (w *Wrapper) LogOff() error {
	return ioctlNoArg(w.fd, ioctlLogOff)
}

// ClearLog discards all recorded entries.
func (w *Wrapper) ClearLog() error {
	return ioctlNoArg(w.fd, ioctlClrLog)
}

// GetLogMeta fetches the metadata for the head log entry.
func (w *Wrapper) GetLogMeta() (DiskWriteOpMeta, error) {
	var meta DiskWriteOpMeta
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(w.fd), ioctlGetLogMeta, uintptr(unsafe.Pointer(&meta)))
	if errno == unix.ENODATA {
		return DiskWriteOpMeta{}, ErrNoLogData
	}
	if errno == unix.EFAULT {
		return DiskWriteOpMeta{}, ErrLogFault
	}
	if errno != 0 {
		return DiskWriteOpMeta{}, fmt.Errorf("device: HWM_GET_LOG_META: %w", errno)
	}
	return meta, nil
}

// GetLogData copies the head log entry's payload (size bytes, from the
// meta just fetched) into a freshly allocated buffer.
func (w *Wrapper) GetLogData(size uint32) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(w.fd), ioctlGetLogData, uintptr(unsafe.Pointer(&buf[0])))
	if errno == unix.EFAULT {
		return nil, ErrLogFault
	}
	if errno != 0 {
		return nil, fmt.Errorf("device: HWM_GET_LOG_DATA: %w", errno)
	}
	return buf, nil
}

// NextEntry advances the log head past the entry just read.
func (w *Wrapper) NextEntry() error {
	err := ioctlNoArg(w.fd, ioctlNextEnt)
	if errors.Is(err, ErrNoLogData) {
		return ErrNoLogData
	}
	return err
}

// Checkpoint appends a synthetic checkpoint marker entry to the log at
// its current write position, recording n as the checkpoint number.
func (w *Wrapper) Checkpoint(n uint32) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(w.fd), ioctlCheckpoint, uintptr(n))
	if errno != 0 {
		return fmt.Errorf("device: HWM_CHECKPOINT: %w", errno)
	}
	return nil
}

func ioctlNoArg(fd int, req uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, 0)
	if errno == unix.ENODATA {
		return ErrNoLogData
	}
	if errno != 0 {
		return errno
	}
	return nil
}

// InsertWrapper loads the wrapper kernel module, pointing it at the CoW
// snapshot device as the target and flagsDevicePath for per-bio flag
// recovery.
func InsertWrapper(snapshotPath, flagsDevicePath string, verbose bool) error {
	args := []string{"disk_wrapper.ko",
		"target_device_path=" + snapshotPath,
		"flags_device_path=" + flagsDevicePath}
	return insertModule("insmod", args, verbose, ErrWrapperInsert)
}

// RemoveWrapper unloads the wrapper kernel module.
func RemoveWrapper(verbose bool) error {
	return removeModule("disk_wrapper.ko", verbose, ErrWrapperRemove)
}

func insertModule(cmd string, args []string, verbose bool, sentinel error) error {
	result, err := runCommand(cmd, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", sentinel, err)
	}
	if !result.IsSuccess() {
		if verbose {
			fmt.Fprintln(os.Stderr, result.Stderr)
		}
		return fmt.Errorf("%w: exit %d", sentinel, result.ExitCode)
	}
	return nil
}

func removeModule(name string, verbose bool, sentinel error) error {
	result, err := runCommand("rmmod", name)
	if err != nil {
		return fmt.Errorf("%w: %v", sentinel, err)
	}
	if !result.IsSuccess() {
		if verbose {
			fmt.Fprintln(os.Stderr, result.Stderr)
		}
		return fmt.Errorf("%w: exit %d", sentinel, result.ExitCode)
	}
	return nil
}
