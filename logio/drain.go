// Package logio drains the recorded write log off the wrapper ioctl
// device into a diskwrite.DiskWrite slice, and persists that slice to
// and from disk.
package logio

import (
	"errors"
	"fmt"

	"github.com/crashmonkey-go/crashmonkey/device"
	"github.com/crashmonkey-go/crashmonkey/diskwrite"
)

// ErrMetaFault is returned when the kernel faults while fetching an
// entry's metadata; the in-progress log is unrecoverable and must be
// discarded.
var ErrMetaFault = errors.New("logio: fault reading log entry metadata")

// ErrDataFault is returned when the kernel faults while fetching an
// entry's payload; the in-progress log is unrecoverable and must be
// discarded.
var ErrDataFault = errors.New("logio: fault reading log entry data")

// ErrNextEntry is returned when advancing past a drained entry fails for
// a reason other than the log being empty.
var ErrNextEntry = errors.New("logio: advancing to next log entry failed")

// bioRW mirrors the kernel's REQ_* bit assignments closely enough to
// translate bi_rw into diskwrite.Flag; only the bits the harness cares
// about are modeled.
const (
	bioRWWrite   = 1 << 0
	bioRWFlush   = 1 << 1
	bioRWFUA     = 1 << 2
	bioRWSync    = 1 << 3
	bioRWMeta    = 1 << 4
	bioRWDiscard = 1 << 5
	bioRWBarrier = 1 << 6
	// bioRWCheckpoint is set on the synthetic entry device.Wrapper.Checkpoint
	// appends; it is a harness extension, not a real kernel REQ_* bit.
	bioRWCheckpoint = 1 << 7
)

func translateFlags(meta device.DiskWriteOpMeta) diskwrite.Flag {
	var f diskwrite.Flag
	rw := meta.BiRw
	if rw&bioRWWrite != 0 {
		f |= diskwrite.FlagWrite
	}
	if rw&bioRWFlush != 0 {
		f |= diskwrite.FlagFlush
	}
	if rw&bioRWFUA != 0 {
		f |= diskwrite.FlagFUA
	}
	if rw&bioRWSync != 0 {
		f |= diskwrite.FlagSync
	}
	if rw&bioRWMeta != 0 || meta.BiFlags&bioRWMeta != 0 {
		f |= diskwrite.FlagMeta
	}
	if rw&bioRWDiscard != 0 {
		f |= diskwrite.FlagDiscard
	}
	if rw&bioRWBarrier != 0 {
		f |= diskwrite.FlagBarrier
	}
	if rw&bioRWCheckpoint != 0 {
		f |= diskwrite.FlagCheckpoint
	}
	return f
}

// Drain pulls every recorded entry off w, translating each into a
// diskwrite.DiskWrite, until the log is exhausted (ENODATA). It mirrors
// Tester::get_wrapper_log's meta -> data -> next-entry loop, including its
// distinction between a fault reading metadata (ErrMetaFault) and a fault
// reading payload data (ErrDataFault): both are unrecoverable and the
// caller should discard whatever was drained so far.
func Drain(w *device.Wrapper) ([]diskwrite.DiskWrite, error) {
	var out []diskwrite.DiskWrite
	for {
		meta, err := w.GetLogMeta()
		if errors.Is(err, device.ErrNoLogData) {
			break
		}
		if errors.Is(err, device.ErrLogFault) {
			return nil, ErrMetaFault
		}
		if err != nil {
			return nil, fmt.Errorf("logio: get log meta: %w", err)
		}

		data, err := w.GetLogData(meta.Size)
		if errors.Is(err, device.ErrLogFault) {
			return nil, ErrDataFault
		}
		if err != nil {
			return nil, fmt.Errorf("logio: get log data: %w", err)
		}

		out = append(out, diskwrite.DiskWrite{
			Flags:   translateFlags(meta),
			Sector:  meta.WriteSector,
			Size:    meta.Size,
			Payload: data,
		})

		err = w.NextEntry()
		if errors.Is(err, device.ErrNoLogData) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNextEntry, err)
		}
	}
	return out, nil
}
