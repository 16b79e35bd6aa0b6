// Package epoch partitions a linear disk-write log into ordering epochs:
// the maximal runs of writes between two barriers.
package epoch

import (
	"sort"

	"github.com/crashmonkey-go/crashmonkey/diskwrite"
)

// EpochOp is one entry of an Epoch's op list: the write itself plus the
// index of the epoch it belongs to. It is a back-reference, not an
// ownership edge — the DiskWrite is stored by value here and in DiskLog.
type EpochOp struct {
	Write      diskwrite.DiskWrite
	EpochIndex int
}

// Epoch is a contiguous slice of the log issued between two barriers.
type Epoch struct {
	Ops []EpochOp
	// HasBarrier reports whether this epoch ends on a barrier op; when true
	// the barrier is guaranteed to be the last element of Ops.
	HasBarrier bool
	// Overlaps reports whether any two ops in this epoch write to
	// intersecting sector ranges.
	Overlaps bool
}

// DiskLog is a recorded write log together with its derived epoch
// partitioning.
type DiskLog struct {
	Writes []diskwrite.DiskWrite
	Epochs []Epoch
}

// CrashState is a prefix of some legal reordering of a log: zero or more
// complete epochs in original order, optionally followed by a proper
// prefix of the next epoch.
type CrashState []EpochOp

// NewDiskLog partitions writes into epochs and returns the combined log.
// Build is pure and total: for any input, every op in writes appears in
// exactly one epoch, in order.
func NewDiskLog(writes []diskwrite.DiskWrite) DiskLog {
	return DiskLog{Writes: writes, Epochs: Build(writes)}
}

// Build scans writes left to right, appending to the current epoch and
// closing it whenever a barrier op is encountered.
func Build(writes []diskwrite.DiskWrite) []Epoch {
	var epochs []Epoch
	var current []EpochOp
	epochIndex := 0

	flush := func(hasBarrier bool) {
		if len(current) == 0 && !hasBarrier {
			return
		}
		e := Epoch{Ops: current, HasBarrier: hasBarrier}
		e.Overlaps = detectOverlap(e.Ops)
		epochs = append(epochs, e)
		current = nil
		epochIndex++
	}

	for _, w := range writes {
		current = append(current, EpochOp{Write: w, EpochIndex: epochIndex})
		if w.IsBarrier() {
			flush(true)
		}
	}
	// Trailing ops with no terminating barrier form a final epoch.
	if len(current) > 0 {
		flush(false)
	}
	return epochs
}

type byteRange struct {
	start, end uint64
}

// detectOverlap reports whether any two write ranges in ops intersect. Ops
// without the write flag (pure flushes, discards without effect) carry no
// byte range and are ignored.
func detectOverlap(ops []EpochOp) bool {
	var ranges []byteRange
	for _, op := range ops {
		if !op.Write.HasWriteFlag() {
			continue
		}
		start, end := op.Write.ByteRange()
		ranges = append(ranges, byteRange{start, end})
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })
	for i := 1; i < len(ranges); i++ {
		if ranges[i].start < ranges[i-1].end {
			return true
		}
	}
	return false
}
