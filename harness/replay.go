package harness

import (
	"fmt"

	"github.com/crashmonkey-go/crashmonkey/diskwrite"
)

// RawWriter is the minimal surface ReplayLog needs from a block device:
// a positioned write, exactly what device.Snapshot provides.
type RawWriter interface {
	WriteAt(data []byte, offset int64) error
}

// ReplayLog writes every write-flagged, non-checkpoint op in log to dev
// in original recorded order, outside the permutation loop. This is
// useful for manually reproducing a recorded run's final on-disk state
// against the original device, bypassing crash-state generation
// entirely.
func ReplayLog(dev RawWriter, log []diskwrite.DiskWrite) error {
	for i, w := range log {
		if !w.HasWriteFlag() || w.IsCheckpoint() {
			continue
		}
		start, _ := w.ByteRange()
		if err := dev.WriteAt(w.Payload, int64(start)); err != nil {
			return fmt.Errorf("harness: replay op %d at sector %d: %w", i, w.Sector, err)
		}
	}
	return nil
}
