package epoch

import (
	"reflect"
	"testing"

	"github.com/crashmonkey-go/crashmonkey/diskwrite"
)

func w(sector uint64, size uint32, flags diskwrite.Flag) diskwrite.DiskWrite {
	payload := []byte(nil)
	if flags.Has(diskwrite.FlagWrite) && size > 0 {
		payload = make([]byte, size)
	}
	return diskwrite.DiskWrite{Flags: flags, Sector: sector, Size: size, Payload: payload}
}

// S1 from the spec: W(0,4096), FLUSH, W(8,4096) -> two epochs, neither
// overlapping, the first terminated by the flush.
func TestBuildS1(t *testing.T) {
	t.Parallel()

	log := []diskwrite.DiskWrite{
		w(0, 4096, diskwrite.FlagWrite),
		w(0, 0, diskwrite.FlagFlush),
		w(8, 4096, diskwrite.FlagWrite),
	}
	epochs := Build(log)
	if len(epochs) != 2 {
		t.Fatalf("len(epochs) = %d, want 2", len(epochs))
	}
	if !epochs[0].HasBarrier {
		t.Error("epochs[0].HasBarrier = false, want true")
	}
	if epochs[0].Overlaps {
		t.Error("epochs[0].Overlaps = true, want false")
	}
	if len(epochs[0].Ops) != 2 {
		t.Fatalf("len(epochs[0].Ops) = %d, want 2", len(epochs[0].Ops))
	}
	if !epochs[0].Ops[len(epochs[0].Ops)-1].Write.IsBarrier() {
		t.Error("last op of epochs[0] is not the barrier")
	}
	if epochs[1].HasBarrier {
		t.Error("epochs[1].HasBarrier = true, want false")
	}
	if epochs[1].Overlaps {
		t.Error("epochs[1].Overlaps = true, want false")
	}
}

// S2 from the spec: two overwrites of sector 0 followed by a flush ->
// one overlapping epoch with a terminating barrier.
func TestBuildS2(t *testing.T) {
	t.Parallel()

	log := []diskwrite.DiskWrite{
		w(0, 512, diskwrite.FlagWrite),
		w(0, 512, diskwrite.FlagWrite),
		w(0, 0, diskwrite.FlagFlush),
	}
	epochs := Build(log)
	if len(epochs) != 1 {
		t.Fatalf("len(epochs) = %d, want 1", len(epochs))
	}
	if !epochs[0].Overlaps {
		t.Error("epochs[0].Overlaps = false, want true")
	}
	if !epochs[0].HasBarrier {
		t.Error("epochs[0].HasBarrier = false, want true")
	}
	if len(epochs[0].Ops) != 3 {
		t.Fatalf("len(epochs[0].Ops) = %d, want 3", len(epochs[0].Ops))
	}
	if !epochs[0].Ops[2].Write.IsBarrier() {
		t.Error("barrier op is not last")
	}
}

// Invariant 1: the concatenation of epoch op-slices equals the input log,
// in order.
func TestBuildTotality(t *testing.T) {
	t.Parallel()

	log := []diskwrite.DiskWrite{
		w(0, 512, diskwrite.FlagWrite),
		w(8, 512, diskwrite.FlagWrite),
		w(0, 0, diskwrite.FlagFlush),
		w(16, 512, diskwrite.FlagWrite),
		w(24, 512, diskwrite.FlagWrite),
	}
	epochs := Build(log)

	var reconstructed []diskwrite.DiskWrite
	for _, e := range epochs {
		for _, op := range e.Ops {
			reconstructed = append(reconstructed, op.Write)
		}
	}
	if len(reconstructed) != len(log) {
		t.Fatalf("len(reconstructed) = %d, want %d", len(reconstructed), len(log))
	}
	for i := range log {
		if !reflect.DeepEqual(reconstructed[i], log[i]) {
			t.Errorf("reconstructed[%d] = %+v, want %+v", i, reconstructed[i], log[i])
		}
	}
}

func TestBuildEmptyLog(t *testing.T) {
	t.Parallel()

	if epochs := Build(nil); len(epochs) != 0 {
		t.Errorf("Build(nil) = %v, want empty", epochs)
	}
}

func TestBuildNoTerminatingBarrier(t *testing.T) {
	t.Parallel()

	log := []diskwrite.DiskWrite{
		w(0, 512, diskwrite.FlagWrite),
		w(8, 512, diskwrite.FlagWrite),
	}
	epochs := Build(log)
	if len(epochs) != 1 {
		t.Fatalf("len(epochs) = %d, want 1", len(epochs))
	}
	if epochs[0].HasBarrier {
		t.Error("epochs[0].HasBarrier = true, want false")
	}
}

func TestDetectOverlapIgnoresNonWriteOps(t *testing.T) {
	t.Parallel()

	ops := []EpochOp{
		{Write: w(0, 512, diskwrite.FlagFlush)},
		{Write: w(0, 512, diskwrite.FlagDiscard)},
	}
	if detectOverlap(ops) {
		t.Error("detectOverlap() = true, want false: neither op carries the write flag")
	}
}
