package harness

import "fmt"

// Timings accumulates the same wall-clock buckets the original harness
// reports: time spent permuting, restoring the snapshot, writing the
// crash state, running fsck, running the workload's checker, and the
// run as a whole.
type Timings struct {
	Permute  Duration
	Snapshot Duration
	BioWrite Duration
	Fsck     Duration
	TestCase Duration
	Total    Duration
}

// Duration is a millisecond count, matching the original harness's
// duration_cast<milliseconds> accumulation.
type Duration int64

// String renders a Duration in milliseconds.
func (d Duration) String() string {
	return fmt.Sprintf("%dms", int64(d))
}

// String renders every bucket on its own line.
func (t Timings) String() string {
	return fmt.Sprintf(
		"permute: %s\nsnapshot: %s\nbio write: %s\nfsck: %s\ntest case: %s\ntotal: %s",
		t.Permute, t.Snapshot, t.BioWrite, t.Fsck, t.TestCase, t.Total)
}
