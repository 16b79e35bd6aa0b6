// Package results defines the outcome types the crash-state test loop
// produces for each round, and a summary renderer over a full run.
package results

import "fmt"

// FileSystemErrorKind classifies how a single round's on-disk recovery
// path went.
type FileSystemErrorKind int

const (
	// FSClean means fsck reported no errors.
	FSClean FileSystemErrorKind = iota
	// FSSnapshotRestore means restoring the CoW snapshot to the clean
	// post-setup state failed.
	FSSnapshotRestore
	// FSBioWrite means writing the permuted crash state to the snapshot
	// device failed.
	FSBioWrite
	// FSKernelMount means the post-replay mount/umount (intended to let
	// the file system run journal recovery) failed.
	FSKernelMount
	// FSCheck means fsck exited with a status outside {0, 1}.
	FSCheck
	// FSFixed means fsck exited nonzero but check_test still reported the
	// data as consistent: fsck repaired the image.
	FSFixed
	// FSUnmountable means the read/write mount after fsck failed.
	FSUnmountable
)

func (k FileSystemErrorKind) String() string {
	switch k {
	case FSClean:
		return "Clean"
	case FSSnapshotRestore:
		return "SnapshotRestore"
	case FSBioWrite:
		return "BioWrite"
	case FSKernelMount:
		return "KernelMount"
	case FSCheck:
		return "Check"
	case FSFixed:
		return "Fixed"
	case FSUnmountable:
		return "Unmountable"
	default:
		return fmt.Sprintf("FileSystemErrorKind(%d)", int(k))
	}
}

// DataErrorKind classifies what a workload's checker found wrong with the
// recovered data, if anything.
type DataErrorKind int

const (
	// DataClean means the checker found no problems.
	DataClean DataErrorKind = iota
	// DataOldFilePersisted means data predating the workload run is still
	// present when it should have been replaced.
	DataOldFilePersisted
	// DataFileMissing means an expected file was not found at all.
	DataFileMissing
	// DataFileDataCorrupted means file content did not match what the
	// workload expected for the replayed prefix.
	DataFileDataCorrupted
	// DataFileMetadataCorrupted means file metadata (size, link count,
	// etc.) did not match expectations.
	DataFileMetadataCorrupted
	// DataOther covers any other failure the workload reports without a
	// more specific kind.
	DataOther
)

func (k DataErrorKind) String() string {
	switch k {
	case DataClean:
		return "Clean"
	case DataOldFilePersisted:
		return "OldFilePersisted"
	case DataFileMissing:
		return "FileMissing"
	case DataFileDataCorrupted:
		return "FileDataCorrupted"
	case DataFileMetadataCorrupted:
		return "FileMetadataCorrupted"
	case DataOther:
		return "Other"
	default:
		return fmt.Sprintf("DataErrorKind(%d)", int(k))
	}
}

// FileSystemTestResult is the outcome of one round's mount/fsck/mount
// path.
type FileSystemTestResult struct {
	ErrorKind    FileSystemErrorKind
	FsckExitCode int
}

// DataTestResult is the outcome of one round's workload-specific checker.
type DataTestResult struct {
	ErrorKind   DataErrorKind
	Description string
}

// SingleTestInfo is the combined outcome of one crash-state round.
type SingleTestInfo struct {
	FsTest   FileSystemTestResult
	DataTest DataTestResult
}

// Passed reports whether this round is a pass (clean or fixed file
// system, clean data).
func (s SingleTestInfo) Passed() bool {
	if s.DataTest.ErrorKind != DataClean {
		return false
	}
	return s.FsTest.ErrorKind == FSClean || s.FsTest.ErrorKind == FSFixed
}

// TestSuiteResult is an append-only collection of per-round outcomes for
// one test run.
type TestSuiteResult struct {
	completed []SingleTestInfo
	requested int
}

// SetRequested records how many rounds the run asked for, so Summarize
// can report early termination (the permuter ran out of distinct crash
// states before num_rounds was reached) instead of silently under-counting.
func (s *TestSuiteResult) SetRequested(n int) {
	s.requested = n
}

// AddCompleted appends a round's outcome.
func (s *TestSuiteResult) AddCompleted(info SingleTestInfo) {
	s.completed = append(s.completed, info)
}

// Completed returns the number of rounds recorded so far.
func (s *TestSuiteResult) Completed() int {
	return len(s.completed)
}

// All returns every recorded round, in order.
func (s *TestSuiteResult) All() []SingleTestInfo {
	return s.completed
}

// Summary aggregates pass/fail counts across every recorded round.
type Summary struct {
	PassedClean int
	PassedFixed int
	Failed      int

	OldFilePersisted      int
	FileMissing           int
	FileDataCorrupted     int
	FileMetadataCorrupted int
	Other                 int

	// Requested is the number of rounds the run asked for; Completed (via
	// PassedClean+PassedFixed+Failed) may be smaller when the permuter
	// exhausted its distinct crash states early.
	Requested int
}

// Summarize computes a Summary over every recorded round.
func (s *TestSuiteResult) Summarize() Summary {
	sum := Summary{Requested: s.requested}
	for _, r := range s.completed {
		switch {
		case r.FsTest.ErrorKind == FSClean && r.DataTest.ErrorKind == DataClean:
			sum.PassedClean++
		case r.FsTest.ErrorKind == FSFixed && r.DataTest.ErrorKind == DataClean:
			sum.PassedFixed++
		default:
			sum.Failed++
			switch r.DataTest.ErrorKind {
			case DataOldFilePersisted:
				sum.OldFilePersisted++
			case DataFileMissing:
				sum.FileMissing++
			case DataFileDataCorrupted:
				sum.FileDataCorrupted++
			case DataFileMetadataCorrupted:
				sum.FileMetadataCorrupted++
			case DataOther:
				sum.Other++
			}
		}
	}
	return sum
}

// String renders the summary the way the original harness's text report
// does: total count, pass/fail breakdown, and failure sub-kinds.
func (sum Summary) String() string {
	total := sum.PassedClean + sum.PassedFixed + sum.Failed
	s := fmt.Sprintf(
		"Ran %d tests with\n\tpassed cleanly: %d\n\tpassed fixed: %d\n\tfailed: %d\n"+
			"\t\told file persisted: %d\n\t\tfile missing: %d\n\t\tfile data corrupted: %d\n"+
			"\t\tfile metadata corrupted: %d\n\t\tother: %d",
		total, sum.PassedClean, sum.PassedFixed, sum.Failed,
		sum.OldFilePersisted, sum.FileMissing, sum.FileDataCorrupted,
		sum.FileMetadataCorrupted, sum.Other)
	if sum.Requested > 0 && total < sum.Requested {
		s += fmt.Sprintf("\nunable to find new unique state, stopping at %d tests", total)
	}
	return s
}
