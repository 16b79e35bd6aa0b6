package results

import (
	"strings"
	"testing"
)

func TestTestSuiteResultSummarize(t *testing.T) {
	t.Parallel()

	var suite TestSuiteResult
	suite.AddCompleted(SingleTestInfo{
		FsTest:   FileSystemTestResult{ErrorKind: FSClean},
		DataTest: DataTestResult{ErrorKind: DataClean},
	})
	suite.AddCompleted(SingleTestInfo{
		FsTest:   FileSystemTestResult{ErrorKind: FSFixed, FsckExitCode: 1},
		DataTest: DataTestResult{ErrorKind: DataClean},
	})
	suite.AddCompleted(SingleTestInfo{
		FsTest:   FileSystemTestResult{ErrorKind: FSClean},
		DataTest: DataTestResult{ErrorKind: DataFileMissing},
	})
	suite.AddCompleted(SingleTestInfo{
		FsTest:   FileSystemTestResult{ErrorKind: FSCheck},
		DataTest: DataTestResult{ErrorKind: DataClean},
	})

	if got := suite.Completed(); got != 4 {
		t.Fatalf("Completed() = %d, want 4", got)
	}

	sum := suite.Summarize()
	if sum.PassedClean != 1 {
		t.Errorf("PassedClean = %d, want 1", sum.PassedClean)
	}
	if sum.PassedFixed != 1 {
		t.Errorf("PassedFixed = %d, want 1", sum.PassedFixed)
	}
	if sum.Failed != 2 {
		t.Errorf("Failed = %d, want 2", sum.Failed)
	}
	if sum.FileMissing != 1 {
		t.Errorf("FileMissing = %d, want 1", sum.FileMissing)
	}
}

// Passed accepts a Clean or Fixed file-system result with clean data and
// rejects a Check failure or corrupted data.
func TestSingleTestInfoPassed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		info SingleTestInfo
		want bool
	}{
		{"clean", SingleTestInfo{FileSystemTestResult{ErrorKind: FSClean}, DataTestResult{ErrorKind: DataClean}}, true},
		{"fixed", SingleTestInfo{FileSystemTestResult{ErrorKind: FSFixed}, DataTestResult{ErrorKind: DataClean}}, true},
		{"check failure", SingleTestInfo{FileSystemTestResult{ErrorKind: FSCheck}, DataTestResult{ErrorKind: DataClean}}, false},
		{"data corrupted", SingleTestInfo{FileSystemTestResult{ErrorKind: FSClean}, DataTestResult{ErrorKind: DataFileDataCorrupted}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.info.Passed(); got != tc.want {
				t.Errorf("Passed() = %v, want %v", got, tc.want)
			}
		})
	}
}

// S4: a suite shorter than the requested round count explicitly reports
// that the permuter ran out of distinct states.
func TestSummaryStringReportsEarlyTermination(t *testing.T) {
	t.Parallel()

	var suite TestSuiteResult
	suite.SetRequested(1000)
	for i := 0; i < 4; i++ {
		suite.AddCompleted(SingleTestInfo{
			FsTest:   FileSystemTestResult{ErrorKind: FSClean},
			DataTest: DataTestResult{ErrorKind: DataClean},
		})
	}

	got := suite.Summarize().String()
	want := "unable to find new unique state, stopping at 4 tests"
	if !strings.Contains(got, want) {
		t.Errorf("Summary.String() = %q, want substring %q", got, want)
	}
}

func TestSummaryStringOmitsEarlyTerminationWhenRoundsExhaustRequest(t *testing.T) {
	t.Parallel()

	var suite TestSuiteResult
	suite.SetRequested(1)
	suite.AddCompleted(SingleTestInfo{
		FsTest:   FileSystemTestResult{ErrorKind: FSClean},
		DataTest: DataTestResult{ErrorKind: DataClean},
	})

	if got := suite.Summarize().String(); strings.Contains(got, "unable to find") {
		t.Errorf("Summary.String() = %q, should not report early termination", got)
	}
}

func TestFileSystemErrorKindString(t *testing.T) {
	t.Parallel()
	if FSFixed.String() != "Fixed" {
		t.Errorf("FSFixed.String() = %q, want Fixed", FSFixed.String())
	}
}
