package diskwrite

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriteLogReadLogRoundTrip(t *testing.T) {
	t.Parallel()

	log := []DiskWrite{
		{Flags: FlagWrite, Sector: 0, Size: 8, Payload: bytes.Repeat([]byte{0xAB}, 8)},
		{Flags: FlagFlush, Sector: 0, Size: 0},
		{Flags: FlagWrite | FlagFUA, Sector: 16, Size: 4096, Payload: bytes.Repeat([]byte{0x01}, 4096)},
		{Flags: FlagDiscard, Sector: 1024, Size: 512},
		{Flags: FlagCheckpoint, Sector: 1, Size: 0},
	}

	var buf bytes.Buffer
	if err := WriteLog(&buf, log); err != nil {
		t.Fatalf("WriteLog failed: %v", err)
	}

	got, err := ReadLog(&buf)
	if err != nil {
		t.Fatalf("ReadLog failed: %v", err)
	}

	if diff := cmp.Diff(log, got); diff != "" {
		t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadLogEmptyLog(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteLog(&buf, nil); err != nil {
		t.Fatalf("WriteLog failed: %v", err)
	}

	got, err := ReadLog(&buf)
	if err != nil {
		t.Fatalf("ReadLog failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadLog of empty log = %v, want empty", got)
	}
}

func TestReadLogInvalidMagic(t *testing.T) {
	t.Parallel()

	_, err := ReadLog(bytes.NewReader([]byte{0, 0, 0, 0, 1}))
	if err != ErrInvalidMagic {
		t.Errorf("ReadLog error = %v, want %v", err, ErrInvalidMagic)
	}
}

func TestReadLogTruncatedPayload(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteLog(&buf, []DiskWrite{
		{Flags: FlagWrite, Sector: 0, Size: 16, Payload: make([]byte, 16)},
	}); err != nil {
		t.Fatalf("WriteLog failed: %v", err)
	}

	truncated := buf.Bytes()[:len(buf.Bytes())-4]
	if _, err := ReadLog(bytes.NewReader(truncated)); err == nil {
		t.Error("ReadLog of truncated payload = nil error, want error")
	}
}

func TestDiskWriteValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		w       DiskWrite
		wantErr bool
	}{
		{"write with matching payload", DiskWrite{Flags: FlagWrite, Size: 4, Payload: make([]byte, 4)}, false},
		{"write with missing payload", DiskWrite{Flags: FlagWrite, Size: 4}, true},
		{"write with mismatched payload", DiskWrite{Flags: FlagWrite, Size: 4, Payload: make([]byte, 2)}, true},
		{"discard with no payload", DiskWrite{Flags: FlagDiscard, Size: 512}, false},
		{"pure flush with no payload", DiskWrite{Flags: FlagFlush}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.w.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestHasWriteFlagIsBarrierIsAsync(t *testing.T) {
	t.Parallel()

	w := DiskWrite{Flags: FlagWrite | FlagFUA}
	if !w.HasWriteFlag() {
		t.Error("HasWriteFlag() = false, want true")
	}
	if !w.IsBarrier() {
		t.Error("IsBarrier() = false, want true (FUA)")
	}
	if w.IsAsync() {
		t.Error("IsAsync() = true, want false (FUA forces sync)")
	}

	flush := DiskWrite{Flags: FlagFlush}
	if flush.HasWriteFlag() {
		t.Error("HasWriteFlag() = true, want false for pure flush")
	}
	if !flush.IsBarrier() {
		t.Error("IsBarrier() = false, want true (FLUSH)")
	}

	async := DiskWrite{Flags: FlagWrite}
	if !async.IsAsync() {
		t.Error("IsAsync() = false, want true for plain write")
	}
}
