package exhaustive

import (
	"testing"

	"github.com/crashmonkey-go/crashmonkey/diskwrite"
	"github.com/crashmonkey-go/crashmonkey/epoch"
)

func w(sector uint64, size uint32, flags diskwrite.Flag) diskwrite.DiskWrite {
	var payload []byte
	if flags.Has(diskwrite.FlagWrite) && size > 0 {
		payload = make([]byte, size)
	}
	return diskwrite.DiskWrite{Flags: flags, Sector: sector, Size: size, Payload: payload}
}

func TestExhaustiveS1CoversAllLegalStates(t *testing.T) {
	t.Parallel()

	log := epoch.NewDiskLog([]diskwrite.DiskWrite{
		w(0, 4096, diskwrite.FlagWrite),
		w(0, 0, diskwrite.FlagFlush),
		w(8, 4096, diskwrite.FlagWrite),
	})

	p := New(DefaultMaxStates)
	p.Init(log)

	var lens []int
	for {
		state, ok := p.GenerateCrashState()
		if !ok {
			break
		}
		lens = append(lens, len(state))
	}
	if len(lens) != 3 {
		t.Fatalf("got %d states, want 3 ([W0], [W0,FLUSH], [W0,FLUSH,W8])", len(lens))
	}
}

func TestExhaustiveTerminatesAndIsDeterministic(t *testing.T) {
	t.Parallel()

	log := epoch.NewDiskLog([]diskwrite.DiskWrite{
		w(0, 512, diskwrite.FlagWrite),
		w(8, 512, diskwrite.FlagWrite),
		w(8, 512, diskwrite.FlagWrite),
		w(0, 0, diskwrite.FlagFlush),
	})

	p1 := New(DefaultMaxStates)
	p1.Init(log)
	p2 := New(DefaultMaxStates)
	p2.Init(log)

	for i := 0; i < 100; i++ {
		s1, ok1 := p1.GenerateCrashState()
		s2, ok2 := p2.GenerateCrashState()
		if ok1 != ok2 {
			t.Fatalf("round %d: ok1=%v ok2=%v", i, ok1, ok2)
		}
		if !ok1 {
			return
		}
		if len(s1) != len(s2) {
			t.Fatalf("round %d: len mismatch", i)
		}
	}
	t.Fatal("did not terminate within 100 rounds")
}

func TestExhaustiveMaxStatesCap(t *testing.T) {
	t.Parallel()

	log := epoch.NewDiskLog([]diskwrite.DiskWrite{
		w(0, 512, diskwrite.FlagWrite),
		w(8, 512, diskwrite.FlagWrite),
		w(16, 512, diskwrite.FlagWrite),
		w(24, 512, diskwrite.FlagWrite),
	})

	p := New(2)
	p.Init(log)

	count := 0
	for {
		_, ok := p.GenerateCrashState()
		if !ok {
			break
		}
		count++
	}
	if count != 2 {
		t.Errorf("count = %d, want 2 (capped)", count)
	}
}
