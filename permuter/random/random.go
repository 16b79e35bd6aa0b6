// Package random implements the Random permuter: a deterministic,
// seeded generator of crash-state prefixes.
package random

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"

	"github.com/crashmonkey-go/crashmonkey/epoch"
	"github.com/crashmonkey-go/crashmonkey/permuter"
)

// DefaultSeed is the seed used when no explicit seed is configured,
// matching the original harness's fixed seed so runs are reproducible.
const DefaultSeed = 42

// maxStallAttempts bounds how many consecutive duplicate draws the
// permuter tolerates before concluding no further distinct states exist.
// It is deliberately small: the state spaces this permuter explores in
// practice (tens to low hundreds of ops) saturate their distinct-state
// count well before this many consecutive misses occur.
const maxStallAttempts = 256

func init() {
	permuter.Register("random", func() permuter.Permuter { return New(DefaultSeed) })
}

// Random is the Random permuter described by the harness design: it picks
// a random number of epochs to include and a random prefix length of the
// next epoch, permuting each included epoch's ops subject to overlap and
// barrier constraints.
type Random struct {
	seed int64
	rng  *rand.Rand
	log  epoch.DiskLog
	seen map[string]bool
}

// New returns a Random permuter seeded with seed. Two Random instances
// constructed with the same seed and fed the same log via Init produce
// identical crash-state sequences.
func New(seed int64) *Random {
	return &Random{seed: seed}
}

// Init resets the permuter's internal seeded RNG and seen-state set and
// binds it to log.
func (p *Random) Init(log epoch.DiskLog) {
	p.log = log
	p.rng = rand.New(rand.NewSource(p.seed))
	p.seen = make(map[string]bool)
}

// GenerateCrashState produces the next distinct crash-state prefix, or
// (nil, false) once maxStallAttempts consecutive draws fail to find one.
func (p *Random) GenerateCrashState() (epoch.CrashState, bool) {
	epochs := p.log.Epochs
	if len(epochs) == 0 {
		return nil, false
	}

	for attempt := 0; attempt < maxStallAttempts; attempt++ {
		state, key := p.genOneState(epochs)
		if p.seen[key] {
			continue
		}
		p.seen[key] = true
		return state, true
	}
	return nil, false
}

func (p *Random) genOneState(epochs []epoch.Epoch) (epoch.CrashState, string) {
	numEpochs := uniform(p.rng, 1, len(epochs))
	last := epochs[numEpochs-1]
	m := uniform(p.rng, 1, len(last.Ops))

	var total int
	for i := 0; i < numEpochs-1; i++ {
		total += len(epochs[i].Ops)
	}
	total += m

	state := make(epoch.CrashState, 0, total)
	for i := 0; i < numEpochs-1; i++ {
		state = append(state, permuteFullEpoch(p.rng, epochs[i])...)
	}
	state = append(state, permutePartialEpoch(p.rng, last, m)...)

	return state, fingerprint(state)
}

// permuteFullEpoch returns the epoch's ops for inclusion as a complete,
// already-finished epoch. When the epoch has no overlapping writes any
// ordering is observationally equivalent, so original order is kept
// unchanged rather than wastefully shuffled; otherwise ops are permuted
// uniformly at random subject to the terminating barrier (if any) staying
// last.
func permuteFullEpoch(rng *rand.Rand, e epoch.Epoch) []epoch.EpochOp {
	if !e.Overlaps {
		return e.Ops
	}
	out := make([]epoch.EpochOp, len(e.Ops))
	drawFreeSlots(rng, e, len(e.Ops), out)
	return out
}

// permutePartialEpoch selects m ops from e to form the (possibly partial)
// tail of a crash state. As with permuteFullEpoch, a non-overlapping,
// barrier-free epoch gains nothing from shuffling, so the first m ops in
// original order are taken deterministically; this also bounds the number
// of distinct states such an epoch can contribute to exactly its op
// count, matching the harness's stated termination behavior for
// degenerate single-epoch logs. Otherwise ops are drawn via a free-slot
// list, with the terminating barrier (if present) only ever selectable by
// taking the entire epoch (m == len(e.Ops)), placed last.
func permutePartialEpoch(rng *rand.Rand, e epoch.Epoch, m int) []epoch.EpochOp {
	if !e.Overlaps && !e.HasBarrier {
		return append([]epoch.EpochOp(nil), e.Ops[:m]...)
	}
	out := make([]epoch.EpochOp, m)
	drawFreeSlots(rng, e, m, out)
	return out
}

// drawFreeSlots fills out (length n) with ops drawn from e without
// replacement via a free-slot list, honoring that a terminating barrier
// can only appear as the final element and only when n spans the entire
// epoch.
func drawFreeSlots(rng *rand.Rand, e epoch.Epoch, n int, out []epoch.EpochOp) {
	slots := len(e.Ops)
	if e.HasBarrier {
		slots--
	}

	free := make([]int, slots)
	for i := range free {
		free[i] = i
	}

	pos := 0
	for pos < n && len(free) > 0 {
		idx := rng.Intn(len(free))
		out[pos] = e.Ops[free[idx]]
		free = append(free[:idx], free[idx+1:]...)
		pos++
	}

	if pos == n {
		return
	}
	// Only remaining slot is the barrier: the caller asked for the full
	// epoch (n == len(e.Ops)) and free-slot selection placed every
	// non-barrier op already.
	out[pos] = e.Ops[len(e.Ops)-1]
}

// uniform returns a uniform random integer in [lo, hi].
func uniform(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

// fingerprint identifies a crash state for dedup purposes. Order matters
// (two different orderings of the same ops are hashed differently, as
// required whenever they belong to an overlapping or barrier-bearing
// epoch); the permuter only ever takes an order-insensitive shortcut
// itself for non-overlapping epochs (any such full epoch, and a
// barrier-free partial one), which always produce the same canonical
// order up front.
func fingerprint(state epoch.CrashState) string {
	h := fnv.New64a()
	var scratch [16]byte
	for _, op := range state {
		binary.BigEndian.PutUint32(scratch[0:4], uint32(op.EpochIndex))
		binary.BigEndian.PutUint64(scratch[4:12], op.Write.Sector)
		binary.BigEndian.PutUint32(scratch[12:16], uint32(op.Write.Flags))
		h.Write(scratch[:])
		h.Write(op.Write.Payload)
	}
	sum := h.Sum(nil)
	return string(sum)
}
