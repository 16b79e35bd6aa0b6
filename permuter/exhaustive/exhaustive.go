// Package exhaustive implements a breadth-first permuter that enumerates
// crash-state prefixes deterministically rather than by random draw,
// covering every distinct epoch count / frontier-epoch subset up to a
// configurable cap. It complements the Random permuter: where Random
// explores orderings stochastically, Exhaustive guarantees complete
// coverage of "how many epochs, which subset of the frontier epoch" at
// the cost of not exploring every internal ordering of an overlapping
// frontier epoch (Random already does that).
package exhaustive

import (
	"github.com/crashmonkey-go/crashmonkey/epoch"
	"github.com/crashmonkey-go/crashmonkey/permuter"
)

// DefaultMaxStates bounds how many crash states Exhaustive will enumerate
// before stopping, guarding against combinatorial blowup on large
// overlapping frontier epochs.
const DefaultMaxStates = 10000

func init() {
	permuter.Register("exhaustive", func() permuter.Permuter { return New(DefaultMaxStates) })
}

// Exhaustive enumerates crash states in increasing (epoch count, frontier
// subset) order, computing the full (capped) sequence up front in Init.
type Exhaustive struct {
	maxStates int
	states    []epoch.CrashState
	next      int
}

// New returns an Exhaustive permuter that stops after maxStates crash
// states regardless of whether more remain unexplored.
func New(maxStates int) *Exhaustive {
	return &Exhaustive{maxStates: maxStates}
}

// Init enumerates (up to maxStates) crash states for log.
func (e *Exhaustive) Init(log epoch.DiskLog) {
	e.states = enumerate(log.Epochs, e.maxStates)
	e.next = 0
}

// GenerateCrashState returns the next enumerated crash state, or
// (nil, false) once every state has been produced.
func (e *Exhaustive) GenerateCrashState() (epoch.CrashState, bool) {
	if e.next >= len(e.states) {
		return nil, false
	}
	state := e.states[e.next]
	e.next++
	return state, true
}

// enumerate walks every epoch count k in [1, len(epochs)] and, for each,
// every subset size m of the frontier epoch's ops in lexicographic order,
// stopping once cap states have been collected.
func enumerate(epochs []epoch.Epoch, cap int) []epoch.CrashState {
	var out []epoch.CrashState

	for k := 1; k <= len(epochs) && len(out) < cap; k++ {
		var prefix epoch.CrashState
		for i := 0; i < k-1; i++ {
			prefix = append(prefix, epochs[i].Ops...)
		}

		last := epochs[k-1]
		slots := len(last.Ops)
		if last.HasBarrier {
			slots--
		}

		for m := 1; m <= len(last.Ops) && len(out) < cap; m++ {
			if last.HasBarrier && m == len(last.Ops) {
				state := append(append(epoch.CrashState{}, prefix...), last.Ops...)
				out = append(out, state)
				continue
			}
			if m > slots {
				continue
			}
			for _, combo := range combinations(slots, m) {
				if len(out) >= cap {
					break
				}
				state := append(epoch.CrashState{}, prefix...)
				for _, idx := range combo {
					state = append(state, last.Ops[idx])
				}
				out = append(out, state)
			}
		}
	}
	return out
}

// combinations returns every m-subset of [0, n) in lexicographic order.
func combinations(n, m int) [][]int {
	if m > n || m <= 0 {
		return nil
	}
	combo := make([]int, m)
	for i := range combo {
		combo[i] = i
	}

	var out [][]int
	for {
		out = append(out, append([]int(nil), combo...))

		i := m - 1
		for i >= 0 && combo[i] == n-m+i {
			i--
		}
		if i < 0 {
			break
		}
		combo[i]++
		for j := i + 1; j < m; j++ {
			combo[j] = combo[j-1] + 1
		}
	}
	return out
}
