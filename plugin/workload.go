// Package plugin defines the workload plug-in contract and a generic,
// deterministic-lifecycle loader used to swap workload and permuter
// implementations by name at runtime.
//
// The original harness resolves implementations via dlopen and a pair of
// C-linkage factory symbols per contract. This redesign instead uses a
// registry of named constructors populated by each plug-in package's
// init() (the conventional Go side-effect-import plug-in pattern), with
// Loader enforcing the same acquire/release discipline the dlopen-based
// loader did: one active instance at a time, explicit unload before the
// next load, and distinct error kinds for construction vs. destruction
// failures.
package plugin

import (
	"errors"
	"fmt"

	"github.com/crashmonkey-go/crashmonkey/results"
)

// Workload is the contract a crash-consistency test case implements.
type Workload interface {
	// Setup establishes the disk state against which every crash state is
	// evaluated. It runs before logging is enabled. A nonzero return is a
	// setup failure.
	Setup() int

	// Run performs the I/O under test; its writes are what gets recorded
	// and permuted. It may call a Checkpoint helper to mark ordering
	// points the checker can rely on. A nonzero return is a failure.
	Run() int

	// CheckTest inspects the recovered file system after one crash state
	// has been mounted. lastCheckpoint is the largest checkpoint number
	// whose preceding ops are all present in the replayed prefix. Returns
	// 0 for consistent, negative for bad data, populating out.ErrorKind to
	// classify the failure.
	CheckTest(lastCheckpoint uint32, out *results.DataTestResult) int
}

// WorkloadFactory constructs a fresh Workload instance.
type WorkloadFactory func() Workload

var workloadRegistry = map[string]WorkloadFactory{}

// RegisterWorkload adds a named workload factory to the registry. Called
// from a workload package's init().
func RegisterWorkload(name string, f WorkloadFactory) {
	workloadRegistry[name] = f
}

// LookupWorkload returns the factory registered under name, or false if
// none was registered.
func LookupWorkload(name string) (WorkloadFactory, bool) {
	f, ok := workloadRegistry[name]
	return f, ok
}

// checkpointSink receives Checkpoint calls made during a workload's Run.
// It is nil by default, so a workload under test without a wired device
// can call Checkpoint freely as a no-op.
var checkpointSink func(n uint32) error

// SetCheckpointSink wires Checkpoint to an active recording device. The
// harness composition root calls this once, after opening the wrapper
// ioctl device, before invoking the workload.
func SetCheckpointSink(f func(n uint32) error) {
	checkpointSink = f
}

// Checkpoint marks an ordering point in the recorded write log: n
// becomes the value a later CheckTest call sees as lastCheckpoint once
// this marker's position is included in a replayed crash state.
func Checkpoint(n uint32) error {
	if checkpointSink == nil {
		return nil
	}
	return checkpointSink(n)
}

var (
	// ErrFactoryNotFound is returned by Loader.Load when no factory is
	// registered under the requested name — the construction-time symbol
	// lookup failure.
	ErrFactoryNotFound = errors.New("plugin: no factory registered under this name")
	// ErrAlreadyLoaded is returned by Loader.Load when an instance is
	// already active; callers must Unload first.
	ErrAlreadyLoaded = errors.New("plugin: loader already has an active instance")
	// ErrNotLoaded is returned by Loader.Instance and Loader.Unload when
	// no instance is active — the destruction-time symbol lookup failure.
	ErrNotLoaded = errors.New("plugin: loader has no active instance")
)

// Loader manages the lifecycle of a single named plug-in instance of type
// T, enforcing one active instance per loader and deterministic,
// explicit destruction.
type Loader[T any] struct {
	factories map[string]func() T
	instance  T
	loaded    bool
}

// NewLoader returns a Loader resolving names against factories.
func NewLoader[T any](factories map[string]func() T) *Loader[T] {
	return &Loader[T]{factories: factories}
}

// Load resolves name against the loader's factories and constructs the
// instance. It fails if an instance is already loaded or if name is not
// registered.
func (l *Loader[T]) Load(name string) error {
	if l.loaded {
		return ErrAlreadyLoaded
	}
	f, ok := l.factories[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrFactoryNotFound, name)
	}
	l.instance = f()
	l.loaded = true
	return nil
}

// Instance returns the active instance, or ErrNotLoaded if none is
// loaded.
func (l *Loader[T]) Instance() (T, error) {
	if !l.loaded {
		var zero T
		return zero, ErrNotLoaded
	}
	return l.instance, nil
}

// Unload releases the active instance. It is idempotent-by-contract in
// the sense that calling it without a loaded instance is itself an error
// the caller can distinguish (ErrNotLoaded) from a successful unload,
// matching the original's distinct construction vs. destruction error
// kinds.
func (l *Loader[T]) Unload() error {
	if !l.loaded {
		return ErrNotLoaded
	}
	var zero T
	l.instance = zero
	l.loaded = false
	return nil
}
