// Package permuter defines the pluggable contract for generating
// crash-state prefixes from a recorded disk log, and a registry for
// swapping implementations by name.
package permuter

import "github.com/crashmonkey-go/crashmonkey/epoch"

// Permuter generates successive distinct crash-state prefixes of a log.
// Init is called once with the log to permute; GenerateCrashState is then
// called repeatedly. A false second return means the permuter has decided
// no further distinct states will be produced; the caller must treat that
// as end-of-iteration, not an error.
type Permuter interface {
	Init(log epoch.DiskLog)
	GenerateCrashState() (epoch.CrashState, bool)
}

// Factory constructs a fresh Permuter instance.
type Factory func() Permuter

var registry = map[string]Factory{}

// Register adds a named permuter factory to the registry. It is meant to
// be called from an init() function of the package implementing the
// permuter, the conventional Go plug-in-by-side-effect-import pattern.
func Register(name string, f Factory) {
	registry[name] = f
}

// Lookup returns the factory registered under name, or false if none was
// registered.
func Lookup(name string) (Factory, bool) {
	f, ok := registry[name]
	return f, ok
}
