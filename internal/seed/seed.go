// Package seed manages reproducible random-number seeding. Seedable
// components register in an explicit Registry, and loops derive per-epoch,
// per-rank seeds from the run's base seed so every worker draws from a
// distinct but reproducible stream.
package seed

import (
	"math/rand"
	"sync"

	"github.com/gradkit/gradkit/pkg/errors"
)

// Setter seeds one random number generator.
type Setter interface {
	ManualSeed(seed int64)
}

// SetterFunc adapts a function to the Setter interface.
type SetterFunc func(seed int64)

func (f SetterFunc) ManualSeed(seed int64) {
	f(seed)
}

// Registry holds named seed setters. It replaces any global registration:
// callers construct a registry, add the setters of the generators they own,
// and pass it to whoever needs to reseed.
type Registry struct {
	mu      sync.RWMutex
	setters map[string]Setter
	order   []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{setters: make(map[string]Setter)}
}

// RandSetter returns a setter reseeding a math/rand source
func RandSetter(rng *rand.Rand) Setter {
	return SetterFunc(func(seed int64) {
		rng.Seed(seed)
	})
}

// Add registers a setter under a name. Registering the same name twice
// is an error.
func (r *Registry) Add(name string, setter Setter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.setters[name]; ok {
		return errors.ValidationErrorf("seed setter already registered: %s", name)
	}
	r.setters[name] = setter
	r.order = append(r.order, name)
	return nil
}

// Has reports whether a setter is registered under the name
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.setters[name]
	return ok
}

// Names returns the registered names in registration order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ManualSeed seeds every registered generator, in registration order
func (r *Registry) ManualSeed(seed int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		r.setters[name].ManualSeed(seed)
	}
}

// DeriveSeed derives the seed for one epoch on one rank. The combination
// keeps epochs and ranks on disjoint streams; the final mix decorrelates
// neighbouring seeds.
func DeriveSeed(base int64, epoch, maxEpochs, rank int) int64 {
	combined := base + int64(epoch) + int64(maxEpochs)*int64(rank)
	return splitmix64(combined)
}

// splitmix64 is the finalizer of the SplitMix64 generator.
func splitmix64(x int64) int64 {
	z := uint64(x) + 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return int64(z & 0x7fffffffffffffff)
}
