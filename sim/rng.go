package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
)

// === PortKey ===

// PortKey identifies one hardware port on one spawned robot.
// Two runs that spawn the same preset at the same index see the same
// PortKey for every port, which is what makes sensor bias reproducible.
type PortKey struct {
	Filename   string // preset or program the robot was spawned from
	SpawnIndex int    // spawn order within the run
	Port       string // e.g. "outB", "in4"
}

// String renders the key in the form hashed for seed derivation.
func (k PortKey) String() string {
	return fmt.Sprintf("%s#%d#%s", k.Filename, k.SpawnIndex, k.Port)
}

// === Randomiser ===

// Randomiser provides the global RNG for a run and deterministic, isolated
// RNG instances per hardware port.
//
// Derivation formula:
//   - Global stream: seeded from the run seed.
//   - Port streams: fnv1a64(PortKey.String()) unless a seed override is set
//     for that key. The run seed is deliberately not mixed in, so a port's
//     bias survives a change of global seed.
//
// Thread-safety: NOT thread-safe. Owned by the scheduler goroutine.
type Randomiser struct {
	seed      int64
	global    *rand.Rand
	ports     map[PortKey]*rand.Rand
	overrides map[PortKey]uint64
}

// NewRandomiser creates a Randomiser for the given run seed.
func NewRandomiser(seed int64) *Randomiser {
	return &Randomiser{
		seed:      seed,
		global:    newRand(uint64(seed)),
		ports:     make(map[PortKey]*rand.Rand),
		overrides: make(map[PortKey]uint64),
	}
}

// Seed returns the run seed.
func (r *Randomiser) Seed() int64 {
	return r.seed
}

// Random returns the next value in [0, 1) from the global stream.
func (r *Randomiser) Random() float64 {
	return r.global.Float64()
}

// SetPortSeed overrides the derived seed for key. Must be called before the
// first PortRandom(key); later calls replace the cached stream.
func (r *Randomiser) SetPortSeed(key PortKey, seed uint64) {
	r.overrides[key] = seed
	delete(r.ports, key)
}

// PortSeed returns the seed used for key's stream.
func (r *Randomiser) PortSeed(key PortKey) uint64 {
	if seed, ok := r.overrides[key]; ok {
		return seed
	}
	return fnv1a64(key.String())
}

// PortRandom returns the stream for key. The same key always returns the
// same *rand.Rand instance (cached). Never returns nil.
func (r *Randomiser) PortRandom(key PortKey) *rand.Rand {
	if rng, ok := r.ports[key]; ok {
		return rng
	}
	rng := newRand(r.PortSeed(key))
	r.ports[key] = rng
	return rng
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
