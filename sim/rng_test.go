package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// === PortKey Tests ===

func TestPortKey_String(t *testing.T) {
	key := PortKey{Filename: "bot.yaml", SpawnIndex: 2, Port: "in4"}
	assert.Equal(t, "bot.yaml#2#in4", key.String())
}

// === Randomiser Tests ===

func TestRandomiser_PortStream_DeterministicAcrossRuns(t *testing.T) {
	// GIVEN two runs with different global seeds
	key := PortKey{Filename: "bot.yaml", SpawnIndex: 0, Port: "outB"}
	run1 := NewRandomiser(1)
	run2 := NewRandomiser(987654321)

	// THEN the derived seed is identical
	assert.Equal(t, run1.PortSeed(key), run2.PortSeed(key))

	// AND the first N draws match
	for i := 0; i < 32; i++ {
		assert.Equal(t, run1.PortRandom(key).Float64(), run2.PortRandom(key).Float64(), "draw %d", i)
	}
}

func TestRandomiser_PortStream_Isolation(t *testing.T) {
	// Drawing from one port must not shift another port's sequence
	a := NewRandomiser(42)
	b := NewRandomiser(42)
	outA := PortKey{Filename: "bot.yaml", Port: "outA"}
	outB := PortKey{Filename: "bot.yaml", Port: "outB"}

	for i := 0; i < 10; i++ {
		a.PortRandom(outA).Float64()
	}
	assert.Equal(t, b.PortRandom(outB).Float64(), a.PortRandom(outB).Float64())
}

func TestRandomiser_DifferentKeys_DifferentSeeds(t *testing.T) {
	r := NewRandomiser(0)
	keys := []PortKey{
		{Filename: "bot.yaml", SpawnIndex: 0, Port: "outA"},
		{Filename: "bot.yaml", SpawnIndex: 1, Port: "outA"},
		{Filename: "bot.yaml", SpawnIndex: 0, Port: "in1"},
		{Filename: "other.yaml", SpawnIndex: 0, Port: "outA"},
	}
	seen := make(map[uint64]PortKey)
	for _, k := range keys {
		seed := r.PortSeed(k)
		if prev, ok := seen[seed]; ok {
			t.Errorf("seed collision: %v and %v", prev, k)
		}
		seen[seed] = k
	}
}

func TestRandomiser_SeedOverride(t *testing.T) {
	key := PortKey{Filename: "bot.yaml", Port: "in2"}
	r := NewRandomiser(0)
	first := r.PortRandom(key).Float64()

	r.SetPortSeed(key, 7)
	assert.Equal(t, uint64(7), r.PortSeed(key))

	other := NewRandomiser(0)
	other.SetPortSeed(key, 7)
	overridden := r.PortRandom(key).Float64()
	assert.Equal(t, other.PortRandom(key).Float64(), overridden)
	assert.NotEqual(t, first, overridden)
}

func TestRandomiser_CachesInstance(t *testing.T) {
	r := NewRandomiser(42)
	key := PortKey{Port: "outC"}
	assert.Same(t, r.PortRandom(key), r.PortRandom(key))
}

func TestRandomiser_GlobalStream_SeededByRun(t *testing.T) {
	a := NewRandomiser(5)
	b := NewRandomiser(5)
	c := NewRandomiser(6)
	va, vb, vc := a.Random(), b.Random(), c.Random()
	assert.Equal(t, va, vb)
	assert.NotEqual(t, va, vc)
	assert.GreaterOrEqual(t, va, 0.0)
	assert.Less(t, va, 1.0)
	assert.Equal(t, int64(5), a.Seed())
}

// === fnv1a64 Tests ===

func TestFnv1a64_Deterministic(t *testing.T) {
	assert.Equal(t, fnv1a64("outB"), fnv1a64("outB"))
	assert.NotEqual(t, fnv1a64("outB"), fnv1a64("outC"))
}

func BenchmarkRandomiser_PortRandom_CacheHit(b *testing.B) {
	r := NewRandomiser(42)
	key := PortKey{Port: "in1"}
	r.PortRandom(key)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r.PortRandom(key)
	}
}
