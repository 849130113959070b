// Package rng provides the deterministic random stream used by the
// simulation. The generator is mulberry32: small state, fast, and stable
// across platforms, so a resumed save continues its random streak instead
// of re-rolling. Not cryptographic.
package rng

// Source is a seedable mulberry32 stream. Seed is kept so a save can
// report where its stream started; State is the live counter and is the
// only field that advances.
type Source struct {
	Seed  uint32
	State uint32
}

// New returns a source positioned at the start of the stream for seed.
// A zero seed is bumped to 1 so the stream never degenerates.
func New(seed uint32) *Source {
	if seed == 0 {
		seed = 1
	}
	return &Source{Seed: seed, State: seed}
}

// Resume rebuilds a source from persisted seed+state.
func Resume(seed, state uint32) *Source {
	if state == 0 {
		return New(seed)
	}
	return &Source{Seed: seed, State: state}
}

func (s *Source) next() uint32 {
	s.State += 0x6d2b79f5
	z := s.State
	z = (z ^ (z >> 15)) * (z | 1)
	z ^= z + (z^(z>>7))*(z|61)
	return z ^ (z >> 14)
}

// Float64 returns the next value in [0,1).
func (s *Source) Float64() float64 {
	return float64(s.next()) / 4294967296.0
}

// Roll reports whether the next draw lands under p.
func (s *Source) Roll(p float64) bool {
	return s.Float64() < p
}

// Range returns a value in [lo,hi).
func (s *Source) Range(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	return lo + s.Float64()*(hi-lo)
}

// Intn returns an int in [0,n). n <= 0 returns 0.
func (s *Source) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.Float64() * float64(n))
}

// SeedFromString hashes an arbitrary stable string (role key, save id,
// start date) into a nonzero 32-bit seed. FNV-1a with a final avalanche.
func SeedFromString(str string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(str); i++ {
		h ^= uint32(str[i])
		h *= 16777619
	}
	h ^= h >> 16
	h *= 0x7feb352d
	h ^= h >> 15
	h *= 0x846ca68b
	h ^= h >> 16
	if h == 0 {
		h = 1
	}
	return h
}
