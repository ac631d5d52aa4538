package zmachine

import "math/rand"

// RNG implements the `random` opcode's two modes: a deterministic
// sequence reseeded from a caller-supplied negative value, and a
// uniform sequence reseeded from a caller-supplied entropy value. The
// dispatcher passes the current system time as that entropy; the
// Screen interface has no entropy source.
type RNG struct {
	source *rand.Rand
}

// NewRNG seeds the generator from entropy, matching the state a story
// starts in before any `random` call reseeds it.
func NewRNG(entropy int64) *RNG {
	return &RNG{source: rand.New(rand.NewSource(entropy))}
}

// Roll implements `random n`: n > 0 returns a value uniform on
// [1, n]; n <= 0 reseeds and returns 0. entropy is only consumed when
// n == 0.
func (r *RNG) Roll(n int16, entropy int64) uint16 {
	switch {
	case n > 0:
		return uint16(1 + r.source.Intn(int(n)))
	case n < 0:
		r.source = rand.New(rand.NewSource(int64(n)))
		return 0
	default:
		r.source = rand.New(rand.NewSource(entropy))
		return 0
	}
}
