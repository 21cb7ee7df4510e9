// Package rand provides the seedable random source behind every
// probabilistic decision in the tower: emergency promotion, low fuel,
// speed perturbation, ground faults and envelope sampling.
package rand

import (
	"sync"
	"time"

	"github.com/MichaelTJones/pcg"
)

// Source is the minimal interface consumers depend on, so tests can
// substitute a scripted sequence.
type Source interface {
	// Intn returns a value in [0, n). n must be > 0.
	Intn(n int) int
}

const pcgStream = 0xda3e39cb94b95bdb

// Rand is a PCG32 generator safe for concurrent use by flight tasks.
type Rand struct {
	mu sync.Mutex
	r  *pcg.PCG32
}

var _ Source = (*Rand)(nil)

// New returns a generator seeded with seed. A zero seed picks one from the
// wall clock.
func New(seed int64) *Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := &Rand{r: pcg.NewPCG32()}
	r.r.Seed(uint64(seed), pcgStream)
	return r
}

func (r *Rand) Intn(n int) int {
	if n <= 0 {
		panic("rand: invalid argument to Intn")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return int(r.r.Bounded(uint32(n)))
}

// Range returns a uniformly distributed value in [lo, hi].
func Range(s Source, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + s.Intn(hi-lo+1)
}

// Chance reports true with probability pct percent.
func Chance(s Source, pct int) bool {
	if pct <= 0 {
		return false
	}
	if pct >= 100 {
		return true
	}
	return Range(s, 1, 100) <= pct
}

// Sequence replays a fixed list of values, wrapping around. Each value is
// reduced modulo n. It is meant for tests and deterministic replays.
type Sequence struct {
	mu     sync.Mutex
	values []int
	next   int
}

var _ Source = (*Sequence)(nil)

func NewSequence(values ...int) *Sequence {
	return &Sequence{values: values}
}

func (s *Sequence) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.values) == 0 {
		return 0
	}
	v := s.values[s.next%len(s.values)]
	s.next++
	if v < 0 {
		v = -v
	}
	return v % n
}

// Constant always returns the largest value below n, i.e. Chance never fires
// for pct < 100 and Range always yields its upper bound.
type Constant struct{}

func (Constant) Intn(n int) int { return n - 1 }
