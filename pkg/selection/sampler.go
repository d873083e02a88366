package selection

import (
	"math/rand/v2"
	"sync"
)

// Rand is the random source used by the sampler.
// IntN returns a uniformly distributed int in [0, n). n is always > 0.
type Rand interface {
	IntN(n int) int
}

// NewRand returns an unseeded uniform source, safe for concurrent use.
func NewRand() Rand {
	return runtimeRand{}
}

// NewSeededRand returns a deterministic source for the given seed, safe for concurrent use.
func NewSeededRand(seed uint64) Rand {
	return &seededRand{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))} //nolint:gosec // not used for security
}

type runtimeRand struct{}

func (runtimeRand) IntN(n int) int {
	return rand.IntN(n) //nolint:gosec // reviewer sampling, not security sensitive
}

type seededRand struct {
	r  *rand.Rand
	mu sync.Mutex
}

func (s *seededRand) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.IntN(n)
}

// PickRandom draws up to count unique usernames from pool, skipping anything in
// exclude. It never returns more than the number of eligible candidates, and
// returns nil when count <= 0. The pool slice is not modified.
func PickRandom(r Rand, pool []string, count int, exclude map[string]bool) []string {
	if count <= 0 {
		return nil
	}

	candidates := make([]string, 0, len(pool))
	seen := make(map[string]bool, len(pool))
	for _, name := range pool {
		if exclude[name] || seen[name] {
			continue
		}
		seen[name] = true
		candidates = append(candidates, name)
	}

	n := min(count, len(candidates))
	if n == 0 {
		return nil
	}

	// Partial Fisher-Yates: positions [0, i) hold the picks so far.
	for i := range n {
		j := i + r.IntN(len(candidates)-i)
		candidates[i], candidates[j] = candidates[j], candidates[i]
	}
	return candidates[:n:n]
}
