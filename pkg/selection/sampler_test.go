package selection

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// sequenceRand replays fixed draws, reduced modulo n.
type sequenceRand struct {
	draws []int
	next  int
}

func (s *sequenceRand) IntN(n int) int {
	if len(s.draws) == 0 {
		return 0
	}
	v := s.draws[s.next%len(s.draws)]
	s.next++
	return v % n
}

func TestPickRandom_NonPositiveCount(t *testing.T) {
	pool := []string{"a", "b"}
	for _, count := range []int{0, -1, -10} {
		if got := PickRandom(&sequenceRand{}, pool, count, nil); len(got) != 0 {
			t.Errorf("PickRandom(count=%d) = %v, want empty", count, got)
		}
	}
}

func TestPickRandom_FixedSequence(t *testing.T) {
	pool := []string{"a", "b", "c", "d"}

	// Always drawing index 0 of the remaining candidates returns them in order.
	got := PickRandom(&sequenceRand{}, pool, 3, nil)
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Errorf("zero draws mismatch (-want +got):\n%s", diff)
	}

	// Draw 3 of [a b c d] -> d; then 0 of [b c a] -> b.
	got = PickRandom(&sequenceRand{draws: []int{3, 0}}, pool, 2, nil)
	if diff := cmp.Diff([]string{"d", "b"}, got); diff != "" {
		t.Errorf("sequence draws mismatch (-want +got):\n%s", diff)
	}
}

func TestPickRandom_Exclusion(t *testing.T) {
	pool := []string{"alice", "bob", "charlie", "diana"}
	exclude := map[string]bool{"alice": true, "charlie": true}

	got := PickRandom(&sequenceRand{}, pool, 5, exclude)
	if diff := cmp.Diff([]string{"bob", "diana"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestPickRandom_TerminatesWhenPoolTooSmall(t *testing.T) {
	tests := []struct {
		name    string
		pool    []string
		exclude map[string]bool
		count   int
		want    int
	}{
		{"empty pool", nil, nil, 3, 0},
		{"everything excluded", []string{"a", "b"}, map[string]bool{"a": true, "b": true}, 2, 0},
		{"fewer than requested", []string{"a", "b"}, nil, 100, 2},
		{"duplicates in pool", []string{"a", "a", "a"}, nil, 3, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PickRandom(NewSeededRand(1), tt.pool, tt.count, tt.exclude)
			if len(got) != tt.want {
				t.Errorf("got %d picks (%v), want %d", len(got), got, tt.want)
			}
		})
	}
}

func TestPickRandom_DoesNotModifyPool(t *testing.T) {
	pool := []string{"a", "b", "c", "d", "e"}
	orig := slices.Clone(pool)

	PickRandom(NewSeededRand(42), pool, 3, map[string]bool{"b": true})

	if diff := cmp.Diff(orig, pool); diff != "" {
		t.Errorf("pool modified (-want +got):\n%s", diff)
	}
}

func TestPickRandom_SeededIsDeterministic(t *testing.T) {
	pool := []string{"a", "b", "c", "d", "e", "f", "g"}

	first := PickRandom(NewSeededRand(7), pool, 4, nil)
	second := PickRandom(NewSeededRand(7), pool, 4, nil)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("same seed gave different picks (-first +second):\n%s", diff)
	}
}

func TestPickRandom_Properties(t *testing.T) {
	pool := []string{"a", "b", "c", "d", "e", "f"}
	exclude := map[string]bool{"c": true, "f": true}
	eligible := len(pool) - len(exclude)

	for seed := range uint64(200) {
		r := NewSeededRand(seed)
		for count := 1; count <= len(pool)+1; count++ {
			got := PickRandom(r, pool, count, exclude)
			if want := min(count, eligible); len(got) != want {
				t.Fatalf("seed %d count %d: got %d picks, want %d", seed, count, len(got), want)
			}
			seen := make(map[string]bool)
			for _, p := range got {
				if exclude[p] {
					t.Fatalf("seed %d: picked excluded %q", seed, p)
				}
				if seen[p] {
					t.Fatalf("seed %d: duplicate pick %q in %v", seed, p, got)
				}
				if !slices.Contains(pool, p) {
					t.Fatalf("seed %d: picked %q outside pool", seed, p)
				}
				seen[p] = true
			}
		}
	}
}

func TestPickRandom_CoversEveryCandidate(t *testing.T) {
	pool := []string{"a", "b", "c", "d"}
	counts := make(map[string]int)
	r := NewSeededRand(99)
	for range 2000 {
		for _, p := range PickRandom(r, pool, 1, nil) {
			counts[p]++
		}
	}
	for _, name := range pool {
		// Expect ~500 each; a loose bound catches a biased or stuck sampler.
		if counts[name] < 350 || counts[name] > 650 {
			t.Errorf("candidate %q picked %d times out of 2000", name, counts[name])
		}
	}
}

func TestNewRand_InRange(t *testing.T) {
	r := NewRand()
	for n := 1; n < 50; n++ {
		if v := r.IntN(n); v < 0 || v >= n {
			t.Fatalf("IntN(%d) = %d, out of range", n, v)
		}
	}
}
