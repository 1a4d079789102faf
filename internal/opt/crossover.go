package opt

import (
	"math/rand/v2"
	"sort"
)

// NPointCrossover exchanges alternating segments between N random cut
// points. N=1 and N=2 give one-point and two-point crossover.
type NPointCrossover struct {
	N int
}

// Cross implements Crossover.
func (x NPointCrossover) Cross(a, b, c1, c2 []float64, rng *rand.Rand) {
	n := len(a)
	copy(c1, a)
	copy(c2, b)
	if n < 2 || x.N < 1 {
		return
	}

	points := x.N
	if points > n-1 {
		points = n - 1
	}
	// Distinct cut positions in [1, n-1].
	cuts := rng.Perm(n - 1)[:points]
	for i := range cuts {
		cuts[i]++
	}
	sort.Ints(cuts)

	swap := false
	next := 0
	for i := 0; i < n; i++ {
		if next < len(cuts) && i == cuts[next] {
			swap = !swap
			next++
		}
		if swap {
			c1[i], c2[i] = b[i], a[i]
		}
	}
}

// UniformCrossover swaps each gene independently with probability one half.
type UniformCrossover struct{}

// Cross implements Crossover.
func (UniformCrossover) Cross(a, b, c1, c2 []float64, rng *rand.Rand) {
	for i := range a {
		if rng.IntN(2) == 0 {
			c1[i], c2[i] = a[i], b[i]
		} else {
			c1[i], c2[i] = b[i], a[i]
		}
	}
}
