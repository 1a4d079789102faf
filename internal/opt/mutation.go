package opt

import "math/rand/v2"

// UniformMutator adds a uniform deviate in [-Scales[i], Scales[i]] to each
// gene with probability Rate.
type UniformMutator struct {
	Rate   float64
	Scales []float64
}

// Mutate implements Mutator.
func (m UniformMutator) Mutate(g []float64, rng *rand.Rand) int {
	changed := 0
	for i := range g {
		if rng.Float64() < m.Rate {
			g[i] += (2*rng.Float64() - 1) * m.Scales[i]
			changed++
		}
	}
	return changed
}

// GaussianMutator adds a normal deviate with standard deviation Scales[i]
// to each gene with probability Rate.
type GaussianMutator struct {
	Rate   float64
	Scales []float64
}

// Mutate implements Mutator.
func (m GaussianMutator) Mutate(g []float64, rng *rand.Rand) int {
	changed := 0
	for i := range g {
		if rng.Float64() < m.Rate {
			g[i] += rng.NormFloat64() * m.Scales[i]
			changed++
		}
	}
	return changed
}
