// Package opt provides the search operators used by the docking engine:
// parent selection, crossover, mutation, Solis-Wets local search and an
// adapter for the Mayfly global optimizer. Operators work on plain
// []float64 vectors and know nothing about ligands.
package opt

import "math/rand/v2"

// Optimizer defines a global optimization algorithm interface
type Optimizer interface {
	// Run executes the optimization
	// eval: objective function to minimize
	// lower, upper: per-dimension parameter bounds
	// dim: dimensionality of parameter space
	// Returns: best parameters and best cost
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}

// Objective is a cost function over a parameter vector.
type Objective func([]float64) float64

// Selector picks parent indices from a population given its energies
// (lower is better).
type Selector interface {
	Select(energies []float64, n int, rng *rand.Rand) []int
}

// Crossover recombines parents a and b into children c1 and c2. All four
// slices have the same length; the parents are not modified.
type Crossover interface {
	Cross(a, b, c1, c2 []float64, rng *rand.Rand)
}

// Mutator perturbs genes in place and returns how many genes changed.
type Mutator interface {
	Mutate(g []float64, rng *rand.Rand) int
}

// LocalSearch refines x in place. It returns the refined energy and the
// number of objective evaluations spent, never more than quota.
type LocalSearch interface {
	Refine(x []float64, energy float64, eval Objective, quota int, rng *rand.Rand) (float64, int)
}
