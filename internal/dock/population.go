package dock

import (
	"sort"

	"github.com/cwbudde/lgadock/internal/pose"
)

// Individual is one candidate pose with its energy.
type Individual struct {
	Genotype pose.Genotype
	Energy   float64
}

// Clone returns a deep copy.
func (ind Individual) Clone() Individual {
	return Individual{Genotype: ind.Genotype.Clone(), Energy: ind.Energy}
}

// Population is the set of individuals of one run.
type Population []Individual

// Best returns the index of the lowest energy individual.
func (p Population) Best() int {
	best := 0
	for i := range p {
		if p[i].Energy < p[best].Energy {
			best = i
		}
	}
	return best
}

// SortByEnergy orders the population by ascending energy. Ties keep their
// relative order.
func (p Population) SortByEnergy() {
	sort.SliceStable(p, func(i, j int) bool { return p[i].Energy < p[j].Energy })
}

// Energies returns the energy of every individual.
func (p Population) Energies() []float64 {
	out := make([]float64, len(p))
	for i := range p {
		out[i] = p[i].Energy
	}
	return out
}

// ReplaceIfImproved writes g back into slot i when energy is strictly lower
// than the current energy. This is the Lamarckian write-back of a local
// search result.
func (p Population) ReplaceIfImproved(i int, g pose.Genotype, energy float64) bool {
	if energy >= p[i].Energy {
		return false
	}
	copy(p[i].Genotype, g)
	p[i].Energy = energy
	return true
}
