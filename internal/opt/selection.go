package opt

import (
	"math/rand/v2"
	"sort"
)

// TournamentSelector draws Size individuals at random and picks the best of
// them with probability Rate, otherwise the next best with probability Rate,
// and so on. Size 2 is the classic binary tournament.
type TournamentSelector struct {
	Size int
	Rate float64
}

// Select returns n parent indices.
func (s TournamentSelector) Select(energies []float64, n int, rng *rand.Rand) []int {
	size := s.Size
	if size < 1 {
		size = 1
	}
	out := make([]int, n)
	cand := make([]int, size)
	for k := range out {
		for j := range cand {
			cand[j] = rng.IntN(len(energies))
		}
		sort.Slice(cand, func(a, b int) bool { return energies[cand[a]] < energies[cand[b]] })
		pick := cand[size-1]
		for _, c := range cand[:size-1] {
			if rng.Float64() < s.Rate {
				pick = c
				break
			}
		}
		out[k] = pick
	}
	return out
}

// RankSelector implements linear ranking selection. Pressure in [1, 2] is
// the expected number of offspring of the best individual.
type RankSelector struct {
	Pressure float64
}

// Select returns n parent indices.
func (s RankSelector) Select(energies []float64, n int, rng *rand.Rand) []int {
	size := len(energies)
	order := make([]int, size)
	for i := range order {
		order[i] = i
	}
	// Worst first so that rank i has weight increasing with i.
	sort.SliceStable(order, func(a, b int) bool { return energies[order[a]] > energies[order[b]] })

	cum := make([]float64, size)
	var total float64
	for i := range order {
		w := (2 - s.Pressure) / float64(size)
		if size > 1 {
			w += 2 * float64(i) * (s.Pressure - 1) / float64(size*(size-1))
		}
		total += w
		cum[i] = total
	}

	out := make([]int, n)
	for k := range out {
		r := rng.Float64() * total
		i := sort.SearchFloat64s(cum, r)
		if i >= size {
			i = size - 1
		}
		out[k] = order[i]
	}
	return out
}
