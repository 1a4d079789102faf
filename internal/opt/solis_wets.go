package opt

import "math/rand/v2"

// SolisWets is the adaptive random local search of Solis and Wets (1981) as
// used in Lamarckian docking. Each step draws a deviate scaled by the step
// size rho and a per-gene scale, tries it in both directions around a
// running bias, and adapts rho after ConsLimit consecutive successes
// (doubling) or failures (halving).
type SolisWets struct {
	MaxIters  int
	ConsLimit int
	// RhoLower ends the search once rho falls below it.
	RhoLower float64
	Scales   []float64
	// Normalize, when set, canonicalizes a candidate before evaluation.
	Normalize func([]float64)
}

// Refine implements LocalSearch. x is only overwritten by strictly better
// candidates, so the returned energy never exceeds the input energy.
func (s SolisWets) Refine(x []float64, energy float64, eval Objective, quota int, rng *rand.Rand) (float64, int) {
	n := len(x)
	bias := make([]float64, n)
	dev := make([]float64, n)
	cand := make([]float64, n)

	rho := 1.0
	successes, failures := 0, 0
	used := 0

	try := func(sign float64) (float64, bool) {
		for i := range cand {
			cand[i] = x[i] + sign*(dev[i]+bias[i])
		}
		if s.Normalize != nil {
			s.Normalize(cand)
		}
		e := eval(cand)
		used++
		if e < energy {
			copy(x, cand)
			return e, true
		}
		return e, false
	}

	for iter := 0; iter < s.MaxIters && rho >= s.RhoLower && used < quota; iter++ {
		for i := range dev {
			dev[i] = rho * (2*rng.Float64() - 1) * s.Scales[i]
		}

		if e, ok := try(1); ok {
			energy = e
			for i := range bias {
				bias[i] = 0.6*bias[i] + 0.4*dev[i]
			}
			successes++
			failures = 0
		} else if used >= quota {
			break
		} else if e, ok := try(-1); ok {
			energy = e
			for i := range bias {
				bias[i] = 0.6*bias[i] - 0.4*dev[i]
			}
			successes++
			failures = 0
		} else {
			for i := range bias {
				bias[i] *= 0.5
			}
			failures++
			successes = 0
		}

		if successes >= s.ConsLimit {
			rho *= 2
			successes = 0
		} else if failures >= s.ConsLimit {
			rho *= 0.5
			failures = 0
		}
	}
	return energy, used
}
