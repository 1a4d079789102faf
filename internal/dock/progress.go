package dock

// Progress reports how far a job has advanced.
type Progress struct {
	// Percent is in [0, 100].
	Percent    float64 `json:"percent"`
	TotalEvals int     `json:"totalEvals"`
}

// CheckProgress derives job progress from the per-run evaluation counts and
// the current generation. Whichever budget is closer to exhaustion decides
// the percentage.
func CheckProgress(evals []int, generation, maxEvals, maxGens int) Progress {
	var total int
	for _, e := range evals {
		total += e
	}

	var byEvals, byGens float64
	if len(evals) > 0 && maxEvals > 0 {
		byEvals = float64(total) / float64(len(evals)) / float64(maxEvals)
	}
	if maxGens > 0 {
		byGens = float64(generation) / float64(maxGens)
	}

	pct := max(byEvals, byGens) * 100
	if pct > 100 {
		pct = 100
	}
	return Progress{Percent: pct, TotalEvals: total}
}

// RunCounters are the budget counters of one run.
type RunCounters struct {
	Generation int
	Evals      int
}

// ShouldStop reports whether a run has exhausted its generation or
// evaluation budget.
func ShouldStop(c RunCounters, p Params) (bool, StopReason) {
	if c.Evals >= p.MaxEvaluations {
		return true, StopEvaluations
	}
	if c.Generation >= p.MaxGenerations {
		return true, StopGenerations
	}
	return false, StopNone
}
