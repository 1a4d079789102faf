package dock

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/cwbudde/lgadock/internal/ligand"
	"github.com/cwbudde/lgadock/internal/opt"
	"github.com/cwbudde/lgadock/internal/pose"
	"gonum.org/v1/gonum/stat"
)

// cappedEnergy is returned to the Mayfly optimizer once the evaluation
// budget is spent.
const cappedEnergy = 1e30

// run is one independent search. It owns its population and random stream;
// nothing in it is shared with other runs.
type run struct {
	index int
	e     *Engine
	p     Params
	rng   *rand.Rand

	selector  opt.Selector
	crossover opt.Crossover
	mutator   opt.Mutator
	ls        opt.LocalSearch

	pop        Population
	best       Individual
	generation int
	evals      int
	tracker    *ConvergenceTracker
	converged  bool
}

func newRun(e *Engine, index int) *run {
	p := e.params
	normalize := func(x []float64) { pose.Normalize(pose.Genotype(x)) }
	return &run{
		index:     index,
		e:         e,
		p:         p,
		rng:       rand.New(rand.NewPCG(p.Seed, uint64(index))),
		selector:  p.selector(),
		crossover: p.crossover(),
		mutator:   p.mutator(e.scales),
		ls:        p.localSearch(e.scales, normalize),
		best:      Individual{Energy: math.Inf(1)},
		tracker:   NewConvergenceTracker(p.convergenceConfig()),
	}
}

// execute runs the search until a stop condition holds. ctx carries the
// wall-clock limit; parent is the caller's context and distinguishes
// cancellation from timeout.
func (r *run) execute(ctx, parent context.Context) RunResult {
	var reason StopReason
	if r.p.Method == MethodMayfly {
		reason = r.runMayfly(ctx, parent)
	} else {
		r.initialize()
		r.record()
		for {
			var stop bool
			if stop, reason = r.checkStop(ctx, parent); stop {
				break
			}
			r.step()
			r.record()
		}
	}
	return r.result(reason)
}

func (r *run) checkStop(ctx, parent context.Context) (bool, StopReason) {
	if stop, reason := ShouldStop(RunCounters{Generation: r.generation, Evals: r.evals}, r.p); stop {
		return true, reason
	}
	if r.converged {
		return true, StopConverged
	}
	return ctxStop(ctx, parent)
}

func ctxStop(ctx, parent context.Context) (bool, StopReason) {
	if parent.Err() != nil {
		return true, StopCancelled
	}
	if ctx.Err() != nil {
		return true, StopWallTime
	}
	return false, StopNone
}

func (r *run) initialize() {
	r.pop = make(Population, r.p.PopulationSize)
	for i := range r.pop {
		r.pop[i].Genotype = r.e.bounds.Random(r.rng)
	}
	r.evaluate(r.pop)
}

// evaluate scores every individual through the scheduler.
func (r *run) evaluate(inds Population) {
	e := r.e
	e.scheduler.Do(len(inds), func(i int) {
		buf := e.getBuffer()
		inds[i].Energy = e.score(inds[i].Genotype, *buf)
		e.putBuffer(buf)
	})
	r.addEvals(len(inds))
}

func (r *run) addEvals(n int) {
	r.evals += n
	r.e.liveEvals[r.index].Store(int64(r.evals))
}

// step advances the run by one generation.
func (r *run) step() {
	n := len(r.pop)
	elite := r.p.Elitism
	r.pop.SortByEnergy()

	next := make(Population, n)
	for i := 0; i < elite; i++ {
		next[i] = r.pop[i].Clone()
	}

	offspring := next[elite:]
	if r.p.Method == MethodLS {
		for i := range offspring {
			offspring[i].Genotype = r.e.bounds.Random(r.rng)
		}
	} else {
		r.reproduce(offspring)
	}
	r.evaluate(offspring)
	r.pop = next

	switch r.p.Method {
	case MethodLGA:
		count := int(math.Round(r.p.LocalSearchRate * float64(n)))
		chosen := r.rng.Perm(n)[:count]
		sort.Ints(chosen)
		r.localSearch(chosen)
	case MethodLS:
		chosen := make([]int, len(offspring))
		for i := range chosen {
			chosen[i] = elite + i
		}
		r.localSearch(chosen)
	}

	r.generation++
	r.e.raiseGeneration(r.generation)
}

// reproduce fills out with children of selected parents.
func (r *run) reproduce(out Population) {
	m := len(out)
	if m == 0 {
		return
	}
	energies := r.pop.Energies()
	parents := r.selector.Select(energies, m+m%2, r.rng)
	nRot := r.e.lig.NumRotBonds()

	for k := 0; k < m; k += 2 {
		a := r.pop[parents[k]].Genotype
		b := r.pop[parents[k+1]].Genotype
		c1, c2 := pose.New(nRot), pose.New(nRot)
		if r.rng.Float64() < r.p.CrossoverRate {
			r.crossover.Cross(a, b, c1, c2, r.rng)
		} else {
			copy(c1, a)
			copy(c2, b)
		}

		r.mutator.Mutate(c1, r.rng)
		pose.Normalize(c1)
		out[k].Genotype = c1
		if k+1 < m {
			r.mutator.Mutate(c2, r.rng)
			pose.Normalize(c2)
			out[k+1].Genotype = c2
		}
	}
}

// localSearch refines the given population slots in parallel. Quotas and
// random seeds are drawn in slot order before fan-out so the outcome does
// not depend on scheduling.
func (r *run) localSearch(slots []int) {
	if len(slots) == 0 || r.p.LocalSearchMaxIters == 0 {
		return
	}
	remaining := max(r.p.MaxEvaluations-r.evals, 0)
	quotas := make([]int, len(slots))
	seeds := make([]uint64, len(slots))
	for k := range slots {
		q := min(r.p.lsQuota(), remaining)
		quotas[k] = q
		remaining -= q
		seeds[k] = r.rng.Uint64()
	}

	used := make([]int, len(slots))
	e := r.e
	pop := r.pop
	e.scheduler.Do(len(slots), func(k int) {
		if quotas[k] == 0 {
			return
		}
		i := slots[k]
		buf := e.getBuffer()
		defer e.putBuffer(buf)

		x := pop[i].Genotype.Clone()
		objective := func(g []float64) float64 { return e.score(g, *buf) }
		rng := rand.New(rand.NewPCG(seeds[k], uint64(i)))
		energy, n := r.ls.Refine(x, pop[i].Energy, objective, quotas[k], rng)
		pop.ReplaceIfImproved(i, x, energy)
		used[k] = n
	})

	total := 0
	for _, n := range used {
		total += n
	}
	r.addEvals(total)
}

// record updates the best-so-far individual, notifies the observer and
// feeds the convergence tracker.
func (r *run) record() {
	if b := r.pop.Best(); r.pop[b].Energy < r.best.Energy {
		r.best = r.pop[b].Clone()
	}

	energies := r.pop.Energies()
	mean, sd := stat.PopMeanStdDev(energies, nil)
	summary := GenerationSummary{
		Run:        r.index,
		Generation: r.generation,
		Evals:      r.evals,
		BestEnergy: r.best.Energy,
		MeanEnergy: mean,
		StdDev:     sd,
		Timestamp:  time.Now(),
	}
	if r.e.observer != nil {
		r.e.observer.OnGeneration(summary)
	}
	slog.Debug("Generation complete",
		"run", r.index,
		"generation", r.generation,
		"best_energy", r.best.Energy,
		"mean_energy", mean,
		"evals", r.evals,
	)

	r.converged = r.tracker.Update(r.best.Energy, energies)
}

// runMayfly delegates the global search to the Mayfly optimizer over the
// genotype bounds, then refines its best position by local search with the
// rest of the budget.
func (r *run) runMayfly(ctx, parent context.Context) StopReason {
	e := r.e
	p := r.p
	if stop, reason := ctxStop(ctx, parent); stop {
		r.initialize()
		r.record()
		return reason
	}
	lower, upper := e.bounds.Lower(), e.bounds.Upper()
	dim := len(lower)

	// Keep part of the budget for the final refinement.
	reserve := min(p.lsQuota(), p.MaxEvaluations/2)
	global := max(p.MaxEvaluations-reserve-1, 1)

	buf := e.getBuffer()
	used := 0
	objective := func(x []float64) float64 {
		if used >= global {
			return cappedEnergy
		}
		if stop, _ := ctxStop(ctx, parent); stop {
			return cappedEnergy
		}
		used++
		return e.score(x, *buf)
	}
	// Each Mayfly iteration evaluates males, females and their offspring.
	iters := min(p.MaxGenerations, max(global/(3*p.PopulationSize), 1))
	x, _ := opt.NewMayfly(iters, p.PopulationSize, r.rng.Int64()).Run(objective, lower, upper, dim)
	e.putBuffer(buf)
	r.addEvals(used)

	g := pose.Genotype(x)
	pose.Normalize(g)
	r.pop = Population{{Genotype: g}}
	r.evaluate(r.pop)
	r.generation = 1
	r.e.raiseGeneration(1)

	if stop, reason := ctxStop(ctx, parent); stop {
		r.record()
		return reason
	}
	r.localSearch([]int{0})
	r.record()

	if r.evals >= p.MaxEvaluations || used >= global {
		return StopEvaluations
	}
	return StopGenerations
}

func (r *run) result(reason StopReason) RunResult {
	e := r.e
	coords := e.transform.Coords(r.best.Genotype)
	inter := e.evaluator.Inter(coords)
	res := RunResult{
		Run:         r.index,
		Genotype:    r.best.Genotype.Clone(),
		Energy:      r.best.Energy,
		InterE:      inter,
		IntraE:      e.evaluator.Intra(coords),
		BindingE:    inter + e.torsional,
		Coords:      coords,
		Generations: r.generation,
		Evals:       r.evals,
		StopReason:  reason,
	}
	if e.reference != nil {
		if rmsd, err := ligand.RMSD(coords, e.reference); err == nil {
			res.RMSD = &rmsd
		}
	}
	return res
}
