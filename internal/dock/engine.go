// Package dock runs the Lamarckian genetic algorithm that searches for the
// lowest energy pose of a flexible ligand in a receptor grid.
package dock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cwbudde/lgadock/internal/energy"
	"github.com/cwbudde/lgadock/internal/grid"
	"github.com/cwbudde/lgadock/internal/ligand"
	"github.com/cwbudde/lgadock/internal/pose"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// Engine docks one ligand into one grid. The ligand, grid and energy tables
// are shared read-only by all runs.
type Engine struct {
	params    Params
	lig       *ligand.Ligand
	grid      *grid.Grid
	tables    *energy.Tables
	evaluator *energy.Evaluator
	transform *pose.Transformer
	bounds    pose.Bounds
	scales    []float64
	torsional float64 // CoeffTors * rotatable bonds
	scheduler Scheduler
	cleanup   func()
	buffers   sync.Pool

	observer  Observer
	reference []r3.Vec

	liveEvals []atomic.Int64
	liveGen   atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers a generation observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithReference sets a reference pose used to report per-run RMSD.
func WithReference(coords []r3.Vec) Option {
	return func(e *Engine) { e.reference = coords }
}

// NewEngine validates params, checks the memory estimate and builds the
// energy tables and evaluator.
func NewEngine(lig *ligand.Ligand, g *grid.Grid, params Params, opts ...Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if est := EstimateMemory(lig, g, params); params.MaxMemoryMB > 0 && est > int64(params.MaxMemoryMB)<<20 {
		return nil, fmt.Errorf("%w: estimated %d MiB, limit %d MiB", ErrResourceExhausted, est>>20, params.MaxMemoryMB)
	}

	ff := ligand.DefaultForceField()
	tables := energy.NewTables(ff)
	evaluator, err := energy.NewEvaluator(lig, g, tables, ff, energy.Options{
		OutOfGridTolerance: params.OutOfGridTolerance,
		DistanceCutoff:     params.DistanceCutoff,
		Smooth:             params.Smooth,
		IgnoreDesolv:       params.IgnoreDesolv,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to bind ligand to grid: %w", err)
	}

	scheduler, cleanup, err := NewScheduler(params.Backend, params.Workers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	nRot := lig.NumRotBonds()
	e := &Engine{
		params:    params,
		lig:       lig,
		grid:      g,
		tables:    tables,
		evaluator: evaluator,
		transform: pose.NewTransformer(lig),
		bounds:    pose.NewBounds(g.Origin, g.Extent(), lig.Center, nRot),
		scales:    pose.Scales(nRot, params.MaxDmov, params.MaxDang),
		torsional: ff.CoeffTors * float64(nRot),
		scheduler: scheduler,
		cleanup:   cleanup,
		liveEvals: make([]atomic.Int64, params.NumRuns),
	}
	e.buffers.New = func() any {
		buf := make([]r3.Vec, lig.NumAtoms())
		return &buf
	}
	for _, o := range opts {
		o(e)
	}
	if e.reference != nil && len(e.reference) != lig.NumAtoms() {
		return nil, fmt.Errorf("%w: reference has %d atoms, ligand %d", ErrConfig, len(e.reference), lig.NumAtoms())
	}
	return e, nil
}

// EstimateMemory returns the approximate working set of a job in bytes:
// populations and offspring of the concurrently active runs, per-worker
// coordinate buffers, the distance tables and the grid maps.
func EstimateMemory(lig *ligand.Ligand, g *grid.Grid, p Params) int64 {
	genes := int64(pose.NumRigidGenes + lig.NumRotBonds())
	atoms := int64(lig.NumAtoms())

	active := int64(p.NumRuns)
	if p.ParallelRuns > 0 && int64(p.ParallelRuns) < active {
		active = int64(p.ParallelRuns)
	}
	perIndividual := genes*8 + 48
	populations := active * int64(p.PopulationSize) * perIndividual * 2

	workers := int64(p.Workers)
	if workers < 1 {
		workers = 1
	}
	buffers := (workers + active) * atoms * 24

	tables := int64(5 * energy.TableSize * 8)
	maps := int64(len(g.Maps)+2) * int64(g.Points()) * 4
	results := int64(p.NumRuns) * (atoms*24 + genes*8)

	return populations + buffers + tables + maps + results
}

// Close releases scheduler resources.
func (e *Engine) Close() {
	e.cleanup()
}

// Params returns the engine parameters.
func (e *Engine) Params() Params { return e.params }

// Ligand returns the docked ligand.
func (e *Engine) Ligand() *ligand.Ligand { return e.lig }

// Bounds returns the genotype search region.
func (e *Engine) Bounds() pose.Bounds { return e.bounds }

func (e *Engine) getBuffer() *[]r3.Vec {
	return e.buffers.Get().(*[]r3.Vec)
}

func (e *Engine) putBuffer(buf *[]r3.Vec) {
	e.buffers.Put(buf)
}

// score converts g into coordinates in buf and returns the total energy.
func (e *Engine) score(g []float64, buf []r3.Vec) float64 {
	e.transform.Apply(pose.Genotype(g), buf)
	return e.evaluator.Evaluate(buf)
}

// Evaluate returns the total energy of the pose encoded by g.
func (e *Engine) Evaluate(g pose.Genotype) float64 {
	buf := e.getBuffer()
	defer e.putBuffer(buf)
	return e.score(g, *buf)
}

// Pose returns the coordinates encoded by g.
func (e *Engine) Pose(g pose.Genotype) []r3.Vec {
	return e.transform.Coords(g)
}

// Breakdown returns the per-atom energy decomposition of g.
func (e *Engine) Breakdown(g pose.Genotype) energy.Breakdown {
	return e.evaluator.Breakdown(e.transform.Coords(g))
}

// Progress reports the advance of the current Dock call.
func (e *Engine) Progress() Progress {
	evals := make([]int, len(e.liveEvals))
	for i := range e.liveEvals {
		evals[i] = int(e.liveEvals[i].Load())
	}
	return CheckProgress(evals, int(e.liveGen.Load()), e.params.MaxEvaluations, e.params.MaxGenerations)
}

// raiseGeneration records the furthest generation reached by any run.
func (e *Engine) raiseGeneration(g int) {
	for {
		cur := e.liveGen.Load()
		if int64(g) <= cur || e.liveGen.CompareAndSwap(cur, int64(g)) {
			return
		}
	}
}

// Dock executes all runs and returns the simulation state. When ctx is
// cancelled the runs stop at their next generation boundary and the state of
// the runs that finished is returned together with ctx.Err(); runs not yet
// started are skipped. Expiry of MaxWallTime is not an error: every run
// still evaluates its initial population, so runs queued behind
// ParallelRuns report generation 0 with StopWallTime.
func (e *Engine) Dock(ctx context.Context) (*SimulationState, error) {
	start := time.Now()
	p := e.params
	for i := range e.liveEvals {
		e.liveEvals[i].Store(0)
	}
	e.liveGen.Store(0)

	runCtx := ctx
	if p.MaxWallTime > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, p.MaxWallTime)
		defer cancel()
	}

	slog.Info("Starting docking",
		"runs", p.NumRuns,
		"method", p.Method,
		"population", p.PopulationSize,
		"max_evals", p.MaxEvaluations,
		"atoms", e.lig.NumAtoms(),
		"rotatable_bonds", e.lig.NumRotBonds(),
	)

	results := make([]RunResult, p.NumRuns)
	finished := make([]bool, p.NumRuns)
	var mu sync.Mutex

	var eg errgroup.Group
	if p.ParallelRuns > 0 {
		eg.SetLimit(p.ParallelRuns)
	}
	for i := 0; i < p.NumRuns; i++ {
		eg.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			r := newRun(e, i)
			res := r.execute(runCtx, ctx)

			mu.Lock()
			results[i] = res
			finished[i] = true
			mu.Unlock()

			slog.Info("Run complete",
				"run", i,
				"best_energy", res.Energy,
				"generations", res.Generations,
				"evals", res.Evals,
				"stop_reason", res.StopReason,
			)
			return nil
		})
	}
	// Runs never fail; the group only bounds their concurrency.
	_ = eg.Wait()

	state := &SimulationState{
		Elapsed: time.Since(start),
		Seed:    p.Seed,
		Params:  p,
	}
	for i, ok := range finished {
		if ok {
			state.Runs = append(state.Runs, results[i])
			state.TotalEvals += results[i].Evals
		}
	}

	if best, ok := state.Best(); ok {
		slog.Info("Docking complete",
			"best_energy", best.Energy,
			"best_run", best.Run,
			"total_evals", state.TotalEvals,
			"elapsed", state.Elapsed,
		)
	}

	if err := ctx.Err(); err != nil {
		return state, err
	}
	return state, nil
}
