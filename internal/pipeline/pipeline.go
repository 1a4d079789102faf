// Package pipeline runs a complete docking job: it loads the inputs, docks,
// writes the generation trace and persists the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/lgadock/internal/config"
	"github.com/cwbudde/lgadock/internal/dock"
	"github.com/cwbudde/lgadock/internal/grid"
	"github.com/cwbudde/lgadock/internal/ligand"
	"github.com/cwbudde/lgadock/internal/store"
	"gonum.org/v1/gonum/spatial/r3"
)

// traceFlushInterval bounds how stale the on-disk trace of a running job is.
const traceFlushInterval = 2 * time.Second

// Inputs are the loaded files of a job.
type Inputs struct {
	Ligand    *ligand.Ligand
	Grid      *grid.Grid
	Reference []r3.Vec
}

// LoadInputs reads the ligand, grid and optional reference pose named by job.
func LoadInputs(job config.Job) (*Inputs, error) {
	ff := ligand.DefaultForceField()
	lig, err := ligand.Load(job.Ligand, job.Docking.Limits, ff)
	if err != nil {
		return nil, fmt.Errorf("failed to load ligand: %w", err)
	}
	g, err := grid.Load(job.Grid)
	if err != nil {
		return nil, fmt.Errorf("failed to load grid: %w", err)
	}
	in := &Inputs{Ligand: lig, Grid: g}

	if job.Reference != "" {
		spec, err := ligand.LoadSpec(job.Reference)
		if err != nil {
			return nil, fmt.Errorf("failed to load reference: %w", err)
		}
		in.Reference = make([]r3.Vec, len(spec.Atoms))
		for i, a := range spec.Atoms {
			in.Reference[i] = r3.Vec{X: a.X, Y: a.Y, Z: a.Z}
		}
	}

	slog.Info("Loaded inputs",
		"ligand", job.Ligand,
		"atoms", lig.NumAtoms(),
		"rotatable_bonds", lig.NumRotBonds(),
		"grid", job.Grid,
		"grid_points", g.Points(),
	)
	return in, nil
}

// Hooks lets callers follow a running job.
type Hooks struct {
	// Observer receives every generation summary in addition to the trace.
	Observer dock.Observer
	// Started is called with the engine once docking begins.
	Started func(*dock.Engine)
}

// Run executes job under jobID and saves the result to st. When ctx is
// cancelled the runs that finished are still saved, marked as cancelled, and
// the context error is returned with the result.
func Run(ctx context.Context, job config.Job, st *store.FSStore, jobID string, hooks Hooks) (*store.Result, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}
	in, err := LoadInputs(job)
	if err != nil {
		return nil, err
	}

	// A rerun may switch compression; never leave the other variant behind.
	if err := store.DeleteTrace(st.BaseDir(), jobID); err != nil {
		return nil, err
	}
	trace, err := store.NewTraceWriter(st.BaseDir(), jobID, job.CompressTrace)
	if err != nil {
		return nil, err
	}
	traceClosed := false
	defer func() {
		if !traceClosed {
			trace.Close()
		}
	}()

	var obs dock.Observer = trace
	if hooks.Observer != nil {
		obs = fanOut{trace, hooks.Observer}
	}
	opts := []dock.Option{dock.WithObserver(obs)}
	if in.Reference != nil {
		opts = append(opts, dock.WithReference(in.Reference))
	}

	eng, err := dock.NewEngine(in.Ligand, in.Grid, job.Docking, opts...)
	if err != nil {
		return nil, err
	}
	defer eng.Close()
	if hooks.Started != nil {
		hooks.Started(eng)
	}

	flushDone := make(chan struct{})
	go flushPeriodically(trace, flushDone)
	state, dockErr := eng.Dock(ctx)
	close(flushDone)
	cancelled := errors.Is(dockErr, context.Canceled) || errors.Is(dockErr, context.DeadlineExceeded)
	if dockErr != nil && !cancelled {
		return nil, dockErr
	}

	traceClosed = true
	if err := trace.Close(); err != nil {
		slog.Warn("Trace incomplete", "job_id", jobID, "error", err)
	}

	result := store.NewResult(jobID, store.Inputs{
		Ligand:    job.Ligand,
		Grid:      job.Grid,
		Reference: job.Reference,
	}, state, cancelled)
	if err := st.SaveResult(jobID, result); err != nil {
		return nil, err
	}
	return result, dockErr
}

// flushPeriodically keeps the trace of a running job readable on disk.
func flushPeriodically(trace *store.TraceWriter, done <-chan struct{}) {
	ticker := time.NewTicker(traceFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := trace.Flush(); err != nil {
				slog.Debug("Trace flush failed", "path", trace.Path(), "error", err)
			}
		}
	}
}

type fanOut []dock.Observer

func (f fanOut) OnGeneration(s dock.GenerationSummary) {
	for _, o := range f {
		o.OnGeneration(s)
	}
}
