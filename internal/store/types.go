package store

import (
	"fmt"
	"math"
	"time"

	"github.com/cwbudde/lgadock/internal/dock"
)

// Inputs records the files a job docked.
type Inputs struct {
	Ligand    string `json:"ligand"`
	Grid      string `json:"grid"`
	Reference string `json:"reference,omitempty"`
}

// Result is the persisted outcome of one docking job.
type Result struct {
	// JobID is the unique identifier of the job
	JobID string `json:"jobId"`

	Inputs Inputs `json:"inputs"`

	// State holds every finished run with its best pose, energy terms and
	// stop reason, plus the parameters and seed of the job.
	State *dock.SimulationState `json:"state"`

	// Cancelled is set when the job was stopped before all runs finished.
	Cancelled bool `json:"cancelled,omitempty"`

	// Timestamp records when this result was saved
	Timestamp time.Time `json:"timestamp"`
}

// ResultInfo contains result metadata without poses.
// Used for listing results without loading coordinate arrays.
type ResultInfo struct {
	JobID  string `json:"jobId"`
	Ligand string `json:"ligand"`
	Method string `json:"method"`
	Runs   int    `json:"runs"`
	// BestRun is -1 when no run finished.
	BestRun    int       `json:"bestRun"`
	BestEnergy float64   `json:"bestEnergy"`
	TotalEvals int       `json:"totalEvals"`
	Cancelled  bool      `json:"cancelled,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewResult creates a result from a finished simulation state.
func NewResult(jobID string, inputs Inputs, state *dock.SimulationState, cancelled bool) *Result {
	return &Result{
		JobID:     jobID,
		Inputs:    inputs,
		State:     state,
		Cancelled: cancelled,
		Timestamp: time.Now(),
	}
}

// ToInfo converts a full Result to ResultInfo.
func (r *Result) ToInfo() ResultInfo {
	info := ResultInfo{
		JobID:     r.JobID,
		Ligand:    r.Inputs.Ligand,
		BestRun:   -1,
		Cancelled: r.Cancelled,
		Timestamp: r.Timestamp,
	}
	if r.State == nil {
		return info
	}
	info.Method = r.State.Params.Method
	info.Runs = len(r.State.Runs)
	info.TotalEvals = r.State.TotalEvals
	if best, ok := r.State.Best(); ok {
		info.BestRun = best.Run
		info.BestEnergy = best.Energy
	}
	return info
}

// Validate checks that the result is complete and internally consistent.
func (r *Result) Validate() error {
	if r.JobID == "" {
		return &ValidationError{Field: "JobID", Reason: "cannot be empty"}
	}
	if r.Inputs.Ligand == "" {
		return &ValidationError{Field: "Inputs.Ligand", Reason: "cannot be empty"}
	}
	if r.Inputs.Grid == "" {
		return &ValidationError{Field: "Inputs.Grid", Reason: "cannot be empty"}
	}
	if r.State == nil {
		return &ValidationError{Field: "State", Reason: "cannot be nil"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if len(r.State.Runs) == 0 && !r.Cancelled {
		return &ValidationError{Field: "State.Runs", Reason: "cannot be empty for a completed job"}
	}

	evals := 0
	for i, run := range r.State.Runs {
		if len(run.Genotype) == 0 {
			return &ValidationError{Field: fmt.Sprintf("State.Runs[%d].Genotype", i), Reason: "cannot be empty"}
		}
		if math.IsNaN(run.Energy) {
			return &ValidationError{Field: fmt.Sprintf("State.Runs[%d].Energy", i), Reason: "is NaN"}
		}
		if run.Evals < 0 {
			return &ValidationError{Field: fmt.Sprintf("State.Runs[%d].Evals", i), Reason: "cannot be negative"}
		}
		evals += run.Evals
	}
	if evals != r.State.TotalEvals {
		return &ValidationError{
			Field:  "State.TotalEvals",
			Reason: fmt.Sprintf("mismatch: runs sum to %d, recorded %d", evals, r.State.TotalEvals),
		}
	}
	return nil
}

// ValidationError represents a result validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
