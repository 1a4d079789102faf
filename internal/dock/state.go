package dock

import (
	"errors"
	"time"

	"github.com/cwbudde/lgadock/internal/pose"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrResourceExhausted reports a job whose working set exceeds the
// configured memory limit.
var ErrResourceExhausted = errors.New("resource limit exceeded")

// StopReason records why a run terminated.
type StopReason string

const (
	StopNone        StopReason = ""
	StopGenerations StopReason = "max_generations"
	StopEvaluations StopReason = "max_evaluations"
	StopConverged   StopReason = "converged"
	StopCancelled   StopReason = "cancelled"
	StopWallTime    StopReason = "wall_time"
)

// RunResult is the final state of one independent run. BindingE is the
// estimated free energy of binding: the intermolecular energy plus the
// torsional entropy penalty of the rotatable bonds.
type RunResult struct {
	Run         int           `json:"run"`
	Genotype    pose.Genotype `json:"genotype"`
	Energy      float64       `json:"energy"`
	InterE      float64       `json:"interEnergy"`
	IntraE      float64       `json:"intraEnergy"`
	BindingE    float64       `json:"bindingEnergy"`
	Coords      []r3.Vec      `json:"coords"`
	Generations int           `json:"generations"`
	Evals       int           `json:"evals"`
	StopReason  StopReason    `json:"stopReason"`
	// RMSD against the reference pose, when one was supplied.
	RMSD *float64 `json:"rmsd,omitempty"`
}

// SimulationState is the outcome of a docking job.
type SimulationState struct {
	Runs       []RunResult   `json:"runs"`
	TotalEvals int           `json:"totalEvals"`
	Elapsed    time.Duration `json:"elapsed"`
	Seed       uint64        `json:"seed"`
	Params     Params        `json:"params"`
}

// Best returns the lowest energy run result, or false when no run finished.
func (s *SimulationState) Best() (RunResult, bool) {
	var best RunResult
	found := false
	for _, r := range s.Runs {
		if !found || r.Energy < best.Energy {
			best = r
			found = true
		}
	}
	return best, found
}

// GenerationSummary describes one run after one generation.
type GenerationSummary struct {
	Run        int       `json:"run"`
	Generation int       `json:"generation"`
	Evals      int       `json:"evals"`
	BestEnergy float64   `json:"bestEnergy"`
	MeanEnergy float64   `json:"meanEnergy"`
	StdDev     float64   `json:"stdDev"`
	Timestamp  time.Time `json:"timestamp"`
}

// Observer receives generation summaries. Implementations must be safe for
// concurrent use since runs progress in parallel, and should not block.
type Observer interface {
	OnGeneration(GenerationSummary)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(GenerationSummary)

// OnGeneration implements Observer.
func (f ObserverFunc) OnGeneration(s GenerationSummary) { f(s) }
