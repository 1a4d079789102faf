package dock

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ConvergenceConfig defines parameters for detecting search convergence
type ConvergenceConfig struct {
	// Enabled controls whether convergence detection is active
	Enabled bool

	// Patience is the number of generations with no significant improvement
	// of the best energy before stopping
	Patience int

	// Threshold is the minimum relative improvement required to count as progress.
	// Relative improvement = (last - current) / max(|last|, 1), so energies
	// near or below zero are handled.
	Threshold float64

	// StdDev stops the run once the population energy standard deviation
	// drops below it (0 disables)
	StdDev float64
}

// DefaultConvergenceConfig returns sensible defaults for convergence detection
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  50,
		Threshold: 0.001,
	}
}

// DisabledConvergenceConfig returns a config with convergence detection disabled
func DisabledConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled: false,
	}
}

func (p Params) convergenceConfig() ConvergenceConfig {
	if p.ConvergencePatience <= 0 && p.AutostopStdDev <= 0 {
		return DisabledConvergenceConfig()
	}
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  p.ConvergencePatience,
		Threshold: p.ConvergenceThreshold,
		StdDev:    p.AutostopStdDev,
	}
}

// ConvergenceTracker tracks the best energy per generation and detects when
// a run has converged
type ConvergenceTracker struct {
	config          ConvergenceConfig
	history         []float64
	bestEnergy      float64 // Best energy ever seen
	lastSignificant float64 // Last energy that was a significant improvement
	staleCount      int     // Generations without significant improvement
}

// NewConvergenceTracker creates a new convergence tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		bestEnergy:      math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records the best energy and the population energies of a
// generation and returns true if convergence is detected
func (c *ConvergenceTracker) Update(best float64, energies []float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.history = append(c.history, best)
	if best < c.bestEnergy {
		c.bestEnergy = best
	}

	if c.config.StdDev > 0 && len(energies) > 1 {
		if sd := stat.PopStdDev(energies, nil); sd < c.config.StdDev {
			slog.Debug("Population energy spread below autostop threshold",
				"stddev", sd,
				"threshold", c.config.StdDev,
			)
			return true
		}
	}

	if c.config.Patience <= 0 {
		return false
	}

	// First generation - initialize lastSignificant
	if len(c.history) == 1 {
		c.lastSignificant = best
		return false
	}

	relativeImprovement := (c.lastSignificant - best) / math.Max(math.Abs(c.lastSignificant), 1)

	if relativeImprovement >= c.config.Threshold {
		c.lastSignificant = best
		c.staleCount = 0
		return false
	}

	c.staleCount++
	if c.staleCount >= c.config.Patience {
		slog.Debug("Convergence detected",
			"stale_count", c.staleCount,
			"patience", c.config.Patience,
			"best_energy", c.bestEnergy,
		)
		return true
	}
	return false
}

// BestEnergy returns the best energy seen so far
func (c *ConvergenceTracker) BestEnergy() float64 {
	return c.bestEnergy
}

// History returns the best energy of every generation
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.history...)
}

// StaleCount returns the current number of generations without improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}

// Reset clears the tracker's state
func (c *ConvergenceTracker) Reset() {
	c.history = nil
	c.bestEnergy = math.Inf(1)
	c.lastSignificant = math.Inf(1)
	c.staleCount = 0
}
