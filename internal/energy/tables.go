// Package energy evaluates the AD4 scoring function for a ligand
// conformation: grid-interpolated intermolecular terms and pairwise
// intramolecular terms read from precomputed distance tables.
package energy

import (
	"math"

	"github.com/cwbudde/lgadock/internal/ligand"
)

const (
	// TableSize is the number of entries in each distance table.
	TableSize = 2048
	// TableStep is the distance increment between entries (Å).
	TableStep = 0.01
	// TableMaxDistance is the first distance with no table entry.
	TableMaxDistance = TableSize * TableStep

	desolvSigma = 3.6
)

// Mehler-Solmajer distance-dependent dielectric constants.
const (
	msLambda = 0.003627
	msEps0   = 78.4
	msA      = -8.5525
	msB      = msEps0 - msA
	msK      = 7.7839
)

// MehlerSolmajer returns the distance-dependent dielectric at r Å.
func MehlerSolmajer(r float64) float64 {
	return msA + msB/(1+msK*math.Exp(-msLambda*msB*r))
}

// Tables holds the distance-indexed lookup tables. Built once per job and
// shared read-only between runs.
type Tables struct {
	R6     [TableSize]float64
	R10    [TableSize]float64
	R12    [TableSize]float64
	REpsR  [TableSize]float64 // coeffElec / (r * eps(r))
	Desolv [TableSize]float64 // coeffDesolv * exp(-r^2 / (2 sigma^2))
}

// NewTables computes the lookup tables for the given force field.
func NewTables(ff ligand.ForceField) *Tables {
	t := &Tables{}
	for i := 0; i < TableSize; i++ {
		r := float64(i) * TableStep
		if r < TableStep {
			r = TableStep
		}
		r2 := r * r
		r6 := r2 * r2 * r2
		t.R6[i] = 1 / r6
		t.R10[i] = 1 / (r6 * r2 * r2)
		t.R12[i] = 1 / (r6 * r6)
		t.REpsR[i] = ff.CoeffElec / (r * MehlerSolmajer(r))
		t.Desolv[i] = ff.CoeffDesolv * math.Exp(-r2/(2*desolvSigma*desolvSigma))
	}
	return t
}

// TableIndex maps a distance to its table entry. ok is false when r lies
// beyond the last entry.
func TableIndex(r float64) (int, bool) {
	idx := int(r / TableStep)
	if idx < 0 || idx >= TableSize {
		return 0, false
	}
	return idx, true
}

// VdW returns the tabulated vdW or hydrogen bond energy of a type pair.
func (t *Tables) VdW(p ligand.VdWPair, r float64) float64 {
	idx, ok := TableIndex(r)
	if !ok {
		return 0
	}
	if p.HBond {
		return p.C*t.R12[idx] - p.D*t.R10[idx]
	}
	return p.A*t.R12[idx] - p.B*t.R6[idx]
}
