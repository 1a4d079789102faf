package energy

import (
	"fmt"
	"math"

	"github.com/cwbudde/lgadock/internal/grid"
	"github.com/cwbudde/lgadock/internal/ligand"
	"gonum.org/v1/gonum/spatial/r3"
)

// OutOfGridPenalty is the energy contributed by an atom lying further
// outside the grid box than the configured tolerance.
const OutOfGridPenalty = 1 << 24

// Options tunes the evaluator.
type Options struct {
	// OutOfGridTolerance is how far (Å) an atom may leave the box before it
	// is penalized instead of clamped.
	OutOfGridTolerance float64
	// DistanceCutoff limits intramolecular vdW/H-bond terms (Å).
	DistanceCutoff float64
	// Smooth is the width (Å) of the flat well around each pair's
	// equilibrium distance in the intramolecular vdW/H-bond term.
	Smooth       float64
	IgnoreDesolv bool
}

// DefaultSmooth is the AD4 pair potential smoothing width (Å).
const DefaultSmooth = 0.5

// DefaultOptions returns the standard AD4 settings.
func DefaultOptions() Options {
	return Options{DistanceCutoff: 8, Smooth: DefaultSmooth}
}

type intraPair struct {
	i, j int
	vdw  ligand.VdWPair
	qq   float64
	dsol float64
}

// Evaluator scores ligand conformations. It holds only read-only state and
// is safe for concurrent use.
type Evaluator struct {
	lig    *ligand.Ligand
	grid   *grid.Grid
	tables *Tables
	opts   Options

	atomMap []int // per atom grid map index
	absQ    []float64
	pairs   []intraPair
}

// NewEvaluator binds a ligand to a grid. Every ligand atom type must have a
// map in the grid.
func NewEvaluator(lig *ligand.Ligand, g *grid.Grid, tables *Tables, ff ligand.ForceField, opts Options) (*Evaluator, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if opts.DistanceCutoff <= 0 {
		return nil, fmt.Errorf("distance cutoff must be positive, got %v", opts.DistanceCutoff)
	}
	if opts.Smooth < 0 {
		return nil, fmt.Errorf("smoothing width must be >= 0, got %v", opts.Smooth)
	}

	typeMap := make([]int, lig.NumTypes())
	for t, name := range lig.TypeNames {
		idx, err := g.MapIndex(name)
		if err != nil {
			return nil, err
		}
		typeMap[t] = idx
	}

	e := &Evaluator{
		lig:     lig,
		grid:    g,
		tables:  tables,
		opts:    opts,
		atomMap: make([]int, lig.NumAtoms()),
		absQ:    make([]float64, lig.NumAtoms()),
	}
	for i, t := range lig.Types {
		e.atomMap[i] = typeMap[t]
		e.absQ[i] = math.Abs(lig.Charges[i])
	}

	e.pairs = make([]intraPair, len(lig.IntraPairs))
	for k, p := range lig.IntraPairs {
		ti, tj := lig.Types[p.I], lig.Types[p.J]
		dsol := (lig.Solpar[ti]+ff.Qasp*e.absQ[p.I])*lig.Volume[tj] +
			(lig.Solpar[tj]+ff.Qasp*e.absQ[p.J])*lig.Volume[ti]
		e.pairs[k] = intraPair{
			i:    p.I,
			j:    p.J,
			vdw:  lig.PairParams(ti, tj),
			qq:   lig.Charges[p.I] * lig.Charges[p.J],
			dsol: dsol,
		}
	}
	return e, nil
}

// Ligand returns the bound ligand.
func (e *Evaluator) Ligand() *ligand.Ligand { return e.lig }

// Evaluate returns the total (intermolecular + intramolecular) energy.
func (e *Evaluator) Evaluate(coords []r3.Vec) float64 {
	return e.Inter(coords) + e.Intra(coords)
}

// Inter returns the grid-interpolated intermolecular energy.
func (e *Evaluator) Inter(coords []r3.Vec) float64 {
	var sum float64
	for i, p := range coords {
		vdw, elec, desolv, ok := e.atomInter(i, p)
		if !ok {
			sum += OutOfGridPenalty
			continue
		}
		sum += vdw + elec + desolv
	}
	return sum
}

func (e *Evaluator) atomInter(i int, p r3.Vec) (vdw, elec, desolv float64, ok bool) {
	cell, ok := e.grid.Locate(p, e.opts.OutOfGridTolerance)
	if !ok {
		return 0, 0, 0, false
	}
	vdw = cell.Interpolate(e.grid.Maps[e.atomMap[i]])
	elec = e.lig.Charges[i] * cell.Interpolate(e.grid.Elec)
	if !e.opts.IgnoreDesolv {
		desolv = e.absQ[i] * cell.Interpolate(e.grid.Desolv)
	}
	return vdw, elec, desolv, true
}

// Intra returns the pairwise intramolecular energy.
func (e *Evaluator) Intra(coords []r3.Vec) float64 {
	var sum float64
	for k := range e.pairs {
		sum += e.pairEnergy(&e.pairs[k], coords)
	}
	return sum
}

func (e *Evaluator) pairEnergy(p *intraPair, coords []r3.Vec) float64 {
	r := r3.Norm(r3.Sub(coords[p.i], coords[p.j]))
	idx, ok := TableIndex(r)
	if !ok {
		return 0
	}
	t := e.tables
	var energy float64
	if r < e.opts.DistanceCutoff {
		// Only the vdW/H-bond term sees the smoothed distance.
		if sidx, ok := TableIndex(p.vdw.Smooth(r, e.opts.Smooth)); ok {
			if p.vdw.HBond {
				energy += p.vdw.C*t.R12[sidx] - p.vdw.D*t.R10[sidx]
			} else {
				energy += p.vdw.A*t.R12[sidx] - p.vdw.B*t.R6[sidx]
			}
		}
	}
	energy += p.qq * t.REpsR[idx]
	if !e.opts.IgnoreDesolv {
		energy += p.dsol * t.Desolv[idx]
	}
	return energy
}

// Breakdown is a per-atom decomposition of the energy of one conformation.
// Intramolecular pair energies are split evenly between the two atoms.
type Breakdown struct {
	VdW       []float64 `json:"vdw"`
	Elec      []float64 `json:"elec"`
	Desolv    []float64 `json:"desolv"`
	Intra     []float64 `json:"intra"`
	OutOfGrid []bool    `json:"outOfGrid,omitempty"`

	InterTotal float64 `json:"inter"`
	IntraTotal float64 `json:"intraTotal"`
	Total      float64 `json:"total"`
}

// Breakdown decomposes the energy of coords per atom.
func (e *Evaluator) Breakdown(coords []r3.Vec) Breakdown {
	n := len(coords)
	b := Breakdown{
		VdW:       make([]float64, n),
		Elec:      make([]float64, n),
		Desolv:    make([]float64, n),
		Intra:     make([]float64, n),
		OutOfGrid: make([]bool, n),
	}
	for i, p := range coords {
		vdw, elec, desolv, ok := e.atomInter(i, p)
		if !ok {
			b.OutOfGrid[i] = true
			b.VdW[i] = OutOfGridPenalty
			b.InterTotal += OutOfGridPenalty
			continue
		}
		b.VdW[i], b.Elec[i], b.Desolv[i] = vdw, elec, desolv
		b.InterTotal += vdw + elec + desolv
	}
	for k := range e.pairs {
		p := &e.pairs[k]
		pe := e.pairEnergy(p, coords)
		b.Intra[p.i] += pe / 2
		b.Intra[p.j] += pe / 2
		b.IntraTotal += pe
	}
	b.Total = b.InterTotal + b.IntraTotal
	return b
}
