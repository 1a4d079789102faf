package energy

import (
	"math"
	"testing"

	"github.com/cwbudde/lgadock/internal/grid"
	"github.com/cwbudde/lgadock/internal/ligand"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestMehlerSolmajer(t *testing.T) {
	// Approaches the bulk water value at large distance.
	if eps := MehlerSolmajer(1000); math.Abs(eps-msEps0) > 1e-6 {
		t.Errorf("Expected eps -> %f, got %f", msEps0, eps)
	}
	if MehlerSolmajer(1) >= MehlerSolmajer(5) {
		t.Error("Expected dielectric to increase with distance")
	}
}

func TestTableIndex(t *testing.T) {
	tests := []struct {
		r    float64
		idx  int
		want bool
	}{
		{0, 0, true},
		{0.005, 0, true},
		{1.234, 123, true},
		{20.475, 2047, true},
		{20.5, 0, false},
		{-1, 0, false},
	}
	for _, tt := range tests {
		idx, ok := TableIndex(tt.r)
		if ok != tt.want || (ok && idx != tt.idx) {
			t.Errorf("TableIndex(%v) = %d, %v; want %d, %v", tt.r, idx, ok, tt.idx, tt.want)
		}
	}
}

func TestTables_VdWMatchesClosedForm(t *testing.T) {
	ff := ligand.DefaultForceField()
	tables := NewTables(ff)

	spec := ligand.Spec{
		Atoms: []ligand.AtomSpec{{Type: "C"}, {Type: "OA", X: 1}, {Type: "HD", X: 2}},
		Bonds: [][2]int{{0, 1}, {1, 2}},
	}
	lig, err := ligand.New(spec, ligand.DefaultLimits(), ff)
	if err != nil {
		t.Fatalf("ligand.New failed: %v", err)
	}

	pairs := []ligand.VdWPair{
		lig.PairParams(lig.Types[0], lig.Types[0]),
		lig.PairParams(lig.Types[1], lig.Types[2]),
	}
	for _, p := range pairs {
		for _, r := range []float64{1.8, 2.5, 3.7, 5.2, 7.9} {
			// Entries are sampled at the lower edge of each 0.01 Å bin.
			idx, _ := TableIndex(r)
			rs := float64(idx) * TableStep
			want := p.Energy(rs)
			got := tables.VdW(p, r)
			if math.Abs(got-want) > 1e-9*math.Max(1, math.Abs(want)) {
				t.Errorf("VdW(hbond=%v, r=%v) = %g, want %g", p.HBond, r, got, want)
			}
			// Discretization error is bounded by one bin of the closed form.
			if d := math.Abs(got - p.Energy(r)); d > math.Abs(p.Energy(rs)-p.Energy(rs+TableStep))+1e-12 {
				t.Errorf("VdW(r=%v) discretization error %g exceeds one bin", r, d)
			}
		}
	}
}

// chainLigand returns a 6-atom chain with one central rotatable bond, so
// atoms 0/4, 0/5 and 1/5 are intramolecular contributors.
func chainLigand(t *testing.T) *ligand.Ligand {
	t.Helper()
	spec := ligand.Spec{}
	for i := 0; i < 6; i++ {
		spec.Atoms = append(spec.Atoms, ligand.AtomSpec{Type: "C", X: 1.5 * float64(i), Charge: 0.1 * float64(i%2*2-1)})
		if i > 0 {
			spec.Bonds = append(spec.Bonds, [2]int{i - 1, i})
		}
	}
	spec.RotBonds = [][2]int{{2, 3}}
	lig, err := ligand.New(spec, ligand.DefaultLimits(), ligand.DefaultForceField())
	if err != nil {
		t.Fatalf("ligand.New failed: %v", err)
	}
	return lig
}

func TestEvaluator_FlatGrid(t *testing.T) {
	lig := chainLigand(t)
	g := grid.NewUniform([3]int{21, 21, 21}, 1, r3.Vec{X: -5, Y: -10, Z: -10}, []string{"C"}, 0)
	ff := ligand.DefaultForceField()
	e, err := NewEvaluator(lig, g, NewTables(ff), ff, DefaultOptions())
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}

	coords := lig.ReferenceCoords()
	if inter := e.Inter(coords); inter != 0 {
		t.Errorf("Expected zero intermolecular energy on a zero grid, got %f", inter)
	}
	if intra := e.Intra(coords); intra == 0 {
		t.Error("Expected non-zero intramolecular energy for the chain")
	}

	b := e.Breakdown(coords)
	if math.Abs(b.Total-e.Evaluate(coords)) > 1e-9 {
		t.Errorf("Breakdown total %f != Evaluate %f", b.Total, e.Evaluate(coords))
	}
	var sum float64
	for _, v := range b.Intra {
		sum += v
	}
	if math.Abs(sum-b.IntraTotal) > 1e-9 {
		t.Errorf("Per-atom intra sum %f != total %f", sum, b.IntraTotal)
	}
}

func TestEvaluator_ConstantGrid(t *testing.T) {
	lig := chainLigand(t)
	g := grid.NewUniform([3]int{21, 21, 21}, 1, r3.Vec{X: -5, Y: -10, Z: -10}, []string{"C"}, -0.5)
	ff := ligand.DefaultForceField()
	opts := DefaultOptions()
	opts.IgnoreDesolv = true
	e, err := NewEvaluator(lig, g, NewTables(ff), ff, opts)
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}

	// Charges alternate -0.1/+0.1 so the elec map term cancels.
	if inter := e.Inter(lig.ReferenceCoords()); math.Abs(inter-(-0.5*6)) > 1e-6 {
		t.Errorf("Expected inter -3, got %f", inter)
	}
}

func TestEvaluator_OutOfGridPenalty(t *testing.T) {
	lig := chainLigand(t)
	g := grid.NewUniform([3]int{5, 5, 5}, 1, r3.Vec{X: -2, Y: -2, Z: -2}, []string{"C"}, 0)
	ff := ligand.DefaultForceField()
	e, err := NewEvaluator(lig, g, NewTables(ff), ff, DefaultOptions())
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}

	// Atoms at x = 0, 1.5 lie inside; x = 3 .. 7.5 lie outside.
	got := e.Inter(lig.ReferenceCoords())
	if got != 4*OutOfGridPenalty {
		t.Errorf("Expected 4 penalties, got %f", got)
	}

	b := e.Breakdown(lig.ReferenceCoords())
	if b.OutOfGrid[0] || !b.OutOfGrid[5] {
		t.Errorf("Unexpected out-of-grid flags: %v", b.OutOfGrid)
	}
}

func TestNewEvaluator_MissingMap(t *testing.T) {
	lig := chainLigand(t)
	g := grid.NewUniform([3]int{3, 3, 3}, 1, r3.Vec{}, []string{"OA"}, 0)
	ff := ligand.DefaultForceField()
	if _, err := NewEvaluator(lig, g, NewTables(ff), ff, DefaultOptions()); err == nil {
		t.Error("Expected error for ligand type without a grid map")
	}
}

func TestEvaluator_SmoothedPairEnergy(t *testing.T) {
	spec := ligand.Spec{}
	for i := 0; i < 6; i++ {
		spec.Atoms = append(spec.Atoms, ligand.AtomSpec{Type: "C", X: 1.5 * float64(i)})
		if i > 0 {
			spec.Bonds = append(spec.Bonds, [2]int{i - 1, i})
		}
	}
	spec.RotBonds = [][2]int{{2, 3}}
	ff := ligand.DefaultForceField()
	lig, err := ligand.New(spec, ligand.DefaultLimits(), ff)
	if err != nil {
		t.Fatalf("ligand.New failed: %v", err)
	}
	if len(lig.IntraPairs) == 0 {
		t.Fatal("Expected intramolecular pairs")
	}
	g := grid.NewUniform([3]int{3, 3, 3}, 1, r3.Vec{}, []string{"C"}, 0)
	pair := lig.IntraPairs[0]
	vdw := lig.PairParams(lig.Types[pair.I], lig.Types[pair.J])

	// Every other pair sits beyond the cutoff and carries no charge, so the
	// total is the vdW term of the chosen pair alone.
	place := func(d float64) []r3.Vec {
		coords := make([]r3.Vec, lig.NumAtoms())
		for k := range coords {
			coords[k] = r3.Vec{X: 30 * float64(k)}
		}
		coords[pair.I] = r3.Vec{Y: 200}
		coords[pair.J] = r3.Vec{X: d, Y: 200}
		return coords
	}
	tabulated := func(r float64) float64 {
		idx, _ := TableIndex(r)
		return vdw.Energy(float64(idx) * TableStep)
	}

	for _, smooth := range []float64{0, DefaultSmooth} {
		opts := DefaultOptions()
		opts.IgnoreDesolv = true
		opts.Smooth = smooth
		e, err := NewEvaluator(lig, g, NewTables(ff), ff, opts)
		if err != nil {
			t.Fatalf("NewEvaluator failed: %v", err)
		}
		for _, d := range []float64{vdw.Rij - 0.3, vdw.Rij - 0.1, vdw.Rij + 0.1, vdw.Rij + 0.3} {
			want := tabulated(vdw.Smooth(d, smooth))
			got := e.Intra(place(d))
			if math.Abs(got-want) > 1e-9*math.Max(1, math.Abs(want)) {
				t.Errorf("Intra(smooth=%v, r=%v) = %g, want %g", smooth, d, got, want)
			}
		}
	}

	// Inside the flat well the pair sits at the minimum.
	opts := DefaultOptions()
	opts.IgnoreDesolv = true
	e, err := NewEvaluator(lig, g, NewTables(ff), ff, opts)
	if err != nil {
		t.Fatalf("NewEvaluator failed: %v", err)
	}
	minimum := -ff.CoeffVdW * 0.150
	for _, d := range []float64{vdw.Rij - 0.2, vdw.Rij + 0.2} {
		if got := e.Intra(place(d)); math.Abs(got-minimum) > 1e-9 {
			t.Errorf("Expected well minimum %f at r=%v, got %f", minimum, d, got)
		}
	}
	// Outside the well the smoothed energy is that of a distance shifted
	// by half the width towards Rij, up to one table bin.
	for _, tt := range []struct{ d, shifted float64 }{
		{vdw.Rij + 0.3, vdw.Rij + 0.05},
		{vdw.Rij - 0.3, vdw.Rij - 0.05},
	} {
		want := vdw.Energy(tt.shifted)
		bin := math.Abs(vdw.Energy(tt.shifted-TableStep)-vdw.Energy(tt.shifted+TableStep)) + 1e-12
		if got := e.Intra(place(tt.d)); math.Abs(got-want) > bin {
			t.Errorf("Expected %g at r=%v, got %g", want, tt.d, got)
		}
	}
}

func TestNewEvaluator_NegativeSmooth(t *testing.T) {
	lig := chainLigand(t)
	g := grid.NewUniform([3]int{3, 3, 3}, 1, r3.Vec{}, []string{"C"}, 0)
	ff := ligand.DefaultForceField()
	opts := DefaultOptions()
	opts.Smooth = -0.1
	if _, err := NewEvaluator(lig, g, NewTables(ff), ff, opts); err == nil {
		t.Error("Expected error for negative smoothing width")
	}
}
