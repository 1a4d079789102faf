package ligand

import (
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

// chainSpec returns an n-atom zig-zag carbon chain with the given rotatable
// bonds.
func chainSpec(n int, rotbonds ...[2]int) Spec {
	spec := Spec{Name: "chain"}
	for i := 0; i < n; i++ {
		y := 0.0
		if i%2 == 1 {
			y = 0.9
		}
		spec.Atoms = append(spec.Atoms, AtomSpec{Type: "C", X: 1.25 * float64(i), Y: y})
		if i > 0 {
			spec.Bonds = append(spec.Bonds, [2]int{i - 1, i})
		}
	}
	spec.RotBonds = rotbonds
	return spec
}

func TestNew_Chain(t *testing.T) {
	lig, err := New(chainSpec(6, [2]int{2, 3}), DefaultLimits(), DefaultForceField())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if lig.NumAtoms() != 6 || lig.NumRotBonds() != 1 || lig.NumTypes() != 1 {
		t.Fatalf("Unexpected sizes: atoms=%d rotbonds=%d types=%d", lig.NumAtoms(), lig.NumRotBonds(), lig.NumTypes())
	}

	wantMoved := []bool{false, false, false, false, true, true}
	for i, m := range lig.Moved[0] {
		if m != wantMoved[i] {
			t.Errorf("Moved[0][%d] = %v, want %v", i, m, wantMoved[i])
		}
	}

	if lig.Fragments[0] != lig.Fragments[2] || lig.Fragments[3] != lig.Fragments[5] || lig.Fragments[2] == lig.Fragments[3] {
		t.Errorf("Unexpected fragments: %v", lig.Fragments)
	}

	want := []Pair{{0, 4}, {0, 5}, {1, 5}}
	if len(lig.IntraPairs) != len(want) {
		t.Fatalf("Expected %d intra pairs, got %v", len(want), lig.IntraPairs)
	}
	for i, p := range want {
		if lig.IntraPairs[i] != p {
			t.Errorf("IntraPairs[%d] = %v, want %v", i, lig.IntraPairs[i], p)
		}
	}
}

func TestNew_RigidLigandHasNoIntraPairs(t *testing.T) {
	lig, err := New(chainSpec(8), DefaultLimits(), DefaultForceField())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if len(lig.IntraPairs) != 0 {
		t.Errorf("Expected no intra pairs for a rigid ligand, got %d", len(lig.IntraPairs))
	}
	if len(lig.Schedule) != 0 {
		t.Errorf("Expected empty schedule, got %v", lig.Schedule)
	}
}

func TestRotationSchedule_InnerBondFirst(t *testing.T) {
	lig, err := New(chainSpec(6, [2]int{1, 2}, [2]int{3, 4}), DefaultLimits(), DefaultForceField())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if len(lig.Schedule) != 2 || lig.Schedule[0] != 1 || lig.Schedule[1] != 0 {
		t.Errorf("Expected schedule [1 0], got %v", lig.Schedule)
	}
}

func TestRotationVectors(t *testing.T) {
	lig, err := New(chainSpec(4, [2]int{1, 2}), DefaultLimits(), DefaultForceField())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	rv := lig.RotVectors[0]
	if rv.Anchor != lig.Coords[1] {
		t.Errorf("Expected anchor at atom 1, got %v", rv.Anchor)
	}
	if math.Abs(r3.Norm(rv.Axis)-1) > 1e-12 {
		t.Errorf("Expected unit axis, got norm %f", r3.Norm(rv.Axis))
	}
}

func TestNew_Errors(t *testing.T) {
	ff := DefaultForceField()

	tests := []struct {
		name   string
		spec   Spec
		limits Limits
		want   error
	}{
		{
			name:   "empty",
			spec:   Spec{},
			limits: DefaultLimits(),
			want:   ErrTopology,
		},
		{
			name:   "unknown type",
			spec:   Spec{Atoms: []AtomSpec{{Type: "Xx"}}},
			limits: DefaultLimits(),
			want:   ErrTopology,
		},
		{
			name: "bond out of range",
			spec: Spec{
				Atoms: []AtomSpec{{Type: "C"}, {Type: "C", X: 1.5}},
				Bonds: [][2]int{{0, 5}},
			},
			limits: DefaultLimits(),
			want:   ErrTopology,
		},
		{
			name: "rotatable bond in ring",
			spec: Spec{
				Atoms:    []AtomSpec{{Type: "C"}, {Type: "C", X: 1.5}, {Type: "C", X: 0.75, Y: 1.3}},
				Bonds:    [][2]int{{0, 1}, {1, 2}, {2, 0}},
				RotBonds: [][2]int{{0, 1}},
			},
			limits: DefaultLimits(),
			want:   ErrTopology,
		},
		{
			name:   "rotatable bond not bonded",
			spec:   Spec{Atoms: chainSpec(4).Atoms, Bonds: chainSpec(4).Bonds, RotBonds: [][2]int{{0, 3}}},
			limits: DefaultLimits(),
			want:   ErrTopology,
		},
		{
			name:   "too many atoms",
			spec:   chainSpec(10),
			limits: Limits{MaxAtoms: 5},
			want:   ErrCapacity,
		},
		{
			name:   "too many rotatable bonds",
			spec:   chainSpec(6, [2]int{1, 2}, [2]int{2, 3}, [2]int{3, 4}),
			limits: Limits{MaxRotBonds: 2},
			want:   ErrCapacity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.spec, tt.limits, ff)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestExplicitMovedLists(t *testing.T) {
	spec := chainSpec(5, [2]int{1, 2})
	spec.Moved = [][]int{{0}}
	lig, err := New(spec, DefaultLimits(), DefaultForceField())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !lig.Moved[0][0] || lig.Moved[0][3] || lig.Moved[0][4] {
		t.Errorf("Explicit moved list not honoured: %v", lig.Moved[0])
	}
}

func TestPairParams(t *testing.T) {
	spec := Spec{
		Atoms: []AtomSpec{{Type: "OA"}, {Type: "HD", X: 1}, {Type: "C", X: 2}},
		Bonds: [][2]int{{0, 1}, {1, 2}},
	}
	lig, err := New(spec, DefaultLimits(), DefaultForceField())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	oa, hd, c := lig.Types[0], lig.Types[1], lig.Types[2]
	if !lig.PairParams(oa, hd).HBond || !lig.PairParams(hd, oa).HBond {
		t.Error("Expected OA-HD to be an H-bond pair")
	}
	if lig.PairParams(c, c).HBond {
		t.Error("C-C must not be an H-bond pair")
	}

	// The 12-6 potential has its minimum of -eps at req.
	cc := lig.PairParams(c, c)
	eps := DefaultForceField().CoeffVdW * 0.150
	if e := cc.Energy(4.0); math.Abs(e+eps) > 1e-9 {
		t.Errorf("Expected C-C minimum %f at 4 Å, got %f", -eps, e)
	}
	if cc.Rij != 4.0 || cc.Req() != 4.0 {
		t.Errorf("Expected C-C Rij 4, got %v", cc.Rij)
	}
	if hb := lig.PairParams(oa, hd); hb.RijHB != 1.9 || hb.Req() != 1.9 {
		t.Errorf("Expected OA-HD RijHB 1.9, got %v", hb.RijHB)
	}
}

func TestVdWPair_Smooth(t *testing.T) {
	p := VdWPair{Rij: 4, RijHB: 1.9}
	hb := VdWPair{Rij: 3.6, RijHB: 1.9, HBond: true}
	tests := []struct {
		pair  VdWPair
		r     float64
		width float64
		want  float64
	}{
		{p, 4.3, 0.5, 4.05},
		{p, 3.7, 0.5, 3.95},
		{p, 4.2, 0.5, 4},
		{p, 3.8, 0.5, 4},
		{p, 4.25, 0.5, 4},
		{p, 3.7, 0, 3.7},
		{hb, 2.2, 0.5, 1.95},
		{hb, 1.6, 0.5, 1.85},
		{hb, 2.0, 0.5, 1.9},
	}
	for _, tt := range tests {
		if got := tt.pair.Smooth(tt.r, tt.width); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("Smooth(hbond=%v, r=%v, w=%v) = %v, want %v", tt.pair.HBond, tt.r, tt.width, got, tt.want)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ligand.json")
	data, err := json.Marshal(chainSpec(5, [2]int{1, 2}))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	lig, err := Load(path, DefaultLimits(), DefaultForceField())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if lig.NumAtoms() != 5 {
		t.Errorf("Expected 5 atoms, got %d", lig.NumAtoms())
	}

	if _, err := Load(filepath.Join(dir, "missing.json"), DefaultLimits(), DefaultForceField()); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestSaveSpec_Compressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ligand.json.gz")
	spec := chainSpec(4, [2]int{1, 2})
	if err := SaveSpec(path, spec); err != nil {
		t.Fatalf("SaveSpec failed: %v", err)
	}

	got, err := LoadSpec(path)
	if err != nil {
		t.Fatalf("LoadSpec failed: %v", err)
	}
	if len(got.Atoms) != 4 || len(got.RotBonds) != 1 || got.RotBonds[0] != [2]int{1, 2} {
		t.Errorf("Spec not preserved: %+v", got)
	}
}

func TestRMSD(t *testing.T) {
	a := []r3.Vec{{X: 0}, {X: 1}}
	b := []r3.Vec{{X: 0, Y: 2}, {X: 1, Y: 2}}
	got, err := RMSD(a, b)
	if err != nil {
		t.Fatalf("RMSD failed: %v", err)
	}
	if math.Abs(got-2) > 1e-12 {
		t.Errorf("Expected RMSD 2, got %f", got)
	}
	if _, err := RMSD(a, b[:1]); err == nil {
		t.Error("Expected error for mismatched lengths")
	}
}
