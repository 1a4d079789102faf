package dock

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/lgadock/internal/grid"
	"github.com/cwbudde/lgadock/internal/ligand"
	"github.com/cwbudde/lgadock/internal/pose"
	"gonum.org/v1/gonum/spatial/r3"
)

// butane returns a 4-atom ligand with a single rotatable bond and no
// intramolecular contributors.
func butane(t *testing.T) *ligand.Ligand {
	t.Helper()
	spec := ligand.Spec{
		Name: "butane",
		Atoms: []ligand.AtomSpec{
			{Type: "C", X: 0, Y: 0, Z: 0},
			{Type: "C", X: 1.53, Y: 0, Z: 0},
			{Type: "C", X: 2.04, Y: 1.44, Z: 0},
			{Type: "C", X: 3.57, Y: 1.44, Z: 0.1},
		},
		Bonds:    [][2]int{{0, 1}, {1, 2}, {2, 3}},
		RotBonds: [][2]int{{1, 2}},
	}
	lig, err := ligand.New(spec, ligand.DefaultLimits(), ligand.DefaultForceField())
	if err != nil {
		t.Fatalf("ligand.New failed: %v", err)
	}
	return lig
}

// hexane returns a 6-atom chain with two rotatable bonds.
func hexane(t *testing.T) *ligand.Ligand {
	t.Helper()
	spec := ligand.Spec{Name: "hexane"}
	for i := 0; i < 6; i++ {
		y := 0.0
		if i%2 == 1 {
			y = 1.0
		}
		spec.Atoms = append(spec.Atoms, ligand.AtomSpec{Type: "C", X: 1.3 * float64(i), Y: y, Charge: 0.05 * float64(i%3-1)})
		if i > 0 {
			spec.Bonds = append(spec.Bonds, [2]int{i - 1, i})
		}
	}
	spec.RotBonds = [][2]int{{1, 2}, {3, 4}}
	lig, err := ligand.New(spec, ligand.DefaultLimits(), ligand.DefaultForceField())
	if err != nil {
		t.Fatalf("ligand.New failed: %v", err)
	}
	return lig
}

// bowlGrid returns a grid whose carbon map rises quadratically away from
// the origin.
func bowlGrid() *grid.Grid {
	n := 21
	g := grid.NewUniform([3]int{n, n, n}, 1, r3.Vec{X: -10, Y: -10, Z: -10}, []string{"C"}, 0)
	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				p := r3.Add(g.Origin, r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)})
				g.Maps[0][x+n*(y+n*z)] = float32(0.05*r3.Dot(p, p) - 2)
			}
		}
	}
	return g
}

func smallParams() Params {
	p := DefaultParams()
	p.PopulationSize = 10
	p.NumRuns = 1
	p.MaxGenerations = 1000
	p.MaxEvaluations = 2000
	p.LocalSearchMaxIters = 30
	p.Workers = 4
	return p
}

func TestDock_FlatGridFindsZero(t *testing.T) {
	lig := butane(t)
	g := grid.NewUniform([3]int{11, 11, 11}, 1, r3.Vec{X: -5, Y: -5, Z: -5}, []string{"C"}, 0)

	p := DefaultParams()
	p.PopulationSize = 10
	p.NumRuns = 1
	p.MaxGenerations = 5
	p.Seed = 7

	e, err := NewEngine(lig, g, p)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	defer e.Close()

	state, err := e.Dock(context.Background())
	if err != nil {
		t.Fatalf("Dock failed: %v", err)
	}
	if len(state.Runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(state.Runs))
	}
	res := state.Runs[0]
	if res.Energy != 0 {
		t.Errorf("Expected best energy 0, got %f", res.Energy)
	}
	if res.Generations != 5 || res.StopReason != StopGenerations {
		t.Errorf("Expected 5 generations (max_generations), got %d (%s)", res.Generations, res.StopReason)
	}
	tor := res.Genotype[pose.NumRigidGenes]
	if tor < 0 || tor >= 360 {
		t.Errorf("Torsion %f outside [0,360)", tor)
	}
}

func TestDock_EvaluationBudget(t *testing.T) {
	lig := hexane(t)
	g := bowlGrid()

	for _, method := range []string{MethodLGA, MethodGA, MethodLS} {
		for _, budget := range []int{10, 57, 500, 1234} {
			p := smallParams()
			p.Method = method
			p.MaxEvaluations = budget
			p.MaxGenerations = 1 << 30

			e, err := NewEngine(lig, g, p)
			if err != nil {
				t.Fatalf("NewEngine failed: %v", err)
			}
			state, err := e.Dock(context.Background())
			if err != nil {
				t.Fatalf("Dock failed: %v", err)
			}
			evals := state.Runs[0].Evals
			if evals < budget || evals >= budget+p.PopulationSize {
				t.Errorf("%s budget %d: evals %d outside [%d, %d)", method, budget, evals, budget, budget+p.PopulationSize)
			}
			if state.Runs[0].StopReason != StopEvaluations {
				t.Errorf("%s budget %d: stop reason %s", method, budget, state.Runs[0].StopReason)
			}
		}
	}
}

func TestDock_Deterministic(t *testing.T) {
	lig := hexane(t)
	g := bowlGrid()

	dock := func(seed uint64, backend string) *SimulationState {
		p := smallParams()
		p.NumRuns = 3
		p.Seed = seed
		p.Backend = backend
		p.ParallelRuns = 2
		e, err := NewEngine(lig, g, p)
		if err != nil {
			t.Fatalf("NewEngine failed: %v", err)
		}
		state, err := e.Dock(context.Background())
		if err != nil {
			t.Fatalf("Dock failed: %v", err)
		}
		return state
	}

	a := dock(7, "pool")
	b := dock(7, "serial")
	c := dock(8, "pool")

	for i := range a.Runs {
		if a.Runs[i].Energy != b.Runs[i].Energy {
			t.Errorf("run %d: same seed gave energies %v and %v", i, a.Runs[i].Energy, b.Runs[i].Energy)
		}
		for k := range a.Runs[i].Genotype {
			if a.Runs[i].Genotype[k] != b.Runs[i].Genotype[k] {
				t.Fatalf("run %d: genotypes differ at gene %d", i, k)
			}
		}
	}

	same := true
	for i := range a.Runs {
		if a.Runs[i].Energy != c.Runs[i].Energy {
			same = false
		}
	}
	if same {
		t.Error("Different seeds produced identical trajectories")
	}

	// Runs of one job use distinct streams.
	if a.Runs[0].Energy == a.Runs[1].Energy && a.Runs[1].Energy == a.Runs[2].Energy {
		t.Error("Expected runs to differ from each other")
	}
}

func TestDock_ImprovesOverRandom(t *testing.T) {
	lig := hexane(t)
	g := bowlGrid()
	p := smallParams()
	p.PopulationSize = 30
	p.MaxEvaluations = 20000

	e, err := NewEngine(lig, g, p)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	state, err := e.Dock(context.Background())
	if err != nil {
		t.Fatalf("Dock failed: %v", err)
	}
	res := state.Runs[0]
	// Six carbons at the bowl minimum contribute about -2 each.
	if res.InterE > -8 {
		t.Errorf("Expected docked intermolecular energy below -8, got %f", res.InterE)
	}
	if math.Abs(res.InterE+res.IntraE-res.Energy) > 1e-9 {
		t.Errorf("Energy split %f + %f != %f", res.InterE, res.IntraE, res.Energy)
	}
	// Two rotatable bonds each cost CoeffTors of binding free energy.
	wantBinding := res.InterE + 2*ligand.DefaultForceField().CoeffTors
	if math.Abs(res.BindingE-wantBinding) > 1e-9 {
		t.Errorf("Expected binding energy %f, got %f", wantBinding, res.BindingE)
	}
	if len(res.Coords) != lig.NumAtoms() {
		t.Errorf("Expected %d coords, got %d", lig.NumAtoms(), len(res.Coords))
	}
}

func TestDock_Mayfly(t *testing.T) {
	lig := hexane(t)
	g := bowlGrid()
	p := smallParams()
	p.Method = MethodMayfly
	p.PopulationSize = 20
	p.MaxEvaluations = 3000

	e, err := NewEngine(lig, g, p)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	state, err := e.Dock(context.Background())
	if err != nil {
		t.Fatalf("Dock failed: %v", err)
	}
	res := state.Runs[0]
	if res.Evals > p.MaxEvaluations {
		t.Errorf("Mayfly used %d evaluations, budget %d", res.Evals, p.MaxEvaluations)
	}
	if math.IsInf(res.Energy, 0) || res.Energy >= cappedEnergy {
		t.Errorf("Expected a finite energy, got %f", res.Energy)
	}
}

func TestDock_ObserverAndReference(t *testing.T) {
	lig := hexane(t)
	g := bowlGrid()
	p := smallParams()
	p.NumRuns = 2
	p.MaxGenerations = 4
	p.MaxEvaluations = 1 << 20

	var mu sync.Mutex
	perRun := map[int]int{}
	obs := ObserverFunc(func(s GenerationSummary) {
		mu.Lock()
		perRun[s.Run]++
		mu.Unlock()
	})

	e, err := NewEngine(lig, g, p, WithObserver(obs), WithReference(lig.ReferenceCoords()))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	state, err := e.Dock(context.Background())
	if err != nil {
		t.Fatalf("Dock failed: %v", err)
	}

	for run := 0; run < 2; run++ {
		// Generation 0 plus four generations.
		if perRun[run] != 5 {
			t.Errorf("run %d: expected 5 summaries, got %d", run, perRun[run])
		}
	}
	for _, r := range state.Runs {
		if r.RMSD == nil {
			t.Errorf("run %d: expected RMSD against the reference", r.Run)
		}
	}

	prog := e.Progress()
	if prog.TotalEvals != state.TotalEvals {
		t.Errorf("Progress total %d != state total %d", prog.TotalEvals, state.TotalEvals)
	}
	if math.Abs(prog.Percent-100) > 1e-9 {
		t.Errorf("Expected 100%% progress after max_generations, got %f", prog.Percent)
	}
}

func TestDock_Cancelled(t *testing.T) {
	lig := hexane(t)
	g := bowlGrid()
	p := smallParams()
	p.MaxEvaluations = 1 << 30
	p.MaxGenerations = 1 << 30

	e, err := NewEngine(lig, g, p)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.observer = ObserverFunc(func(s GenerationSummary) {
		if s.Generation == 3 {
			cancel()
		}
	})

	state, err := e.Dock(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if len(state.Runs) != 1 || state.Runs[0].StopReason != StopCancelled {
		t.Fatalf("Expected one cancelled run, got %+v", state.Runs)
	}
	if state.Runs[0].Generations != 3 {
		t.Errorf("Expected stop at generation 3, got %d", state.Runs[0].Generations)
	}
}

func TestDock_WallTime(t *testing.T) {
	lig := hexane(t)
	g := bowlGrid()
	p := smallParams()
	p.MaxEvaluations = 1 << 30
	p.MaxGenerations = 1 << 30
	p.MaxWallTime = 50 * time.Millisecond

	e, err := NewEngine(lig, g, p)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	state, err := e.Dock(context.Background())
	if err != nil {
		t.Fatalf("Wall time expiry must not be an error, got %v", err)
	}
	if len(state.Runs) != 1 || state.Runs[0].StopReason != StopWallTime {
		t.Fatalf("Expected one run stopped by wall time, got %+v", state.Runs)
	}
}

func TestDock_WallTimeKeepsEveryRun(t *testing.T) {
	tests := []struct {
		name   string
		method string
		wall   time.Duration
	}{
		{"lga short", MethodLGA, 20 * time.Millisecond},
		{"lga expired", MethodLGA, time.Nanosecond},
		{"mayfly expired", MethodMayfly, time.Nanosecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := smallParams()
			p.Method = tt.method
			p.PopulationSize = 20
			p.NumRuns = 4
			p.ParallelRuns = 1
			p.MaxEvaluations = 1 << 30
			p.MaxGenerations = 1 << 30
			p.MaxWallTime = tt.wall

			e, err := NewEngine(hexane(t), bowlGrid(), p)
			if err != nil {
				t.Fatalf("NewEngine failed: %v", err)
			}
			state, err := e.Dock(context.Background())
			if err != nil {
				t.Fatalf("Wall time expiry must not be an error, got %v", err)
			}
			if len(state.Runs) != p.NumRuns {
				t.Fatalf("Expected %d runs, got %d", p.NumRuns, len(state.Runs))
			}
			total := 0
			for i, res := range state.Runs {
				if res.Run != i {
					t.Errorf("Expected run %d at position %d, got %d", i, i, res.Run)
				}
				if res.StopReason != StopWallTime {
					t.Errorf("Run %d: expected %s, got %s", i, StopWallTime, res.StopReason)
				}
				if res.Evals < p.PopulationSize {
					t.Errorf("Run %d: expected the initial population to be evaluated, got %d evals", i, res.Evals)
				}
				if math.IsInf(res.Energy, 0) || math.IsNaN(res.Energy) {
					t.Errorf("Run %d: expected a finite best energy, got %v", i, res.Energy)
				}
				total += res.Evals
			}
			if state.TotalEvals != total {
				t.Errorf("Expected total evals %d, got %d", total, state.TotalEvals)
			}
		})
	}
}

func TestDock_Convergence(t *testing.T) {
	lig := butane(t)
	g := grid.NewUniform([3]int{11, 11, 11}, 1, r3.Vec{X: -5, Y: -5, Z: -5}, []string{"C"}, 0)
	p := smallParams()
	p.MaxEvaluations = 1 << 30
	p.OutOfGridTolerance = 20
	p.ConvergencePatience = 3

	e, err := NewEngine(lig, g, p)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	state, err := e.Dock(context.Background())
	if err != nil {
		t.Fatalf("Dock failed: %v", err)
	}
	res := state.Runs[0]
	if res.StopReason != StopConverged || res.Generations != 3 {
		t.Errorf("Expected convergence after 3 flat generations, got %s at %d", res.StopReason, res.Generations)
	}
}

func TestNewEngine_Errors(t *testing.T) {
	lig := hexane(t)

	p := smallParams()
	p.Elitism = p.PopulationSize
	if _, err := NewEngine(lig, bowlGrid(), p); !errors.Is(err, ErrConfig) {
		t.Errorf("Expected ErrConfig for elitism >= population, got %v", err)
	}

	p = smallParams()
	p.MaxMemoryMB = 1
	big := grid.NewUniform([3]int{101, 101, 101}, 0.375, r3.Vec{}, []string{"C"}, 0)
	if _, err := NewEngine(lig, big, p); !errors.Is(err, ErrResourceExhausted) {
		t.Errorf("Expected ErrResourceExhausted, got %v", err)
	}

	p = smallParams()
	noCarbon := grid.NewUniform([3]int{5, 5, 5}, 1, r3.Vec{}, []string{"OA"}, 0)
	if _, err := NewEngine(lig, noCarbon, p); !errors.Is(err, grid.ErrInvalid) {
		t.Errorf("Expected grid.ErrInvalid for a missing map, got %v", err)
	}

	if _, err := NewEngine(lig, bowlGrid(), smallParams(), WithReference(make([]r3.Vec, 2))); !errors.Is(err, ErrConfig) {
		t.Errorf("Expected ErrConfig for a mismatched reference, got %v", err)
	}
}

func TestEngine_BreakdownAndPose(t *testing.T) {
	lig := hexane(t)
	e, err := NewEngine(lig, bowlGrid(), smallParams())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	g := pose.New(lig.NumRotBonds())
	g[pose.GeneTX] = 1

	coords := e.Pose(g)
	if math.Abs(coords[0].X-(lig.Coords[0].X+1)) > 1e-12 {
		t.Errorf("Expected translated atom, got %v", coords[0])
	}
	b := e.Breakdown(g)
	if math.Abs(b.Total-e.Evaluate(g)) > 1e-9 {
		t.Errorf("Breakdown total %f != Evaluate %f", b.Total, e.Evaluate(g))
	}
}
