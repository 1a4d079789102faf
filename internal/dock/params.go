package dock

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/cwbudde/lgadock/internal/energy"
	"github.com/cwbudde/lgadock/internal/ligand"
	"github.com/cwbudde/lgadock/internal/opt"
)

// ErrConfig reports invalid docking parameters.
var ErrConfig = errors.New("invalid docking configuration")

// Search methods.
const (
	MethodLGA    = "lga"
	MethodGA     = "ga"
	MethodLS     = "ls"
	MethodMayfly = "mayfly"
)

// Operator names.
const (
	SelectionTournament = "tournament"
	SelectionRank       = "rank"

	CrossoverTwoPoint = "two-point"
	CrossoverOnePoint = "one-point"
	CrossoverUniform  = "uniform"

	MutationUniform  = "uniform"
	MutationGaussian = "gaussian"
)

// Params configures a docking job.
type Params struct {
	PopulationSize int    `json:"populationSize" yaml:"population_size" mapstructure:"population_size"`
	NumRuns        int    `json:"numRuns" yaml:"num_of_runs" mapstructure:"num_of_runs"`
	MaxGenerations int    `json:"maxGenerations" yaml:"max_generations" mapstructure:"max_generations"`
	MaxEvaluations int    `json:"maxEvaluations" yaml:"max_evaluations" mapstructure:"max_evaluations"`
	Method         string `json:"method" yaml:"method" mapstructure:"method"`

	MutationRate   float64 `json:"mutationRate" yaml:"mutation_rate" mapstructure:"mutation_rate"`
	Mutation       string  `json:"mutation" yaml:"mutation" mapstructure:"mutation"`
	CrossoverRate  float64 `json:"crossoverRate" yaml:"crossover_rate" mapstructure:"crossover_rate"`
	Crossover      string  `json:"crossover" yaml:"crossover" mapstructure:"crossover"`
	Selection      string  `json:"selection" yaml:"selection" mapstructure:"selection"`
	TournamentSize int     `json:"tournamentSize" yaml:"tournament_size" mapstructure:"tournament_size"`
	TournamentRate float64 `json:"tournamentRate" yaml:"tournament_rate" mapstructure:"tournament_rate"`
	RankPressure   float64 `json:"rankPressure" yaml:"rank_pressure" mapstructure:"rank_pressure"`
	Elitism        int     `json:"elitism" yaml:"elitism" mapstructure:"elitism"`

	LocalSearchRate     float64 `json:"localSearchRate" yaml:"local_search_rate" mapstructure:"local_search_rate"`
	LocalSearchMaxIters int     `json:"localSearchMaxIters" yaml:"local_search_max_iters" mapstructure:"local_search_max_iters"`
	LSConsLimit         int     `json:"lsConsLimit" yaml:"ls_cons_limit" mapstructure:"ls_cons_limit"`
	LSRhoLower          float64 `json:"lsRhoLower" yaml:"ls_rho_lower" mapstructure:"ls_rho_lower"`

	// MaxDmov (Å) and MaxDang (degrees) scale mutation and local search steps.
	MaxDmov float64 `json:"maxDmov" yaml:"max_dmov" mapstructure:"max_dmov"`
	MaxDang float64 `json:"maxDang" yaml:"max_dang" mapstructure:"max_dang"`

	OutOfGridTolerance float64 `json:"outOfGridTolerance" yaml:"out_of_grid_tolerance" mapstructure:"out_of_grid_tolerance"`
	DistanceCutoff     float64 `json:"distanceCutoff" yaml:"distance_cutoff" mapstructure:"distance_cutoff"`
	Smooth             float64 `json:"smooth" yaml:"smooth" mapstructure:"smooth"`
	IgnoreDesolv       bool    `json:"ignoreDesolv" yaml:"ignore_desolv" mapstructure:"ignore_desolv"`

	Seed         uint64        `json:"seed" yaml:"seed" mapstructure:"seed"`
	Backend      string        `json:"backend" yaml:"backend" mapstructure:"backend"`
	Workers      int           `json:"workers" yaml:"workers" mapstructure:"workers"`
	ParallelRuns int           `json:"parallelRuns" yaml:"parallel_runs" mapstructure:"parallel_runs"`
	MaxWallTime  time.Duration `json:"maxWallTime" yaml:"max_wall_time" mapstructure:"max_wall_time"`

	// Convergence detection is off while ConvergencePatience is zero.
	ConvergencePatience  int     `json:"convergencePatience" yaml:"convergence_patience" mapstructure:"convergence_patience"`
	ConvergenceThreshold float64 `json:"convergenceThreshold" yaml:"convergence_threshold" mapstructure:"convergence_threshold"`
	AutostopStdDev       float64 `json:"autostopStdDev" yaml:"autostop_stddev" mapstructure:"autostop_stddev"`

	MaxMemoryMB int           `json:"maxMemoryMB" yaml:"max_memory_mb" mapstructure:"max_memory_mb"`
	Limits      ligand.Limits `json:"limits" yaml:"limits" mapstructure:"limits"`
}

// DefaultParams returns the standard LGA settings.
func DefaultParams() Params {
	return Params{
		PopulationSize: 150,
		NumRuns:        10,
		MaxGenerations: 27000,
		MaxEvaluations: 2500000,
		Method:         MethodLGA,

		MutationRate:   0.02,
		Mutation:       MutationUniform,
		CrossoverRate:  0.8,
		Crossover:      CrossoverTwoPoint,
		Selection:      SelectionTournament,
		TournamentSize: 2,
		TournamentRate: 0.6,
		RankPressure:   1.5,
		Elitism:        1,

		LocalSearchRate:     0.8,
		LocalSearchMaxIters: 300,
		LSConsLimit:         4,
		LSRhoLower:          0.01,

		MaxDmov: 2,
		MaxDang: 90,

		DistanceCutoff: 8,
		Smooth:         energy.DefaultSmooth,

		Seed:    1,
		Backend: string(BackendPool),
		Workers: runtime.GOMAXPROCS(0),

		ConvergenceThreshold: 0.001,

		MaxMemoryMB: 2048,
		Limits:      ligand.DefaultLimits(),
	}
}

// Validate checks parameter ranges and operator names.
func (p Params) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(p.PopulationSize >= 2, "population_size must be >= 2, got %d", p.PopulationSize)
	check(p.NumRuns >= 1, "num_of_runs must be >= 1, got %d", p.NumRuns)
	check(p.MaxGenerations >= 1, "max_generations must be >= 1, got %d", p.MaxGenerations)
	check(p.MaxEvaluations >= 1, "max_evaluations must be >= 1, got %d", p.MaxEvaluations)
	check(p.Elitism >= 0 && p.Elitism < p.PopulationSize, "elitism must be in [0, population_size), got %d", p.Elitism)
	check(inUnit(p.MutationRate), "mutation_rate must be in [0,1], got %v", p.MutationRate)
	check(inUnit(p.CrossoverRate), "crossover_rate must be in [0,1], got %v", p.CrossoverRate)
	check(inUnit(p.TournamentRate), "tournament_rate must be in [0,1], got %v", p.TournamentRate)
	check(p.TournamentSize >= 1, "tournament_size must be >= 1, got %d", p.TournamentSize)
	check(p.RankPressure >= 1 && p.RankPressure <= 2, "rank_pressure must be in [1,2], got %v", p.RankPressure)
	check(inUnit(p.LocalSearchRate), "local_search_rate must be in [0,1], got %v", p.LocalSearchRate)
	check(p.LocalSearchMaxIters >= 0, "local_search_max_iters must be >= 0, got %d", p.LocalSearchMaxIters)
	check(p.LSConsLimit >= 1, "ls_cons_limit must be >= 1, got %d", p.LSConsLimit)
	check(p.LSRhoLower > 0, "ls_rho_lower must be > 0, got %v", p.LSRhoLower)
	check(p.MaxDmov > 0, "max_dmov must be > 0, got %v", p.MaxDmov)
	check(p.MaxDang > 0, "max_dang must be > 0, got %v", p.MaxDang)
	check(p.OutOfGridTolerance >= 0, "out_of_grid_tolerance must be >= 0, got %v", p.OutOfGridTolerance)
	check(p.DistanceCutoff > 0, "distance_cutoff must be > 0, got %v", p.DistanceCutoff)
	check(p.Smooth >= 0, "smooth must be >= 0, got %v", p.Smooth)
	check(p.Workers >= 0, "workers must be >= 0, got %d", p.Workers)
	check(p.ParallelRuns >= 0, "parallel_runs must be >= 0, got %d", p.ParallelRuns)
	check(p.MaxWallTime >= 0, "max_wall_time must be >= 0, got %v", p.MaxWallTime)
	check(p.ConvergencePatience >= 0, "convergence_patience must be >= 0, got %d", p.ConvergencePatience)
	check(p.AutostopStdDev >= 0, "autostop_stddev must be >= 0, got %v", p.AutostopStdDev)
	check(p.MaxMemoryMB >= 0, "max_memory_mb must be >= 0, got %d", p.MaxMemoryMB)

	switch p.Method {
	case MethodLGA, MethodGA, MethodLS:
	case MethodMayfly:
		check(p.PopulationSize >= opt.MinMayflyPopulation, "method mayfly needs population_size >= %d, got %d", opt.MinMayflyPopulation, p.PopulationSize)
	default:
		check(false, "unknown method %q", p.Method)
	}
	switch p.Selection {
	case SelectionTournament, SelectionRank:
	default:
		check(false, "unknown selection %q", p.Selection)
	}
	switch p.Crossover {
	case CrossoverTwoPoint, CrossoverOnePoint, CrossoverUniform:
	default:
		check(false, "unknown crossover %q", p.Crossover)
	}
	switch p.Mutation {
	case MutationUniform, MutationGaussian:
	default:
		check(false, "unknown mutation %q", p.Mutation)
	}
	if _, err := parseBackend(p.Backend); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfig, strings.Join(problems, "; "))
	}
	return nil
}

func inUnit(v float64) bool { return v >= 0 && v <= 1 }

func (p Params) selector() opt.Selector {
	if p.Selection == SelectionRank {
		return opt.RankSelector{Pressure: p.RankPressure}
	}
	return opt.TournamentSelector{Size: p.TournamentSize, Rate: p.TournamentRate}
}

func (p Params) crossover() opt.Crossover {
	switch p.Crossover {
	case CrossoverOnePoint:
		return opt.NPointCrossover{N: 1}
	case CrossoverUniform:
		return opt.UniformCrossover{}
	default:
		return opt.NPointCrossover{N: 2}
	}
}

func (p Params) mutator(scales []float64) opt.Mutator {
	if p.Mutation == MutationGaussian {
		return opt.GaussianMutator{Rate: p.MutationRate, Scales: scales}
	}
	return opt.UniformMutator{Rate: p.MutationRate, Scales: scales}
}

func (p Params) localSearch(scales []float64, normalize func([]float64)) opt.LocalSearch {
	return opt.SolisWets{
		MaxIters:  p.LocalSearchMaxIters,
		ConsLimit: p.LSConsLimit,
		RhoLower:  p.LSRhoLower,
		Scales:    scales,
		Normalize: normalize,
	}
}

// lsQuota is the most evaluations one Solis-Wets call can spend.
func (p Params) lsQuota() int {
	return 2 * p.LocalSearchMaxIters
}
