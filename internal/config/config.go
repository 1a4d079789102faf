// Package config loads docking job configuration from a YAML file,
// LGADOCK_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cwbudde/lgadock/internal/dock"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all settings.
const envPrefix = "LGADOCK"

// ErrInvalid reports an incomplete or inconsistent job configuration.
var ErrInvalid = errors.New("invalid job configuration")

// Job is the complete description of one docking job.
type Job struct {
	// Ligand and Grid are JSON(.gz) interchange files.
	Ligand string `json:"ligand" yaml:"ligand" mapstructure:"ligand"`
	Grid   string `json:"grid" yaml:"grid" mapstructure:"grid"`
	// Reference optionally names a ligand file whose coordinates are used
	// for RMSD reporting.
	Reference string `json:"reference,omitempty" yaml:"reference" mapstructure:"reference"`
	// DataDir is the root of the result store.
	DataDir string `json:"dataDir" yaml:"data_dir" mapstructure:"data_dir"`
	// CompressTrace writes the generation trace gzip-compressed.
	CompressTrace bool `json:"compressTrace" yaml:"compress_trace" mapstructure:"compress_trace"`

	Docking dock.Params `json:"docking" yaml:"docking" mapstructure:"docking"`
}

// Validate checks that the inputs are named and the docking parameters are
// consistent.
func (j *Job) Validate() error {
	if strings.TrimSpace(j.Ligand) == "" {
		return fmt.Errorf("%w: ligand path is required", ErrInvalid)
	}
	if strings.TrimSpace(j.Grid) == "" {
		return fmt.Errorf("%w: grid path is required", ErrInvalid)
	}
	if strings.TrimSpace(j.DataDir) == "" {
		return fmt.Errorf("%w: data_dir is required", ErrInvalid)
	}
	return j.Docking.Validate()
}

// FlagKeys maps command line flag names to configuration keys.
var FlagKeys = map[string]string{
	"ligand":         "ligand",
	"grid":           "grid",
	"reference":      "reference",
	"data-dir":       "data_dir",
	"compress-trace": "compress_trace",
	"runs":           "docking.num_of_runs",
	"pop":            "docking.population_size",
	"max-evals":      "docking.max_evaluations",
	"max-gens":       "docking.max_generations",
	"method":         "docking.method",
	"seed":           "docking.seed",
	"backend":        "docking.backend",
	"workers":        "docking.workers",
	"parallel-runs":  "docking.parallel_runs",
	"max-wall-time":  "docking.max_wall_time",
	"ls-rate":        "docking.local_search_rate",
	"patience":       "docking.convergence_patience",
}

// newViper builds a pre-configured Viper instance: YAML file type, LGADOCK_
// env prefix, automatic env binding, and a key replacer that maps "." to "_"
// so that "docking.num_of_runs" resolves to "LGADOCK_DOCKING_NUM_OF_RUNS".
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	p := dock.DefaultParams()

	v.SetDefault("data_dir", "./data")
	v.SetDefault("ligand", "")
	v.SetDefault("grid", "")
	v.SetDefault("reference", "")
	v.SetDefault("compress_trace", false)

	defaults := map[string]any{
		"population_size":        p.PopulationSize,
		"num_of_runs":            p.NumRuns,
		"max_generations":        p.MaxGenerations,
		"max_evaluations":        p.MaxEvaluations,
		"method":                 p.Method,
		"mutation_rate":          p.MutationRate,
		"mutation":               p.Mutation,
		"crossover_rate":         p.CrossoverRate,
		"crossover":              p.Crossover,
		"selection":              p.Selection,
		"tournament_size":        p.TournamentSize,
		"tournament_rate":        p.TournamentRate,
		"rank_pressure":          p.RankPressure,
		"elitism":                p.Elitism,
		"local_search_rate":      p.LocalSearchRate,
		"local_search_max_iters": p.LocalSearchMaxIters,
		"ls_cons_limit":          p.LSConsLimit,
		"ls_rho_lower":           p.LSRhoLower,
		"max_dmov":               p.MaxDmov,
		"max_dang":               p.MaxDang,
		"out_of_grid_tolerance":  p.OutOfGridTolerance,
		"distance_cutoff":        p.DistanceCutoff,
		"smooth":                 p.Smooth,
		"ignore_desolv":          p.IgnoreDesolv,
		"seed":                   p.Seed,
		"backend":                p.Backend,
		"workers":                p.Workers,
		"parallel_runs":          p.ParallelRuns,
		"max_wall_time":          p.MaxWallTime,
		"convergence_patience":   p.ConvergencePatience,
		"convergence_threshold":  p.ConvergenceThreshold,
		"autostop_stddev":        p.AutostopStdDev,
		"max_memory_mb":          p.MaxMemoryMB,
		"limits.max_atoms":       p.Limits.MaxAtoms,
		"limits.max_rotbonds":    p.Limits.MaxRotBonds,
		"limits.max_types":       p.Limits.MaxTypes,
	}
	for k, val := range defaults {
		v.SetDefault("docking."+k, val)
	}
}

// Load reads the YAML file at path (skipped when path is empty), merges
// LGADOCK_* environment overrides and any changed flags in flags (which may
// be nil), and validates the docking parameters. Input paths are not
// required here; call Job.Validate once every source has been applied.
func Load(path string, flags *pflag.FlagSet) (*Job, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read config file %q: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range FlagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: failed to bind flag %q: %w", name, err)
				}
			}
		}
	}

	job := &Job{}
	if err := v.Unmarshal(job); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}
	if err := job.Docking.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return job, nil
}

// Default returns a job with default settings and no inputs.
func Default() *Job {
	return &Job{
		DataDir: "./data",
		Docking: dock.DefaultParams(),
	}
}
