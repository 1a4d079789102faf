package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/lgadock/internal/config"
	"github.com/cwbudde/lgadock/internal/dock"
	"github.com/cwbudde/lgadock/internal/ligand"
	"github.com/cwbudde/lgadock/internal/pipeline"
	"github.com/cwbudde/lgadock/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	runJobID string
	outPath  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Dock one ligand",
	Long: `Runs independent docking runs of one ligand against a set of grid maps,
stores the result and generation trace under the data directory, and prints
a summary of every run. Flags override values from --config and LGADOCK_*
environment variables.`,
	RunE: runDocking,
}

func init() {
	p := dock.DefaultParams()
	f := runCmd.Flags()
	f.String("ligand", "", "Ligand file (.json or .json.gz)")
	f.String("grid", "", "Grid map file (.json or .json.gz)")
	f.String("reference", "", "Reference ligand pose for RMSD reporting")
	f.String("data-dir", "./data", "Base directory for results and traces")
	f.Bool("compress-trace", false, "Write the generation trace gzip-compressed")
	f.Int("runs", p.NumRuns, "Number of independent runs")
	f.Int("pop", p.PopulationSize, "Population size")
	f.Int("max-evals", p.MaxEvaluations, "Energy evaluation budget per run")
	f.Int("max-gens", p.MaxGenerations, "Generation budget per run")
	f.String("method", p.Method, "Search method: lga, ga, ls, mayfly")
	f.Uint64("seed", p.Seed, "Random seed")
	f.String("backend", p.Backend, "Evaluation backend: pool, serial")
	f.Int("workers", p.Workers, "Evaluation workers (0 = GOMAXPROCS)")
	f.Int("parallel-runs", p.ParallelRuns, "Runs executed concurrently (0 = all)")
	f.Duration("max-wall-time", p.MaxWallTime, "Wall clock limit for the job (0 = none)")
	f.Float64("ls-rate", p.LocalSearchRate, "Fraction of the population refined by local search")
	f.Int("patience", p.ConvergencePatience, "Generations without improvement before a run stops (0 = off)")

	runCmd.Flags().StringVar(&runJobID, "job-id", "", "Job ID (default: random UUID)")
	runCmd.Flags().StringVar(&outPath, "out", "", "Write the best pose as a ligand file")

	rootCmd.AddCommand(runCmd)
}

func runDocking(cmd *cobra.Command, args []string) error {
	job, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return dockJob(ctx, job, runJobID, outPath, cmd.OutOrStdout())
}

// dockJob runs job, prints the per-run summary to w and optionally writes
// the best pose. An interrupted job still prints and stores what finished.
func dockJob(ctx context.Context, job *config.Job, jobID, out string, w io.Writer) error {
	if err := job.Validate(); err != nil {
		return err
	}
	st, err := store.NewFSStore(job.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create result store: %w", err)
	}
	if jobID == "" {
		jobID = uuid.New().String()
	}

	slog.Info("Job started",
		"job_id", jobID,
		"method", job.Docking.Method,
		"runs", job.Docking.NumRuns,
		"population", job.Docking.PopulationSize,
		"max_evals", job.Docking.MaxEvaluations,
	)

	result, runErr := pipeline.Run(ctx, *job, st, jobID, pipeline.Hooks{})
	if result == nil {
		return runErr
	}

	printRuns(w, result)
	fmt.Fprintf(w, "\nResult: %s\n", st.JobDir(jobID))

	if out != "" {
		if best, ok := result.State.Best(); ok {
			if err := writePose(job.Ligand, best, out); err != nil {
				return err
			}
			fmt.Fprintf(w, "Wrote best pose (run %d) to %s\n", best.Run, out)
		}
	}

	if errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("docking interrupted after %d run(s): %w", len(result.State.Runs), runErr)
	}
	return runErr
}

func printRuns(w io.Writer, result *store.Result) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tENERGY\tINTER\tINTRA\tBINDING\tGENS\tEVALS\tSTOP\tRMSD")
	fmt.Fprintln(tw, "---\t------\t-----\t-----\t-------\t----\t-----\t----\t----")
	for _, r := range result.State.Runs {
		rmsd := "-"
		if r.RMSD != nil {
			rmsd = fmt.Sprintf("%.3f", *r.RMSD)
		}
		fmt.Fprintf(tw, "%d\t%.4f\t%.4f\t%.4f\t%.4f\t%d\t%d\t%s\t%s\n",
			r.Run, r.Energy, r.InterE, r.IntraE, r.BindingE, r.Generations, r.Evals, r.StopReason, rmsd)
	}
	tw.Flush()

	if best, ok := result.State.Best(); ok {
		fmt.Fprintf(w, "\nBest: run %d, %.4f kcal/mol (%d evaluations in %s)\n",
			best.Run, best.Energy, result.State.TotalEvals, result.State.Elapsed.Round(time.Millisecond))
	}
}

// writePose saves the ligand file at ligPath with its coordinates replaced by
// those of run.
func writePose(ligPath string, run dock.RunResult, path string) error {
	spec, err := ligand.LoadSpec(ligPath)
	if err != nil {
		return fmt.Errorf("failed to reload ligand: %w", err)
	}
	if len(spec.Atoms) != len(run.Coords) {
		return fmt.Errorf("pose has %d atoms, ligand has %d", len(run.Coords), len(spec.Atoms))
	}
	for i, c := range run.Coords {
		spec.Atoms[i].X, spec.Atoms[i].Y, spec.Atoms[i].Z = c.X, c.Y, c.Z
	}
	if err := ligand.SaveSpec(path, spec); err != nil {
		return fmt.Errorf("failed to write pose: %w", err)
	}
	return nil
}
