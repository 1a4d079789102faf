package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Query server status or specific job",
	Long: `Queries the server for job status information.
If no job-id is provided, lists all jobs.
If job-id is provided, shows detailed status for that job.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	if len(args) == 0 {
		return listJobs(w, fmt.Sprintf("%s/api/v1/jobs", serverURL))
	}
	jobID := args[0]
	return getJobStatus(w, fmt.Sprintf("%s/api/v1/jobs/%s/status", serverURL, jobID), jobID)
}

// jobSummary is the subset of a job listing entry printed by status.
type jobSummary struct {
	ID       string `json:"id"`
	State    string `json:"state"`
	Progress struct {
		Percent float64 `json:"percent"`
	} `json:"progress"`
	BestEnergy *float64 `json:"bestEnergy"`
	Request    struct {
		Ligand string `json:"ligand"`
		Params struct {
			Method  string `json:"method"`
			NumRuns int    `json:"numRuns"`
		} `json:"params"`
	} `json:"request"`
}

func listJobs(w io.Writer, url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var jobs []jobSummary
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs found")
		return nil
	}

	fmt.Fprintf(w, "Found %d job(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(w, "Job ID: %s\n", job.ID)
		fmt.Fprintf(w, "  State: %s (%.1f%%)\n", job.State, job.Progress.Percent)
		fmt.Fprintf(w, "  Ligand: %s\n", job.Request.Ligand)
		fmt.Fprintf(w, "  Method: %s, %d run(s)\n", job.Request.Params.Method, job.Request.Params.NumRuns)
		if job.BestEnergy != nil {
			fmt.Fprintf(w, "  Best energy: %.4f kcal/mol\n", *job.BestEnergy)
		}
		fmt.Fprintln(w)
	}

	return nil
}

// jobStatus mirrors the server's status response.
type jobStatus struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Request struct {
		Ligand    string `json:"ligand"`
		Grid      string `json:"grid"`
		Reference string `json:"reference"`
		Params    struct {
			Method         string `json:"method"`
			NumRuns        int    `json:"numRuns"`
			PopulationSize int    `json:"populationSize"`
			MaxEvaluations int    `json:"maxEvaluations"`
			MaxGenerations int    `json:"maxGenerations"`
			Seed           uint64 `json:"seed"`
		} `json:"params"`
	} `json:"request"`
	Percent        float64  `json:"percent"`
	TotalEvals     int      `json:"totalEvals"`
	Generation     int      `json:"generation"`
	BestEnergy     *float64 `json:"bestEnergy"`
	BestRun        int      `json:"bestRun"`
	Elapsed        float64  `json:"elapsed"`
	EvalsPerSecond float64  `json:"evalsPerSecond"`
	Error          string   `json:"error"`
}

func getJobStatus(w io.Writer, url, jobID string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var status jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Fprintf(w, "Job: %s\n", status.ID)
	fmt.Fprintf(w, "State: %s\n", status.State)
	fmt.Fprintln(w)

	p := status.Request.Params
	fmt.Fprintln(w, "Configuration:")
	fmt.Fprintf(w, "  Ligand: %s\n", status.Request.Ligand)
	fmt.Fprintf(w, "  Grid: %s\n", status.Request.Grid)
	if status.Request.Reference != "" {
		fmt.Fprintf(w, "  Reference: %s\n", status.Request.Reference)
	}
	fmt.Fprintf(w, "  Method: %s\n", p.Method)
	fmt.Fprintf(w, "  Runs: %d\n", p.NumRuns)
	fmt.Fprintf(w, "  Population: %d\n", p.PopulationSize)
	fmt.Fprintf(w, "  Budget: %d evals / %d generations per run\n", p.MaxEvaluations, p.MaxGenerations)
	fmt.Fprintf(w, "  Seed: %d\n", p.Seed)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Progress:")
	fmt.Fprintf(w, "  Percent: %.1f%%\n", status.Percent)
	fmt.Fprintf(w, "  Generation: %d\n", status.Generation)
	fmt.Fprintf(w, "  Evaluations: %d\n", status.TotalEvals)
	if status.BestEnergy != nil {
		fmt.Fprintf(w, "  Best Energy: %.4f kcal/mol (run %d)\n", *status.BestEnergy, status.BestRun)
	}

	elapsed := time.Duration(status.Elapsed * float64(time.Second))
	fmt.Fprintf(w, "  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	if status.EvalsPerSecond > 0 {
		fmt.Fprintf(w, "  Throughput: %.0f evals/sec\n", status.EvalsPerSecond)
	}

	if status.Error != "" {
		fmt.Fprintf(w, "\nError: %s\n", status.Error)
	}

	return nil
}
