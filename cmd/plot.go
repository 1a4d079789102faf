package main

import (
	"fmt"

	"github.com/cwbudde/lgadock/internal/store"
	"github.com/spf13/cobra"
)

var (
	plotDataDir string
	plotOut     string
	plotTitle   string
)

var plotCmd = &cobra.Command{
	Use:   "plot [job-id]",
	Short: "Plot the best energy per generation of a stored job",
	Long:  `Reads the generation trace of a job and renders one best energy curve per run as a PNG.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runPlot,
}

func init() {
	plotCmd.Flags().StringVar(&plotDataDir, "data-dir", "./data", "Base directory for results and traces")
	plotCmd.Flags().StringVarP(&plotOut, "out", "o", "energy.png", "Output image path")
	plotCmd.Flags().StringVar(&plotTitle, "title", "", "Plot title (default: job ID)")
	rootCmd.AddCommand(plotCmd)
}

func runPlot(cmd *cobra.Command, args []string) error {
	jobID := args[0]

	tr, err := store.NewTraceReader(plotDataDir, jobID)
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer tr.Close()

	entries, err := tr.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read trace: %w", err)
	}

	title := plotTitle
	if title == "" {
		title = jobID
	}
	if err := store.PlotTrace(entries, title, plotOut); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d generation summaries)\n", plotOut, len(entries))
	return nil
}
