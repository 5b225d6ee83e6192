package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/raphaelgruber/docwatch/internal/client"
	"github.com/raphaelgruber/docwatch/internal/models"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show the server's status for a job",
	Long: `Fetch the current status of one ingestion job.

Examples:
  docwatch status 3f2c9a7e-1b2d-4c5e-8f90-a1b2c3d4e5f6`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	api, err := newAPIClient()
	if err != nil {
		return err
	}

	st, err := api.GetJobStatus(ctx, args[0])
	if err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("job not found: %s", args[0])
		}
		return fmt.Errorf("get status: %w", err)
	}

	printStatus(cmd.OutOrStdout(), st)
	return nil
}

func printStatus(w io.Writer, st *client.StatusResponse) {
	fmt.Fprintf(w, "Job: %s\n", st.DocumentID)
	if st.Filename != "" {
		fmt.Fprintf(w, "  File: %s\n", st.Filename)
	}
	status := models.NormalizeStatus(st.Status)
	fmt.Fprintf(w, "  Status: %s\n", status)
	if st.ProgressPercent != nil {
		fmt.Fprintf(w, "  Progress: %.1f%%\n", models.ClampPercent(*st.ProgressPercent))
	}
	if !st.CreatedAt.IsZero() {
		fmt.Fprintf(w, "  Created: %s\n", st.CreatedAt.Format(time.RFC3339))
	}
	if st.CompletedAt != nil {
		fmt.Fprintf(w, "  Completed: %s\n", st.CompletedAt.Format(time.RFC3339))
		if !st.CreatedAt.IsZero() {
			fmt.Fprintf(w, "  Duration: %s\n", st.CompletedAt.Sub(st.CreatedAt).Round(time.Second))
		}
	}
	if st.ChunkCount != nil {
		fmt.Fprintf(w, "  Chunks: %d\n", *st.ChunkCount)
	}
	if ms := client.SecondsToMillis(st.ProcessingTime); ms != nil {
		fmt.Fprintf(w, "  Processing time: %dms\n", *ms)
	}
	if status == models.StatusFailed && st.ErrorMessage != nil && *st.ErrorMessage != "" {
		fmt.Fprintf(w, "  Error: %s\n", *st.ErrorMessage)
	}
}
