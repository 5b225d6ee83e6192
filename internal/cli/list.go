package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/raphaelgruber/docwatch/internal/engine"
	"github.com/raphaelgruber/docwatch/internal/models"
	"github.com/spf13/cobra"
)

var (
	listOwner     string
	listStatus    string
	listSearch    string
	listLimit     int
	listOffset    int
	listSortBy    string
	listSortOrder string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingestion jobs",
	Long: `List a page of ingestion jobs for an owner.

Examples:
  docwatch list
  docwatch list --owner bot-2 --status failed
  docwatch list --search report --limit 20 --offset 20
  docwatch list --sort-by filename --sort-order asc`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listOwner, "owner", "o", "", "owner (bot) to list jobs for")
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "filter by status (uploaded, queued, processing, done, failed)")
	listCmd.Flags().StringVar(&listSearch, "search", "", "filter by filename")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", engine.DefaultListLimit, "max results")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "results to skip")
	listCmd.Flags().StringVar(&listSortBy, "sort-by", "", "sort field (created_at, updated_at, filename)")
	listCmd.Flags().StringVar(&listSortOrder, "sort-order", "", "sort order (asc, desc)")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	req := engine.ListRequest{
		Owner:     listOwner,
		Search:    listSearch,
		Limit:     listLimit,
		Offset:    listOffset,
		SortBy:    listSortBy,
		SortOrder: listSortOrder,
	}
	if listStatus != "" {
		st, err := models.ParseStatus(listStatus)
		if err != nil {
			return err
		}
		req.Status = st
	}

	eng, _, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	res, err := eng.FetchJobs(ctx, req)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	printJobs(cmd.OutOrStdout(), res)
	return nil
}

func printJobs(w io.Writer, res engine.ListResult) {
	if len(res.Jobs) == 0 {
		fmt.Fprintln(w, "No jobs found.")
		return
	}

	fmt.Fprintf(w, "%-36s %-28s %-10s %-8s %s\n", "ID", "FILE", "STATUS", "PROGRESS", "CREATED")
	fmt.Fprintln(w, "------------------------------------------------------------------------------------------------------")
	for _, rec := range res.Jobs {
		progress := ""
		if rec.ProgressPercent != nil {
			progress = fmt.Sprintf("%.0f%%", *rec.ProgressPercent)
		}
		fmt.Fprintf(w, "%-36s %-28s %-10s %-8s %s\n",
			rec.JobID, truncateName(rec.OriginalFilename, 28), rec.Status, progress, rec.CreatedAt.Format("2006-01-02 15:04"))
		if verbose && rec.Status == models.StatusFailed && rec.ErrorMessage != nil {
			fmt.Fprintf(w, "  %s\n", *rec.ErrorMessage)
		}
	}
	fmt.Fprintf(w, "\nShowing %d-%d of %d\n", res.Offset+1, res.Offset+len(res.Jobs), res.Total)
}
