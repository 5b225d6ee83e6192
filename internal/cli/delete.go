package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	deleteOwner string
	deleteForce bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a job and its document",
	Long: `Delete an ingestion job and the stored document on the server.

Requires confirmation unless --force is used.

Examples:
  docwatch delete 3f2c9a7e-1b2d-4c5e-8f90-a1b2c3d4e5f6 --owner bot-1
  docwatch delete 3f2c9a7e-1b2d-4c5e-8f90-a1b2c3d4e5f6 --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().StringVarP(&deleteOwner, "owner", "o", "", "owner (bot) of the job")
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	out := cmd.OutOrStdout()

	if !deleteForce {
		fmt.Fprintf(out, "About to delete job %s\n", jobID)
		fmt.Fprint(out, "\nContinue? [y/N]: ")

		reader := bufio.NewReader(cmd.InOrStdin())
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		response = strings.TrimSpace(strings.ToLower(response))

		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	eng, _, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.Delete(ctx, jobID, deleteOwner); err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted: %s\n", jobID)
	return nil
}
