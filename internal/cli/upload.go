package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/raphaelgruber/docwatch/internal/client"
	"github.com/raphaelgruber/docwatch/internal/engine"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	uploadOwner string
	uploadWait  bool
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document for ingestion",
	Long: `Upload a document and print its job ID. With --wait, follow the job
until the server reports it done or failed.

When DOCWATCH_ASYNC_UPLOAD=false the legacy blocking upload is used and the
result is printed directly.

Examples:
  docwatch upload report.pdf
  docwatch upload notes.md --owner bot-2 --wait`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().StringVarP(&uploadOwner, "owner", "o", "", "owner (bot) to upload for")
	uploadCmd.Flags().BoolVarP(&uploadWait, "wait", "w", false, "follow the job until it settles")
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}

	eng, _, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	out := cmd.OutOrStdout()
	opts := engine.UploadOptions{OwnerID: uploadOwner}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		opts.OnProgress = func(pct float64) {
			fmt.Fprintf(os.Stderr, "\rUploading %s... %3.0f%%", filepath.Base(path), pct)
			if pct >= 100 {
				fmt.Fprintln(os.Stderr)
			}
		}
	}

	res, err := eng.Submit(ctx, client.File{
		Name:    filepath.Base(path),
		Size:    info.Size(),
		Content: f,
	}, opts)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	if !res.Async {
		fmt.Fprintf(out, "Processed %s: document %s, %d chunks in %dms\n",
			filepath.Base(path), res.DocumentID, res.ChunkCount, res.ProcessingTimeMs)
		return nil
	}

	fmt.Fprintf(out, "Queued %s as job %s\n", filepath.Base(path), res.JobID)
	if !uploadWait {
		return nil
	}
	return follow(out, localFeed(ctx, eng), res.JobID, true)
}
