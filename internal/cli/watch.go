package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/docwatch/internal/client"
	"github.com/raphaelgruber/docwatch/internal/engine"
	"github.com/raphaelgruber/docwatch/internal/models"
	"github.com/raphaelgruber/docwatch/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	watchOwner  string
	watchRemote string
	watchExit   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow tracked jobs live",
	Long: `Fetch the current page of jobs and follow every in-flight job until it
settles. With --remote, follow the feed of a running 'docwatch serve' instead.

When stdout is not a terminal, one line is printed per job change.

Examples:
  docwatch watch
  docwatch watch --owner bot-1 --exit
  docwatch watch --remote http://localhost:8585`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchOwner, "owner", "o", "", "owner (bot) to list jobs for")
	watchCmd.Flags().StringVar(&watchRemote, "remote", "", "host bridge URL to follow instead of polling directly")
	watchCmd.Flags().BoolVar(&watchExit, "exit", false, "exit once every job is done, failed or stale")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if watchRemote != "" {
		feed, errc := remoteFeed(ctx, watchRemote)
		if err := follow(cmd.OutOrStdout(), feed, "", watchExit); err != nil {
			return err
		}
		stop()
		if err := <-errc; err != nil && ctx.Err() == nil {
			return fmt.Errorf("watch %s: %w", watchRemote, err)
		}
		return nil
	}

	eng, _, err := newEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if _, err := eng.FetchJobs(ctx, engine.ListRequest{Owner: watchOwner}); err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if cfg.ResyncInterval > 0 {
		resync, err := engine.NewResync(eng, cfg.ResyncInterval)
		if err != nil {
			return err
		}
		resync.Start()
		defer resync.Stop()
	}

	return follow(cmd.OutOrStdout(), localFeed(ctx, eng), "", watchExit)
}

// follow renders feed with the interactive view on a terminal, plain lines otherwise.
func follow(w io.Writer, feed <-chan models.FeedMessage, only string, exitWhenSettled bool) error {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return RunJobsView(feed, only, exitWhenSettled)
	}
	return followPlain(w, feed, only, exitWhenSettled)
}

// followPlain prints one line per job whenever its status or progress changes.
func followPlain(w io.Writer, feed <-chan models.FeedMessage, only string, exitWhenSettled bool) error {
	last := map[string]string{}
	for msg := range feed {
		jobs := filterJobs(msg.Jobs, only)
		for _, rec := range jobs {
			line := plainLine(rec)
			if last[rec.JobID] == line {
				continue
			}
			last[rec.JobID] = line
			fmt.Fprintln(w, line)
		}
		if exitWhenSettled && settled(jobs) {
			return failure(jobs)
		}
	}
	return nil
}

func plainLine(rec models.JobRecord) string {
	line := fmt.Sprintf("%-36s %-28s %-10s %5.1f%%", rec.JobID, truncateName(rec.OriginalFilename, 28), rec.Status, rec.Progress())
	switch {
	case rec.Stale:
		line += " stale: " + rec.LastPollError
	case rec.ErrorMessage != nil:
		line += " error: " + *rec.ErrorMessage
	case rec.ChunkCount != nil:
		line += fmt.Sprintf(" chunks=%d", *rec.ChunkCount)
	}
	return line
}

// localFeed turns store snapshots of eng into feed messages, starting with the current state.
func localFeed(ctx context.Context, eng *engine.Engine) <-chan models.FeedMessage {
	snapshots, unsubscribe := eng.Store().Subscribe(1)
	out := make(chan models.FeedMessage)

	go func() {
		defer close(out)
		defer unsubscribe()

		send := func(snap store.Snapshot) bool {
			msg := models.FeedMessage{
				Type:    models.FeedSnapshot,
				Version: snap.Version,
				Jobs:    snap.Jobs(),
				Polling: eng.Polling(),
				Cadence: eng.Cadence().String(),
			}
			select {
			case out <- msg:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(eng.Store().Snapshot()) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-snapshots:
				if !ok || !send(snap) {
					return
				}
			}
		}
	}()
	return out
}

// remoteFeed follows a host bridge websocket. The error channel yields the
// final WatchFeed result after the feed closes.
func remoteFeed(ctx context.Context, url string) (<-chan models.FeedMessage, <-chan error) {
	out := make(chan models.FeedMessage)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		errc <- client.WatchFeed(ctx, url, func(msg models.FeedMessage) error {
			select {
			case out <- msg:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return out, errc
}
