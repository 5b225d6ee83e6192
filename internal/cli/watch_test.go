package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/raphaelgruber/docwatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedOf(msgs ...models.FeedMessage) <-chan models.FeedMessage {
	ch := make(chan models.FeedMessage, len(msgs))
	for _, m := range msgs {
		ch <- m
	}
	close(ch)
	return ch
}

func TestFollowPlainPrintsChanges(t *testing.T) {
	queued := rec("job-1", models.StatusQueued)
	processing := rec("job-1", models.StatusProcessing)
	processing.ProgressPercent = models.Ptr(50.0)

	var out bytes.Buffer
	err := followPlain(&out, feedOf(
		models.FeedMessage(snapshot(1, queued)),
		models.FeedMessage(snapshot(2, queued)),
		models.FeedMessage(snapshot(3, processing)),
	), "", false)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2, "unchanged snapshots print nothing")
	assert.Contains(t, lines[0], "queued")
	assert.Contains(t, lines[1], "processing")
	assert.Contains(t, lines[1], "50.0%")
}

func TestFollowPlainExitsOnSettle(t *testing.T) {
	failed := rec("job-1", models.StatusFailed)
	failed.ErrorMessage = models.Ptr("parse error")

	ch := make(chan models.FeedMessage, 2)
	ch <- models.FeedMessage(snapshot(1, rec("job-1", models.StatusProcessing)))
	ch <- models.FeedMessage(snapshot(2, failed, rec("job-2", models.StatusQueued)))
	// Channel left open: followPlain must return on its own.

	var out bytes.Buffer
	err := followPlain(&out, ch, "job-1", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse error")
	assert.Contains(t, out.String(), "error: parse error")
	assert.NotContains(t, out.String(), "job-2")
}

func TestPlainLine(t *testing.T) {
	done := rec("job-1", models.StatusDone)
	done.ChunkCount = models.Ptr(7)
	assert.Contains(t, plainLine(done), "chunks=7")

	stale := rec("job-2", models.StatusProcessing)
	stale.Stale = true
	stale.LastPollError = "connection refused"
	assert.Contains(t, plainLine(stale), "stale: connection refused")
}
