package cli

import (
	"testing"
	"time"

	"github.com/raphaelgruber/docwatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id string, st models.Status) models.JobRecord {
	return models.JobRecord{
		JobID:            id,
		OriginalFilename: id + ".pdf",
		Status:           st,
		CreatedAt:        time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func snapshot(version uint64, jobs ...models.JobRecord) feedMsg {
	return feedMsg(models.FeedMessage{Type: models.FeedSnapshot, Version: version, Jobs: jobs, Cadence: "foreground"})
}

func TestJobsModelRendersRows(t *testing.T) {
	processing := rec("report", models.StatusProcessing)
	processing.ProgressPercent = models.Ptr(40.0)

	m := newJobsModel(nil, "", false)
	next, _ := m.Update(snapshot(3, processing, rec("notes", models.StatusQueued)))
	jm := next.(jobsModel)

	out := jm.renderContent()
	assert.Contains(t, out, "2 job(s)")
	assert.Contains(t, out, "report.pdf")
	assert.Contains(t, out, "notes.pdf")
	assert.Contains(t, out, "40.0%")
	assert.False(t, jm.done)
}

func TestJobsModelExitsWhenSettled(t *testing.T) {
	m := newJobsModel(nil, "job-1", true)

	next, _ := m.Update(snapshot(1, rec("job-1", models.StatusProcessing), rec("other", models.StatusDone)))
	jm := next.(jobsModel)
	assert.False(t, jm.done, "the watched job is still processing")
	require.Len(t, jm.jobs, 1)

	done := rec("job-1", models.StatusDone)
	done.ChunkCount = models.Ptr(10)
	next, _ = jm.Update(snapshot(2, done))
	jm = next.(jobsModel)
	assert.True(t, jm.done)
	assert.NoError(t, jm.err)
	assert.Contains(t, jm.renderContent(), "10 chunks")
}

func TestJobsModelReportsFailure(t *testing.T) {
	failed := rec("job-1", models.StatusFailed)
	failed.ErrorMessage = models.Ptr("unsupported encoding")

	m := newJobsModel(nil, "job-1", true)
	next, _ := m.Update(snapshot(1, failed))
	jm := next.(jobsModel)

	assert.True(t, jm.done)
	require.Error(t, jm.err)
	assert.Contains(t, jm.err.Error(), "unsupported encoding")
}

func TestJobsModelFeedClosed(t *testing.T) {
	m := newJobsModel(nil, "", false)
	next, _ := m.Update(feedClosedMsg{})
	assert.True(t, next.(jobsModel).done)
}

func TestSettled(t *testing.T) {
	stale := rec("c", models.StatusProcessing)
	stale.Stale = true

	assert.False(t, settled(nil))
	assert.False(t, settled([]models.JobRecord{rec("a", models.StatusDone), rec("b", models.StatusQueued)}))
	assert.True(t, settled([]models.JobRecord{rec("a", models.StatusDone), rec("b", models.StatusFailed), stale}))
}

func TestFailure(t *testing.T) {
	assert.NoError(t, failure([]models.JobRecord{rec("a", models.StatusDone)}))

	stale := rec("b", models.StatusQueued)
	stale.Stale = true
	stale.LastPollError = "timeout"
	err := failure([]models.JobRecord{stale})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")

	err = failure([]models.JobRecord{rec("c", models.StatusFailed)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown error")
}

func TestTruncateName(t *testing.T) {
	assert.Equal(t, "short.pdf", truncateName("short.pdf", 28))
	assert.Equal(t, "abcd…", truncateName("abcdefgh", 5))
}
