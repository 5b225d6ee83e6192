package models

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureDefaultLogger swaps slog's default logger for the duration of a test.
func captureDefaultLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"uploaded", StatusUploaded},
		{"queued", StatusQueued},
		{"processing", StatusProcessing},
		{"done", StatusDone},
		{"failed", StatusFailed},
		{"completed", StatusDone},
		{"DONE", StatusDone},
		{"  Processing ", StatusProcessing},
		{"Completed", StatusDone},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			buf := captureDefaultLogger(t)
			assert.Equal(t, tt.want, NormalizeStatus(tt.in))
			assert.Empty(t, buf.String(), "known tokens must not log")
		})
	}
}

func TestNormalizeStatusUnknownFallsBackToQueued(t *testing.T) {
	for _, token := range []string{"garbage", "", "running", "pending", "done!"} {
		t.Run(token, func(t *testing.T) {
			buf := captureDefaultLogger(t)
			assert.Equal(t, StatusQueued, NormalizeStatus(token))
			assert.Contains(t, buf.String(), "unknown status token")
			assert.Contains(t, buf.String(), "level=WARN")
		})
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("Processing")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, s)

	s, err = ParseStatus("completed")
	require.NoError(t, err)
	assert.Equal(t, StatusDone, s)

	_, err = ParseStatus("garbage")
	assert.Error(t, err)
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusDone.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusQueued.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.False(t, StatusUploaded.IsTerminal())

	assert.True(t, StatusQueued.IsActive())
	assert.True(t, StatusProcessing.IsActive())
	assert.False(t, StatusUploaded.IsActive())
	assert.False(t, StatusDone.IsActive())
	assert.False(t, StatusFailed.IsActive())
}

func TestJobRecordCloneIsDeep(t *testing.T) {
	orig := JobRecord{
		JobID:           "job-1",
		ErrorMessage:    Ptr("boom"),
		ProgressPercent: Ptr(42.0),
		ChunkCount:      Ptr(3),
		Metadata:        map[string]any{"k": "v"},
	}
	c := orig.Clone()
	*c.ErrorMessage = "changed"
	*c.ProgressPercent = 1
	*c.ChunkCount = 9
	c.Metadata["k"] = "other"

	assert.Equal(t, "boom", *orig.ErrorMessage)
	assert.Equal(t, 42.0, *orig.ProgressPercent)
	assert.Equal(t, 3, *orig.ChunkCount)
	assert.Equal(t, "v", orig.Metadata["k"])
}

func TestClampPercent(t *testing.T) {
	assert.Equal(t, 0.0, ClampPercent(-5))
	assert.Equal(t, 55.5, ClampPercent(55.5))
	assert.Equal(t, 100.0, ClampPercent(140))
}

func TestAdvance(t *testing.T) {
	tests := []struct {
		cur, next, want Status
	}{
		{"", StatusProcessing, StatusProcessing},
		{StatusQueued, StatusProcessing, StatusProcessing},
		{StatusProcessing, StatusQueued, StatusProcessing},
		{StatusProcessing, StatusDone, StatusDone},
		{StatusDone, StatusQueued, StatusDone},
		{StatusFailed, StatusQueued, StatusQueued},
		{StatusFailed, StatusProcessing, StatusProcessing},
		{StatusDone, StatusFailed, StatusDone},
		{StatusFailed, StatusDone, StatusFailed},
		{StatusFailed, StatusUploaded, StatusFailed},
		{StatusDone, StatusProcessing, StatusDone},
		{StatusProcessing, StatusFailed, StatusFailed},
		{StatusQueued, StatusDone, StatusDone},
		{StatusUploaded, StatusQueued, StatusQueued},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Advance(tt.cur, tt.next), "%q -> %q", tt.cur, tt.next)
	}
}

func TestIsKnownStatus(t *testing.T) {
	buf := captureDefaultLogger(t)
	assert.True(t, IsKnownStatus("Completed"))
	assert.False(t, IsKnownStatus("archived"))
	assert.Empty(t, buf.String(), "lookup alone never logs")
}
