package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /documents/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "job-1" {
			http.Error(w, `{"detail":"not found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"document_id":      "job-1",
			"filename":         "report.pdf",
			"status":           "completed",
			"chunk_count":      10,
			"processing_time":  1.5,
			"progress_percent": 100,
			"created_at":       "2025-03-01T12:00:00Z",
			"completed_at":     "2025-03-01T12:00:30Z",
		})
	})
	mux.HandleFunc("GET /documents", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bot-1", r.URL.Query().Get("bot_id"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"documents": []map[string]any{{
				"document_id":       "job-2",
				"bot_id":            "bot-1",
				"original_filename": "notes.md",
				"status":            "failed",
				"error_message":     "empty file",
				"created_at":        "2025-03-01T12:00:00Z",
			}},
			"total":  1,
			"limit":  50,
			"offset": 0,
		})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func runCLI(t *testing.T, apiURL string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DOCWATCH_CONFIG", "")
	t.Setenv("DOCWATCH_SERVER_URL", apiURL)
	t.Setenv("DOCWATCH_LOG_FILE", filepath.Join(t.TempDir(), "docwatch.log"))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	ts := newAPIServer(t)

	out, err := runCLI(t, ts.URL, "status", "job-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Job: job-1")
	assert.Contains(t, out, "Status: done")
	assert.Contains(t, out, "Chunks: 10")
	assert.Contains(t, out, "Processing time: 1500ms")
	assert.Contains(t, out, "Duration: 30s")
}

func TestStatusCommandNotFound(t *testing.T) {
	ts := newAPIServer(t)

	_, err := runCLI(t, ts.URL, "status", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job not found: missing")
}

func TestListCommand(t *testing.T) {
	ts := newAPIServer(t)

	out, err := runCLI(t, ts.URL, "list", "--owner", "bot-1")
	require.NoError(t, err)
	assert.Contains(t, out, "job-2")
	assert.Contains(t, out, "notes.md")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "Showing 1-1 of 1")
}

func TestListCommandRejectsBadStatus(t *testing.T) {
	ts := newAPIServer(t)
	t.Cleanup(func() { listStatus = "" })

	_, err := runCLI(t, ts.URL, "list", "--owner", "bot-1", "--status", "sideways")
	assert.Error(t, err)
}
