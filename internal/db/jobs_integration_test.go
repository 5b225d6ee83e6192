//go:build integration

package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/raphaelgruber/docwatch/internal/models"
	"github.com/raphaelgruber/docwatch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *Client

// TestMain starts a SurrealDB container shared by all integration tests.
func TestMain(m *testing.M) {
	// Ryuk fails in some CI sandboxes.
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := container.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func wipe(t *testing.T) {
	t.Helper()
	require.NoError(t, testDB.WipeData(context.Background()))
}

func TestUpsertAndGetJob(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	rec := job("job-1", models.StatusDone)
	rec.OriginalFilename = "report.pdf"
	rec.FileExtension = "pdf"
	rec.MimeType = "application/pdf"
	rec.FileSizeBytes = 2048
	rec.ChunkCount = models.Ptr(10)
	rec.ProcessingTimeMs = models.Ptr(int64(1500))
	rec.ProgressPercent = models.Ptr(100.0)
	rec.CompletedAt = models.Ptr(rec.CreatedAt.Add(time.Minute))
	require.NoError(t, testDB.UpsertJob(ctx, rec))

	got, err := testDB.GetJob(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", got.OriginalFilename)
	assert.Equal(t, models.StatusDone, got.Status)
	assert.Equal(t, int64(2048), got.FileSizeBytes)
	require.NotNil(t, got.ChunkCount)
	assert.Equal(t, 10, *got.ChunkCount)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, rec.CompletedAt.Equal(*got.CompletedAt))
	assert.Nil(t, got.ErrorMessage)
}

func TestUpsertOverwrites(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	rec := job("job-2", models.StatusFailed)
	rec.ErrorMessage = models.Ptr("parse error")
	rec.Stale = true
	rec.LastPollError = "timeout"
	require.NoError(t, testDB.UpsertJob(ctx, rec))

	rec.Status = models.StatusQueued
	rec.ErrorMessage = nil
	rec.Stale = false
	rec.LastPollError = ""
	rec.RetryCount = 1
	require.NoError(t, testDB.UpsertJob(ctx, rec))

	got, err := testDB.GetJob(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusQueued, got.Status)
	assert.Nil(t, got.ErrorMessage)
	assert.False(t, got.Stale)
	assert.Empty(t, got.LastPollError)
	assert.Equal(t, 1, got.RetryCount)
}

func TestDeleteJob(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	require.NoError(t, testDB.UpsertJob(ctx, job("job-3", models.StatusQueued)))
	require.NoError(t, testDB.DeleteJob(ctx, "job-3"))

	_, err := testDB.GetJob(ctx, "job-3")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, testDB.DeleteJob(ctx, "job-3"), ErrNotFound)
}

func TestLoadJobsNewestFirst(t *testing.T) {
	wipe(t)
	ctx := context.Background()

	older := job("old", models.StatusDone)
	newer := job("new", models.StatusProcessing)
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)
	require.NoError(t, testDB.UpsertJob(ctx, older))
	require.NoError(t, testDB.UpsertJob(ctx, newer))

	jobs, err := testDB.LoadJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "new", jobs[0].JobID)
	assert.Equal(t, "old", jobs[1].JobID)
}

func TestMirrorWritesStore(t *testing.T) {
	wipe(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := store.New()
	ch, unsubscribe := s.Subscribe(16)
	defer unsubscribe()
	go func() { _ = testDB.Mirror(ctx, ch) }()

	s.Upsert(job("m-1", models.StatusQueued))
	s.Upsert(job("m-2", models.StatusQueued))
	s.Remove("m-2")

	require.Eventually(t, func() bool {
		jobs, err := testDB.LoadJobs(ctx)
		return err == nil && len(jobs) == 1 && jobs[0].JobID == "m-1"
	}, 10*time.Second, 100*time.Millisecond)
}
