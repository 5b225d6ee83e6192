// Package models defines data structures for tracked ingestion jobs.
package models

import (
	"maps"
	"time"
)

// JobRecord is the local view of one ingestion job.
type JobRecord struct {
	JobID            string     `json:"job_id"`
	OwnerID          string     `json:"owner_id"`
	OriginalFilename string     `json:"original_filename"`
	FileExtension    string     `json:"file_extension"`
	MimeType         string     `json:"mime_type"`
	FileSizeBytes    int64      `json:"file_size_bytes"`
	Status           Status     `json:"status"`
	RetryCount       int        `json:"retry_count"`
	ErrorMessage     *string    `json:"error_message,omitempty"`      // Only while FAILED
	ChunkCount       *int       `json:"chunk_count,omitempty"`        // Populated on success
	ProcessingTimeMs *int64     `json:"processing_time_ms,omitempty"` // Populated on success
	ProgressPercent  *float64   `json:"progress_percent,omitempty"`   // Sticky across partial updates
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`

	// Local markers, never sent by the server.
	Stale         bool   `json:"stale,omitempty"`
	LastPollError string `json:"last_poll_error,omitempty"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy so callers never share pointer fields with the store.
func (r JobRecord) Clone() JobRecord {
	c := r
	c.ErrorMessage = clonePtr(r.ErrorMessage)
	c.ChunkCount = clonePtr(r.ChunkCount)
	c.ProcessingTimeMs = clonePtr(r.ProcessingTimeMs)
	c.ProgressPercent = clonePtr(r.ProgressPercent)
	c.UpdatedAt = clonePtr(r.UpdatedAt)
	c.CompletedAt = clonePtr(r.CompletedAt)
	if r.Metadata != nil {
		c.Metadata = maps.Clone(r.Metadata)
	}
	return c
}

// Progress returns the progress percentage, or 0 when unknown.
func (r JobRecord) Progress() float64 {
	if r.ProgressPercent == nil {
		return 0
	}
	return *r.ProgressPercent
}

// ClampPercent bounds a percentage to [0,100].
func ClampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
