package client

import (
	"fmt"
	"time"
)

// UploadResponse is returned immediately after an async upload is accepted.
type UploadResponse struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	EstimatedTime *int   `json:"estimated_time,omitempty"`
}

func (r *UploadResponse) validate() error {
	if r.JobID == "" {
		return fmt.Errorf("%w: missing job_id", ErrInvalidResponse)
	}
	return nil
}

// SyncUploadResponse is returned by the legacy blocking upload.
type SyncUploadResponse struct {
	DocumentID     string  `json:"document_id"`
	ChunkCount     int     `json:"chunk_count"`
	ProcessingTime float64 `json:"processing_time"`
}

func (r *SyncUploadResponse) validate() error {
	if r.DocumentID == "" {
		return fmt.Errorf("%w: missing document_id", ErrInvalidResponse)
	}
	return nil
}

// StatusResponse is the server's view of one job.
// ProcessingTime is in seconds.
type StatusResponse struct {
	DocumentID      string     `json:"document_id"`
	Filename        string     `json:"filename"`
	Status          string     `json:"status"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	ChunkCount      *int       `json:"chunk_count,omitempty"`
	ProcessingTime  *float64   `json:"processing_time,omitempty"`
	ProgressPercent *float64   `json:"progress_percent,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

func (r *StatusResponse) validate() error {
	if r.DocumentID == "" {
		return fmt.Errorf("%w: missing document_id", ErrInvalidResponse)
	}
	if r.Status == "" {
		return fmt.Errorf("%w: missing status for %s", ErrInvalidResponse, r.DocumentID)
	}
	return nil
}

// Document is one entry of a list response.
type Document struct {
	DocumentID       string         `json:"document_id"`
	BotID            string         `json:"bot_id"`
	OriginalFilename string         `json:"original_filename"`
	FileExtension    string         `json:"file_extension"`
	FileSize         int64          `json:"file_size"`
	MimeType         string         `json:"mime_type"`
	Status           string         `json:"status"`
	ErrorMessage     *string        `json:"error_message,omitempty"`
	RetryCount       int            `json:"retry_count"`
	ChunkCount       *int           `json:"chunk_count,omitempty"`
	ProcessingTime   *float64       `json:"processing_time,omitempty"`
	ProgressPercent  *float64       `json:"progress_percent,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        *time.Time     `json:"updated_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// ListRequest selects a page of jobs. Zero values are omitted from the query.
type ListRequest struct {
	BotID     string
	Status    string
	Search    string
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// ListResponse is one page of jobs.
type ListResponse struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}

func (r *ListResponse) validate() error {
	for i, d := range r.Documents {
		if d.DocumentID == "" {
			return fmt.Errorf("%w: documents[%d] missing document_id", ErrInvalidResponse, i)
		}
	}
	return nil
}

// SecondsToMillis converts a wire processing time to milliseconds.
func SecondsToMillis(sec *float64) *int64 {
	if sec == nil {
		return nil
	}
	ms := int64(*sec * 1000)
	return &ms
}
