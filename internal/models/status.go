package models

import (
	"fmt"
	"log/slog"
	"strings"
)

// Status is the canonical processing state of a job.
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// AllStatuses lists the canonical states in lifecycle order.
var AllStatuses = []Status{StatusUploaded, StatusQueued, StatusProcessing, StatusDone, StatusFailed}

// legacySynonyms maps tokens older backends still emit.
var legacySynonyms = map[string]Status{
	"completed": StatusDone,
}

// IsTerminal reports whether polling should stop for this state.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// IsActive reports whether a job in this state is expected to be polled.
func (s Status) IsActive() bool {
	return s == StatusQueued || s == StatusProcessing
}

// rank orders states along the lifecycle. Terminal states share a rank.
func (s Status) rank() int {
	switch s {
	case StatusUploaded:
		return 0
	case StatusQueued:
		return 1
	case StatusProcessing:
		return 2
	case StatusDone, StatusFailed:
		return 3
	default:
		return -1
	}
}

// Advance returns the state a job at cur moves to when next is observed.
// Backward and sideways moves are ignored. A done job stays done. A failed job
// stays failed unless it re-enters the pipeline as queued or processing (a retry
// issued elsewhere).
func Advance(cur, next Status) Status {
	switch {
	case cur == "":
		return next
	case cur == StatusDone:
		return cur
	case cur == StatusFailed:
		if next.IsActive() {
			return next
		}
		return cur
	case next.rank() >= cur.rank():
		return next
	default:
		return cur
	}
}

// NormalizeStatus maps any server token to a canonical status.
// Unknown tokens are logged and fall back to queued.
func NormalizeStatus(raw string) Status {
	if s, ok := lookup(raw); ok {
		return s
	}
	slog.Warn("unknown status token, falling back to queued", "token", raw)
	return StatusQueued
}

// IsKnownStatus reports whether raw maps to a canonical status without falling back.
func IsKnownStatus(raw string) bool {
	_, ok := lookup(raw)
	return ok
}

// ParseStatus is the strict variant used for user input.
func ParseStatus(raw string) (Status, error) {
	if s, ok := lookup(raw); ok {
		return s, nil
	}
	return "", fmt.Errorf("invalid status %q", raw)
}

func lookup(raw string) (Status, bool) {
	token := strings.ToLower(strings.TrimSpace(raw))
	for _, s := range AllStatuses {
		if token == string(s) {
			return s, true
		}
	}
	s, ok := legacySynonyms[token]
	return s, ok
}
