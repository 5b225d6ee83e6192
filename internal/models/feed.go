package models

// Feed message types pushed by the host bridge.
const (
	FeedSnapshot = "snapshot"
	FeedPing     = "ping"
)

// FeedMessage is one message on the live job feed.
type FeedMessage struct {
	Type    string      `json:"type"`
	Version uint64      `json:"version,omitempty"`
	Jobs    []JobRecord `json:"jobs,omitempty"`
	Polling []string    `json:"polling,omitempty"`
	Cadence string      `json:"cadence,omitempty"`
}
