// Package event defines the progress events emitted by implementation sessions.
package event

import "time"

// Type identifies the kind of progress event.
type Type string

const (
	TypeTestProgress           Type = "test_progress"
	TypeImplementationComplete Type = "implementation_complete"
)

// Progress is the payload delivered to progress sinks after each feature
// and once more when a session finishes.
type Progress struct {
	Event          Type      `json:"event"`
	SessionID      string    `json:"session_id"`
	Passing        int       `json:"passing"`
	Total          int       `json:"total"`
	Percentage     float64   `json:"percentage"`
	CompletedTests []string  `json:"completed_tests"`
	Project        string    `json:"project"`
	Timestamp      time.Time `json:"timestamp"`
}
