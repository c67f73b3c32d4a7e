// Package session defines the implementation session entity and its lifecycle.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/Strob0t/CodeCouncil/internal/domain/ledger"
	"github.com/Strob0t/CodeCouncil/internal/domain/sandbox"
)

// Status represents the lifecycle state of a session.
type Status string

const (
	StatusStarted   Status = "started"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal returns true for the absorbing states.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid session status transition")

// Session tracks one autonomous implementation run.
type Session struct {
	ID              string               `json:"session_id"`
	Status          Status               `json:"status"`
	Project         string               `json:"project"`
	ProjectDir      string               `json:"project_dir"`
	Environment     string               `json:"environment"`
	WebhookURL      string               `json:"webhook_url,omitempty"`
	MaxIterations   int                  `json:"max_iterations"`
	Progress        ledger.Progress      `json:"progress"`
	CurrentFeature  string               `json:"current_feature"`
	CommitCount     int                  `json:"git_commits"`
	SandboxID       sandbox.Handle       `json:"sandbox_id"`
	LastTestResults *sandbox.TestResults `json:"last_test_results,omitempty"`
	Error           string               `json:"error,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// Transition moves the session to next. Allowed: started -> running,
// started -> failed, running -> completed, running -> failed.
func (s *Session) Transition(next Status, now time.Time) error {
	ok := false
	switch s.Status {
	case StatusStarted:
		ok = next == StatusRunning || next == StatusFailed
	case StatusRunning:
		ok = next == StatusCompleted || next == StatusFailed
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	}
	s.Status = next
	s.UpdatedAt = now
	return nil
}

// Fail moves the session to failed and records the cause. It is a no-op on
// an already terminal session.
func (s *Session) Fail(cause error, now time.Time) {
	if s.Status.IsTerminal() {
		return
	}
	s.Status = StatusFailed
	if cause != nil {
		s.Error = cause.Error()
	}
	s.UpdatedAt = now
}

// Snapshot is a session plus the live status of its sandbox.
type Snapshot struct {
	Session
	SandboxStatus string `json:"sandbox_status"`
}
