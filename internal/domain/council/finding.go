package council

import "strings"

// Severity grades a finding.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank orders severities, critical first. Unknown severities sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	}
	return 4
}

// Blocking reports whether s keeps a report out of the passed gate.
func (s Severity) Blocking() bool {
	return s == SeverityCritical || s == SeverityHigh
}

// NormalizeSeverity lower-cases model output such as "High" or " CRITICAL ".
func NormalizeSeverity(s string) Severity {
	return Severity(strings.ToLower(strings.TrimSpace(s)))
}

// FindingAnalysisError is the finding type of a degraded agent result.
const FindingAnalysisError = "analysis_error"

// Finding is a single issue reported by a specialist.
type Finding struct {
	Severity    Severity `json:"severity"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Location    string   `json:"location,omitempty"`
	Fix         string   `json:"fix,omitempty"`
	Exploit     string   `json:"exploit,omitempty"`
}

// AgentStatus is the outcome of one specialist analysis.
type AgentStatus string

const (
	AgentCompleted AgentStatus = "completed"
	AgentFailed    AgentStatus = "failed"
)

// AgentResult is the immutable output of one specialist for one request.
type AgentResult struct {
	AgentName    string         `json:"agent_name"`
	Role         Role           `json:"role"`
	Status       AgentStatus    `json:"status"`
	Findings     []Finding      `json:"findings"`
	Score        int            `json:"score"`
	ExtraMetrics map[string]any `json:"extra_metrics,omitempty"`
}

// NeutralScore is used whenever no real score is available.
const NeutralScore = 50

// ClampScore bounds a model-reported score to 0..100.
func ClampScore(n int) int {
	switch {
	case n < 0:
		return 0
	case n > 100:
		return 100
	}
	return n
}
