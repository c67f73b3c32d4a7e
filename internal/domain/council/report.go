package council

// QualityGate is the pass/fail verdict of a synthesized report.
type QualityGate string

const (
	GatePassed QualityGate = "passed"
	GateFailed QualityGate = "failed"
)

// PassingScore is the minimum overall score for a passed gate.
const PassingScore = 70

// MaxPriorityFixes caps the priority fix list of a report.
const MaxPriorityFixes = 10

// SeveritySummary counts findings per severity.
type SeveritySummary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Add counts one finding of severity s. Unknown severities are not counted.
func (s *SeveritySummary) Add(sev Severity) {
	switch sev {
	case SeverityCritical:
		s.Critical++
	case SeverityHigh:
		s.High++
	case SeverityMedium:
		s.Medium++
	case SeverityLow:
		s.Low++
	}
}

// PriorityFix is one numbered entry of a report's fix list.
type PriorityFix struct {
	Priority int      `json:"priority"`
	Issue    string   `json:"issue"`
	Severity Severity `json:"severity"`
	Agent    string   `json:"agent"`
	Fix      string   `json:"fix"`
}

// Report is the chairman's aggregation of a set of agent results.
type Report struct {
	OverallScore   int             `json:"overall_score"`
	QualityGate    QualityGate     `json:"quality_gate"`
	Summary        SeveritySummary `json:"summary"`
	PriorityFixes  []PriorityFix   `json:"priority_fixes"`
	Agents         []AgentResult   `json:"agents"`
	Recommendation string          `json:"recommendation"`
}

// ReviewOutcome is what a full review returns: the raw agent results and the report.
type ReviewOutcome struct {
	Agents []AgentResult `json:"agents"`
	Report Report        `json:"report"`
}
