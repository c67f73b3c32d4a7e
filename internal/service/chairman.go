package service

import (
	"fmt"
	"sort"

	"github.com/Strob0t/CodeCouncil/internal/domain/council"
)

const recommendationPassed = "Code meets quality standards and is ready for production."

type taggedFinding struct {
	council.Finding
	agent string
}

// Synthesize aggregates agent results into a report. It is deterministic
// and does no I/O. An empty input yields the neutral score.
func Synthesize(results []council.AgentResult) council.Report {
	var (
		all     []taggedFinding
		summary council.SeveritySummary
		total   int
	)
	for i := range results {
		total += results[i].Score
		for _, f := range results[i].Findings {
			all = append(all, taggedFinding{Finding: f, agent: results[i].AgentName})
			summary.Add(f.Severity)
		}
	}

	score := council.NeutralScore
	if len(results) > 0 {
		// Integer division floors for the non-negative scores agents produce.
		score = total / len(results)
	}

	gate := council.GateFailed
	if summary.Critical == 0 && summary.High == 0 && score >= council.PassingScore {
		gate = council.GatePassed
	}

	agents := make([]council.AgentResult, len(results))
	copy(agents, results)

	return council.Report{
		OverallScore:   score,
		QualityGate:    gate,
		Summary:        summary,
		PriorityFixes:  priorityFixes(all),
		Agents:         agents,
		Recommendation: recommend(summary, gate),
	}
}

func priorityFixes(all []taggedFinding) []council.PriorityFix {
	blocking := make([]taggedFinding, 0, len(all))
	for _, f := range all {
		if f.Severity.Blocking() {
			blocking = append(blocking, f)
		}
	}
	sort.SliceStable(blocking, func(i, j int) bool {
		return blocking[i].Severity.Rank() < blocking[j].Severity.Rank()
	})
	if len(blocking) > council.MaxPriorityFixes {
		blocking = blocking[:council.MaxPriorityFixes]
	}

	fixes := make([]council.PriorityFix, len(blocking))
	for i, f := range blocking {
		fix := f.Fix
		if fix == "" {
			fix = "Manual review required"
		}
		fixes[i] = council.PriorityFix{
			Priority: i + 1,
			Issue:    f.Description,
			Severity: f.Severity,
			Agent:    f.agent,
			Fix:      fix,
		}
	}
	return fixes
}

func recommend(s council.SeveritySummary, gate council.QualityGate) string {
	switch {
	case s.Critical > 0:
		return fmt.Sprintf("CRITICAL: %d critical issue(s) must be fixed before deployment.", s.Critical)
	case s.High > 0:
		return fmt.Sprintf("Fix %d high-priority issue(s) before deployment.", s.High)
	case gate == council.GatePassed:
		return recommendationPassed
	default:
		return "Address medium and low priority issues to improve code quality."
	}
}
