package service

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Strob0t/CodeCouncil/internal/domain/sandbox"
)

var (
	jestSummary  = regexp.MustCompile(`(?m)^\s*Tests:\s+(.*)$`)
	countedWord  = regexp.MustCompile(`(\d+)\s+(passed|failed|skipped|total)`)
	pytestMarker = regexp.MustCompile(`(?i)pytest|=+ .*(passed|failed).* in [\d.]+s`)
)

// ParseTestResults extracts a pass/fail summary from test runner output.
// It understands jest, pytest and go test; other output yields nil.
func ParseTestResults(stdout string) *sandbox.TestResults {
	if m := jestSummary.FindStringSubmatch(stdout); m != nil {
		if r := countWords(m[1]); r.Total > 0 {
			return r
		}
	}
	if strings.Contains(stdout, "passed") && pytestMarker.MatchString(stdout) {
		if r := countWords(stdout); r.Passed+r.Failed > 0 {
			r.Total = r.Passed + r.Failed + r.Skipped
			return r
		}
	}
	return parseGoTest(stdout)
}

func countWords(s string) *sandbox.TestResults {
	r := &sandbox.TestResults{}
	for _, m := range countedWord.FindAllStringSubmatch(s, -1) {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "passed":
			r.Passed = n
		case "failed":
			r.Failed = n
		case "skipped":
			r.Skipped = n
		case "total":
			r.Total = n
		}
	}
	if r.Total > 0 && r.Failed == 0 {
		r.Failed = max(0, r.Total-r.Passed-r.Skipped)
	}
	return r
}

// parseGoTest counts per-test "--- PASS"/"--- FAIL" lines when present
// (verbose output), else package-level "ok"/"FAIL <pkg>" lines.
func parseGoTest(stdout string) *sandbox.TestResults {
	var verbose, pkg sandbox.TestResults
	for _, line := range strings.Split(stdout, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "--- PASS"):
			verbose.Passed++
		case strings.HasPrefix(trimmed, "--- FAIL"):
			verbose.Failed++
		case strings.HasPrefix(trimmed, "--- SKIP"):
			verbose.Skipped++
		case strings.HasPrefix(line, "ok "), strings.HasPrefix(line, "ok\t"):
			pkg.Passed++
		case strings.HasPrefix(line, "FAIL "), strings.HasPrefix(line, "FAIL\t"):
			pkg.Failed++
		}
	}
	for _, r := range []sandbox.TestResults{verbose, pkg} {
		if total := r.Passed + r.Failed + r.Skipped; total > 0 {
			r.Total = total
			return &r
		}
	}
	return nil
}
