package council

// TestCase describes one generated test.
type TestCase struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// TestBundle is the QA agent's generated test suite for a piece of code.
type TestBundle struct {
	TestCode         string     `json:"test_code"`
	TestCases        []TestCase `json:"test_cases"`
	Framework        string     `json:"framework"`
	CoverageEstimate int        `json:"coverage_estimate"`
}

// Change describes one edit made by a fix.
type Change struct {
	Description string `json:"description"`
	File        string `json:"file"`
	Lines       string `json:"lines"`
}

// FixResult is the outcome of asking a model to apply findings to code.
type FixResult struct {
	FixedCode    string   `json:"fixed_code"`
	Changes      []Change `json:"changes"`
	FixesApplied int      `json:"fixes_applied"`
	NeedsReview  bool     `json:"needs_review"`
}
