package messagequeue

// ReviewCompletedPayload is the schema for council.review.completed messages.
type ReviewCompletedPayload struct {
	CacheKey     string   `json:"cache_key"`
	Language     string   `json:"language"`
	Gates        []string `json:"gates"`
	OverallScore int      `json:"overall_score"`
	QualityGate  string   `json:"quality_gate"`
}

// PlanCompletedPayload is the schema for council.plan.completed messages.
type PlanCompletedPayload struct {
	Features   int     `json:"features"`
	Consensus  float64 `json:"council_consensus"`
	Complexity string  `json:"complexity"`
}

// ProgressPayload is the schema for council.progress.{session_id} messages.
type ProgressPayload struct {
	Event      string  `json:"event"`
	SessionID  string  `json:"session_id"`
	Passing    int     `json:"passing"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}
