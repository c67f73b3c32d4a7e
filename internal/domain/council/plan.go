package council

import (
	"errors"
	"fmt"
	"regexp"
)

// Perspective is one specialist's stage-1 answer to a planning request.
type Perspective struct {
	Role  Role   `json:"role"`
	Model string `json:"model"`
	Text  string `json:"text"`
}

// Ranking is one specialist's stage-2 critique of the anonymized perspectives.
// Order holds perspective labels best first, when the model produced a parsable list.
type Ranking struct {
	Role  Role     `json:"role"`
	Model string   `json:"model"`
	Text  string   `json:"text"`
	Order []string `json:"order,omitempty"`
}

// RankedPerspective is a de-anonymized entry of the aggregate stage-2 ranking.
type RankedPerspective struct {
	Role            Role    `json:"role"`
	AveragePosition float64 `json:"average_position"`
	Votes           int     `json:"votes"`
}

// Feature priorities.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// FeatureSpec is one feature of a plan.
type FeatureSpec struct {
	ID          string   `json:"id"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	TestCases   []string `json:"test_cases"`
	Priority    string   `json:"priority"`
}

// Plan is the consolidated output of a planning deliberation.
type Plan struct {
	Architecture         string              `json:"architecture"`
	Features             []FeatureSpec       `json:"features"`
	SecurityRequirements []string            `json:"security_requirements"`
	PerformanceTargets   []string            `json:"performance_targets"`
	Complexity           string              `json:"complexity"`
	Consensus            float64             `json:"council_consensus"`
	Ranking              []RankedPerspective `json:"aggregate_ranking,omitempty"`
}

var (
	ErrNoFeatures       = errors.New("plan has no features")
	ErrDuplicateFeature = errors.New("duplicate feature id")
	ErrInvalidFeatureID = errors.New("invalid feature id")
)

// Feature ids become file names in the project workspace and the sandbox.
var featureIDRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Normalize fills defaults for missing feature fields: id feat-<n>,
// category General, priority medium.
func (p *Plan) Normalize() {
	for i := range p.Features {
		f := &p.Features[i]
		if f.ID == "" {
			f.ID = fmt.Sprintf("feat-%d", i)
		}
		if f.Category == "" {
			f.Category = "General"
		}
		if f.Priority == "" {
			f.Priority = PriorityMedium
		}
		if f.TestCases == nil {
			f.TestCases = []string{}
		}
	}
}

// Validate checks that the plan can seed a feature ledger.
func (p *Plan) Validate() error {
	if len(p.Features) == 0 {
		return ErrNoFeatures
	}
	seen := make(map[string]bool, len(p.Features))
	for i := range p.Features {
		id := p.Features[i].ID
		if !featureIDRe.MatchString(id) {
			return fmt.Errorf("%w: %q", ErrInvalidFeatureID, id)
		}
		if seen[id] {
			return fmt.Errorf("%w: %s", ErrDuplicateFeature, id)
		}
		seen[id] = true
	}
	return nil
}

// Verdict is the consolidated output of a review deliberation.
type Verdict struct {
	Approved    bool     `json:"approved"`
	Security    int      `json:"security"`
	Performance int      `json:"performance"`
	Coverage    int      `json:"coverage"`
	Changes     []string `json:"changes"`
	Consensus   float64  `json:"council_consensus"`
	Summary     string   `json:"summary"`
}
