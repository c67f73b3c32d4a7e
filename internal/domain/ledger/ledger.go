// Package ledger defines the per-session feature ledger, the single source
// of truth for implementation progress.
package ledger

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/Strob0t/CodeCouncil/internal/domain"
	"github.com/Strob0t/CodeCouncil/internal/domain/council"
)

// FeatureRecord is a ledger entry: a feature spec plus its implementation state.
type FeatureRecord struct {
	council.FeatureSpec
	Passes        bool              `json:"passes"`
	ImplementedAt *time.Time        `json:"implemented_at"`
	CodeFiles     map[string]string `json:"code_files,omitempty"`
	TestFiles     map[string]string `json:"test_files,omitempty"`
}

// CompletedTests renders the record's test cases as "[category] test".
func (r *FeatureRecord) CompletedTests() []string {
	out := make([]string, 0, len(r.TestCases))
	for _, tc := range r.TestCases {
		out = append(out, fmt.Sprintf("[%s] %s", r.Category, tc))
	}
	return out
}

// Progress is the pass ratio over the whole ledger.
type Progress struct {
	Passing    int     `json:"passing"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Percentage returns passing/total as a percentage rounded to one decimal.
// An empty ledger reports 0.
func Percentage(passing, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(passing)/float64(total)*1000) / 10
}

// Ledger is the ordered, id-keyed list of feature records for one session.
// It is owned by a single driver and is not safe for concurrent mutation.
type Ledger struct {
	records []FeatureRecord
	index   map[string]int
}

// New materializes a ledger from plan features, every entry starting with passes=false.
func New(features []council.FeatureSpec) (*Ledger, error) {
	l := &Ledger{
		records: make([]FeatureRecord, 0, len(features)),
		index:   make(map[string]int, len(features)),
	}
	for i := range features {
		if err := l.add(FeatureRecord{FeatureSpec: features[i]}); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Ledger) add(rec FeatureRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: feature id is required", domain.ErrValidation)
	}
	if _, dup := l.index[rec.ID]; dup {
		return fmt.Errorf("%w: duplicate feature id %s", domain.ErrValidation, rec.ID)
	}
	l.index[rec.ID] = len(l.records)
	l.records = append(l.records, rec)
	return nil
}

// Len returns the number of features.
func (l *Ledger) Len() int { return len(l.records) }

// Records returns a copy of the entries in ledger order.
func (l *Ledger) Records() []FeatureRecord {
	out := make([]FeatureRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Get returns the record with the given id.
func (l *Ledger) Get(id string) (FeatureRecord, error) {
	i, ok := l.index[id]
	if !ok {
		return FeatureRecord{}, fmt.Errorf("feature %s: %w", id, domain.ErrNotFound)
	}
	return l.records[i], nil
}

// MarkPassed flips a feature to passing, stamps it and attaches its files.
// It returns the feature's test descriptions for progress reporting.
func (l *Ledger) MarkPassed(id string, at time.Time, code, tests map[string]string) ([]string, error) {
	i, ok := l.index[id]
	if !ok {
		return nil, fmt.Errorf("feature %s: %w", id, domain.ErrNotFound)
	}
	rec := &l.records[i]
	rec.Passes = true
	stamp := at.UTC()
	rec.ImplementedAt = &stamp
	rec.CodeFiles = code
	rec.TestFiles = tests
	return rec.CompletedTests(), nil
}

// Progress recomputes the pass ratio over every entry.
func (l *Ledger) Progress() Progress {
	passing := 0
	for i := range l.records {
		if l.records[i].Passes {
			passing++
		}
	}
	return Progress{
		Passing:    passing,
		Total:      len(l.records),
		Percentage: Percentage(passing, len(l.records)),
	}
}

// MarshalJSON encodes the ledger as a plain array, the feature_list.json format.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.records)
}

// UnmarshalJSON decodes a feature_list.json array, rejecting duplicate ids.
func (l *Ledger) UnmarshalJSON(data []byte) error {
	var records []FeatureRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	fresh := Ledger{
		records: make([]FeatureRecord, 0, len(records)),
		index:   make(map[string]int, len(records)),
	}
	for i := range records {
		if err := fresh.add(records[i]); err != nil {
			return err
		}
	}
	*l = fresh
	return nil
}
