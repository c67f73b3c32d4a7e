package messagequeue

import (
	"strings"
	"testing"
)

func TestValidateReviewCompleted(t *testing.T) {
	data := []byte(`{"cache_key":"k","language":"go","gates":["qa"],"overall_score":80,"quality_gate":"passed"}`)
	if err := Validate(SubjectReviewComplete, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidatePlanCompleted(t *testing.T) {
	data := []byte(`{"features":3,"council_consensus":0.75,"complexity":"medium"}`)
	if err := Validate(SubjectPlanComplete, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateProgress(t *testing.T) {
	subject := ProgressSubject("session-1")
	if subject != "council.progress.session-1" {
		t.Fatalf("unexpected subject %q", subject)
	}

	ok := []byte(`{"event":"test_progress","session_id":"session-1","passing":1,"total":2,"percentage":50}`)
	if err := Validate(subject, ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	missing := []byte(`{"event":"test_progress","passing":1,"total":2}`)
	err := Validate(subject, missing)
	if err == nil || !strings.Contains(err.Error(), "session_id") {
		t.Fatalf("expected session_id error, got %v", err)
	}
}

func TestValidateInvalidJSON(t *testing.T) {
	err := Validate(SubjectPlanComplete, []byte(`{broken`))
	if err == nil || !strings.Contains(err.Error(), "invalid JSON") {
		t.Fatalf("expected invalid JSON error, got %v", err)
	}
}

func TestValidateWrongFieldType(t *testing.T) {
	err := Validate(SubjectReviewComplete, []byte(`{"overall_score":"high"}`))
	if err == nil || !strings.Contains(err.Error(), "schema validation failed") {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestValidateUnknownSubject(t *testing.T) {
	if err := Validate("something.else", []byte(`{"any":"thing"}`)); err != nil {
		t.Fatalf("unknown subjects should pass, got %v", err)
	}
}
