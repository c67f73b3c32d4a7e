package http

import (
	"github.com/Strob0t/CodeCouncil/internal/domain/council"
)

// Request bodies. Field limits mirror the prompt budget of the agents.

type planRequest struct {
	Request string         `json:"request" validate:"required,max=20000"`
	Context map[string]any `json:"context"`
}

type verdictRequest struct {
	Code     string `json:"code" validate:"required"`
	Language string `json:"language"`
	Tests    string `json:"tests"`
	Context  string `json:"context" validate:"max=20000"`
}

type reviewRequest struct {
	Code          string   `json:"code" validate:"required"`
	Language      string   `json:"language"`
	Context       string   `json:"context" validate:"max=20000"`
	QualityGates  []string `json:"quality_gates" validate:"max=4,dive,role"`
	LLMPreference string   `json:"llm_preference" validate:"max=32"`
}

type scanRequest struct {
	Code          string `json:"code" validate:"required"`
	Language      string `json:"language"`
	LLMPreference string `json:"llm_preference" validate:"max=32"`
}

type generateTestsRequest struct {
	Code          string `json:"code" validate:"required"`
	Language      string `json:"language"`
	TestFramework string `json:"test_framework"`
	LLMPreference string `json:"llm_preference" validate:"max=32"`
}

type fixRequest struct {
	Code          string            `json:"code" validate:"required"`
	Language      string            `json:"language" validate:"required"`
	Findings      []council.Finding `json:"findings"`
	LLMPreference string            `json:"llm_preference" validate:"max=32"`
}

type implementRequest struct {
	Plan          council.Plan `json:"plan"`
	Project       string       `json:"project_dir" validate:"required,max=128"`
	WebhookURL    string       `json:"webhook_url" validate:"omitempty,url"`
	MaxIterations int          `json:"max_iterations" validate:"min=0"`
	Environment   string       `json:"environment"`
}

// languageOr defaults an empty language the way the agents expect.
func languageOr(lang, fallback string) string {
	if lang == "" {
		return fallback
	}
	return lang
}
