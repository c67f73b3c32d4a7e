package service

import (
	"github.com/Strob0t/CodeCouncil/internal/domain/council"
	"github.com/Strob0t/CodeCouncil/internal/port/llm"
)

// ProviderSpec is the static description of one backend.
type ProviderSpec struct {
	Backend      llm.Backend
	DefaultModel string
	Models       map[council.TaskProfile]string
	// USD per one million tokens.
	CostIn  float64
	CostOut float64
	KeyEnv  string
	// RequiresKey is false for local backends such as Ollama.
	RequiresKey bool
}

// ModelFor returns the model used for profile, falling back to the default model.
func (p ProviderSpec) ModelFor(profile council.TaskProfile) string {
	if m, ok := p.Models[profile]; ok {
		return m
	}
	return p.DefaultModel
}

var providerCatalog = map[llm.Backend]ProviderSpec{
	llm.BackendGroq: {
		Backend:      llm.BackendGroq,
		DefaultModel: "llama-3.1-70b-versatile",
		Models: map[council.TaskProfile]string{
			council.ProfileFast:     "llama-3.1-8b-instant",
			council.ProfileBalanced: "llama-3.1-70b-versatile",
			council.ProfileQuality:  "llama-3.3-70b-versatile",
		},
		CostIn: 0.05, CostOut: 0.08,
		KeyEnv: "GROQ_API_KEY", RequiresKey: true,
	},
	llm.BackendOpenRouter: {
		Backend:      llm.BackendOpenRouter,
		DefaultModel: "anthropic/claude-3.5-sonnet",
		Models: map[council.TaskProfile]string{
			council.ProfileFast:     "google/gemini-2.0-flash-exp:free",
			council.ProfileBalanced: "anthropic/claude-3.5-sonnet",
			council.ProfileQuality:  "anthropic/claude-3.7-sonnet",
			council.ProfileCheap:    "meta-llama/llama-3.1-8b-instruct:free",
		},
		CostIn: 3.0, CostOut: 15.0,
		KeyEnv: "OPENROUTER_API_KEY", RequiresKey: true,
	},
	llm.BackendOllama: {
		Backend:      llm.BackendOllama,
		DefaultModel: "llama3.1:70b",
		Models: map[council.TaskProfile]string{
			council.ProfileFast:     "llama3.1:8b",
			council.ProfileBalanced: "llama3.1:70b",
			council.ProfileQuality:  "qwen2.5:72b",
		},
		KeyEnv: "OLLAMA_BASE_URL",
	},
	llm.BackendAnthropic: {
		Backend:      llm.BackendAnthropic,
		DefaultModel: "claude-3-5-sonnet-20241022",
		Models: map[council.TaskProfile]string{
			council.ProfileFast:     "claude-3-5-haiku-20241022",
			council.ProfileBalanced: "claude-3-5-sonnet-20241022",
			council.ProfileQuality:  "claude-3-7-sonnet-20250219",
		},
		CostIn: 3.0, CostOut: 15.0,
		KeyEnv: "ANTHROPIC_API_KEY", RequiresKey: true,
	},
	llm.BackendOpenAI: {
		Backend:      llm.BackendOpenAI,
		DefaultModel: "gpt-4o",
		Models: map[council.TaskProfile]string{
			council.ProfileFast:     "gpt-4o-mini",
			council.ProfileBalanced: "gpt-4o",
			council.ProfileQuality:  "o1",
		},
		CostIn: 2.5, CostOut: 10.0,
		KeyEnv: "OPENAI_API_KEY", RequiresKey: true,
	},
}

// routingTable lists backends per profile, most preferred first.
var routingTable = map[council.TaskProfile][]llm.Backend{
	council.ProfileFast:     {llm.BackendGroq, llm.BackendOllama, llm.BackendOpenRouter},
	council.ProfileCheap:    {llm.BackendOllama, llm.BackendGroq, llm.BackendOpenRouter},
	council.ProfileQuality:  {llm.BackendAnthropic, llm.BackendOpenAI, llm.BackendOpenRouter},
	council.ProfileBalanced: {llm.BackendGroq, llm.BackendOpenRouter, llm.BackendAnthropic},
}

// allBackends fixes the fallback scan order.
var allBackends = []llm.Backend{
	llm.BackendGroq, llm.BackendOpenRouter, llm.BackendOllama, llm.BackendAnthropic, llm.BackendOpenAI,
}

// LookupProvider returns the catalog entry for b.
func LookupProvider(b llm.Backend) (ProviderSpec, bool) {
	p, ok := providerCatalog[b]
	return p, ok
}

// EstimateCost returns the USD cost of a call with the given token counts.
// Unknown backends cost nothing.
func EstimateCost(b llm.Backend, tokensIn, tokensOut int) float64 {
	p, ok := providerCatalog[b]
	if !ok {
		return 0
	}
	return float64(tokensIn)/1_000_000*p.CostIn + float64(tokensOut)/1_000_000*p.CostOut
}
