package service

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/Strob0t/CodeCouncil/internal/domain"
)

// parseStructured decodes the JSON object embedded in a model response.
// Any failure wraps domain.ErrMalformedOutput; each call site owns its
// fallback value.
func parseStructured[T any](text string) (T, error) {
	var v T
	raw := extractJSON(text)
	if raw == "" {
		return v, fmt.Errorf("%w: empty response", domain.ErrMalformedOutput)
	}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, fmt.Errorf("%w: %v", domain.ErrMalformedOutput, err)
	}
	return v, nil
}

var jsonFence = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\}|\\[.*?\\])\\s*```")

// extractJSON returns the JSON payload of s: the body of the first fenced
// block holding an object or array, else the span from the first '{' to
// the last '}'.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if m := jsonFence.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

var codeFence = regexp.MustCompile("(?s)```(\\w+)?\\s*(.*?)\\s*```")

// firstCodeFence returns the body of the first fenced block in s.
func firstCodeFence(s string) (string, bool) {
	m := codeFence.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[2], true
}

const maxPromptInput = 10000

var roleMarkers = []string{
	"system:", "assistant:", "user:", "[system]", "[assistant]",
	"<|system|>", "<|assistant|>", "<|im_start|>",
	"### system", "### assistant", "### instruction",
}

// sanitizePromptInput strips control characters, neutralizes line-leading
// role markers and caps the length of caller text embedded in a prompt.
func sanitizePromptInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lower := strings.ToLower(strings.TrimSpace(line))
		for _, marker := range roleMarkers {
			if strings.HasPrefix(lower, marker) {
				lines[i] = "[sanitized] " + line
				break
			}
		}
	}
	s = strings.Join(lines, "\n")

	if len(s) > maxPromptInput {
		s = s[:maxPromptInput] + "\n[truncated]"
	}
	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
