package council

import "strings"

// TaskProfile is a caller hint describing what matters most for a request.
// It is resolved to a concrete backend by the provider router.
type TaskProfile string

const (
	ProfileFast     TaskProfile = "fast"
	ProfileCheap    TaskProfile = "cheap"
	ProfileQuality  TaskProfile = "quality"
	ProfileBalanced TaskProfile = "balanced"
)

// ParseProfile returns the profile named by s. Empty or unknown names map to balanced.
func ParseProfile(s string) TaskProfile {
	switch p := TaskProfile(strings.ToLower(strings.TrimSpace(s))); p {
	case ProfileFast, ProfileCheap, ProfileQuality, ProfileBalanced:
		return p
	}
	return ProfileBalanced
}
