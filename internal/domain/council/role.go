// Package council defines the value types exchanged by the specialist
// agents, the chairman and the deliberation pipeline.
package council

import (
	"fmt"
	"strings"
)

// Role identifies a specialist seat on the council.
type Role string

const (
	RoleArchitecture Role = "architecture"
	RoleSecurity     Role = "security"
	RolePerformance  Role = "performance"
	RoleQA           Role = "qa"
)

// RoleSpec is the fixed description of a role: who it is, what it looks for,
// and which task profile it runs on by default.
type RoleSpec struct {
	Role           Role
	AgentName      string
	Title          string
	Focus          string
	DefaultProfile TaskProfile
	// Pinned roles ignore the caller's profile during a full review.
	Pinned bool
}

var roleSpecs = map[Role]RoleSpec{
	RoleArchitecture: {
		Role:           RoleArchitecture,
		AgentName:      "Architecture Agent",
		Title:          "System Architect",
		Focus:          "Architecture design, design patterns, scalability",
		DefaultProfile: ProfileBalanced,
	},
	RoleSecurity: {
		Role:           RoleSecurity,
		AgentName:      "Security Agent",
		Title:          "Security Expert",
		Focus:          "Authentication, authorization, data protection, vulnerabilities",
		DefaultProfile: ProfileFast,
		Pinned:         true,
	},
	RolePerformance: {
		Role:           RolePerformance,
		AgentName:      "Performance Agent",
		Title:          "Performance Engineer",
		Focus:          "Optimization, caching, database queries, scalability",
		DefaultProfile: ProfileFast,
		Pinned:         true,
	},
	RoleQA: {
		Role:           RoleQA,
		AgentName:      "QA Agent",
		Title:          "QA Engineer",
		Focus:          "Test strategy, coverage, edge cases, validation",
		DefaultProfile: ProfileBalanced,
	},
}

// Roles returns every council role in seating order.
func Roles() []Role {
	return []Role{RoleArchitecture, RoleSecurity, RolePerformance, RoleQA}
}

// DefaultGates is the role set a review runs when the caller names none.
func DefaultGates() []Role {
	return []Role{RoleQA, RoleSecurity, RolePerformance}
}

// Spec returns the fixed description of r. It panics on an unknown role,
// which can only come from a programming error since ParseRole guards input.
func (r Role) Spec() RoleSpec {
	s, ok := roleSpecs[r]
	if !ok {
		panic(fmt.Sprintf("council: unknown role %q", string(r)))
	}
	return s
}

// Valid reports whether r is one of the four council roles.
func (r Role) Valid() bool {
	_, ok := roleSpecs[r]
	return ok
}

// ParseRole maps a gate name to a Role. "testing" and "architect" are
// accepted as aliases.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "qa", "testing":
		return RoleQA, nil
	case "security":
		return RoleSecurity, nil
	case "performance":
		return RolePerformance, nil
	case "architecture", "architect":
		return RoleArchitecture, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// ProfileFor returns the profile r runs on when the caller asked for requested.
func (r Role) ProfileFor(requested TaskProfile) TaskProfile {
	spec := r.Spec()
	if spec.Pinned || requested == "" {
		return spec.DefaultProfile
	}
	return requested
}
