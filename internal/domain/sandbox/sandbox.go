// Package sandbox defines the value types exchanged with the external
// execution environment and the per-environment verification recipes.
package sandbox

import "encoding/json"

// Handle identifies a created sandbox.
type Handle string

// TestResults is a summary parsed from test runner output.
type TestResults struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// CommandResult is the outcome of one command run inside a sandbox.
type CommandResult struct {
	Command     string       `json:"command"`
	ExitCode    int          `json:"exit_code"`
	Stdout      string       `json:"stdout"`
	Stderr      string       `json:"stderr"`
	Duration    float64      `json:"duration"`
	TestResults *TestResults `json:"test_results,omitempty"`
}

// Succeeded reports whether a command sequence succeeded: the last command
// exited 0. An empty sequence did not succeed.
func Succeeded(results []CommandResult) bool {
	if len(results) == 0 {
		return false
	}
	return results[len(results)-1].ExitCode == 0
}

// Status is the live state of a sandbox.
type Status struct {
	State          string `json:"status"`
	Uptime         int    `json:"uptime"`
	ExecutionCount int    `json:"executions"`
}

// Summary is returned when a sandbox is destroyed.
type Summary struct {
	Uptime         int `json:"uptime"`
	ExecutionCount int `json:"executions"`
}

// Environment tags understood by the sandbox service.
const (
	EnvNode   = "nodejs-18"
	EnvPython = "python-3.11"
	EnvGo     = "go-1.21"
)

// Recipe is the verification command sequence and manifest set for an environment.
type Recipe struct {
	Commands []string
	// Manifests builds dependency descriptors keyed by file name.
	Manifests func(project string) map[string]string
}

// RecipeFor returns the recipe for env. Unknown environments get a no-op
// command so the sequence still has a final exit code.
func RecipeFor(env string) Recipe {
	switch env {
	case EnvNode:
		return Recipe{
			Commands:  []string{"npm install", "npm test"},
			Manifests: nodeManifests,
		}
	case EnvPython:
		return Recipe{
			Commands: []string{"pip install -r requirements.txt", "pytest"},
			Manifests: func(string) map[string]string {
				return map[string]string{"requirements.txt": "pytest>=7.0.0"}
			},
		}
	case EnvGo:
		return Recipe{
			Commands: []string{"go mod tidy", "go test ./..."},
			Manifests: func(project string) map[string]string {
				return map[string]string{"go.mod": "module " + project + "\n\ngo 1.21\n"}
			},
		}
	}
	return Recipe{
		Commands:  []string{"echo 'No test command'"},
		Manifests: func(string) map[string]string { return nil },
	}
}

func nodeManifests(project string) map[string]string {
	pkg := map[string]any{
		"name":            project,
		"version":         "1.0.0",
		"scripts":         map[string]string{"test": "jest"},
		"devDependencies": map[string]string{"jest": "^29.0.0"},
	}
	data, _ := json.MarshalIndent(pkg, "", "  ")
	return map[string]string{"package.json": string(data)}
}
