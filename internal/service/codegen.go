package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/Strob0t/CodeCouncil/internal/domain/council"
	"github.com/Strob0t/CodeCouncil/internal/domain/sandbox"
)

// GeneratedFiles is one feature's candidate implementation.
type GeneratedFiles struct {
	Code  map[string]string
	Tests map[string]string
}

// All merges code and tests into one path->content map.
func (g GeneratedFiles) All() map[string]string {
	out := make(map[string]string, len(g.Code)+len(g.Tests))
	for k, v := range g.Code {
		out[k] = v
	}
	for k, v := range g.Tests {
		out[k] = v
	}
	return out
}

// CodeGenerator produces candidate files for a feature in an environment.
type CodeGenerator interface {
	Generate(ctx context.Context, feature council.FeatureSpec, environment string) (GeneratedFiles, error)
}

// TemplateGenerator emits a placeholder module plus one test per test case.
type TemplateGenerator struct{}

var _ CodeGenerator = TemplateGenerator{}

func (TemplateGenerator) Generate(_ context.Context, f council.FeatureSpec, environment string) (GeneratedFiles, error) {
	switch environment {
	case sandbox.EnvNode:
		return nodeFiles(f), nil
	case sandbox.EnvPython:
		return pythonFiles(f), nil
	case sandbox.EnvGo:
		return goFiles(f), nil
	default:
		return GeneratedFiles{
			Code:  map[string]string{"main.txt": "# " + f.Description + "\n"},
			Tests: map[string]string{"test.txt": strings.Join(f.TestCases, "\n") + "\n"},
		}, nil
	}
}

func nodeFiles(f council.FeatureSpec) GeneratedFiles {
	var tests strings.Builder
	fmt.Fprintf(&tests, "const feature = require('./%s');\n\n", f.ID)
	fmt.Fprintf(&tests, "describe(%s, () => {\n", strconv.Quote(f.Description))
	for _, tc := range f.TestCases {
		fmt.Fprintf(&tests, "  test(%s, () => {\n    expect(feature).toBeDefined();\n  });\n", strconv.Quote(tc))
	}
	tests.WriteString("});\n")

	return GeneratedFiles{
		Code:  map[string]string{f.ID + ".js": fmt.Sprintf("// %s\nmodule.exports = {};\n", oneLine(f.Description))},
		Tests: map[string]string{f.ID + ".test.js": tests.String()},
	}
}

func pythonFiles(f council.FeatureSpec) GeneratedFiles {
	mod := identifier(f.ID, '_')
	var tests strings.Builder
	fmt.Fprintf(&tests, "from %s import main\n\n", mod)
	seen := make(map[string]bool, len(f.TestCases))
	for i, tc := range f.TestCases {
		fn := unique(seen, "test_"+identifier(tc, '_'), i)
		fmt.Fprintf(&tests, "\ndef %s():\n    assert main() is None\n", fn)
	}
	return GeneratedFiles{
		Code:  map[string]string{mod + ".py": fmt.Sprintf("# %s\n\n\ndef main():\n    return None\n", oneLine(f.Description))},
		Tests: map[string]string{"test_" + mod + ".py": tests.String()},
	}
}

func goFiles(f council.FeatureSpec) GeneratedFiles {
	name := exported(f.ID)
	file := identifier(f.ID, '_')
	var tests strings.Builder
	tests.WriteString("package app\n\nimport \"testing\"\n")
	seen := make(map[string]bool, len(f.TestCases))
	for i, tc := range f.TestCases {
		fn := unique(seen, "Test"+name+exported(tc), i)
		fmt.Fprintf(&tests, "\nfunc %s(t *testing.T) {\n\tif err := %s(); err != nil {\n\t\tt.Fatal(err)\n\t}\n}\n", fn, name)
	}
	return GeneratedFiles{
		Code: map[string]string{file + ".go": fmt.Sprintf(
			"package app\n\n// %s implements: %s\nfunc %s() error { return nil }\n", name, oneLine(f.Description), name)},
		Tests: map[string]string{file + "_test.go": tests.String()},
	}
}

// unique suffixes name with n, then n+1 and so on, until seen lacks it.
func unique(seen map[string]bool, name string, n int) string {
	out := name
	for seen[out] {
		out = name + strconv.Itoa(n)
		n++
	}
	seen[out] = true
	return out
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// identifier lower-cases s and replaces every run of non-alphanumerics with sep.
func identifier(s string, sep rune) string {
	var b strings.Builder
	pending := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pending && b.Len() > 0 {
				b.WriteRune(sep)
			}
			b.WriteRune(r)
			pending = false
			continue
		}
		pending = true
	}
	out := b.String()
	if out == "" || unicode.IsDigit(rune(out[0])) {
		out = "f" + string(sep) + out
	}
	return out
}

// exported turns "feat-0 login flow" into "Feat0LoginFlow".
func exported(s string) string {
	var b strings.Builder
	for _, part := range strings.Split(identifier(s, ' '), " ") {
		if part == "" {
			continue
		}
		r := []rune(part)
		b.WriteString(strings.ToUpper(string(r[0])) + string(r[1:]))
	}
	return b.String()
}
