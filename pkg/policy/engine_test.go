package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func bundle(url string, dict map[string]any) *resource.Resource {
	return &resource.Resource{
		URL:        url,
		Digest:     "d1",
		EntityID:   "bundle:a",
		Type:       resource.TypeBundle,
		State:      resource.StateRegistered,
		Dictionary: dict,
	}
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	policies := eng.ListPolicies()
	if len(policies) != 2 {
		t.Fatalf("expected 2 built-in policies, got %d", len(policies))
	}
	if policies[0].Name != "resource-url" || policies[1].Name != "start-level" {
		t.Errorf("unexpected policies %s, %s", policies[0].Name, policies[1].Name)
	}
}

func TestAdmit_StartLevel(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name    string
		dict    map[string]any
		allowed bool
	}{
		{name: "no start level", dict: nil, allowed: true},
		{name: "numeric", dict: map[string]any{"bundle.startlevel": 20}, allowed: true},
		{name: "numeric string", dict: map[string]any{"bundle.startlevel": "30"}, allowed: true},
		{name: "zero", dict: map[string]any{"bundle.startlevel": 0}, allowed: false},
		{name: "too high", dict: map[string]any{"bundle.startlevel": 5000}, allowed: false},
		{name: "fraction", dict: map[string]any{"bundle.startlevel": 1.5}, allowed: false},
		{name: "not a number", dict: map[string]any{"bundle.startlevel": "high"}, allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := eng.Admit(context.Background(), bundle("file:/a.yaml", tt.dict))
			if err != nil {
				t.Fatalf("Admit() failed: %v", err)
			}
			if decision.Allowed != tt.allowed {
				t.Errorf("expected allowed=%v, got %v (violations: %v, errors: %v)",
					tt.allowed, decision.Allowed, decision.Violations, decision.Errors)
			}
			if !tt.allowed {
				if len(decision.Violations) != 1 || decision.Violations[0].Policy != "start-level" {
					t.Errorf("expected one start-level violation, got %v", decision.Violations)
				}
			}
		})
	}
}

func TestAdmit_ResourceURL(t *testing.T) {
	eng := newTestEngine(t)

	decision, err := eng.Admit(context.Background(), bundle("no-scheme", nil))
	if err != nil {
		t.Fatalf("Admit() failed: %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected url without scheme to be denied")
	}
	if decision.Violations[0].Resource != "no-scheme" || decision.Violations[0].Severity != SeverityError {
		t.Errorf("unexpected violation %+v", decision.Violations[0])
	}

	if _, err := eng.Admit(context.Background(), nil); err == nil {
		t.Error("expected error for nil resource")
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	r := bundle("file:/a.yaml", map[string]any{"bundle.startlevel": "bad"})

	if err := eng.DisablePolicy("start-level"); err != nil {
		t.Fatalf("DisablePolicy() failed: %v", err)
	}
	decision, _ := eng.Admit(context.Background(), r)
	if !decision.Allowed {
		t.Error("disabled policy must not be evaluated")
	}
	if len(decision.EvaluatedPolicies) != 1 {
		t.Errorf("expected one evaluated policy, got %v", decision.EvaluatedPolicies)
	}

	if err := eng.EnablePolicy("start-level"); err != nil {
		t.Fatalf("EnablePolicy() failed: %v", err)
	}
	decision, _ = eng.Admit(context.Background(), r)
	if decision.Allowed {
		t.Error("re-enabled policy must deny")
	}

	if err := eng.EnablePolicy("missing"); err == nil {
		t.Error("expected error for unknown policy")
	}
	if _, err := eng.GetPolicy("missing"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

const customPolicy = `# Only allow bundles from the install directory.
package installer.custom.location

import rego.v1

deny contains violation if {
	not startswith(input.resource.url, "file:/srv/install/")
	violation := sprintf("%s is outside the install directory", [input.resource.url])
}

deny contains violation if {
	input.resource.priority < 0
	violation := {"message": "negative priority", "severity": "warning"}
}
`

func TestLoadPolicies(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "location.rego"), []byte(customPolicy), 0o600); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	eng := newTestEngine(t)
	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("LoadPolicies() failed: %v", err)
	}

	p, err := eng.GetPolicy("location")
	if err != nil {
		t.Fatalf("GetPolicy() failed: %v", err)
	}
	if p.Description != "Only allow bundles from the install directory." {
		t.Errorf("unexpected description %q", p.Description)
	}

	decision, err := eng.Admit(context.Background(), bundle("file:/tmp/a.yaml", nil))
	if err != nil {
		t.Fatalf("Admit() failed: %v", err)
	}
	if decision.Allowed {
		t.Error("expected custom policy to deny")
	}

	r := bundle("file:/srv/install/a.yaml", nil)
	r.Priority = -1
	decision, err = eng.Admit(context.Background(), r)
	if err != nil {
		t.Fatalf("Admit() failed: %v", err)
	}
	if !decision.Allowed {
		t.Errorf("warnings must not block, got %v", decision.Violations)
	}
	if len(decision.Warnings) != 1 || decision.Warnings[0].Message != "negative priority" {
		t.Errorf("expected one warning, got %v", decision.Warnings)
	}
}

func TestLoadPolicies_Errors(t *testing.T) {
	eng := newTestEngine(t)

	if err := eng.LoadPolicies(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Error("expected error for missing path")
	}

	bad := filepath.Join(t.TempDir(), "bad.rego")
	if err := os.WriteFile(bad, []byte("package x\n\ndeny contains"), 0o600); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}
	if err := eng.LoadPolicies(context.Background(), []string{bad}); err == nil {
		t.Error("expected compile error")
	}
}

func TestLoader_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.json")
	body := `{"name": "json-policy", "enabled": true, "rego": "package j\n\nimport rego.v1\n\ndeny contains \"x\" if { false }\n"}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write policy: %v", err)
	}

	policies, err := NewLoader(zerolog.Nop()).LoadFromPaths([]string{path})
	if err != nil {
		t.Fatalf("LoadFromPaths() failed: %v", err)
	}
	if len(policies) != 1 || policies[0].Severity != SeverityWarning || policies[0].Source != path {
		t.Errorf("unexpected policies %+v", policies)
	}
}

func TestLoader_Definitions(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"strict.yaml": "name: strict\nseverity: critical\nenabled: false\ntags: [prod]\nrego: |\n  package strict\n\n  import rego.v1\n\n  deny contains \"x\" if { false }\n",
		"broken.yml":  "name: broken\n",
		"odd.json":    `{"name": "odd", "severity": "fatal", "rego": "package odd"}`,
		"README.md":   "not a policy",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	policies, err := NewLoader(zerolog.Nop()).LoadFromPaths([]string{dir})
	if err != nil {
		t.Fatalf("LoadFromPaths() failed: %v", err)
	}
	if len(policies) != 1 {
		t.Fatalf("expected only the valid definition, got %+v", policies)
	}
	p := policies[0]
	if p.Name != "strict" || p.Severity != SeverityCritical || p.Enabled || len(p.Tags) != 1 {
		t.Errorf("unexpected policy %+v", p)
	}

	_, err = NewLoader(zerolog.Nop()).LoadFromPaths([]string{filepath.Join(dir, "broken.yml")})
	if err == nil || !strings.Contains(err.Error(), "no rego source") {
		t.Errorf("explicit malformed file: err = %v", err)
	}
}

func TestLeadingComment(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"# One.\n#\n# Two.\npackage x\n# later", "One. Two."},
		{"\n\n# After blanks\npackage x", "After blanks"},
		{"package x\n# too late", ""},
	}
	for _, tt := range tests {
		if got := leadingComment([]byte(tt.src)); got != tt.want {
			t.Errorf("leadingComment(%q) = %q, want %q", tt.src, got, tt.want)
		}
	}
}
