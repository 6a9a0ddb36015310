package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// setup writes a configuration rooted in a temp dir and returns its path
// and the watched directory.
func setup(t *testing.T, extra string) (string, string) {
	t.Helper()

	dir := t.TempDir()
	watchDir := filepath.Join(dir, "install")
	if err := os.MkdirAll(watchDir, 0o755); err != nil {
		t.Fatal(err)
	}

	doc := "data_dir: " + filepath.Join(dir, "data") + "\n" +
		"watch:\n  dirs: [" + watchDir + "]\n" +
		"telemetry:\n  logging:\n    level: error\n  metrics:\n    enabled: false\n" + extra
	cfgPath := filepath.Join(dir, "installer.yaml")
	if err := os.WriteFile(cfgPath, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfgPath, watchDir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// flags are package level, reset them for every invocation
	configPath, verbose, jsonOutput = "", false, false

	cmd := newRootCommand("test", "none", "today")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeModule(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidate(t *testing.T) {
	cfg, _ := setup(t, "")

	out, err := execute(t, "validate", "--config", cfg)
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	if !strings.Contains(out, "Configuration is valid") {
		t.Errorf("output = %q", out)
	}
}

func TestValidate_Invalid(t *testing.T) {
	cfg, _ := setup(t, "snapshot:\n  backend: etcd\n")

	if _, err := execute(t, "validate", "--config", cfg); err == nil {
		t.Fatal("validate should reject an unknown backend")
	}
}

func TestRunOnce(t *testing.T) {
	cfg, watchDir := setup(t, "")
	writeModule(t, watchDir, "lib.yaml", "symbolic_name: lib\nversion: 1.0.0\n")

	out, err := execute(t, "run", "--once", "--json", "--config", cfg)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	var summary cycleSummary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if summary.Changes != 1 || summary.Transformed != 1 {
		t.Errorf("summary = %+v, want one change transformed", summary)
	}
	if summary.Executed != 2 {
		t.Errorf("Executed = %d, want install and start", summary.Executed)
	}
	if !summary.Saved {
		t.Error("registry was not saved")
	}

	out, err = execute(t, "snapshot", "show", "--json", "--config", cfg)
	if err != nil {
		t.Fatalf("snapshot show error = %v", err)
	}
	var rows []resourceRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(rows) != 1 || rows[0].EntityID != "bundle:lib" || rows[0].State != "installed" || !rows[0].Active {
		t.Errorf("rows = %+v", rows)
	}
}

func TestRegister(t *testing.T) {
	cfg, _ := setup(t, "")
	src := writeModule(t, t.TempDir(), "app.yaml", "symbolic_name: app\n")

	out, err := execute(t, "register", "--priority", "200", "--config", cfg, src)
	if err != nil {
		t.Fatalf("register error = %v", err)
	}
	if !strings.Contains(out, "Registered 1 of 1") {
		t.Errorf("output = %q", out)
	}

	// the same content again is a no-op
	out, err = execute(t, "register", "--config", cfg, src)
	if err != nil {
		t.Fatalf("register error = %v", err)
	}
	if !strings.Contains(out, "Registered 0 of 1") {
		t.Errorf("output = %q", out)
	}

	out, err = execute(t, "snapshot", "show", "--config", cfg)
	if err != nil {
		t.Fatalf("snapshot show error = %v", err)
	}
	if !strings.Contains(out, "(untransformed)") || !strings.Contains(out, "app.yaml") {
		t.Errorf("output = %q", out)
	}
}

func TestSnapshotHistory_SQLite(t *testing.T) {
	cfg, watchDir := setup(t, "snapshot:\n  backend: sqlite\n")
	writeModule(t, watchDir, "lib.yaml", "symbolic_name: lib\n")

	if _, err := execute(t, "run", "--once", "--config", cfg); err != nil {
		t.Fatalf("run error = %v", err)
	}

	out, err := execute(t, "snapshot", "history", "--json", "--config", cfg)
	if err != nil {
		t.Fatalf("snapshot history error = %v", err)
	}
	var history []struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal([]byte(out), &history); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(history) == 0 {
		t.Fatal("no snapshots recorded")
	}

	out, err = execute(t, "snapshot", "restore", "--config", cfg, "1")
	if err != nil {
		t.Fatalf("snapshot restore error = %v", err)
	}
	if !strings.Contains(out, "Restored snapshot 1") {
		t.Errorf("output = %q", out)
	}
}

func TestSnapshotHistory_FileBackend(t *testing.T) {
	cfg, _ := setup(t, "")

	if _, err := execute(t, "snapshot", "history", "--config", cfg); err == nil {
		t.Fatal("history should require the sqlite backend")
	}
}

func TestPolicyList(t *testing.T) {
	cfg, _ := setup(t, "policy:\n  disabled: [resource-url]\n")

	out, err := execute(t, "policy", "list", "--json", "--config", cfg)
	if err != nil {
		t.Fatalf("policy list error = %v", err)
	}
	var policies []struct {
		Name    string `json:"name"`
		Enabled bool   `json:"enabled"`
	}
	if err := json.Unmarshal([]byte(out), &policies); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	enabled := map[string]bool{}
	for _, p := range policies {
		enabled[p.Name] = p.Enabled
	}
	if !enabled["start-level"] || enabled["resource-url"] {
		t.Errorf("enabled = %v", enabled)
	}
}
