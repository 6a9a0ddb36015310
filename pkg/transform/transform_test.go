package transform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
)

func TestExtensionTransformer(t *testing.T) {
	tr := NewExtensionTransformer(nil)
	tests := []struct {
		name       string
		res        *resource.Resource
		wantType   string
		wantID     string
		wantVer    string
		wantResult bool
	}{
		{
			name:       "bundle manifest",
			res:        &resource.Resource{URL: "file:/srv/install/app.yaml", Type: resource.TypeFile},
			wantType:   resource.TypeBundle,
			wantID:     "app",
			wantResult: true,
		},
		{
			name: "versioned config",
			res: &resource.Resource{
				URL:        "file:/srv/install/db.CFG",
				Type:       resource.TypeFile,
				Dictionary: map[string]any{resource.PropertyVersion: "1.2.0"},
			},
			wantType:   resource.TypeConfig,
			wantID:     "db",
			wantVer:    "1.2.0",
			wantResult: true,
		},
		{
			name: "unknown extension",
			res:  &resource.Resource{URL: "file:/srv/install/readme.txt", Type: resource.TypeFile},
		},
		{
			name: "property bags are not handled",
			res:  &resource.Resource{URL: "file:/srv/install/app.yaml", Type: resource.TypeProperties},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := tr.Transform(context.Background(), tt.res)
			if err != nil {
				t.Fatalf("Transform() failed: %v", err)
			}
			if !tt.wantResult {
				if len(results) != 0 {
					t.Fatalf("expected no results, got %v", results)
				}
				return
			}
			if len(results) != 1 {
				t.Fatalf("expected one result, got %d", len(results))
			}
			r := results[0]
			if r.ResourceType != tt.wantType || r.ID != tt.wantID || r.Version != tt.wantVer {
				t.Errorf("unexpected result %+v", r)
			}
		})
	}
}

func TestChain(t *testing.T) {
	boom := Func(func(context.Context, *resource.Resource) ([]resource.TransformationResult, error) {
		return nil, errors.New("boom")
	})
	none := Func(func(context.Context, *resource.Resource) ([]resource.TransformationResult, error) {
		return nil, nil
	})
	res := &resource.Resource{URL: "file:/a.yaml", Type: resource.TypeFile}

	chain := NewChain(zerolog.Nop(), boom, none, NewExtensionTransformer(nil))
	results, err := chain.Transform(context.Background(), res)
	if err != nil {
		t.Fatalf("Transform() failed: %v", err)
	}
	if len(results) != 1 || results[0].ID != "a" {
		t.Errorf("expected the extension transformer to answer, got %v", results)
	}

	if _, err := NewChain(zerolog.Nop(), none, boom).Transform(context.Background(), res); err == nil {
		t.Error("expected the failure to be reported when nobody handles the resource")
	}
	results, err = NewChain(zerolog.Nop(), none).Transform(context.Background(), res)
	if err != nil || results != nil {
		t.Errorf("expected unhandled resource, got %v (%v)", results, err)
	}
}

const manifestScript = `
def parse(content):
    name = None
    for line in content.splitlines():
        if line.startswith("symbolic_name:"):
            name = line.split(":", 1)[1].strip()
    return name

def transform(r):
    if r["content"] == None:
        return []
    name = parse(r["content"])
    if name == None:
        return []
    return [
        {"resource_type": "bundle", "id": name, "version": "1.0.0", "attributes": {"symbolic_name": name}},
        {"resource_type": "config", "entity_id": "config:" + name + ".defaults", "dictionary": {"level": 3}},
    ]

results = transform(resource)
`

func TestStarlarkTransformer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content")
	if err := os.WriteFile(path, []byte("symbolic_name: shop\nversion: 1.0.0\n"), 0o600); err != nil {
		t.Fatalf("failed to write content: %v", err)
	}
	res := &resource.Resource{URL: "file:/srv/shop.bin", Digest: "d1", Type: resource.TypeFile, DataFile: path}

	tr := NewStarlarkTransformer("manifest.star", manifestScript, time.Second)
	results, err := tr.Transform(context.Background(), res)
	if err != nil {
		t.Fatalf("Transform() failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ResourceType != resource.TypeBundle || results[0].ID != "shop" || results[0].Version != "1.0.0" {
		t.Errorf("unexpected bundle result %+v", results[0])
	}
	if results[0].Attributes["symbolic_name"] != "shop" {
		t.Errorf("attributes not converted: %v", results[0].Attributes)
	}
	if results[1].EntityID != "config:shop.defaults" || results[1].Dictionary["level"] != int64(3) {
		t.Errorf("unexpected config result %+v", results[1])
	}

	noContent := &resource.Resource{URL: "file:/srv/none", Type: resource.TypeFile}
	results, err = tr.Transform(context.Background(), noContent)
	if err != nil || len(results) != 0 {
		t.Errorf("expected no results without content, got %v (%v)", results, err)
	}
}

func TestStarlarkTransformer_Errors(t *testing.T) {
	res := &resource.Resource{URL: "file:/a", Type: resource.TypeFile}
	tests := []struct {
		name    string
		script  string
		wantErr string
	}{
		{name: "syntax error", script: "results = [", wantErr: "starlark execution failed"},
		{name: "results not a list", script: `results = "bundle"`, wantErr: "must be a list"},
		{name: "result not a dict", script: `results = ["bundle"]`, wantErr: "must be a dict"},
		{
			name:    "timeout",
			script:  "def spin():\n    for i in range(100000000):\n        pass\n\nspin()\n",
			wantErr: "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewStarlarkTransformer(tt.name, tt.script, 50*time.Millisecond)
			_, err := tr.Transform(context.Background(), res)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadStarlarkTransformer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t.star")
	if err := os.WriteFile(path, []byte(`results = [{"resource_type": "bundle", "id": "x"}]`), 0o600); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	tr, err := LoadStarlarkTransformer(path, 0)
	if err != nil {
		t.Fatalf("LoadStarlarkTransformer() failed: %v", err)
	}
	results, err := tr.Transform(context.Background(), &resource.Resource{URL: "file:/x", Type: resource.TypeFile})
	if err != nil || len(results) != 1 || results[0].ID != "x" {
		t.Errorf("unexpected results %v (%v)", results, err)
	}

	if _, err := LoadStarlarkTransformer(filepath.Join(t.TempDir(), "missing.star"), 0); err == nil {
		t.Error("expected error for missing script")
	}
}

func TestStarlarkTransformer_Check(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		wantErr bool
	}{
		{name: "valid", script: "results = [{\"resource_type\": \"bundle\", \"id\": resource[\"url\"]}]\n"},
		{name: "syntax error", script: "results = [\n", wantErr: true},
		{name: "undefined name", script: "results = unknown\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewStarlarkTransformer(tt.name, tt.script, 0).Check()
			if (err != nil) != tt.wantErr {
				t.Errorf("Check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
