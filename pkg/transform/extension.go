package transform

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
)

// DefaultExtensions maps file extensions to resource types.
var DefaultExtensions = map[string]string{
	".yaml":   resource.TypeBundle,
	".yml":    resource.TypeBundle,
	".bundle": resource.TypeBundle,
	".cfg":    resource.TypeConfig,
	".config": resource.TypeConfig,
}

// ExtensionTransformer types raw files by their extension. The file base
// name becomes the type-local id, so "file:/srv/install/app.yaml" turns into
// a bundle of entity "bundle:app".
type ExtensionTransformer struct {
	extensions map[string]string
}

// NewExtensionTransformer creates a transformer for the given extension map.
// A nil map selects DefaultExtensions.
func NewExtensionTransformer(extensions map[string]string) *ExtensionTransformer {
	if extensions == nil {
		extensions = DefaultExtensions
	}
	return &ExtensionTransformer{extensions: extensions}
}

// Transform implements Transformer.
func (t *ExtensionTransformer) Transform(_ context.Context, r *resource.Resource) ([]resource.TransformationResult, error) {
	if r.Type != resource.TypeFile {
		return nil, nil
	}

	name, err := fileName(r.URL)
	if err != nil {
		return nil, err
	}
	ext := strings.ToLower(path.Ext(name))
	typ, ok := t.extensions[ext]
	if !ok {
		return nil, nil
	}
	id := strings.TrimSuffix(name, path.Ext(name))
	if id == "" {
		return nil, nil
	}

	result := resource.TransformationResult{
		ResourceType: typ,
		ID:           id,
	}
	if v, ok := r.Dictionary[resource.PropertyVersion]; ok {
		result.Version = fmt.Sprint(v)
	}
	return []resource.TransformationResult{result}, nil
}

// fileName returns the last path element of a resource URL.
func fileName(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid resource url %q: %w", raw, err)
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	return path.Base(p), nil
}
