package transform

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
)

// maxScriptContent bounds the content handed to a script.
const maxScriptContent = 1 << 20

// StarlarkTransformer runs a Starlark script for every raw resource.
//
// The script sees a predeclared dict named resource with the keys url,
// digest, type, dictionary and content (the resource content as a string, or
// None). It describes its results by assigning a list of dicts to the global
// results, each with the keys resource_type, entity_id, id, version,
// attributes and dictionary:
//
//	def transform(r):
//	    if r["url"].endswith(".jar"):
//	        return [{"resource_type": "bundle", "id": r["url"]}]
//	    return []
//
//	results = transform(resource)
type StarlarkTransformer struct {
	name    string
	script  string
	timeout time.Duration
}

// NewStarlarkTransformer creates a transformer running script.
func NewStarlarkTransformer(name, script string, timeout time.Duration) *StarlarkTransformer {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &StarlarkTransformer{name: name, script: script, timeout: timeout}
}

// LoadStarlarkTransformer reads the script from path.
func LoadStarlarkTransformer(path string, timeout time.Duration) (*StarlarkTransformer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transformer script: %w", err)
	}
	return NewStarlarkTransformer(path, string(data), timeout), nil
}

// Check compiles the script without running it.
func (t *StarlarkTransformer) Check() error {
	isPredeclared := func(name string) bool {
		return name == "resource" || name == "struct"
	}
	if _, _, err := starlark.SourceProgram(t.name, t.script, isPredeclared); err != nil {
		return fmt.Errorf("invalid transformer script: %w", err)
	}
	return nil
}

// Transform implements Transformer.
func (t *StarlarkTransformer) Transform(ctx context.Context, r *resource.Resource) ([]resource.TransformationResult, error) {
	input, err := scriptInput(r)
	if err != nil {
		return nil, err
	}

	evalCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name:  "transform",
		Print: func(_ *starlark.Thread, _ string) {},
	}

	type outcome struct {
		results []resource.TransformationResult
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		results, err := t.evaluate(thread, input)
		done <- outcome{results: results, err: err}
	}()

	select {
	case <-evalCtx.Done():
		thread.Cancel("timeout")
		return nil, fmt.Errorf("starlark transformer %s: execution timeout after %v", t.name, t.timeout)
	case o := <-done:
		return o.results, o.err
	}
}

func (t *StarlarkTransformer) evaluate(thread *starlark.Thread, input map[string]any) ([]resource.TransformationResult, error) {
	in, err := toStarlarkValue(input)
	if err != nil {
		return nil, fmt.Errorf("failed to convert script input: %w", err)
	}
	predeclared := starlark.StringDict{
		"struct":   starlarkstruct.Default,
		"resource": in,
	}

	globals, err := starlark.ExecFile(thread, t.name, t.script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	val, ok := globals["results"]
	if !ok || val == starlark.None {
		return nil, nil
	}
	out, err := fromStarlarkValue(val)
	if err != nil {
		return nil, fmt.Errorf("failed to convert results: %w", err)
	}
	list, ok := out.([]any)
	if !ok {
		return nil, fmt.Errorf("results must be a list, got %s", val.Type())
	}

	results := make([]resource.TransformationResult, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("result %d must be a dict", i)
		}
		results = append(results, toResult(m))
	}
	return results, nil
}

func scriptInput(r *resource.Resource) (map[string]any, error) {
	input := map[string]any{
		"url":        r.URL,
		"digest":     r.Digest,
		"type":       r.Type,
		"dictionary": r.Dictionary,
		"content":    nil,
	}
	if r.HasContent() {
		rc, err := r.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		data, err := io.ReadAll(io.LimitReader(rc, maxScriptContent))
		if err != nil {
			return nil, fmt.Errorf("failed to read content of %s: %w", r.URL, err)
		}
		input["content"] = string(data)
	}
	return input, nil
}

func toResult(m map[string]any) resource.TransformationResult {
	str := func(key string) string {
		if s, ok := m[key].(string); ok {
			return s
		}
		return ""
	}
	dict := func(key string) map[string]any {
		if d, ok := m[key].(map[string]any); ok {
			return d
		}
		return nil
	}
	return resource.TransformationResult{
		ResourceType: str("resource_type"),
		EntityID:     str("entity_id"),
		ID:           str("id"),
		Version:      str("version"),
		Attributes:   dict("attributes"),
		Dictionary:   dict("dictionary"),
	}
}

// toStarlarkValue converts a Go value to a Starlark value.
func toStarlarkValue(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return starlark.String(fmt.Sprint(val)), nil
	}
}

// fromStarlarkValue converts a Starlark value to a Go value.
func fromStarlarkValue(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case starlark.Tuple:
		list := make([]any, len(val))
		for i, elem := range val {
			item, err := fromStarlarkValue(elem)
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]any)
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	case *starlarkstruct.Struct:
		dict := make(map[string]any)
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			value, err := fromStarlarkValue(attr)
			if err != nil {
				return nil, err
			}
			dict[name] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
