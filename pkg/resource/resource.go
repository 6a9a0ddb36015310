package resource

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"strconv"
)

// Resource is a registered installable resource.
type Resource struct {
	// URL uniquely identifies the content source.
	URL string `json:"url"`

	// Digest is the content fingerprint.
	Digest string `json:"digest"`

	// EntityID identifies the artifact slot this resource competes for.
	EntityID string `json:"entity_id"`

	// Type is the resource type.
	Type string `json:"type"`

	// Version is the artifact version used to order alternatives.
	Version string `json:"version,omitempty"`

	// Priority orders alternatives of one entity (higher wins).
	Priority int `json:"priority"`

	// State is the current lifecycle state.
	State State `json:"state"`

	// Dictionary holds the declared properties.
	Dictionary map[string]any `json:"dictionary,omitempty"`

	// Attributes are persisted values written by tasks.
	Attributes map[string]any `json:"attributes,omitempty"`

	// TemporaryAttributes hold retry bookkeeping owned by the task responsible for the resource.
	TemporaryAttributes map[string]any `json:"temporary_attributes,omitempty"`

	// DataFile is the path of the stored content.
	DataFile string `json:"data_file,omitempty"`
}

// Create wraps an installable resource into a registered resource.
func Create(input InstallableResource) (*Resource, error) {
	if input.URL == "" {
		return nil, errors.New("resource url is required")
	}
	if input.Digest == "" {
		return nil, fmt.Errorf("resource %s has no digest", input.URL)
	}
	if input.Type == "" {
		return nil, fmt.Errorf("resource %s has no type", input.URL)
	}

	r := &Resource{
		URL:        input.URL,
		Digest:     input.Digest,
		Type:       input.Type,
		Priority:   input.Priority,
		State:      StateRegistered,
		Dictionary: maps.Clone(input.Dictionary),
		DataFile:   input.DataFile,
	}
	if v, ok := input.Dictionary[PropertyVersion]; ok {
		r.Version = fmt.Sprint(v)
	}

	if !IsRaw(input.Type) {
		r.EntityID = input.EntityID
		if r.EntityID == "" {
			r.EntityID = input.Type + ":" + input.URL
		}
	}

	return r, nil
}

// Clone derives a new typed resource from r bound to the transformation result.
// The clone shares URL and digest with r and starts in StateRegistered.
func (r *Resource) Clone(result TransformationResult) (*Resource, error) {
	if result.ResourceType == "" {
		return nil, fmt.Errorf("transformation of %s has no resource type", r.URL)
	}
	entityID := result.resolvedEntityID()
	if entityID == "" && !IsRaw(result.ResourceType) {
		return nil, fmt.Errorf("transformation of %s has no entity id", r.URL)
	}

	c := &Resource{
		URL:        r.URL,
		Digest:     r.Digest,
		EntityID:   entityID,
		Type:       result.ResourceType,
		Version:    r.Version,
		Priority:   r.Priority,
		State:      StateRegistered,
		Dictionary: maps.Clone(r.Dictionary),
		Attributes: maps.Clone(result.Attributes),
		DataFile:   r.DataFile,
	}
	if result.Version != "" {
		c.Version = result.Version
	}
	if result.Dictionary != nil {
		c.Dictionary = maps.Clone(result.Dictionary)
	}
	if result.DataFile != "" {
		c.DataFile = result.DataFile
		if result.Digest != "" {
			c.Digest = result.Digest
		}
	}

	return c, nil
}

// Same reports whether o has the same URL and digest as r.
func (r *Resource) Same(o *Resource) bool {
	return r.URL == o.URL && r.Digest == o.Digest
}

// HasContent reports whether the content of r is still retrievable.
func (r *Resource) HasContent() bool {
	if r.DataFile == "" {
		return false
	}
	_, err := os.Stat(r.DataFile)
	return err == nil
}

// Open opens the content of r.
func (r *Resource) Open() (io.ReadCloser, error) {
	if r.DataFile == "" {
		return nil, fmt.Errorf("resource %s has no content", r.URL)
	}
	f, err := os.Open(r.DataFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open content of %s: %w", r.URL, err)
	}
	return f, nil
}

// SetState updates the lifecycle state.
func (r *Resource) SetState(state State) {
	r.State = state
}

// Attribute returns a persisted attribute.
func (r *Resource) Attribute(key string) (any, bool) {
	v, ok := r.Attributes[key]
	return v, ok
}

// SetAttribute sets a persisted attribute. A nil value removes the key.
func (r *Resource) SetAttribute(key string, value any) {
	r.Attributes = setOrDelete(r.Attributes, key, value)
}

// IntAttribute returns a persisted attribute as an integer.
func (r *Resource) IntAttribute(key string) (int64, bool) {
	return toInt(r.Attributes[key])
}

// TemporaryAttribute returns a temporary attribute.
func (r *Resource) TemporaryAttribute(key string) (any, bool) {
	v, ok := r.TemporaryAttributes[key]
	return v, ok
}

// SetTemporaryAttribute sets a temporary attribute. A nil value removes the key.
func (r *Resource) SetTemporaryAttribute(key string, value any) {
	r.TemporaryAttributes = setOrDelete(r.TemporaryAttributes, key, value)
}

// IntTemporaryAttribute returns a temporary attribute as an integer.
func (r *Resource) IntTemporaryAttribute(key string) (int64, bool) {
	return toInt(r.TemporaryAttributes[key])
}

// String implements fmt.Stringer.
func (r *Resource) String() string {
	return fmt.Sprintf("%s(%s, entity=%s, digest=%s, state=%s)", r.Type, r.URL, r.EntityID, r.Digest, r.State)
}

func setOrDelete(m map[string]any, key string, value any) map[string]any {
	if value == nil {
		delete(m, key)
		return m
	}
	if m == nil {
		m = make(map[string]any)
	}
	m[key] = value
	return m
}

// toInt converts values that survived a JSON round trip back to integers.
func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}
