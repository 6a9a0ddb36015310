package resource

// State represents the lifecycle state of a registered resource.
type State string

const (
	// StateRegistered indicates the resource is known but not yet installed.
	StateRegistered State = "registered"

	// StateTransforming indicates a transformer is deciding the resource type.
	StateTransforming State = "transforming"

	// StateInstalled indicates the artifact has been installed and started.
	StateInstalled State = "installed"

	// StateIgnored indicates the resource will not be installed.
	StateIgnored State = "ignored"

	// StateUninstalled indicates the resource has been removed from the runtime.
	StateUninstalled State = "uninstalled"
)

// Resource types.
const (
	// TypeFile is a raw file whose concrete type is not known yet.
	TypeFile = "file"

	// TypeProperties is a raw property bag whose concrete type is not known yet.
	TypeProperties = "properties"

	// TypeBundle is an artifact installed and started by the host runtime.
	TypeBundle = "bundle"

	// TypeConfig is a configuration artifact.
	TypeConfig = "config"
)

// Well-known dictionary keys.
const (
	// PropertyStartLevel is the optional start level declared for a bundle.
	PropertyStartLevel = "bundle.startlevel"

	// PropertyVersion is the optional version declared for a resource.
	PropertyVersion = "version"
)

// IsRaw reports whether t is one of the raw types that require transformation.
func IsRaw(t string) bool {
	return t == TypeFile || t == TypeProperties
}

// InstallableResource is the input handed to the registry by a resource provider.
type InstallableResource struct {
	// URL uniquely identifies the content source (e.g. "file:/srv/install/a.yaml").
	URL string `json:"url"`

	// Digest is the content fingerprint.
	Digest string `json:"digest"`

	// Type is the resource type; raw types are transformed later.
	Type string `json:"type"`

	// EntityID optionally overrides the default entity identity of a typed resource.
	EntityID string `json:"entity_id,omitempty"`

	// Priority orders competing resources of one entity (higher wins).
	Priority int `json:"priority"`

	// Dictionary holds the declared properties.
	Dictionary map[string]any `json:"dictionary,omitempty"`

	// DataFile is the path of the stored content, if any.
	DataFile string `json:"data_file,omitempty"`
}

// TransformationResult describes one typed resource derived from an untyped one.
type TransformationResult struct {
	// ResourceType is the concrete type (e.g. "bundle").
	ResourceType string `json:"resource_type"`

	// EntityID is the entity identity. When empty it is derived as ResourceType:ID.
	EntityID string `json:"entity_id,omitempty"`

	// ID is the type-local identifier (e.g. a symbolic name).
	ID string `json:"id,omitempty"`

	// Version is the artifact version, if known.
	Version string `json:"version,omitempty"`

	// Attributes are copied into the clone's persisted attributes.
	Attributes map[string]any `json:"attributes,omitempty"`

	// Dictionary replaces the declared properties of the clone when set.
	Dictionary map[string]any `json:"dictionary,omitempty"`

	// DataFile replaces the content of the clone when set.
	DataFile string `json:"data_file,omitempty"`

	// Digest is the digest of DataFile. Ignored when DataFile is empty.
	Digest string `json:"digest,omitempty"`
}

// resolvedEntityID returns the entity identity described by the result.
func (tr TransformationResult) resolvedEntityID() string {
	if tr.EntityID != "" {
		return tr.EntityID
	}
	if tr.ID == "" {
		return ""
	}
	return tr.ResourceType + ":" + tr.ID
}

// ChangeKind tells whether a provider added or removed a resource.
type ChangeKind string

const (
	ChangeAdd    ChangeKind = "add"
	ChangeRemove ChangeKind = "remove"
)

// Change is a resource update reported by a provider.
type Change struct {
	Kind ChangeKind `json:"kind"`

	// Resource is set for ChangeAdd.
	Resource InstallableResource `json:"resource"`

	// URL identifies the resource for ChangeRemove.
	URL string `json:"url"`
}
