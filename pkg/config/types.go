package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/stores"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/telemetry"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/transports/ssh"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/watch"
)

// Config is the installer configuration.
type Config struct {
	// DataDir holds stored resource content and the default snapshot files.
	DataDir string `yaml:"data_dir" validate:"required"`

	// Interval between cycles when no change wakes the installer.
	Interval time.Duration `yaml:"interval" validate:"gte=0"`

	Watch     watch.Config     `yaml:"watch"`
	Remote    []RemoteConfig   `yaml:"remote"`
	Snapshot  stores.Config    `yaml:"snapshot"`
	Policy    PolicyConfig     `yaml:"policy"`
	Transform TransformConfig  `yaml:"transform"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// RemoteConfig names directories polled on an SFTP server.
type RemoteConfig struct {
	SSH ssh.Config `yaml:"ssh"`

	watch.RemoteConfig `yaml:",inline"`
}

// PolicyConfig configures admission.
type PolicyConfig struct {
	Enabled bool `yaml:"enabled"`

	// Paths lists policy files or directories (.rego and .json).
	Paths []string `yaml:"paths"`

	// Disabled names policies to switch off, including built-in ones.
	Disabled []string `yaml:"disabled"`
}

// TransformConfig configures the transformer chain.
type TransformConfig struct {
	// Extensions maps file extensions to resource types. Entries are merged
	// over the built-in mapping.
	Extensions map[string]string `yaml:"extensions" validate:"dive,keys,startswith=.,endkeys,required"`

	// Scripts are Starlark transformers, consulted before the extension mapping.
	Scripts []ScriptConfig `yaml:"scripts" validate:"dive"`
}

// ScriptConfig names one Starlark transformer.
type ScriptConfig struct {
	Path    string        `yaml:"path" validate:"required"`
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
}

// ValidationError is one invalid configuration value.
type ValidationError struct {
	// Path is the YAML path of the value, e.g. "snapshot.backend".
	Path string `json:"path,omitempty"`

	Message string `json:"message"`
}

func (e ValidationError) String() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationErrors is returned by Validate.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("invalid configuration: %s", strings.Join(msgs, "; "))
}
