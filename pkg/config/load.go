package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/stores"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/telemetry"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/watch"
)

// Environment variables overriding the file.
const (
	EnvDataDir   = "INSTALLER_DATA_DIR"
	EnvWatchDirs = "INSTALLER_WATCH_DIRS"
	EnvLogLevel  = "INSTALLER_LOG_LEVEL"
)

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		DataDir:  "data",
		Interval: 5 * time.Second,
		Watch: watch.Config{
			Debounce: 500 * time.Millisecond,
		},
		Snapshot: stores.Config{
			Backend: stores.BackendFile,
		},
		Policy: PolicyConfig{
			Enabled: true,
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Load reads the file at path, applies environment overrides and validates
// the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.ApplyEnv(os.LookupEnv)
	cfg.resolve()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes and validates a YAML document without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	cfg, err := decode(data)
	if err != nil {
		return nil, err
	}
	cfg.resolve()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides values from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDataDir); ok && v != "" {
		c.DataDir = v
	}
	if v, ok := lookup(EnvWatchDirs); ok && v != "" {
		c.Watch.Dirs = filepath.SplitList(v)
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Telemetry.Logging.Level = strings.ToLower(v)
	}
}

// resolve fills the snapshot paths derived from the data directory.
func (c *Config) resolve() {
	if c.Snapshot.File.Path == "" {
		c.Snapshot.File.Path = "resources.snapshot"
	}
	if c.Snapshot.SQLite.Path == "" {
		c.Snapshot.SQLite.Path = "resources.db"
	}
	c.Snapshot.File.Path = c.inDataDir(c.Snapshot.File.Path)
	c.Snapshot.SQLite.Path = c.inDataDir(c.Snapshot.SQLite.Path)

	for i := range c.Remote {
		c.Remote[i].SSH.ApplyDefaults()
	}
}

func (c *Config) inDataDir(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.DataDir, path)
}

// ContentDir is the directory holding stored resource content.
func (c *Config) ContentDir() string {
	return filepath.Join(c.DataDir, "content")
}

// Validate checks the configuration and returns ValidationErrors listing
// every invalid value.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if err := newValidator().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{
				Path:    fieldPath(fe.Namespace()),
				Message: fieldMessage(fe),
			})
		}
	}

	for i := range c.Remote {
		r := &c.Remote[i]
		if len(r.Dirs) == 0 {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("remote[%d].dirs", i),
				Message: "is required",
			})
		}
		if err := r.SSH.Validate(); err != nil {
			errs = append(errs, ValidationError{
				Path:    fmt.Sprintf("remote[%d].ssh", i),
				Message: err.Error(),
			})
		}
	}

	if c.Snapshot.Backend == stores.BackendS3 && c.Snapshot.S3.Bucket == "" {
		errs = append(errs, ValidationError{
			Path:    "snapshot.s3.bucket",
			Message: "is required for the s3 backend",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// newValidator reports fields by their YAML names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(namespace string) string {
	_, path, found := strings.Cut(namespace, ".")
	if !found {
		return namespace
	}
	return path
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "required_if":
		return "is required when enabled"
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
