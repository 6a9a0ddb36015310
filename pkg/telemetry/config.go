package telemetry

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds the logging, tracing and metrics settings of one installer
// process.
type Config struct {
	ServiceName    string `yaml:"service_name" validate:"required"`
	ServiceVersion string `yaml:"service_version" validate:"required"`

	// Environment is attached to every span (dev, staging, prod).
	Environment string `yaml:"environment"`

	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `yaml:"format" validate:"oneof=console json"`

	// Output is stdout, stderr or a file path opened for appending.
	Output string `yaml:"output"`

	EnableCaller bool `yaml:"enable_caller"`

	// Sampling lets SamplingInitial messages through each second, then every
	// SamplingThereafter-th one.
	EnableSampling     bool `yaml:"enable_sampling"`
	SamplingInitial    int  `yaml:"sampling_initial" validate:"gte=0"`
	SamplingThereafter int  `yaml:"sampling_thereafter" validate:"gte=0"`

	TimeFormat string `yaml:"time_format" validate:"omitempty,oneof=unix unixms unixmicro rfc3339"`
}

// TracingConfig configures the span exporter.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=otlp stdout none"`

	// Endpoint is the OTLP gRPC collector address.
	Endpoint string `yaml:"endpoint"`

	SamplingRate       float64           `yaml:"sampling_rate" validate:"gte=0,lte=1"`
	MaxExportBatchSize int               `yaml:"max_export_batch_size" validate:"gte=0"`
	ExportTimeout      time.Duration     `yaml:"export_timeout"`
	Headers            map[string]string `yaml:"headers"`
	Insecure           bool              `yaml:"insecure"`
}

// MetricsConfig configures the Prometheus collector and its HTTP endpoint.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address" validate:"required_if=Enabled true"`
	Path          string `yaml:"path"`
	Namespace     string `yaml:"namespace"`

	// DefaultHistogramBuckets are latency buckets in seconds.
	DefaultHistogramBuckets []float64 `yaml:"default_histogram_buckets"`
}

// DefaultConfig returns console logging at info level, tracing off and
// metrics served on :9090.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "module-installer",
		ServiceVersion: "dev",
		Environment:    "development",
		Logging: LoggingConfig{
			Level:              "info",
			Format:             "console",
			Output:             "stdout",
			SamplingInitial:    100,
			SamplingThereafter: 100,
			TimeFormat:         "rfc3339",
		},
		Tracing: TracingConfig{
			Exporter:           "none",
			SamplingRate:       1.0,
			MaxExportBatchSize: 512,
			ExportTimeout:      30 * time.Second,
			Headers:            map[string]string{},
			Insecure:           true,
		},
		Metrics: MetricsConfig{
			Enabled:       true,
			ListenAddress: ":9090",
			Path:          "/metrics",
			Namespace:     "installer",
			DefaultHistogramBuckets: []float64{
				0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0,
			},
		},
	}
}

var validate = validator.New()

// Validate checks c against its struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}
	return nil
}
