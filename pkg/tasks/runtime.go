package tasks

import (
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/hostrt"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/telemetry"
)

// Runtime is the host module runtime driven by the tasks.
type Runtime interface {
	// Install installs content from location and returns the artifact id.
	Install(ctx context.Context, location string, content io.Reader) (int64, error)

	// Artifact looks up an artifact by id.
	Artifact(id int64) (hostrt.Artifact, bool)

	// Start activates an artifact.
	Start(ctx context.Context, id int64) error

	// TotalEvents returns the global lifecycle event count.
	TotalEvents() int64
}

// StartLevelService assigns start levels. It is optional.
type StartLevelService interface {
	SetStartLevel(id int64, level int) error
}

// Env holds the collaborators shared by all tasks.
type Env struct {
	Runtime Runtime

	// StartLevels may be nil.
	StartLevels StartLevelService

	Logger  zerolog.Logger
	Metrics *telemetry.Metrics
}
