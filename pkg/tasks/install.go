package tasks

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/engine"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
)

const installOrder = "50-"

// Attributes written on bundle resources.
const (
	// AttrStart marks a resource whose artifact should be started.
	AttrStart = "artifact.start"

	// AttrArtifactID holds the runtime identity of the installed artifact.
	AttrArtifactID = "artifact.id"
)

// InstallTask installs the content of a bundle resource and chains a start
// task into the same cycle.
type InstallTask struct {
	resource *resource.Resource
	env      Env
}

// NewInstallTask creates an install task for r.
func NewInstallTask(r *resource.Resource, env Env) *InstallTask {
	return &InstallTask{resource: r, env: env}
}

// Resource returns the resource being installed.
func (t *InstallTask) Resource() *resource.Resource {
	return t.resource
}

// SortKey orders install tasks before starts, by resource URL.
func (t *InstallTask) SortKey() string {
	return installOrder + t.resource.URL
}

// Kind returns "install".
func (t *InstallTask) Kind() string {
	return "install"
}

func (t *InstallTask) String() string {
	return "InstallTask: " + t.resource.String()
}

// Execute installs the resource. Install failures are logged and returned as
// transient errors; the resource stays registered and is offered again in
// the next cycle. A malformed start level is a permanent error.
func (t *InstallTask) Execute(ctx context.Context, ictx engine.InstallationContext) error {
	r := t.resource
	logger := t.env.Logger.With().
		Str("url", r.URL).
		Str("entity_id", r.EntityID).
		Logger()

	startLevel, err := StartLevel(r.Dictionary)
	if err != nil {
		return engine.NewPermanentError("invalid start level", err).
			WithCode(engine.ErrCodeMalformedMetadata).
			WithResource(r.URL).
			WithTask(t.SortKey())
	}

	content, err := r.Open()
	if err != nil {
		logger.Debug().Err(err).Msg("Content not available, retrying later")
		return engine.NewTransientError("content not available", err).
			WithCode(engine.ErrCodeNoContent).
			WithResource(r.URL)
	}
	defer content.Close()

	id, err := t.env.Runtime.Install(ctx, r.URL, content)
	if err != nil {
		logger.Debug().Err(err).Msg("Install failed, retrying later")
		return engine.NewTransientError("install failed", err).
			WithCode(engine.ErrCodeInstallFailed).
			WithResource(r.URL)
	}
	ictx.Log("Installed artifact %d from resource %s", id, r)

	if startLevel > 0 {
		if t.env.StartLevels == nil {
			logger.Warn().
				Int64("artifact_id", id).
				Int("start_level", startLevel).
				Msg("Ignoring start level, start level service not available")
		} else if err := t.env.StartLevels.SetStartLevel(id, startLevel); err != nil {
			logger.Warn().
				Err(err).
				Int64("artifact_id", id).
				Int("start_level", startLevel).
				Msg("Failed to set start level")
		}
	}

	r.SetAttribute(AttrStart, "true")
	r.SetAttribute(AttrArtifactID, id)
	ictx.AddTaskToCurrentCycle(NewStartTask(r, id, t.env))
	return nil
}

// StartLevel reads the optional start level from a resource dictionary.
// It returns 0 when none is declared.
func StartLevel(dict map[string]any) (int, error) {
	v, ok := dict[resource.PropertyStartLevel]
	if !ok || v == nil {
		return 0, nil
	}

	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		level, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("%s %q is not a number", resource.PropertyStartLevel, n)
		}
		return level, nil
	default:
		return 0, fmt.Errorf("%s has unsupported type %T", resource.PropertyStartLevel, v)
	}
}
