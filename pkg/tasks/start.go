package tasks

import (
	"context"
	"fmt"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/engine"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/hostrt"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
)

const startOrder = "70-"

// Temporary attributes owned by StartTask.
const (
	AttrRetryCount  = "bst:retryCount"
	AttrEventsCount = "bst:eventsCount"
)

// StartTask starts an installed artifact. A failed start is retried once
// immediately and afterwards only once the runtime has emitted a new
// lifecycle event.
type StartTask struct {
	resource   *resource.Resource
	artifactID int64
	env        Env

	retryCount             int64
	eventsCountForRetrying int64
}

// NewStartTask creates a start task for an artifact. r may be nil for a
// task that is not backed by a registered resource; such a task keeps its
// retry state in memory and re-enqueues itself.
func NewStartTask(r *resource.Resource, artifactID int64, env Env) *StartTask {
	t := &StartTask{resource: r, artifactID: artifactID, env: env}
	if r != nil {
		if rc, ok := r.IntTemporaryAttribute(AttrRetryCount); ok {
			t.retryCount = rc
			t.eventsCountForRetrying, _ = r.IntTemporaryAttribute(AttrEventsCount)
		}
	}
	return t
}

// Resource returns the backing resource or nil.
func (t *StartTask) Resource() *resource.Resource {
	return t.resource
}

// ArtifactID returns the runtime identity of the artifact to start.
func (t *StartTask) ArtifactID() int64 {
	return t.artifactID
}

// RetryCount returns the number of failed start attempts.
func (t *StartTask) RetryCount() int64 {
	return t.retryCount
}

// EventsCountForRetrying returns the event count required before the next attempt.
func (t *StartTask) EventsCountForRetrying() int64 {
	return t.eventsCountForRetrying
}

// SortKey orders start tasks after installs, by artifact id.
func (t *StartTask) SortKey() string {
	return fmt.Sprintf("%s%05d", startOrder, t.artifactID)
}

// Kind returns "start".
func (t *StartTask) Kind() string {
	return "start"
}

func (t *StartTask) String() string {
	return fmt.Sprintf("StartTask: artifact %d", t.artifactID)
}

// Execute starts the artifact once enough lifecycle events were seen. A
// failed start schedules a retry and returns a transient error.
func (t *StartTask) Execute(ctx context.Context, ictx engine.InstallationContext) error {
	logger := t.env.Logger.With().Int64("artifact_id", t.artifactID).Logger()

	if t.artifactID == hostrt.SystemArtifactID {
		logger.Debug().Msg("Artifact 0 is the system artifact, ignoring request to start it")
		t.finish()
		return nil
	}

	events := t.env.Runtime.TotalEvents()
	if events < t.eventsCountForRetrying {
		logger.Debug().
			Int64("events_needed", t.eventsCountForRetrying).
			Int64("events", events).
			Msg("Task is not executable at this time")
		if t.resource == nil {
			ictx.AddTaskToNextCycle(t)
		}
		return nil
	}

	a, ok := t.env.Runtime.Artifact(t.artifactID)
	if !ok {
		logger.Info().Msg("Cannot start artifact, id not found")
		return nil
	}

	if a.State == hostrt.StateActive {
		logger.Debug().Str("symbolic_name", a.SymbolicName).Msg("Artifact already started, no action taken")
		t.finish()
		return nil
	}

	if err := t.env.Runtime.Start(ctx, t.artifactID); err != nil {
		t.scheduleRetry()
		t.env.Metrics.RecordStartRetry()
		logger.Info().
			Err(err).
			Int64("retry_count", t.retryCount).
			Int64("events_needed", t.eventsCountForRetrying).
			Str("symbolic_name", a.SymbolicName).
			Msg("Could not start artifact, will retry")
		if t.resource == nil {
			ictx.AddTaskToNextCycle(t)
		}
		return engine.NewTransientError("start failed", err).
			WithCode(engine.ErrCodeStartFailed).
			WithTask(t.SortKey()).
			WithDetail("retry_count", t.retryCount)
	}

	logger.Info().
		Int64("retry_count", t.retryCount).
		Str("symbolic_name", a.SymbolicName).
		Msg("Artifact started")
	t.finish()
	return nil
}

// scheduleRetry records a failed attempt. The first retry may run as soon as
// the next cycle; later retries wait for at least one new lifecycle event.
func (t *StartTask) scheduleRetry() {
	current := t.env.Runtime.TotalEvents()
	if t.retryCount == 0 {
		t.eventsCountForRetrying = current
	} else {
		t.eventsCountForRetrying = current + 1
	}
	t.retryCount++

	if t.resource != nil {
		t.resource.SetTemporaryAttribute(AttrRetryCount, t.retryCount)
		t.resource.SetTemporaryAttribute(AttrEventsCount, t.eventsCountForRetrying)
	}
}

func (t *StartTask) finish() {
	if t.resource == nil {
		return
	}
	t.resource.SetState(resource.StateInstalled)
	t.resource.SetTemporaryAttribute(AttrRetryCount, nil)
	t.resource.SetTemporaryAttribute(AttrEventsCount, nil)
}
