package tasks

import (
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/engine"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
)

// Creator turns the active resource of an entity group into the task that
// moves it forward.
type Creator struct {
	env Env
}

// NewCreator creates a task creator sharing env with every task it builds.
func NewCreator(env Env) *Creator {
	return &Creator{env: env}
}

// Env returns the collaborators handed to created tasks.
func (c *Creator) Env() Env {
	return c.env
}

// CreateTask returns the task for r, or nil when r needs no work.
//
// A registered bundle whose artifact was installed by an earlier cycle and is
// still known to the runtime gets a StartTask; any other registered bundle
// gets an InstallTask.
func (c *Creator) CreateTask(r *resource.Resource) engine.Task {
	if r == nil || r.State != resource.StateRegistered || r.Type != resource.TypeBundle {
		return nil
	}

	if start, _ := r.Attribute(AttrStart); start == "true" {
		if id, ok := r.IntAttribute(AttrArtifactID); ok {
			if _, known := c.env.Runtime.Artifact(id); known {
				return NewStartTask(r, id, c.env)
			}
		}
		// the artifact disappeared from the runtime, install it again
		r.SetAttribute(AttrStart, nil)
		r.SetAttribute(AttrArtifactID, nil)
		r.SetTemporaryAttribute(AttrRetryCount, nil)
		r.SetTemporaryAttribute(AttrEventsCount, nil)
	}
	return NewInstallTask(r, c.env)
}
