package tasks

import (
	"context"
	"testing"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/engine"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/hostrt"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
)

func installedArtifact(rt *fakeRuntime, id int64) {
	rt.artifacts[id] = hostrt.Artifact{ID: id, State: hostrt.StateInstalled}
}

func TestStartTask_Success(t *testing.T) {
	rt := newFakeRuntime()
	installedArtifact(rt, 3)
	r := bundleResource(t, "file:/a.yaml", nil)
	r.SetTemporaryAttribute(AttrRetryCount, 2)
	r.SetTemporaryAttribute(AttrEventsCount, 0)

	if err := NewStartTask(r, 3, testEnv(rt)).Execute(context.Background(), &fakeContext{}); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if r.State != resource.StateInstalled {
		t.Errorf("expected resource to be installed, got %s", r.State)
	}
	if _, ok := r.TemporaryAttribute(AttrRetryCount); ok {
		t.Error("retry bookkeeping should be cleared once started")
	}
}

func TestStartTask_AlreadyActive(t *testing.T) {
	rt := newFakeRuntime()
	rt.artifacts[4] = hostrt.Artifact{ID: 4, State: hostrt.StateActive}
	r := bundleResource(t, "file:/a.yaml", nil)

	if err := NewStartTask(r, 4, testEnv(rt)).Execute(context.Background(), &fakeContext{}); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if len(rt.starts) != 0 {
		t.Error("active artifact must not be started again")
	}
	if r.State != resource.StateInstalled {
		t.Errorf("expected resource to be installed, got %s", r.State)
	}
}

func TestStartTask_SystemArtifact(t *testing.T) {
	rt := newFakeRuntime()
	r := bundleResource(t, "file:/a.yaml", nil)

	if err := NewStartTask(r, hostrt.SystemArtifactID, testEnv(rt)).Execute(context.Background(), &fakeContext{}); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if len(rt.starts) != 0 {
		t.Error("the system artifact must not be started")
	}
	if r.State != resource.StateInstalled {
		t.Errorf("expected resource to be installed, got %s", r.State)
	}

	if err := NewStartTask(nil, hostrt.SystemArtifactID, testEnv(rt)).Execute(context.Background(), &fakeContext{}); err != nil {
		t.Fatalf("Execute() without resource failed: %v", err)
	}
}

func TestStartTask_NotFound(t *testing.T) {
	rt := newFakeRuntime()
	r := bundleResource(t, "file:/a.yaml", nil)
	ictx := &fakeContext{}

	if err := NewStartTask(nil, 42, testEnv(rt)).Execute(context.Background(), ictx); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if len(ictx.next) != 0 {
		t.Error("a missing artifact must not be retried")
	}

	if err := NewStartTask(r, 42, testEnv(rt)).Execute(context.Background(), ictx); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if r.State != resource.StateRegistered {
		t.Errorf("resource should stay registered, got %s", r.State)
	}
}

func TestStartTask_EventGatedBackoff(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()
	rt.startErr = errRejected
	rt.events = 5
	installedArtifact(rt, 1)
	r := bundleResource(t, "file:/a.yaml", nil)
	env := testEnv(rt)

	// first failure: eligible again without a new event
	err := NewStartTask(r, 1, env).Execute(ctx, &fakeContext{})
	if !engine.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if n, _ := r.IntTemporaryAttribute(AttrRetryCount); n != 1 {
		t.Errorf("expected retry count 1, got %d", n)
	}
	if n, _ := r.IntTemporaryAttribute(AttrEventsCount); n != 5 {
		t.Errorf("expected events threshold 5, got %d", n)
	}

	// second failure: needs one new event
	task := NewStartTask(r, 1, env)
	if task.RetryCount() != 1 || task.EventsCountForRetrying() != 5 {
		t.Fatalf("state not restored from resource: %d / %d", task.RetryCount(), task.EventsCountForRetrying())
	}
	_ = task.Execute(ctx, &fakeContext{})
	if len(rt.starts) != 2 {
		t.Fatalf("expected second attempt, got %d attempts", len(rt.starts))
	}
	if n, _ := r.IntTemporaryAttribute(AttrRetryCount); n != 2 {
		t.Errorf("expected retry count 2, got %d", n)
	}
	if n, _ := r.IntTemporaryAttribute(AttrEventsCount); n != 6 {
		t.Errorf("expected events threshold 6, got %d", n)
	}

	// no new event: not eligible, nothing scheduled
	ictx := &fakeContext{}
	if err := NewStartTask(r, 1, env).Execute(ctx, ictx); err != nil {
		t.Fatalf("waiting task should not fail: %v", err)
	}
	if len(rt.starts) != 2 {
		t.Errorf("task must wait for a new event, got %d attempts", len(rt.starts))
	}
	if len(ictx.next) != 0 {
		t.Error("resource-backed task must not re-enqueue itself")
	}

	// a new event arrives and the requirement is now satisfied
	rt.events++
	rt.startErr = nil
	if err := NewStartTask(r, 1, env).Execute(ctx, &fakeContext{}); err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if r.State != resource.StateInstalled {
		t.Errorf("expected resource to be installed, got %s", r.State)
	}
}

func TestStartTask_SyntheticRequeues(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()
	rt.startErr = errRejected
	rt.events = 10
	installedArtifact(rt, 2)
	task := NewStartTask(nil, 2, testEnv(rt))

	ictx := &fakeContext{}
	_ = task.Execute(ctx, ictx)
	if len(ictx.next) != 1 || ictx.next[0] != task {
		t.Fatalf("synthetic task should carry itself to the next cycle, got %v", ictx.next)
	}
	if task.RetryCount() != 1 || task.EventsCountForRetrying() != 10 {
		t.Errorf("unexpected state after first failure: %d / %d", task.RetryCount(), task.EventsCountForRetrying())
	}

	ictx = &fakeContext{}
	_ = task.Execute(ctx, ictx)
	if task.EventsCountForRetrying() != 11 {
		t.Errorf("expected threshold 11, got %d", task.EventsCountForRetrying())
	}
	if len(ictx.next) != 1 {
		t.Fatal("expected task to be carried again")
	}

	// not eligible yet: carried without another attempt
	ictx = &fakeContext{}
	if err := task.Execute(ctx, ictx); err != nil {
		t.Fatalf("waiting task should not fail: %v", err)
	}
	if len(rt.starts) != 2 {
		t.Errorf("expected no further attempt, got %d", len(rt.starts))
	}
	if len(ictx.next) != 1 {
		t.Error("waiting synthetic task must be carried to the next cycle")
	}
}

func TestCreator(t *testing.T) {
	rt := newFakeRuntime()
	installedArtifact(rt, 5)
	c := NewCreator(testEnv(rt))

	fresh := bundleResource(t, "file:/a.yaml", nil)
	if _, ok := c.CreateTask(fresh).(*InstallTask); !ok {
		t.Error("expected an install task for a fresh bundle")
	}

	started := bundleResource(t, "file:/b.yaml", nil)
	started.SetAttribute(AttrStart, "true")
	started.SetAttribute(AttrArtifactID, float64(5))
	st, ok := c.CreateTask(started).(*StartTask)
	if !ok || st.ArtifactID() != 5 {
		t.Fatalf("expected a start task for artifact 5, got %v", c.CreateTask(started))
	}

	gone := bundleResource(t, "file:/c.yaml", nil)
	gone.SetAttribute(AttrStart, "true")
	gone.SetAttribute(AttrArtifactID, int64(77))
	gone.SetTemporaryAttribute(AttrRetryCount, 3)
	if _, ok := c.CreateTask(gone).(*InstallTask); !ok {
		t.Error("expected reinstall when the artifact is no longer known")
	}
	if _, ok := gone.TemporaryAttribute(AttrRetryCount); ok {
		t.Error("stale retry state should be dropped on reinstall")
	}

	installed := bundleResource(t, "file:/d.yaml", nil)
	installed.SetState(resource.StateInstalled)
	if c.CreateTask(installed) != nil {
		t.Error("installed resources need no task")
	}

	cfg := bundleResource(t, "file:/e.cfg", nil)
	cfg.Type = resource.TypeConfig
	if c.CreateTask(cfg) != nil {
		t.Error("only bundles are handled")
	}
}
