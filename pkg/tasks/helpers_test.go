package tasks

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/engine"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/hostrt"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
)

// fakeRuntime is a scriptable host runtime.
type fakeRuntime struct {
	events    int64
	artifacts map[int64]hostrt.Artifact
	nextID    int64

	installErr error
	startErr   error

	installs []string
	starts   []int64
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		artifacts: map[int64]hostrt.Artifact{
			hostrt.SystemArtifactID: {ID: hostrt.SystemArtifactID, State: hostrt.StateActive},
		},
		nextID: 1,
	}
}

func (f *fakeRuntime) Install(_ context.Context, location string, content io.Reader) (int64, error) {
	if _, err := io.ReadAll(content); err != nil {
		return 0, err
	}
	f.installs = append(f.installs, location)
	if f.installErr != nil {
		return 0, f.installErr
	}
	id := f.nextID
	f.nextID++
	f.artifacts[id] = hostrt.Artifact{ID: id, Location: location, State: hostrt.StateInstalled}
	return id, nil
}

func (f *fakeRuntime) Artifact(id int64) (hostrt.Artifact, bool) {
	a, ok := f.artifacts[id]
	return a, ok
}

func (f *fakeRuntime) Start(_ context.Context, id int64) error {
	f.starts = append(f.starts, id)
	if f.startErr != nil {
		return f.startErr
	}
	a := f.artifacts[id]
	a.State = hostrt.StateActive
	f.artifacts[id] = a
	return nil
}

func (f *fakeRuntime) TotalEvents() int64 {
	return f.events
}

// fakeStartLevels records assigned start levels.
type fakeStartLevels struct {
	levels map[int64]int
}

func (f *fakeStartLevels) SetStartLevel(id int64, level int) error {
	if f.levels == nil {
		f.levels = make(map[int64]int)
	}
	f.levels[id] = level
	return nil
}

// fakeContext collects scheduled tasks.
type fakeContext struct {
	current []engine.Task
	next    []engine.Task
}

func (f *fakeContext) AddTaskToCurrentCycle(t engine.Task) { f.current = append(f.current, t) }
func (f *fakeContext) AddTaskToNextCycle(t engine.Task)    { f.next = append(f.next, t) }
func (f *fakeContext) Log(string, ...any)                  {}

var errRejected = errors.New("rejected")

func testEnv(rt *fakeRuntime) Env {
	return Env{Runtime: rt, Logger: zerolog.Nop()}
}

func bundleResource(t *testing.T, url string, dict map[string]any) *resource.Resource {
	t.Helper()
	path := filepath.Join(t.TempDir(), "content")
	if err := os.WriteFile(path, []byte("symbolic_name: a\n"), 0o600); err != nil {
		t.Fatalf("failed to write content: %v", err)
	}
	return &resource.Resource{
		URL:        url,
		Digest:     "d1",
		EntityID:   "bundle:a",
		Type:       resource.TypeBundle,
		State:      resource.StateRegistered,
		Dictionary: dict,
		DataFile:   path,
	}
}
