package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/datastore"
	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
)

// recorder collects submitted changes.
type recorder struct {
	mu      sync.Mutex
	changes []resource.Change
}

func (r *recorder) submit(c resource.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) snapshot() []resource.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]resource.Change(nil), r.changes...)
}

// waitFor returns the first change of the given kind.
func (r *recorder) waitFor(t *testing.T, kind resource.ChangeKind) resource.Change {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		for _, c := range r.snapshot() {
			if c.Kind == kind {
				return c
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for a %s change", kind)
	return resource.Change{}
}

func newTestProvider(t *testing.T, dir string) (*DirectoryProvider, *recorder, *datastore.FileDataStore) {
	t.Helper()
	store, err := datastore.New(t.TempDir())
	if err != nil {
		t.Fatalf("datastore.New() failed: %v", err)
	}
	rec := &recorder{}
	p := NewDirectoryProvider(Config{Dirs: []string{dir}, Priority: 3, Debounce: 20 * time.Millisecond}, store, rec.submit, zerolog.Nop())
	return p, rec, store
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"app.yaml":  "symbolic_name: app\n",
		".hidden":   "x",
		"edit.tmp":  "x",
		"lib.yaml~": "x",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o750); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}

	p, rec, store := newTestProvider(t, dir)
	if err := p.Scan(); err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}

	changes := rec.snapshot()
	if len(changes) != 1 {
		t.Fatalf("expected one change, got %d", len(changes))
	}
	c := changes[0]
	if c.Kind != resource.ChangeAdd || c.Resource.Type != resource.TypeFile || c.Resource.Priority != 3 {
		t.Errorf("unexpected change %+v", c)
	}
	if c.Resource.URL != URL(filepath.Join(dir, "app.yaml")) {
		t.Errorf("unexpected url %s", c.Resource.URL)
	}
	data, err := os.ReadFile(c.Resource.DataFile)
	if err != nil || string(data) != "symbolic_name: app\n" {
		t.Errorf("content not stored: %q (%v)", data, err)
	}

	// unchanged content is skipped once the digest is cached
	store.UpdateDigestCache(c.Resource.URL, c.Resource.Digest)
	if err := p.Scan(); err != nil {
		t.Fatalf("second Scan() failed: %v", err)
	}
	if n := len(rec.snapshot()); n != 1 {
		t.Errorf("expected unchanged content to be skipped, got %d changes", n)
	}
}

func TestScan_MissingDir(t *testing.T) {
	p, _, _ := newTestProvider(t, filepath.Join(t.TempDir(), "missing"))
	if err := p.Scan(); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	p, rec, _ := newTestProvider(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Watch(ctx)
	}()
	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "app.yaml")
	if err := os.WriteFile(path, []byte("symbolic_name: app\n"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	added := rec.waitFor(t, resource.ChangeAdd)
	if added.Resource.URL != URL(path) || added.Resource.Digest == "" {
		t.Errorf("unexpected change %+v", added)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove file: %v", err)
	}
	removed := rec.waitFor(t, resource.ChangeRemove)
	if removed.URL != URL(path) {
		t.Errorf("unexpected removal %+v", removed)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch() did not stop")
	}
}
