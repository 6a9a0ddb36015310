package datastore

import (
	"os"
	"strings"
	"sync"
	"testing"
)

func TestPut(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	path1, digest1, err := s.Put("file:/a", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	// sha256("hello")
	if digest1 != "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824" {
		t.Errorf("unexpected digest %s", digest1)
	}
	data, err := os.ReadFile(path1)
	if err != nil || string(data) != "hello" {
		t.Fatalf("stored content mismatch: %q (%v)", data, err)
	}

	path2, digest2, err := s.Put("file:/a", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("second Put() failed: %v", err)
	}
	if path1 != path2 || digest1 != digest2 {
		t.Errorf("unchanged content should reuse the data file: %s vs %s", path1, path2)
	}

	path3, digest3, err := s.Put("file:/a", strings.NewReader("changed"))
	if err != nil {
		t.Fatalf("third Put() failed: %v", err)
	}
	if path3 == path1 || digest3 == digest1 {
		t.Error("changed content must get a new data file and digest")
	}

	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 2 {
		t.Errorf("expected 2 data files and no leftovers, got %d", len(entries))
	}
}

func TestNew_RequiresDir(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestDigestCache(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.UpdateDigestCache("file:/a", "d1")
			_, _ = s.Digest("file:/a")
		}()
	}
	wg.Wait()

	if d, ok := s.Digest("file:/a"); !ok || d != "d1" {
		t.Errorf("expected d1, got %q (%v)", d, ok)
	}
	s.RemoveFromDigestCache("file:/a")
	if _, ok := s.Digest("file:/a"); ok {
		t.Error("digest should be forgotten")
	}
	if s.Len() != 0 {
		t.Errorf("expected empty cache, got %d", s.Len())
	}
}
