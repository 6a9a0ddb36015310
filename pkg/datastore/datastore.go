// Package datastore keeps a private copy of resource content and remembers the
// last digest seen for every URL.
//
// Providers copy content into the store before handing a resource to the
// registry, so the registry can reopen it after the source disappeared. The
// digest cache lets a provider skip content whose digest did not change.
package datastore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// FileDataStore stores content under a directory. It is safe for concurrent use.
type FileDataStore struct {
	dir string

	mu      sync.RWMutex
	digests map[string]string
}

// New creates a data store rooted at dir, creating the directory if needed.
func New(dir string) (*FileDataStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileDataStore{dir: dir, digests: make(map[string]string)}, nil
}

// Dir returns the root directory of the store.
func (s *FileDataStore) Dir() string {
	return s.dir
}

// Put copies content into the store and returns the path of the copy and
// the hex encoded SHA-256 digest of the content.
func (s *FileDataStore) Put(url string, content io.Reader) (string, string, error) {
	f, err := os.CreateTemp(s.dir, ".put-*")
	if err != nil {
		return "", "", fmt.Errorf("failed to create data file for %s: %w", url, err)
	}
	tmp := f.Name()
	defer func() {
		_ = os.Remove(tmp)
	}()

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(f, h), content); err != nil {
		_ = f.Close()
		return "", "", fmt.Errorf("failed to copy content of %s: %w", url, err)
	}
	if err := f.Close(); err != nil {
		return "", "", fmt.Errorf("failed to close data file for %s: %w", url, err)
	}

	digest := hex.EncodeToString(h.Sum(nil))
	path := filepath.Join(s.dir, dataFileName(url, digest))
	if err := os.Rename(tmp, path); err != nil {
		return "", "", fmt.Errorf("failed to store content of %s: %w", url, err)
	}
	return path, digest, nil
}

// dataFileName derives a stable file name from URL and digest so that
// storing unchanged content twice reuses the same file.
func dataFileName(url, digest string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(url+"#"+digest)).String()
}

// UpdateDigestCache records the digest of url.
func (s *FileDataStore) UpdateDigestCache(url, digest string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.digests[url] = digest
}

// RemoveFromDigestCache forgets url.
func (s *FileDataStore) RemoveFromDigestCache(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.digests, url)
}

// Digest returns the cached digest of url.
func (s *FileDataStore) Digest(url string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.digests[url]
	return d, ok
}

// Len returns the number of cached digests.
func (s *FileDataStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.digests)
}
