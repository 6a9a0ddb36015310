// Package watch provides resources from local directories.
//
// A DirectoryProvider scans its directories once and then follows them with
// fsnotify. Created or written files are copied into the data store and
// reported as added raw file resources; removed or renamed files are
// reported as removals. Events for one file are debounced so a file that is
// still being written is reported once.
//
// A RemoteProvider polls directories on a remote file system, typically an
// SFTP server, and reports new, changed and vanished files the same way.
package watch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
)

// DataStore stores resource content and caches digests.
type DataStore interface {
	Put(url string, content io.Reader) (path, digest string, err error)
	Digest(url string) (string, bool)
}

// Config configures a DirectoryProvider.
type Config struct {
	// Dirs are the watched directories.
	Dirs []string `yaml:"dirs"`

	// Priority is assigned to every provided resource.
	Priority int `yaml:"priority"`

	// Debounce delays reporting a file until it stopped changing.
	Debounce time.Duration `yaml:"debounce"`
}

// DirectoryProvider reports the files of directories as raw resources.
type DirectoryProvider struct {
	cfg    Config
	store  DataStore
	submit func(resource.Change)
	logger zerolog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewDirectoryProvider creates a provider reporting changes to submit.
func NewDirectoryProvider(cfg Config, store DataStore, submit func(resource.Change), logger zerolog.Logger) *DirectoryProvider {
	if cfg.Debounce == 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	return &DirectoryProvider{
		cfg:     cfg,
		store:   store,
		submit:  submit,
		logger:  logger.With().Str("component", "watch").Logger(),
		pending: make(map[string]*time.Timer),
	}
}

// URL returns the resource URL of a file.
func URL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return "file:" + filepath.ToSlash(abs)
}

// Scan reports every file currently present in the directories.
func (p *DirectoryProvider) Scan() error {
	for _, dir := range p.cfg.Dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || ignored(e.Name()) {
				continue
			}
			p.report(filepath.Join(dir, e.Name()))
		}
	}
	return nil
}

// Watch follows the directories until ctx ends.
func (p *DirectoryProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range p.cfg.Dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	p.logger.Info().Strs("dirs", p.cfg.Dirs).Msg("Watching install directories")

	for {
		select {
		case <-ctx.Done():
			p.stopPending()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ignored(filepath.Base(event.Name)) {
				continue
			}
			p.handle(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			p.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (p *DirectoryProvider) handle(event fsnotify.Event) {
	p.logger.Debug().
		Str("file", event.Name).
		Str("op", event.Op.String()).
		Msg("File changed")

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		p.cancel(event.Name)
		p.submit(resource.Change{Kind: resource.ChangeRemove, URL: URL(event.Name)})
	case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
		p.schedule(event.Name)
	}
}

// schedule debounces reports for path.
func (p *DirectoryProvider) schedule(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.pending[path]; ok {
		t.Stop()
	}
	p.pending[path] = time.AfterFunc(p.cfg.Debounce, func() {
		p.mu.Lock()
		delete(p.pending, path)
		p.mu.Unlock()
		p.report(path)
	})
}

func (p *DirectoryProvider) cancel(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if t, ok := p.pending[path]; ok {
		t.Stop()
		delete(p.pending, path)
	}
}

func (p *DirectoryProvider) stopPending() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for path, t := range p.pending {
		t.Stop()
		delete(p.pending, path)
	}
}

// report stores the content of path and submits it unless the digest
// cache already knows it.
func (p *DirectoryProvider) report(path string) {
	url := URL(path)

	f, err := os.Open(path)
	if err != nil {
		p.logger.Warn().Err(err).Str("url", url).Msg("Unable to read file")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return
	}

	dataFile, digest, err := p.store.Put(url, f)
	if err != nil {
		p.logger.Warn().Err(err).Str("url", url).Msg("Unable to store file")
		return
	}
	if known, ok := p.store.Digest(url); ok && known == digest {
		p.logger.Debug().Str("url", url).Msg("Content unchanged")
		return
	}

	p.submit(resource.Change{
		Kind: resource.ChangeAdd,
		Resource: resource.InstallableResource{
			URL:      url,
			Digest:   digest,
			Type:     resource.TypeFile,
			Priority: p.cfg.Priority,
			DataFile: dataFile,
			Dictionary: map[string]any{
				"file.name":  info.Name(),
				"file.size":  info.Size(),
				"file.mtime": info.ModTime().UTC().Format(time.RFC3339),
			},
		},
	})
}

// ignored skips hidden and temporary files.
func ignored(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") || strings.HasSuffix(name, ".tmp")
}
