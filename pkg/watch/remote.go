package watch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/BulkSecurityGeneratorProjectV2/apache--sling-org-apache-sling-installer-core/pkg/resource"
)

// RemoteFS is a remote file system reachable over a connection.
type RemoteFS interface {
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	ReadDir(dir string) ([]fs.FileInfo, error)
	Open(path string) (io.ReadCloser, error)

	// URL returns the resource URL of a remote path.
	URL(path string) string
}

// RemoteConfig configures a RemoteProvider.
type RemoteConfig struct {
	// Dirs are the polled remote directories.
	Dirs []string `yaml:"dirs"`

	// Priority is assigned to every provided resource.
	Priority int `yaml:"priority"`

	// PollInterval is the time between two listings (default 30s).
	PollInterval time.Duration `yaml:"poll_interval"`
}

type remoteEntry struct {
	size  int64
	mtime int64
}

// RemoteProvider reports the files of remote directories. A file is fetched
// when its size or modification time changed since the previous poll.
type RemoteProvider struct {
	cfg    RemoteConfig
	fs     RemoteFS
	store  DataStore
	submit func(resource.Change)
	logger zerolog.Logger

	seen map[string]remoteEntry
}

// NewRemoteProvider creates a provider polling fs.
func NewRemoteProvider(cfg RemoteConfig, fs RemoteFS, store DataStore, submit func(resource.Change), logger zerolog.Logger) *RemoteProvider {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &RemoteProvider{
		cfg:    cfg,
		fs:     fs,
		store:  store,
		submit: submit,
		logger: logger.With().Str("component", "watch-remote").Logger(),
		seen:   make(map[string]remoteEntry),
	}
}

// Run polls until ctx ends. Poll errors are logged and retried at the next
// interval.
func (p *RemoteProvider) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	defer p.fs.Disconnect()

	p.logger.Info().
		Strs("dirs", p.cfg.Dirs).
		Dur("interval", p.cfg.PollInterval).
		Msg("Polling remote install directories")

	for {
		if err := p.Poll(ctx); err != nil {
			p.logger.Warn().Err(err).Msg("Remote poll failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll lists every directory once and reports the differences to the
// previous poll. Removals are only reported when all listings succeeded.
func (p *RemoteProvider) Poll(ctx context.Context) error {
	if !p.fs.IsConnected() {
		if err := p.fs.Connect(ctx); err != nil {
			return err
		}
	}

	current := make(map[string]remoteEntry, len(p.seen))
	for _, dir := range p.cfg.Dirs {
		infos, err := p.fs.ReadDir(dir)
		if err != nil {
			_ = p.fs.Disconnect()
			return fmt.Errorf("failed to list %s: %w", dir, err)
		}

		for _, info := range infos {
			if info.IsDir() || ignored(info.Name()) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			file := path.Join(dir, info.Name())
			entry := remoteEntry{size: info.Size(), mtime: info.ModTime().Unix()}
			prev, known := p.seen[file]
			if known && prev == entry {
				current[file] = entry
				continue
			}

			if err := p.fetch(file, info); err != nil {
				p.logger.Warn().Err(err).Str("path", file).Msg("Unable to fetch remote file")
				// keep the old state so the file is fetched again next time
				if known {
					current[file] = prev
				}
				continue
			}
			current[file] = entry
		}
	}

	for file := range p.seen {
		if _, ok := current[file]; !ok {
			url := p.fs.URL(file)
			p.logger.Debug().Str("url", url).Msg("Remote file removed")
			p.submit(resource.Change{Kind: resource.ChangeRemove, URL: url})
		}
	}
	p.seen = current
	return nil
}

func (p *RemoteProvider) fetch(file string, info fs.FileInfo) error {
	url := p.fs.URL(file)

	content, err := p.fs.Open(file)
	if err != nil {
		return err
	}
	defer content.Close()

	dataFile, digest, err := p.store.Put(url, content)
	if err != nil {
		return err
	}
	if known, ok := p.store.Digest(url); ok && known == digest {
		p.logger.Debug().Str("url", url).Msg("Content unchanged")
		return nil
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
	return nil
}
