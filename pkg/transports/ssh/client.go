package ssh

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// TransportError wraps a failed SFTP operation. Temporary errors are worth
// retrying after a reconnect.
type TransportError struct {
	Op          string
	Err         error
	IsTemporary bool
	IsAuthError bool
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// Temporary reports whether the operation may succeed on a retry.
func (e *TransportError) Temporary() bool { return e.IsTemporary }

// ConnectionInfo describes the current connection.
type ConnectionInfo struct {
	Host        string
	Port        int
	User        string
	Connected   bool
	ConnectedAt time.Time
}

// Client reads files from a remote host over SFTP. It holds one SSH
// connection; after a failed read the caller disconnects and connects again.
type Client struct {
	config *Config
	logger zerolog.Logger

	mu          sync.RWMutex
	ssh         *ssh.Client
	sftp        *sftp.Client
	connectedAt time.Time
}

// NewClient creates a client for config.
func NewClient(config *Config, logger zerolog.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Client{
		config: config,
		logger: logger.With().Str("component", "sftp").Str("host", config.Host).Logger(),
	}, nil
}

// Connect establishes the SSH connection and opens the SFTP session.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sftp != nil {
		return nil
	}

	clientConfig, err := c.config.BuildSSHClientConfig()
	if err != nil {
		return &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}

	address := c.config.Address()
	c.logger.Debug().Str("address", address).Msg("Establishing SSH connection")

	// ssh.Dial does not take a context
	type result struct {
		client *ssh.Client
		err    error
	}
	done := make(chan result, 1)
	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		done <- result{client, err}
	}()

	var client *ssh.Client
	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.client != nil {
				_ = r.client.Close()
			}
		}()
		return &TransportError{Op: "connect", Err: ctx.Err(), IsTemporary: true}
	case r := <-done:
		if r.err != nil {
			return &TransportError{Op: "connect", Err: r.err, IsTemporary: true}
		}
		client = r.client
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		_ = client.Close()
		return &TransportError{
			Op:          "sftp-init",
			Err:         fmt.Errorf("failed to create SFTP client: %w", err),
			IsTemporary: true,
		}
	}

	c.ssh = client
	c.sftp = sftpClient
	c.connectedAt = time.Now()
	c.logger.Info().Str("address", address).Msg("SFTP session established")
	return nil
}

// Disconnect closes the session. It is safe to call when not connected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ssh == nil {
		return nil
	}

	c.logger.Debug().Msg("Closing SSH connection")
	if c.sftp != nil {
		_ = c.sftp.Close()
	}
	err := c.ssh.Close()
	c.ssh = nil
	c.sftp = nil

	if err != nil {
		return &TransportError{Op: "disconnect", Err: err}
	}
	return nil
}

// IsConnected reports whether a session is open.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sftp != nil
}

func (c *Client) session(op string) (*sftp.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sftp == nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("not connected")}
	}
	return c.sftp, nil
}

// ReadDir lists a remote directory.
func (c *Client) ReadDir(dir string) ([]fs.FileInfo, error) {
	s, err := c.session("readdir")
	if err != nil {
		return nil, err
	}
	infos, err := s.ReadDir(dir)
	if err != nil {
		return nil, &TransportError{Op: "readdir", Err: err, IsTemporary: true}
	}
	return infos, nil
}

// Open opens a remote file for reading.
func (c *Client) Open(path string) (io.ReadCloser, error) {
	s, err := c.session("open")
	if err != nil {
		return nil, err
	}
	f, err := s.Open(path)
	if err != nil {
		return nil, &TransportError{Op: "open", Err: err, IsTemporary: true}
	}
	return f, nil
}

// URL returns the resource URL of a remote path.
func (c *Client) URL(path string) string {
	return "sftp://" + c.config.User + "@" + c.config.Address() + path
}

// Info returns the connection details.
func (c *Client) Info() ConnectionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConnectionInfo{
		Host:        c.config.Host,
		Port:        c.config.Port,
		User:        c.config.User,
		Connected:   c.sftp != nil,
		ConnectedAt: c.connectedAt,
	}
}
