package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// AuthMethod selects how the client authenticates.
type AuthMethod string

const (
	AuthMethodPassword AuthMethod = "password"
	AuthMethodKey      AuthMethod = "key"
)

// Config describes one SFTP endpoint.
type Config struct {
	Host       string     `yaml:"host" validate:"required"`
	Port       int        `yaml:"port" validate:"min=1,max=65535"`
	User       string     `yaml:"user" validate:"required"`
	AuthMethod AuthMethod `yaml:"auth_method" validate:"oneof=password key"`

	Password             string `yaml:"password" validate:"required_if=AuthMethod password"`
	PrivateKeyPath       string `yaml:"private_key_path"`
	PrivateKeyPassphrase string `yaml:"private_key_passphrase"`

	// With StrictHostKeyChecking, hosts missing from KnownHostsPath are
	// rejected. Without it any host key is accepted.
	KnownHostsPath        string `yaml:"known_hosts_path"`
	StrictHostKeyChecking bool   `yaml:"strict_host_key_checking"`

	ConnectionTimeout time.Duration `yaml:"connection_timeout" validate:"gt=0"`
}

// DefaultConfig returns a key-authenticated config for user@host with strict
// host key checking.
func DefaultConfig(host string, user string) *Config {
	c := &Config{Host: host, User: user, StrictHostKeyChecking: true}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset fields from the usual ~/.ssh locations.
func (c *Config) ApplyDefaults() {
	home := os.Getenv("HOME")
	if c.Port == 0 {
		c.Port = 22
	}
	if c.AuthMethod == "" {
		c.AuthMethod = AuthMethodKey
	}
	if c.AuthMethod == AuthMethodKey && c.PrivateKeyPath == "" {
		c.PrivateKeyPath = defaultKey(home)
	}
	if c.KnownHostsPath == "" {
		c.KnownHostsPath = filepath.Join(home, ".ssh", "known_hosts")
	}
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = 30 * time.Second
	}
}

func defaultKey(home string) string {
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		path := filepath.Join(home, ".ssh", name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		return name
	})
	return v
}()

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		fe := fieldErrs[0]
		switch fe.Tag() {
		case "required":
			return fmt.Errorf("%s is required", fe.Field())
		case "required_if":
			return fmt.Errorf("%s is required for %s authentication", fe.Field(), c.AuthMethod)
		case "min", "max":
			return fmt.Errorf("invalid %s: %v", fe.Field(), fe.Value())
		case "oneof":
			return fmt.Errorf("unsupported %s: %v", fe.Field(), fe.Value())
		case "gt":
			return fmt.Errorf("%s must be positive", fe.Field())
		default:
			return fmt.Errorf("invalid %s", fe.Field())
		}
	}

	if c.AuthMethod == AuthMethodKey {
		if c.PrivateKeyPath == "" {
			return fmt.Errorf("private_key_path is required and no default key was found")
		}
		if _, err := os.Stat(c.PrivateKeyPath); err != nil {
			return fmt.Errorf("private key file not found: %s", c.PrivateKeyPath)
		}
	}
	return nil
}

// BuildSSHClientConfig loads the credentials and host keys named by c.
func (c *Config) BuildSSHClientConfig() (*ssh.ClientConfig, error) {
	auth, err := c.authMethods()
	if err != nil {
		return nil, err
	}

	hostKeys := ssh.InsecureIgnoreHostKey()
	if c.StrictHostKeyChecking {
		hostKeys, err = knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load known_hosts: %w", err)
		}
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         c.ConnectionTimeout,
	}, nil
}

func (c *Config) authMethods() ([]ssh.AuthMethod, error) {
	switch c.AuthMethod {
	case AuthMethodPassword:
		// servers often only offer keyboard-interactive for passwords
		answer := func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = c.Password
			}
			return answers, nil
		}
		return []ssh.AuthMethod{ssh.Password(c.Password), ssh.KeyboardInteractive(answer)}, nil

	case AuthMethodKey:
		pem, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		var signer ssh.Signer
		if c.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(c.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pem)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil

	default:
		return nil, fmt.Errorf("unsupported auth method: %s", c.AuthMethod)
	}
}

// Address returns host:port.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
