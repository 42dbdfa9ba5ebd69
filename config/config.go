// Package config loads and stores unilink node configuration as YAML.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/opd-ai/unilink/noise"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultListen binds every interface on an ephemeral port.
	DefaultListen = "[::]:0"
	// DefaultHandshakeTimeout bounds preamble and handshake on new connections.
	DefaultHandshakeTimeout = 10 * time.Second
	// DefaultMaxFrameSize caps inbound frames.
	DefaultMaxFrameSize = 16 << 20
	// DefaultChannelBuffer is the per-tag inbound queue length.
	DefaultChannelBuffer = 16
)

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrUnknownRole indicates a role name or value outside the known set.
	ErrUnknownRole = errors.New("unknown role")
)

// Role is the part a node plays in the network.
type Role uint8

const (
	RoleClient Role = iota
	RoleNode
	RoleBridge
	RoleMaster
)

var roleNames = [...]string{"client", "node", "bridge", "master"}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return "role(" + strconv.Itoa(int(r)) + ")"
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return int(r) < len(roleNames) }

// ParseRole converts a role name to a Role.
func ParseRole(s string) (Role, error) {
	for i, name := range roleNames {
		if strings.EqualFold(s, name) {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRole, uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Peer is a node to dial on start.
type Peer struct {
	Address string `yaml:"address"`
}

// Config holds the node configuration.
type Config struct {
	Role             Role          `yaml:"role"`
	Listen           string        `yaml:"listen"`
	KeystoreDir      string        `yaml:"keystore_dir"`
	Pattern          uint8         `yaml:"pattern"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	MaxFrameSize     uint32        `yaml:"max_frame_size"`
	ChannelBuffer    int           `yaml:"channel_buffer"`
	Peers            []Peer        `yaml:"peers,omitempty"`
}

// Default returns a client configuration with every field set.
func Default() *Config {
	return &Config{
		Role:             RoleClient,
		Listen:           DefaultListen,
		KeystoreDir:      filepath.Join(defaultDir(), "keys"),
		Pattern:          uint8(noise.PatternXXpsk3),
		HandshakeTimeout: DefaultHandshakeTimeout,
		MaxFrameSize:     DefaultMaxFrameSize,
		ChannelBuffer:    DefaultChannelBuffer,
	}
}

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".unilink"
	}
	return filepath.Join(home, ".unilink")
}

// DefaultPath returns the default config file path: ~/.unilink/config.yaml
func DefaultPath() string {
	return filepath.Join(defaultDir(), "config.yaml")
}

// Load reads the configuration at path over the defaults and validates it.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save validates c and writes it to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Validate checks every field.
func (c *Config) Validate() error {
	if !c.Role.Valid() {
		return fmt.Errorf("%w: %w: %d", ErrInvalidConfig, ErrUnknownRole, uint8(c.Role))
	}
	if err := checkHostPort(c.Listen); err != nil {
		return fmt.Errorf("%w: listen: %w", ErrInvalidConfig, err)
	}
	if c.KeystoreDir == "" {
		return fmt.Errorf("%w: keystore_dir is empty", ErrInvalidConfig)
	}
	if _, err := noise.Lookup(noise.PatternID(c.Pattern)); err != nil {
		return fmt.Errorf("%w: pattern: %w", ErrInvalidConfig, err)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: handshake_timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxFrameSize < noise.MaxMessageLen {
		return fmt.Errorf("%w: max_frame_size must be at least %d", ErrInvalidConfig, noise.MaxMessageLen)
	}
	if c.ChannelBuffer < 0 {
		return fmt.Errorf("%w: channel_buffer is negative", ErrInvalidConfig)
	}
	for i, p := range c.Peers {
		if err := checkHostPort(p.Address); err != nil {
			return fmt.Errorf("%w: peers[%d]: %w", ErrInvalidConfig, i, err)
		}
	}
	return nil
}

func checkHostPort(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return fmt.Errorf("port %q: %w", port, err)
	}
	return nil
}
