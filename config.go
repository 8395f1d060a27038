package tbl

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"pkt.systems/tbl/internal/netutil"
)

const (
	// DefaultAddr is the bind address template when nothing else is
	// configured. The port is a base: the server scans upward from it for
	// the first free port.
	DefaultAddr = "127.0.0.1:1234"
	// DefaultConfigFileName is the canonical config file written back by
	// tbl. JSON and TOML variants are accepted on read.
	DefaultConfigFileName = "config.yaml"
	// WebDirName is the checkout directory under the config dir that the
	// static mount serves.
	WebDirName = "web"
)

// configFileCandidates are probed in order when loading persisted
// configuration.
var configFileCandidates = []string{
	"config.yaml",
	"config.yml",
	"config.json",
	"config.toml",
}

// Config carries the effective launcher configuration, resolved once per
// startup with precedence flags > environment > config file > defaults.
// Apart from the resolved port being back-filled after allocation it is
// immutable for the life of the process.
type Config struct {
	// GitURL is the repository holding the web UI to clone and serve.
	GitURL string `yaml:"git-url,omitempty"`
	// Addr is the host:port bind template. The port is the base for
	// availability scanning.
	Addr string `yaml:"addr,omitempty"`
	// TLSCert and TLSKey point at PEM material; both must be set to enable
	// TLS.
	TLSCert string `yaml:"tls-cert,omitempty"`
	TLSKey  string `yaml:"tls-key,omitempty"`
	// BasicUser and BasicPass optionally gate privileged endpoints with
	// HTTP basic auth, in addition to the session cookie.
	BasicUser string `yaml:"basic-user,omitempty"`
	BasicPass string `yaml:"basic-pass,omitempty"`

	// OpenBrowser launches the operator's browser against the bootstrap
	// URL. Invocation-scoped, never persisted.
	OpenBrowser bool `yaml:"-"`
	// Foreground skips daemonization. Invocation-scoped.
	Foreground bool `yaml:"-"`
	// ConfigDir roots all persisted state (config file, web checkout, run
	// record). Resolved during validation when empty.
	ConfigDir string `yaml:"-"`
}

// DefaultConfigDir returns the per-user state directory,
// $TBL_CONFIG_DIR when set, otherwise <user config dir>/tbl.
func DefaultConfigDir() (string, error) {
	if dir := os.Getenv("TBL_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(base, "tbl"), nil
}

// Validate applies defaults and rejects configurations that could never
// serve. Configuration errors are fatal before any state is persisted.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if _, _, err := netutil.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("config: tls-cert and tls-key must be set together")
	}
	if (c.BasicUser == "") != (c.BasicPass == "") {
		return fmt.Errorf("config: basic-user and basic-pass must be set together")
	}
	if c.ConfigDir == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		c.ConfigDir = dir
	}
	return nil
}

// TLSEnabled reports whether both pieces of TLS material are configured.
func (c Config) TLSEnabled() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// Scheme returns the URL scheme matching the TLS setting.
func (c Config) Scheme() string {
	if c.TLSEnabled() {
		return "https"
	}
	return "http"
}

// WebRoot is the directory the static mount serves.
func (c Config) WebRoot() string {
	return filepath.Join(c.ConfigDir, WebDirName)
}

// ConfigFilePath returns the canonical config file location.
func (c Config) ConfigFilePath() string {
	return filepath.Join(c.ConfigDir, DefaultConfigFileName)
}

// FindConfigFile returns the first persisted config file present under
// dir, or "" when none exists.
func FindConfigFile(dir string) string {
	for _, name := range configFileCandidates {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// SaveConfig persists cfg in the canonical format. Only the durable fields
// are written; invocation-scoped settings never land on disk.
func SaveConfig(cfg Config) error {
	if err := os.MkdirAll(cfg.ConfigDir, 0o755); err != nil {
		return fmt.Errorf("create config dir %s: %w", cfg.ConfigDir, err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := cfg.ConfigFilePath()
	tmp, err := os.CreateTemp(cfg.ConfigDir, DefaultConfigFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close config: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}
