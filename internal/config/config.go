// Package config loads the speedtest-client configuration file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/m-lab/httpspeed/internal/kvstore"
	"github.com/m-lab/httpspeed/pkg/client"
	"github.com/m-lab/httpspeed/pkg/speedtest/spec"
	"gopkg.in/yaml.v3"
)

const (
	defaultFSPath     = "speedtest-history"
	defaultSQLitePath = "speedtest-history.sqlite3"
)

// Duration is a time.Duration that can be written in YAML either as a
// number of seconds or as a duration string ("1m30s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar")
	}
	switch value.Tag {
	case "!!int", "!!float":
		var secs float64
		if err := value.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	default:
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		if raw == "" {
			*d = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	}
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config is the client configuration.
type Config struct {
	Endpoints EndpointsConfig `yaml:"endpoints"`
	Transfer  TransferConfig  `yaml:"transfer"`
	// Timeout bounds every probe request. Zero disables it; when missing,
	// spec.DefaultTimeout is used.
	Timeout *Duration   `yaml:"timeout"`
	Store   StoreConfig `yaml:"store"`
	// DataDir, if set, is where client archival data is written.
	DataDir string `yaml:"datadir"`
}

type EndpointsConfig struct {
	Ping     string `yaml:"ping"`
	Download string `yaml:"download"`
	Upload   string `yaml:"upload"`
}

type TransferConfig struct {
	DownloadBytes int64 `yaml:"download_bytes"`
	UploadBytes   int64 `yaml:"upload_bytes"`
}

type StoreConfig struct {
	// Backend is one of the kvstore backends: fs, sqlite or memory.
	Backend string `yaml:"backend"`
	// Path is the directory (fs) or database file (sqlite).
	Path string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	var cfg Config
	cfg.setDefaults()
	return cfg
}

// LoadConfig reads, completes and validates the configuration file at path.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Finalize fills in the missing values and validates c. It must be called
// after modifying a Config returned by Default or LoadConfig.
func (c *Config) Finalize() error {
	c.setDefaults()
	return c.validate()
}

func (c *Config) setDefaults() {
	if c.Endpoints.Ping == "" {
		c.Endpoints.Ping = spec.DefaultPingURL
	}
	if c.Endpoints.Download == "" {
		c.Endpoints.Download = spec.DefaultDownloadURL
	}
	if c.Endpoints.Upload == "" {
		c.Endpoints.Upload = spec.DefaultUploadURL
	}
	if c.Transfer.DownloadBytes == 0 {
		c.Transfer.DownloadBytes = spec.DefaultDownloadBytes
	}
	if c.Transfer.UploadBytes == 0 {
		c.Transfer.UploadBytes = spec.DefaultUploadBytes
	}
	if c.Timeout == nil {
		d := Duration(spec.DefaultTimeout)
		c.Timeout = &d
	}
	if c.Store.Backend == "" {
		c.Store.Backend = kvstore.BackendFS
	}
	if c.Store.Path == "" {
		switch c.Store.Backend {
		case kvstore.BackendFS:
			c.Store.Path = defaultFSPath
		case kvstore.BackendSQLite:
			c.Store.Path = defaultSQLitePath
		}
	}
}

func (c *Config) validate() error {
	for name, raw := range map[string]string{
		"endpoints.ping":     c.Endpoints.Ping,
		"endpoints.download": c.Endpoints.Download,
		"endpoints.upload":   c.Endpoints.Upload,
	} {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%s: unsupported scheme %q", name, u.Scheme)
		}
	}
	if c.Transfer.DownloadBytes <= 0 || c.Transfer.UploadBytes <= 0 {
		return errors.New("transfer.download_bytes and upload_bytes must be > 0")
	}
	if c.Timeout.Duration() < 0 {
		return errors.New("timeout must be >= 0")
	}
	switch c.Store.Backend {
	case kvstore.BackendFS, kvstore.BackendSQLite, kvstore.BackendMemory:
	default:
		return fmt.Errorf("store.backend: unknown backend %q", c.Store.Backend)
	}
	return nil
}

// ClientConfig returns the client.Config matching c. The Emitter and the
// measurement ID are left to the caller.
func (c Config) ClientConfig() client.Config {
	return client.Config{
		PingURL:       c.Endpoints.Ping,
		DownloadURL:   c.Endpoints.Download,
		UploadURL:     c.Endpoints.Upload,
		DownloadBytes: c.Transfer.DownloadBytes,
		UploadBytes:   c.Transfer.UploadBytes,
		Timeout:       c.Timeout.Duration(),
	}
}
