// Package config loads relgraph settings from a TOML file.
//
// The default location is $XDG_CONFIG_HOME/relgraph/config.toml
// (~/.config/relgraph/config.toml on most systems). A missing file is not an
// error; every setting has a default.
//
//	[api]
//	base_url = "https://api.stellar.expert"
//	network = "public"
//	page_size = 50
//	timeout = "10s"
//
//	[cache]
//	ttl = "5m"
//	redis_addr = ""          # shared page cache; file cache when empty
//	namespace = ""           # key prefix for deployments sharing one Redis
//
//	[server]
//	addr = ":8080"
//	fetch_interval = "1s"    # "fetch more" token bucket per session
//	fetch_burst = 3
//	session_ttl = "30m"      # idle sessions are closed; "0s" keeps them
//
//	[storage]
//	mongo_uri = ""           # snapshot store; files under the config dir when empty
//	database = "relgraph"
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	apperrors "github.com/stellar-expert/relgraph/pkg/errors"
	"github.com/stellar-expert/relgraph/pkg/relations"
)

const appName = "relgraph"

// Config is the complete file configuration.
type Config struct {
	API     APIConfig     `toml:"api"`
	Cache   CacheConfig   `toml:"cache"`
	Server  ServerConfig  `toml:"server"`
	Storage StorageConfig `toml:"storage"`
}

// APIConfig selects the relations API.
type APIConfig struct {
	BaseURL  string   `toml:"base_url"`
	Network  string   `toml:"network"`
	PageSize int      `toml:"page_size"`
	Timeout  Duration `toml:"timeout"`
}

// CacheConfig controls relation page caching.
type CacheConfig struct {
	Dir       string   `toml:"dir,omitempty"`
	TTL       Duration `toml:"ttl"`
	RedisAddr string   `toml:"redis_addr,omitempty"`
	Namespace string   `toml:"namespace,omitempty"`
}

// ServerConfig configures `relgraph serve`.
type ServerConfig struct {
	Addr          string   `toml:"addr"`
	FetchInterval Duration `toml:"fetch_interval"`
	FetchBurst    int      `toml:"fetch_burst"`
	SessionTTL    Duration `toml:"session_ttl"`
}

// StorageConfig selects the snapshot store.
type StorageConfig struct {
	MongoURI string `toml:"mongo_uri,omitempty"`
	Database string `toml:"database"`
	Dir      string `toml:"dir,omitempty"`
}

// Duration is a time.Duration written as a Go duration string ("5m").
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:  relations.DefaultBaseURL,
			Network:  apperrors.NetworkPublic,
			PageSize: relations.DefaultPageSize,
			Timeout:  Duration{10 * time.Second},
		},
		Cache: CacheConfig{
			TTL: Duration{5 * time.Minute},
		},
		Server: ServerConfig{
			Addr:          ":8080",
			FetchInterval: Duration{time.Second},
			FetchBurst:    3,
			SessionTTL:    Duration{30 * time.Minute},
		},
		Storage: StorageConfig{
			Database: appName,
		},
	}
}

// Path returns the default config file location.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get config dir: %w", err)
	}
	return filepath.Join(dir, appName, "config.toml"), nil
}

// Load reads the file at path (the default location if empty) over the
// defaults and validates the result. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		p, err := Path()
		if err != nil {
			return cfg, err
		}
		path = p
	}

	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, apperrors.Wrap(apperrors.ErrCodeInvalidInput, err, "parse config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, apperrors.New(apperrors.ErrCodeInvalidInput, "unknown config key %q in %s", undecoded[0].String(), path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if err := apperrors.ValidateURL(c.API.BaseURL); err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if err := apperrors.ValidateNetwork(c.API.Network); err != nil {
		return fmt.Errorf("api.network: %w", err)
	}
	if err := apperrors.ValidatePageSize(c.API.PageSize); err != nil {
		return fmt.Errorf("api.page_size: %w", err)
	}
	if c.API.Timeout.Duration <= 0 {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "api.timeout must be positive")
	}
	if c.Cache.TTL.Duration < 0 {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "cache.ttl must not be negative")
	}
	if c.Server.FetchInterval.Duration <= 0 || c.Server.FetchBurst < 1 {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "server.fetch_interval and server.fetch_burst must be positive")
	}
	if c.Server.SessionTTL.Duration < 0 {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "server.session_ttl must not be negative")
	}
	return nil
}
