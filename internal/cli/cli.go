package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/stellar-expert/relgraph/internal/config"
	"github.com/stellar-expert/relgraph/pkg/cache"
	apperrors "github.com/stellar-expert/relgraph/pkg/errors"
	"github.com/stellar-expert/relgraph/pkg/graph"
	"github.com/stellar-expert/relgraph/pkg/relations"
	"github.com/stellar-expert/relgraph/pkg/storage"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "relgraph"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	cfg        config.Config
	network    string // --network override, empty keeps the config value
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		cfg:    config.Default(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// loadConfig reads the config file named by --config (or the default
// location) and applies command-line overrides.
func (c *CLI) loadConfig() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.network != "" {
		if err := apperrors.ValidateNetwork(c.network); err != nil {
			return err
		}
		cfg.API.Network = c.network
	}
	c.cfg = cfg
	return nil
}

// =============================================================================
// Factories
// =============================================================================

// newCache returns the relation page cache: Redis when cache.redis_addr is
// set, the file cache otherwise, and a no-op cache for --no-cache.
func (c *CLI) newCache(ctx context.Context, noCache bool) (cache.Cache, error) {
	if noCache {
		return cache.NewNullCache(), nil
	}
	if addr := c.cfg.Cache.RedisAddr; addr != "" {
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{Addr: addr, Prefix: appName + ":"})
		if err != nil {
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		c.Logger.Debug("using redis cache", "addr", addr)
		return rc, nil
	}
	dir := c.cfg.Cache.Dir
	if dir == "" {
		d, err := cacheDir()
		if err != nil {
			return cache.NewNullCache(), nil
		}
		dir = d
	}
	return cache.NewFileCache(dir)
}

// newClient builds a relations client over the configured cache.
// The returned close function releases the cache.
func (c *CLI) newClient(ctx context.Context, noCache, refresh bool) (*relations.Client, func(), error) {
	backend, err := c.newCache(ctx, noCache)
	if err != nil {
		return nil, nil, err
	}
	client := relations.NewClient(backend, c.cfg.Cache.TTL.Duration,
		relations.WithBaseURL(c.cfg.API.BaseURL),
		relations.WithNetwork(c.cfg.API.Network),
		relations.WithHTTPClient(&http.Client{Timeout: c.cfg.API.Timeout.Duration}),
		relations.WithKeyer(c.cacheKeyer()),
		relations.WithRefresh(refresh))
	closeFn := func() {
		if err := backend.Close(); err != nil {
			c.Logger.Warn("close cache", "err", err)
		}
	}
	return client, closeFn, nil
}

// cacheKeyer scopes page keys by cache.namespace when it is set.
func (c *CLI) cacheKeyer() cache.Keyer {
	if ns := c.cfg.Cache.Namespace; ns != "" {
		return cache.NewScopedKeyer(nil, ns+":")
	}
	return cache.NewDefaultKeyer()
}

// newState creates a graph state bound to fetcher with the configured page size.
func (c *CLI) newState(fetcher graph.Fetcher, loc graph.Location) *graph.State {
	opts := []graph.Option{
		graph.WithPageSize(c.cfg.API.PageSize),
		graph.WithLogger(c.Logger),
	}
	if loc != nil {
		opts = append(opts, graph.WithLocation(loc))
	}
	return graph.New(fetcher, opts...)
}

// newStore opens the snapshot store: MongoDB when storage.mongo_uri is set,
// JSON files otherwise.
func (c *CLI) newStore(ctx context.Context) (storage.Store, error) {
	if uri := c.cfg.Storage.MongoURI; uri != "" {
		st, err := storage.NewMongoStore(ctx, storage.MongoConfig{URI: uri, Database: c.cfg.Storage.Database})
		if err != nil {
			return nil, fmt.Errorf("connect snapshot store: %w", err)
		}
		return st, nil
	}
	return storage.NewFileStore(c.cfg.Storage.Dir)
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/relgraph/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// =============================================================================
// Arguments
// =============================================================================

// parseAccountArg accepts a bare account address or a shareable graph link.
func parseAccountArg(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if strings.Contains(arg, "#") {
		return graph.ParseDeepLink(arg)
	}
	if err := apperrors.ValidateAccountAddress(arg); err != nil {
		return "", err
	}
	return arg, nil
}
