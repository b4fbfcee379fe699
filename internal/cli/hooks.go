package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/stellar-expert/relgraph/pkg/observability"
)

// EnableTracing installs observability hooks that log fetches, cache lookups
// and API requests at debug level.
func (c *CLI) EnableTracing() {
	h := logHooks{logger: c.Logger}
	observability.SetFetchHooks(h)
	observability.SetCacheHooks(h)
	observability.SetHTTPHooks(h)
}

type logHooks struct {
	logger *log.Logger
}

func (h logHooks) OnFetchStart(_ context.Context, address, cursor string) {
	h.logger.Debug("fetch page", "address", address, "cursor", cursor)
}

func (h logHooks) OnFetchComplete(_ context.Context, address string, records int, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("fetch page failed", "address", address, "duration", d.Round(time.Millisecond), "err", err)
		return
	}
	h.logger.Debug("fetch page done", "address", address, "records", records, "duration", d.Round(time.Millisecond))
}

func (h logHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "type", keyType)
}

func (h logHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "type", keyType)
}

func (h logHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "type", keyType, "bytes", size)
}

func (h logHooks) OnRequest(_ context.Context, method, host, path string) {
	h.logger.Debug("http request", "method", method, "host", host, "path", path)
}

func (h logHooks) OnResponse(_ context.Context, method, host, path string, status int, d time.Duration) {
	h.logger.Debug("http response", "method", method, "host", host, "path", path, "status", status, "duration", d.Round(time.Millisecond))
}

func (h logHooks) OnError(_ context.Context, method, host, path string, err error) {
	h.logger.Debug("http error", "method", method, "host", host, "path", path, "err", err)
}
