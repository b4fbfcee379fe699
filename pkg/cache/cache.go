// Package cache provides storage backends for relation page responses.
//
// Backends implement [Cache]:
//   - [FileCache]: one JSON file per entry, used by the CLI
//   - [RedisCache]: shared cache for multi-instance API servers
//   - [NullCache]: disables caching
//
// Keys are produced by a [Keyer] so every component agrees on the layout:
//
//	keyer := cache.NewDefaultKeyer()
//	key := keyer.RelationsKey("public", address, 50, cursor)
//	data, ok, err := backend.Get(ctx, key)
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCacheMiss is returned by helpers that require an entry to exist.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores opaque byte payloads with an optional time-to-live.
//
// Get reports (data, true, nil) on a hit and (nil, false, nil) on a miss or an
// expired entry. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Keyer generates cache keys.
type Keyer interface {
	// RelationsKey generates a key for one page of account relations.
	RelationsKey(network, address string, limit int, cursor string) string
}

// DefaultKeyer produces unscoped keys.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default key layout.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// RelationsKey returns "relations:<network>:<address>:<hash>" where the hash
// covers the paging parameters. The address stays readable so a whole account
// can be inspected in Redis with a pattern scan.
func (DefaultKeyer) RelationsKey(network, address string, limit int, cursor string) string {
	return hashKey(fmt.Sprintf("relations:%s:%s", network, address), limit, cursor)
}

// ScopedKeyer wraps a Keyer with a prefix. Deployments that share a Redis
// instance but talk to different API endpoints set cache.namespace so their
// pages never collide.
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// A nil inner keyer falls back to [DefaultKeyer].
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{inner: inner, prefix: prefix}
}

// RelationsKey generates a prefixed key for a relations page.
func (k *ScopedKeyer) RelationsKey(network, address string, limit int, cursor string) string {
	return k.prefix + k.inner.RelationsKey(network, address, limit, cursor)
}
