package relations

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/stellar-expert/relgraph/pkg/buildinfo"
	"github.com/stellar-expert/relgraph/pkg/cache"
	apperrors "github.com/stellar-expert/relgraph/pkg/errors"
	"github.com/stellar-expert/relgraph/pkg/httputil"
	"github.com/stellar-expert/relgraph/pkg/observability"
)

const (
	// DefaultBaseURL is the public explorer API.
	DefaultBaseURL = "https://api.stellar.expert"

	// DefaultPageSize is the number of relations requested per page.
	DefaultPageSize = 50

	httpTimeout = 10 * time.Second
)

var (
	// ErrNotFound is returned when the account is unknown to the API.
	ErrNotFound = apperrors.New(apperrors.ErrCodeNotFound, "resource not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = apperrors.New(apperrors.ErrCodeNetwork, "network error")
)

// Client fetches relation pages with caching and automatic retries.
// All methods are safe for concurrent use.
type Client struct {
	http    *http.Client
	cache   cache.Cache
	keyer   cache.Keyer
	ttl     time.Duration
	headers map[string]string
	retry   httputil.Policy
	refresh bool

	baseURL string
	network string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API root (no trailing slash).
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

// WithNetwork selects "public" (default) or "testnet".
func WithNetwork(n string) Option { return func(c *Client) { c.network = n } }

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithKeyer replaces the default cache keyer.
func WithKeyer(k cache.Keyer) Option { return func(c *Client) { c.keyer = k } }

// WithRefresh bypasses cache reads; fresh pages are still written back.
func WithRefresh(refresh bool) Option { return func(c *Client) { c.refresh = refresh } }

// WithRetryPolicy overrides [httputil.DefaultPolicy].
func WithRetryPolicy(p httputil.Policy) Option { return func(c *Client) { c.retry = p } }

// NewClient creates a relations client with the given cache backend.
//
// Parameters:
//   - backend: cache for validated pages (use cache.NewNullCache() for none)
//   - cacheTTL: how long pages are cached; recent pages change as new payments
//     arrive, so minutes rather than hours are typical
func NewClient(backend cache.Cache, cacheTTL time.Duration, opts ...Option) *Client {
	if backend == nil {
		backend = cache.NewNullCache()
	}
	c := &Client{
		http:    &http.Client{Timeout: httpTimeout},
		cache:   backend,
		keyer:   cache.NewDefaultKeyer(),
		ttl:     cacheTTL,
		headers: map[string]string{"User-Agent": buildinfo.UserAgent(), "Accept": "application/json"},
		retry:   httputil.DefaultPolicy,
		baseURL: DefaultBaseURL,
		network: apperrors.NetworkPublic,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Network returns the network the client queries.
func (c *Client) Network() string { return c.network }

// cached retrieves v from cache or executes fetch and caches the result.
func (c *Client) cached(ctx context.Context, key string, v any, fetch func() error) error {
	hooks := observability.Cache()
	if !c.refresh {
		if data, ok, _ := c.cache.Get(ctx, key); ok {
			if json.Unmarshal(data, v) == nil {
				hooks.OnCacheHit(ctx, "relations")
				return nil
			}
		}
		hooks.OnCacheMiss(ctx, "relations")
	}

	if err := httputil.Retry(ctx, c.retry, fetch); err != nil {
		return err
	}

	if data, err := json.Marshal(v); err == nil {
		if c.cache.Set(ctx, key, data, c.ttl) == nil {
			hooks.OnCacheSet(ctx, "relations", len(data))
		}
	}
	return nil
}

// getJSON performs a GET and decodes the JSON body into v.
// Undecodable bodies are reported as INVALID_RECORD.
func (c *Client) getJSON(ctx context.Context, rawURL string, v any) error {
	body, err := c.doRequest(ctx, rawURL)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInvalidRecord, err, "decode response from %s", rawURL)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	hooks := observability.HTTP()
	host, path := req.URL.Host, req.URL.Path
	hooks.OnRequest(ctx, req.Method, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, host, path, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, httputil.Retryable(fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	hooks.OnResponse(ctx, req.Method, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func checkStatus(resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		retryAfter, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		return &httputil.RetryableError{
			Err:   &apperrors.RateLimitedError{RetryAfter: retryAfter},
			After: time.Duration(retryAfter) * time.Second,
		}
	case code >= 500:
		return httputil.Retryable(fmt.Errorf("%w: status %d", ErrNetwork, code))
	default:
		return fmt.Errorf("%w: status %d", ErrNetwork, code)
	}
}

func (c *Client) relationsURL(address string, limit int, cursor string) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("order", "desc")
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return fmt.Sprintf("%s/explorer/%s/account/%s/relations?%s",
		c.baseURL, url.PathEscape(c.network), url.PathEscape(address), q.Encode())
}
