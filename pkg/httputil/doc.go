// Package httputil provides HTTP utilities for the relations API client.
//
// # Retry
//
// [Retry] re-runs an operation for transient failures. Only errors wrapped
// in [RetryableError] are retried:
//
//   - Network errors
//   - 5xx server errors
//   - 429 rate limit responses (honoring Retry-After when known)
//
// Delays grow exponentially and are capped by [Policy.MaxDelay]:
//
//	err := httputil.RetryWithBackoff(ctx, func() error {
//	    return client.fetchPage(ctx, url, &page)
//	})
//
// # Defaults
//
//   - Attempts: 3
//   - Base backoff: 1 second
//   - Max backoff: 10 seconds
//
// Callers above the HTTP client (for example the graph state) never retry on
// their own; a failed call is reported to them once all attempts are spent.
package httputil
