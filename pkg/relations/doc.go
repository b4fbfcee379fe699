// Package relations is the HTTP client for the explorer's account relations API.
//
// # Overview
//
// The relations endpoint returns, for one Stellar account, a paginated list of
// the accounts it is related to: who created it, where it was merged into, and
// how many payments flowed in each direction.
//
//	client := relations.NewClient(cache.NewNullCache(), 5*time.Minute,
//	    relations.WithNetwork("public"))
//	page, err := client.FetchRelations(ctx, address, 50, "")
//	for _, r := range page.Records {
//	    peer, _ := r.Other(address)
//	    fmt.Println(peer, r.Type, r.Transfers)
//	}
//	next, err := client.FetchRelations(ctx, address, 50, page.LastCursor())
//
// # Wire Format
//
// Pages use the HAL envelope of the explorer API:
//
//	{
//	  "_embedded": {"records": [{
//	    "id": "...", "paging_token": "...", "type": 65537,
//	    "transfers": [3, 0], "created": 1600000000,
//	    "accounts": ["GA...", "GB..."]
//	  }]},
//	  "_links": {"next": {"href": "...?cursor=..."}}
//	}
//
// A page shorter than the requested limit is the last one.
//
// # Errors
//
// Every record is validated before the page is returned; a malformed record
// fails the whole page with an INVALID_RECORD error so callers never see
// partially decoded data. Transport failures and 5xx responses are retried
// with backoff inside the client; 404 maps to [ErrNotFound], 429 to
// [errors.RateLimitedError].
//
// # Caching
//
// Validated pages are cached through [cache.Cache] under
// [cache.Keyer.RelationsKey] for the configured TTL.
//
// [errors.RateLimitedError]: github.com/stellar-expert/relgraph/pkg/errors.RateLimitedError
// [cache.Cache]: github.com/stellar-expert/relgraph/pkg/cache.Cache
// [cache.Keyer.RelationsKey]: github.com/stellar-expert/relgraph/pkg/cache.Keyer
package relations
