// Package pkg provides the libraries behind relgraph, an explorer for the
// relations between Stellar accounts.
//
// # Overview
//
// The StellarExpert explorer records, for every account, which accounts it
// created, merged into or exchanged payments with. relgraph reads those
// relation records page by page and grows an interactive graph around an
// account: the user selects accounts, shows or hides their counter-parties
// and loads further pages on demand.
//
// # Architecture
//
//	StellarExpert relations API
//	         ↓
//	    [relations] package (paged fetch, retries, cache)
//	         ↓
//	    [graph] package (nodes, links, selection, visibility, events)
//	         ↓
//	    JSON node-link data / DOT / SVG, snapshots in [storage]
//
// # Quick Start
//
//	client := relations.NewClient(cache.NewNullCache(), 5*time.Minute)
//	st := graph.New(client)
//	defer st.Close()
//
//	root, _ := st.Expand(ctx, "GA...", graph.ExpandOptions{Depth: 1})
//	data, _ := graph.MarshalData(st.GraphData(), root)
//
// # Main Packages
//
// [graph] - The graph state: account nodes, relation links, the selected and
// hovered elements, the displayed subgraph and change events.
//
// [relations] - HTTP client for the account relations endpoint with caching
// and retries.
//
// [storage] - Snapshot stores (memory, JSON files, MongoDB).
//
// [cache] - Page cache backends (file, Redis, null) and key builders.
//
// [errors] - Error codes and input validation shared by every layer.
//
// [httputil] - Retry with exponential backoff.
//
// [observability] - Hooks for fetch, cache and HTTP tracing.
//
// [buildinfo] - Version information set at build time.
//
// # Testing
//
//	go test ./...              # All tests
//	go test -short ./...       # Skip Graphviz rendering
//	go test -run Example ./pkg/graph
//
// [graph]: https://pkg.go.dev/github.com/stellar-expert/relgraph/pkg/graph
// [relations]: https://pkg.go.dev/github.com/stellar-expert/relgraph/pkg/relations
// [storage]: https://pkg.go.dev/github.com/stellar-expert/relgraph/pkg/storage
// [cache]: https://pkg.go.dev/github.com/stellar-expert/relgraph/pkg/cache
// [errors]: https://pkg.go.dev/github.com/stellar-expert/relgraph/pkg/errors
// [httputil]: https://pkg.go.dev/github.com/stellar-expert/relgraph/pkg/httputil
// [observability]: https://pkg.go.dev/github.com/stellar-expert/relgraph/pkg/observability
// [buildinfo]: https://pkg.go.dev/github.com/stellar-expert/relgraph/pkg/buildinfo
package pkg
