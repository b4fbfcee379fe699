// Package graph builds the account-relations graph of the explorer.
//
// The graph grows incrementally: selecting an account fetches one page of its
// relations, creating peer accounts and the links between them. Peers stay
// hidden until they are explicitly made visible, so the rendered subgraph is
// always a subset of everything fetched so far.
//
// # Architecture
//
//   - [State]: the aggregate root. Owns the node and link registries, the
//     selection, hover highlights and the derived [Data] view.
//   - [Node]: an account vertex with its adjacency set and pagination progress.
//   - [Link]: a relation record between two accounts. One link can carry a
//     forward and a backward relation at the same time; [Link.Relations] splits
//     it into directed [Relation] descriptors.
//   - [Fetcher]: the source of relation pages, usually a *relations.Client.
//
// # Usage
//
//	client := relations.NewClient(cache.NewNullCache(), 5*time.Minute)
//	state := graph.New(client, graph.WithLogger(logger))
//	defer state.Close()
//
//	cancel := state.Subscribe(func(ev graph.Event) {
//	    redraw(state.GraphData())
//	})
//	defer cancel()
//
//	root := state.Init(ctx, "GA...")
//	state.Wait() // first page of root's relations
//
//	for _, l := range root.Links() {
//	    peer := l.Other(root)
//	    state.SetDisplayNodeState(peer, true)
//	}
//
// # Pagination
//
// Each node walks its relations page by page through [State.PopulateNodeLinks].
// The node cursor always holds the paging token of the last applied record. A
// page shorter than the configured page size ends the stream; further calls
// return immediately without a request. A failed fetch leaves the cursor and
// fetch status untouched so the call can simply be repeated. Concurrent calls
// for the same node share one request.
//
// # Graph Data
//
// [State.GraphData] returns the visible nodes and the links whose endpoints are
// both visible. The returned pointer only changes when that membership changes,
// so views can compare it with the previous value to skip a redraw.
//
// # Events
//
// Every mutation notifies subscribers synchronously, after the state is updated
// and before the command returns. Events carry only a kind and the account that
// triggered them; listeners re-read whatever they need.
//
// # Concurrency
//
// All methods of [State], [Node] and [Link] are safe for concurrent use.
// Registries are never pruned; a State lives for one exploration session.
package graph
