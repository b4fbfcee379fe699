package graph

import (
	"context"
	"sync"
)

// defaultWorkers is the number of concurrent page requests during Expand.
const defaultWorkers = 4

// ExpandOptions bounds [State.Expand].
type ExpandOptions struct {
	Depth    int // Hops from the root to reveal; 0 shows only the root
	Pages    int // Pages to load for each expanded node (default 1)
	MaxNodes int // Stop revealing peers once this many nodes are shown (0 = no limit)
	Workers  int // Concurrent page requests (default 4)
}

func (o ExpandOptions) withDefaults() ExpandOptions {
	if o.Pages < 1 {
		o.Pages = 1
	}
	if o.Workers < 1 {
		o.Workers = defaultWorkers
	}
	return o
}

// Expand selects address and reveals its neighbourhood breadth-first, the
// way a user would by showing peers one level at a time. Every node closer
// than opts.Depth hops gets up to opts.Pages pages of relations loaded and
// all its peers made visible.
//
// Failing to load the root's first page is returned as an error. Failures
// for other nodes are logged and leave those nodes unexpanded.
func (s *State) Expand(ctx context.Context, address string, opts ExpandOptions) (*Node, error) {
	opts = opts.withDefaults()

	root, err := s.Init(ctx, address)
	if err != nil {
		return nil, err
	}
	s.Wait()
	if !root.Queried() {
		// The background fetch failed; retry in the foreground to surface the error.
		if err := s.PopulateNodeLinks(ctx, root); err != nil {
			return nil, err
		}
	}

	seen := map[*Node]bool{root: true}
	frontier := []*Node{root}
	for depth := 0; depth < opts.Depth && len(frontier) > 0; depth++ {
		s.loadPages(ctx, frontier, opts)
		if err := ctx.Err(); err != nil {
			return root, err
		}

		var next []*Node
	reveal:
		for _, n := range frontier {
			for _, l := range n.Links() {
				peer := l.Other(n)
				if seen[peer] {
					continue
				}
				if opts.MaxNodes > 0 && len(seen) >= opts.MaxNodes {
					break reveal
				}
				seen[peer] = true
				if err := s.SetDisplayNodeState(peer, true); err != nil {
					return root, err
				}
				next = append(next, peer)
			}
		}
		s.logger.Debug("expanded level", "depth", depth+1, "revealed", len(next))
		frontier = next
	}
	return root, nil
}

// loadPages fetches up to opts.Pages pages for each node with a pool of
// opts.Workers goroutines.
func (s *State) loadPages(ctx context.Context, nodes []*Node, opts ExpandOptions) {
	jobs := make(chan *Node)
	var wg sync.WaitGroup
	for range min(opts.Workers, len(nodes)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				s.loadNode(ctx, n, opts.Pages)
			}
		}()
	}

	for _, n := range nodes {
		select {
		case jobs <- n:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()
}

func (s *State) loadNode(ctx context.Context, n *Node, pages int) {
	loaded := 0
	if n.Queried() {
		loaded = 1
	}
	for ; loaded < pages && n.CanFetchMoreLinks(); loaded++ {
		if ctx.Err() != nil {
			return
		}
		if err := s.PopulateNodeLinks(ctx, n); err != nil {
			s.logger.Warn("expand failed", "address", n.id, "err", err)
			s.emit(Event{Kind: EventFetchFailed, Address: n.id})
			return
		}
	}
}
