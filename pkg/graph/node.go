package graph

import (
	"maps"
	"slices"
	"strings"
)

// FetchStatus is the pagination progress of a node.
type FetchStatus int

const (
	StatusUnfetched FetchStatus = iota // No page applied yet
	StatusFetching                     // A page request is in flight
	StatusHasMore                      // At least one page applied, more may follow
	StatusExhausted                    // A short page ended the stream
)

func (s FetchStatus) String() string {
	switch s {
	case StatusUnfetched:
		return "unfetched"
	case StatusFetching:
		return "fetching"
	case StatusHasMore:
		return "has-more"
	case StatusExhausted:
		return "exhausted"
	}
	return "unknown"
}

// Node is an account vertex. Nodes are created by [State.AddNode] and stay
// registered for the lifetime of the state; all mutable fields are guarded by
// the owning state's lock.
type Node struct {
	id    string
	state *State

	links        map[string]*Link
	visible      bool
	cursor       string
	queried      bool
	canFetchMore bool
	fetching     bool
}

func newNode(s *State, address string) *Node {
	return &Node{
		id:           address,
		state:        s,
		links:        make(map[string]*Link),
		canFetchMore: true,
	}
}

// ID returns the account address.
func (n *Node) ID() string { return n.id }

// Links returns the node's adjacency set ordered by link id.
func (n *Node) Links() []*Link {
	n.state.mu.RLock()
	defer n.state.mu.RUnlock()
	return n.sortedLinks()
}

func (n *Node) sortedLinks() []*Link {
	return slices.SortedFunc(maps.Values(n.links), func(a, b *Link) int {
		return strings.Compare(a.id, b.id)
	})
}

// LinkCount returns the size of the adjacency set.
func (n *Node) LinkCount() int {
	n.state.mu.RLock()
	defer n.state.mu.RUnlock()
	return len(n.links)
}

// Visible reports whether the node is part of the displayed subgraph.
func (n *Node) Visible() bool {
	n.state.mu.RLock()
	defer n.state.mu.RUnlock()
	return n.visible
}

// Cursor returns the paging token of the last applied record, or "" if the
// node has not received any record yet.
func (n *Node) Cursor() string {
	n.state.mu.RLock()
	defer n.state.mu.RUnlock()
	return n.cursor
}

// Queried reports whether at least one page has been applied.
func (n *Node) Queried() bool {
	n.state.mu.RLock()
	defer n.state.mu.RUnlock()
	return n.queried
}

// CanFetchMoreLinks is false once a short page ended the relation stream.
// It is only meaningful after the node has been queried.
func (n *Node) CanFetchMoreLinks() bool {
	n.state.mu.RLock()
	defer n.state.mu.RUnlock()
	return n.canFetchMore
}

// Fetching reports whether a page request for the node is in flight.
func (n *Node) Fetching() bool {
	n.state.mu.RLock()
	defer n.state.mu.RUnlock()
	return n.fetching
}

// FetchStatus returns the node's pagination progress.
func (n *Node) FetchStatus() FetchStatus {
	n.state.mu.RLock()
	defer n.state.mu.RUnlock()
	return n.status()
}

func (n *Node) status() FetchStatus {
	switch {
	case n.fetching:
		return StatusFetching
	case !n.canFetchMore:
		return StatusExhausted
	case n.queried:
		return StatusHasMore
	}
	return StatusUnfetched
}
