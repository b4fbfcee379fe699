package graph

import (
	"time"

	apperrors "github.com/stellar-expert/relgraph/pkg/errors"
	"github.com/stellar-expert/relgraph/pkg/relations"
)

// Snapshot is a serializable copy of an explored graph: every registered
// node with its pagination progress, the raw link records and the selection.
// Hover highlights are not kept.
type Snapshot struct {
	ID        string             `json:"id,omitempty" bson:"_id,omitempty"`
	Network   string             `json:"network,omitempty" bson:"network,omitempty"`
	Selected  string             `json:"selected,omitempty" bson:"selected,omitempty"`
	Nodes     []NodeSnapshot     `json:"nodes" bson:"nodes"`
	Links     []relations.Record `json:"links" bson:"links"`
	CreatedAt time.Time          `json:"created_at" bson:"created_at"`
}

// NodeSnapshot is the persisted form of a Node.
type NodeSnapshot struct {
	Address   string `json:"address" bson:"address"`
	Visible   bool   `json:"visible,omitempty" bson:"visible,omitempty"`
	Cursor    string `json:"cursor,omitempty" bson:"cursor,omitempty"`
	Queried   bool   `json:"queried,omitempty" bson:"queried,omitempty"`
	Exhausted bool   `json:"exhausted,omitempty" bson:"exhausted,omitempty"`
}

// Snapshot captures the current registries and selection.
func (s *State) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Nodes:     make([]NodeSnapshot, 0, len(s.nodeOrder)),
		Links:     make([]relations.Record, 0, len(s.linkOrder)),
		CreatedAt: time.Now().UTC(),
	}
	if s.selected != nil {
		snap.Selected = s.selected.id
	}
	for _, n := range s.nodeOrder {
		snap.Nodes = append(snap.Nodes, NodeSnapshot{
			Address:   n.id,
			Visible:   n.visible,
			Cursor:    n.cursor,
			Queried:   n.queried,
			Exhausted: !n.canFetchMore,
		})
	}
	for _, l := range s.linkOrder {
		snap.Links = append(snap.Links, l.record())
	}
	return snap
}

// Restore replaces the registries and selection with the snapshot contents.
// The snapshot is checked completely before anything changes: every link
// must be well formed and reference listed nodes, and the selection must be
// a listed node. No relations are fetched.
func (s *State) Restore(snap *Snapshot) error {
	if snap == nil {
		return apperrors.New(apperrors.ErrCodeInvalidInput, "snapshot is nil")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	nodes := make(map[string]*Node, len(snap.Nodes))
	order := make([]*Node, 0, len(snap.Nodes))
	for _, ns := range snap.Nodes {
		if ns.Address == "" {
			s.mu.Unlock()
			return apperrors.New(apperrors.ErrCodeInvalidInput, "snapshot node without address")
		}
		if _, dup := nodes[ns.Address]; dup {
			continue
		}
		n := newNode(s, ns.Address)
		n.visible = ns.Visible
		n.cursor = ns.Cursor
		n.queried = ns.Queried
		n.canFetchMore = !ns.Exhausted
		nodes[n.id] = n
		order = append(order, n)
	}

	links := make(map[string]*Link, len(snap.Links))
	linkOrder := make([]*Link, 0, len(snap.Links))
	for _, rec := range snap.Links {
		if err := rec.Validate(); err != nil {
			s.mu.Unlock()
			return err
		}
		if _, dup := links[rec.ID]; dup {
			continue
		}
		source, target := nodes[rec.Accounts[0]], nodes[rec.Accounts[1]]
		if source == nil || target == nil {
			s.mu.Unlock()
			return apperrors.New(apperrors.ErrCodeUnknownNode, "snapshot link %s references an unlisted account", rec.ID)
		}
		l := newLink(rec, source, target)
		source.links[l.id] = l
		target.links[l.id] = l
		links[l.id] = l
		linkOrder = append(linkOrder, l)
	}

	var selected *Node
	if snap.Selected != "" {
		if selected = nodes[snap.Selected]; selected == nil {
			s.mu.Unlock()
			return apperrors.New(apperrors.ErrCodeNodeNotFound, "selected account %s is not in the snapshot", snap.Selected)
		}
		selected.visible = true
	}

	s.nodes, s.nodeOrder = nodes, order
	s.links, s.linkOrder = links, linkOrder
	s.selected = selected
	s.hoverNode, s.hoverLink = selected, nil
	s.data = nil
	s.updateGraphData()
	s.mu.Unlock()

	if selected != nil && s.location != nil {
		s.location.SetFragment(selected.id)
	}
	ev := Event{Kind: EventRestore}
	if selected != nil {
		ev.Address = selected.id
	}
	s.emit(ev)
	return nil
}
