package graph

import (
	"encoding/json"
	"time"
)

// Data is the displayed subgraph: visible nodes and the links whose endpoints
// are both visible, in registration order. A Data value is never modified
// after it is published; the state replaces it when the membership changes.
type Data struct {
	Nodes []*Node
	Links []*Link
}

// updateGraphData recomputes the displayed subgraph and replaces s.data when
// its members differ. Callers must hold s.mu.
func (s *State) updateGraphData() bool {
	next := &Data{Nodes: []*Node{}, Links: []*Link{}}
	for _, n := range s.nodeOrder {
		if n.visible {
			next.Nodes = append(next.Nodes, n)
		}
	}
	for _, l := range s.linkOrder {
		if l.source.visible && l.target.visible {
			next.Links = append(next.Links, l)
		}
	}
	if s.data != nil && sameMembers(s.data, next) {
		return false
	}
	s.data = next
	return true
}

func sameMembers(a, b *Data) bool {
	if len(a.Nodes) != len(b.Nodes) || len(a.Links) != len(b.Links) {
		return false
	}
	for i := range a.Nodes {
		if a.Nodes[i] != b.Nodes[i] {
			return false
		}
	}
	for i := range a.Links {
		if a.Links[i] != b.Links[i] {
			return false
		}
	}
	return true
}

type dataJSON struct {
	Nodes []nodeJSON `json:"nodes"`
	Links []linkJSON `json:"links"`
}

type nodeJSON struct {
	ID       string `json:"id"`
	Selected bool   `json:"selected,omitempty"`
	Status   string `json:"status"`
	Links    int    `json:"links"`
}

type linkJSON struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Target    string         `json:"target"`
	Type      uint32         `json:"type"`
	Transfers [2]int64       `json:"transfers"`
	Created   time.Time      `json:"created"`
	Relations []relationJSON `json:"relations"`
}

type relationJSON struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	Kinds     string `json:"kinds"`
	Transfers int64  `json:"transfers"`
	Direction string `json:"direction"`
}

// MarshalData encodes d in the node-link JSON format consumed by
// force-directed graph widgets. selected may be nil.
//
//	{
//	  "nodes": [{"id": "GA...", "selected": true, "status": "has-more", "links": 12}],
//	  "links": [{"id": "1", "source": "GA...", "target": "GB...", "relations": [...]}]
//	}
func MarshalData(d *Data, selected *Node) ([]byte, error) {
	out := dataJSON{Nodes: []nodeJSON{}, Links: []linkJSON{}}
	if d == nil {
		return json.Marshal(out)
	}
	for _, n := range d.Nodes {
		out.Nodes = append(out.Nodes, nodeJSON{
			ID:       n.id,
			Selected: n == selected,
			Status:   n.FetchStatus().String(),
			Links:    n.LinkCount(),
		})
	}
	for _, l := range d.Links {
		lj := linkJSON{
			ID:        l.id,
			Source:    l.source.id,
			Target:    l.target.id,
			Type:      l.mask,
			Transfers: l.transfers,
			Created:   l.created,
			Relations: []relationJSON{},
		}
		for _, r := range l.Relations() {
			lj.Relations = append(lj.Relations, relationJSON{
				ID:        r.ID,
				Source:    r.Source.id,
				Target:    r.Target.id,
				Kinds:     r.Kinds.String(),
				Transfers: r.Transfers,
				Direction: string(r.Direction),
			})
		}
		out.Links = append(out.Links, lj)
	}
	return json.Marshal(out)
}
