package graph

import (
	"maps"
	"slices"
)

// EventKind identifies the command that changed the state.
type EventKind string

const (
	EventSelect      EventKind = "select"       // A node became the selection
	EventLinksLoaded EventKind = "links-loaded" // A page of relations was applied
	EventVisibility  EventKind = "visibility"   // A node was shown or hidden
	EventHover       EventKind = "hover"        // Hover node or link changed
	EventFetchFailed EventKind = "fetch-failed" // A background page request failed
	EventRestore     EventKind = "restore"      // State was replaced from a snapshot
)

// Event notifies subscribers that the state changed. It carries no payload
// beyond the node involved; listeners re-read the state they render.
type Event struct {
	Kind    EventKind `json:"kind"`
	Address string    `json:"address,omitempty"`
}

// Subscribe registers fn to be called after every state change and returns a
// function that removes it. fn runs on the goroutine that performed the
// change, with no internal lock held, so it may call back into the state.
func (s *State) Subscribe(fn func(Event)) (cancel func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *State) emit(ev Event) {
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, id := range slices.Sorted(maps.Keys(s.subs)) {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
