package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/stellar-expert/relgraph/pkg/relations"
)

type fetchCall struct {
	address string
	limit   int
	cursor  string
}

// fakeFetcher records every request and answers with fn (empty page if nil).
type fakeFetcher struct {
	mu    sync.Mutex
	calls []fetchCall
	fn    func(ctx context.Context, call fetchCall, n int) (*relations.Page, error)
}

func (f *fakeFetcher) FetchRelations(ctx context.Context, address string, limit int, cursor string) (*relations.Page, error) {
	f.mu.Lock()
	call := fetchCall{address: address, limit: limit, cursor: cursor}
	f.calls = append(f.calls, call)
	n := len(f.calls)
	fn := f.fn
	f.mu.Unlock()

	if fn == nil {
		return &relations.Page{Records: []relations.Record{}}, nil
	}
	return fn(ctx, call, n)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) call(i int) fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

// staticFetcher serves fixed records per address in pages of the requested size.
func staticFetcher(byAddress map[string][]relations.Record) *fakeFetcher {
	return &fakeFetcher{fn: func(_ context.Context, c fetchCall, _ int) (*relations.Page, error) {
		all := byAddress[c.address]
		start := 0
		if c.cursor != "" {
			for i, r := range all {
				if r.PagingToken == c.cursor {
					start = i + 1
				}
			}
		}
		end := min(start+c.limit, len(all))
		return &relations.Page{Records: append([]relations.Record{}, all[start:end]...)}, nil
	}}
}

func rel(id, token, from, to string, typ uint32) relations.Record {
	return relations.Record{
		ID:          id,
		PagingToken: token,
		Type:        typ,
		Transfers:   []int64{2, 1},
		Created:     1700000000,
		Accounts:    []string{from, to},
	}
}

// peerRecords returns n payment records from address to distinct peers,
// numbered from offset.
func peerRecords(address string, offset, n int) []relations.Record {
	recs := make([]relations.Record, 0, n)
	for i := offset; i < offset+n; i++ {
		recs = append(recs, rel(fmt.Sprintf("%s-%d", address, i), fmt.Sprintf("t%04d", i), address, fmt.Sprintf("GPEER%04d", i), uint32(KindPayments)))
	}
	return recs
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) add(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func subscribe(s *State) *recorder {
	r := &recorder{}
	s.Subscribe(r.add)
	return r
}
