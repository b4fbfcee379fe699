package cli

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/stellar-expert/relgraph/pkg/graph"
	"github.com/stellar-expert/relgraph/pkg/relations"
)

const (
	rootAddr  = "GAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAWHF"
	peerAAddr = "GAAQCAIBAEAQCAIBAEAQCAIBAEAQCAIBAEAQCAIBAEAQCAIBAEAQDZ7H"
	peerBAddr = "GABAEAQCAIBAEAQCAIBAEAQCAIBAEAQCAIBAEAQCAIBAEAQCAIBAEJXA"
)

// fixtureRecords: root created A and received payments back from it, B paid
// root, A paid B.
var fixtureRecords = []relations.Record{
	{
		ID: "r1", PagingToken: "1",
		Type:      uint32(graph.KindCreator) | uint32(graph.KindPayments)<<16,
		Transfers: []int64{0, 3},
		Created:   1600000000,
		Accounts:  []string{rootAddr, peerAAddr},
	},
	{
		ID: "r2", PagingToken: "2",
		Type:      uint32(graph.KindPayments),
		Transfers: []int64{5, 0},
		Created:   1600000000,
		Accounts:  []string{peerBAddr, rootAddr},
	},
	{
		ID: "r3", PagingToken: "3",
		Type:      uint32(graph.KindPayments),
		Transfers: []int64{1, 0},
		Created:   1600000000,
		Accounts:  []string{peerAAddr, peerBAddr},
	},
}

// fixtureFetcher pages through fixtureRecords in paging token order.
func fixtureFetcher() graph.Fetcher {
	return graph.FetcherFunc(func(ctx context.Context, address string, limit int, cursor string) (*relations.Page, error) {
		var recs []relations.Record
		for _, r := range fixtureRecords {
			if _, ok := r.Other(address); ok && r.PagingToken > cursor {
				recs = append(recs, r)
			}
		}
		if len(recs) > limit {
			recs = recs[:limit]
		}
		return &relations.Page{Records: recs}, nil
	})
}

func newFixtureState(t *testing.T, pageSize int) *graph.State {
	t.Helper()
	st := graph.New(fixtureFetcher(), graph.WithPageSize(pageSize), graph.WithLogger(log.New(io.Discard)))
	t.Cleanup(st.Close)
	if _, err := st.Init(context.Background(), rootAddr); err != nil {
		t.Fatal(err)
	}
	st.Wait()
	return st
}

func TestFetchRelations(t *testing.T) {
	tests := []struct {
		name     string
		opts     relationsOpts
		wantIDs  []string
		wantNext string
	}{
		{"single page", relationsOpts{limit: 1}, []string{"r1"}, "1"},
		{"all pages", relationsOpts{limit: 1, all: true}, []string{"r1", "r2"}, ""},
		{"short page", relationsOpts{limit: 5}, []string{"r1", "r2"}, ""},
		{"from cursor", relationsOpts{limit: 5, cursor: "1"}, []string{"r2"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, next, err := fetchRelations(context.Background(), fixtureFetcher(), rootAddr, tt.opts)
			if err != nil {
				t.Fatal(err)
			}
			var ids []string
			for _, r := range records {
				ids = append(ids, r.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.wantIDs, ",") {
				t.Errorf("ids = %v, want %v", ids, tt.wantIDs)
			}
			if next != tt.wantNext {
				t.Errorf("next = %q, want %q", next, tt.wantNext)
			}
		})
	}
}

func TestFetchRelationsError(t *testing.T) {
	boom := errors.New("boom")
	f := graph.FetcherFunc(func(context.Context, string, int, string) (*relations.Page, error) {
		return nil, boom
	})
	if _, _, err := fetchRelations(context.Background(), f, rootAddr, relationsOpts{limit: 10}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestRelationsTable(t *testing.T) {
	out := relationsTable(rootAddr, fixtureRecords[:2])

	for _, want := range []string{
		graph.ShortAddress(peerAAddr),
		graph.ShortAddress(peerBAddr),
		"creator",
		"payments",
		"0 / 3", // root paid nothing to A, received 3
		"0 / 5", // B is the link source: 5 payments received by root
		"2020-09-13",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("table lacks %q:\n%s", want, out)
		}
	}
}
