package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/stellar-expert/relgraph/pkg/errors"
	"github.com/stellar-expert/relgraph/pkg/graph"
	"github.com/stellar-expert/relgraph/pkg/relations"
)

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FileStore)(nil)
	_ Store = (*MongoStore)(nil)
)

func testSnapshot(created time.Time) *graph.Snapshot {
	return &graph.Snapshot{
		Network:  "public",
		Selected: "GADDR1",
		Nodes: []graph.NodeSnapshot{
			{Address: "GADDR1", Visible: true, Cursor: "t1", Queried: true, Exhausted: true},
			{Address: "GADDR2"},
		},
		Links: []relations.Record{{
			ID:          "1",
			PagingToken: "t1",
			Type:        1,
			Transfers:   []int64{2, 0},
			Created:     1700000000,
			Accounts:    []string{"GADDR1", "GADDR2"},
		}},
		CreatedAt: created,
	}
}

// runStoreTests exercises the Store contract against one backend.
func runStoreTests(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("SaveLoad", func(t *testing.T) {
		snap := testSnapshot(base)
		id, err := s.Save(ctx, snap)
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		if id == "" || snap.ID != id {
			t.Fatalf("Save should assign the id, got %q / %q", id, snap.ID)
		}

		got, err := s.Load(ctx, id)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if got.Selected != "GADDR1" || len(got.Nodes) != 2 || len(got.Links) != 1 {
			t.Errorf("loaded %+v", got)
		}
		if got.Links[0].Accounts[1] != "GADDR2" || !got.Nodes[0].Exhausted {
			t.Error("snapshot contents not preserved")
		}
		if !got.CreatedAt.Equal(base) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
		}

		// Loaded snapshots restore into a state.
		st := graph.New(graph.FetcherFunc(func(context.Context, string, int, string) (*relations.Page, error) {
			return &relations.Page{Records: []relations.Record{}}, nil
		}))
		defer st.Close()
		if err := st.Restore(got); err != nil {
			t.Fatalf("Restore: %v", err)
		}
		if len(st.GraphData().Nodes) != 1 {
			t.Error("restored graph should show the selection")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		snap := testSnapshot(base)
		id, err := s.Save(ctx, snap)
		if err != nil {
			t.Fatal(err)
		}
		snap.Selected = "GADDR2"
		if again, err := s.Save(ctx, snap); err != nil || again != id {
			t.Fatalf("re-save = %q, %v", again, err)
		}
		got, err := s.Load(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if got.Selected != "GADDR2" {
			t.Errorf("Selected = %s, want GADDR2", got.Selected)
		}
	})

	t.Run("List", func(t *testing.T) {
		var ids []string
		for i := range 3 {
			id, err := s.Save(ctx, testSnapshot(base.Add(time.Duration(i+1)*time.Hour)))
			if err != nil {
				t.Fatal(err)
			}
			ids = append(ids, id)
		}

		sums, err := s.List(ctx, 2)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(sums) != 2 {
			t.Fatalf("List returned %d, want 2", len(sums))
		}
		if sums[0].ID != ids[2] || sums[1].ID != ids[1] {
			t.Errorf("List order = %s, %s; want newest first", sums[0].ID, sums[1].ID)
		}
		if sums[0].Nodes != 2 || sums[0].Links != 1 || sums[0].Selected != "GADDR1" {
			t.Errorf("summary = %+v", sums[0])
		}
	})

	t.Run("Delete", func(t *testing.T) {
		id, err := s.Save(ctx, testSnapshot(base))
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Delete(ctx, id); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Load(ctx, id); !apperrors.Is(err, apperrors.ErrCodeSnapshotNotFound) {
			t.Errorf("Load after Delete: %v", err)
		}
		if err := s.Delete(ctx, id); !apperrors.Is(err, apperrors.ErrCodeSnapshotNotFound) {
			t.Errorf("second Delete: %v", err)
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		if _, err := s.Save(ctx, nil); !apperrors.Is(err, apperrors.ErrCodeInvalidInput) {
			t.Errorf("Save(nil): %v", err)
		}
		bad := testSnapshot(base)
		bad.ID = "../../etc/passwd"
		if _, err := s.Save(ctx, bad); !apperrors.Is(err, apperrors.ErrCodeInvalidInput) {
			t.Errorf("Save with bad id: %v", err)
		}
		if _, err := s.Load(ctx, "00000000-0000-0000-0000-000000000000"); !apperrors.Is(err, apperrors.ErrCodeSnapshotNotFound) {
			t.Errorf("Load unknown: %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	runStoreTests(t, s)
}

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	snap := testSnapshot(time.Now())
	id, err := s.Save(ctx, snap)
	if err != nil {
		t.Fatal(err)
	}
	snap.Nodes[0].Address = "mutated"
	snap.Links[0].Accounts[0] = "mutated"

	got, _ := s.Load(ctx, id)
	if got.Nodes[0].Address != "GADDR1" || got.Links[0].Accounts[0] != "GADDR1" {
		t.Error("store should keep its own copy")
	}
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	defer s.Close()
	runStoreTests(t, s)

	// Stray files are ignored by List.
	if err := os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := s.List(context.Background(), 0); err != nil {
		t.Errorf("List with stray files: %v", err)
	}
	if _, err := s.Load(context.Background(), "../escape"); !apperrors.Is(err, apperrors.ErrCodeSnapshotNotFound) {
		t.Errorf("Load with path id: %v", err)
	}
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("RELGRAPH_TEST_MONGO")
	if uri == "" {
		t.Skip("RELGRAPH_TEST_MONGO not set, skipping mongo test")
	}

	ctx := context.Background()
	s, err := NewMongoStore(ctx, MongoConfig{URI: uri, Database: "relgraph_test_" + time.Now().Format("150405")})
	if err != nil {
		t.Fatalf("NewMongoStore: %v", err)
	}
	defer func() {
		s.coll.Database().Drop(ctx)
		s.Close()
	}()
	runStoreTests(t, s)
}
