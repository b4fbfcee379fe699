// Package storage persists explored graphs as snapshots.
//
// A snapshot is a [graph.Snapshot]: nodes with their pagination progress, the
// raw link records and the selected account. Saving one makes an exploration
// shareable; restoring it with [graph.State.Restore] continues where it left
// off without refetching.
//
// Implementations:
//   - [MemoryStore]: in-process, for tests and the HTTP server without a database
//   - [FileStore]: JSON files under the user config directory, for the CLI
//   - [MongoStore]: a MongoDB collection, for shared deployments
//
// Snapshot ids are UUIDs assigned on first save.
package storage

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/stellar-expert/relgraph/pkg/errors"
	"github.com/stellar-expert/relgraph/pkg/graph"
	"github.com/stellar-expert/relgraph/pkg/relations"
)

// DefaultListLimit bounds [Store.List] when the caller passes 0.
const DefaultListLimit = 50

// Store is the interface for snapshot storage backends.
type Store interface {
	// Save stores snap, assigning a new id if snap.ID is empty, and returns
	// the id. Saving with an existing id replaces that snapshot.
	Save(ctx context.Context, snap *graph.Snapshot) (string, error)

	// Load returns the snapshot with the given id.
	// Returns a SNAPSHOT_NOT_FOUND error if it does not exist.
	Load(ctx context.Context, id string) (*graph.Snapshot, error)

	// List returns up to limit summaries, newest first.
	List(ctx context.Context, limit int) ([]Summary, error)

	// Delete removes a snapshot.
	// Returns a SNAPSHOT_NOT_FOUND error if it does not exist.
	Delete(ctx context.Context, id string) error

	// Close releases backend resources.
	Close() error
}

// Summary describes a stored snapshot without its contents.
type Summary struct {
	ID        string    `json:"id" bson:"_id"`
	Network   string    `json:"network,omitempty" bson:"network,omitempty"`
	Selected  string    `json:"selected,omitempty" bson:"selected,omitempty"`
	Nodes     int       `json:"nodes" bson:"nodes"`
	Links     int       `json:"links" bson:"links"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

func summarize(s *graph.Snapshot) Summary {
	return Summary{
		ID:        s.ID,
		Network:   s.Network,
		Selected:  s.Selected,
		Nodes:     len(s.Nodes),
		Links:     len(s.Links),
		CreatedAt: s.CreatedAt,
	}
}

// prepare validates snap for saving, assigns an id and returns a copy that
// is safe to keep.
func prepare(snap *graph.Snapshot) (*graph.Snapshot, error) {
	if snap == nil {
		return nil, apperrors.New(apperrors.ErrCodeInvalidInput, "snapshot is nil")
	}
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	} else if err := checkID(snap.ID); err != nil {
		return nil, err
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	return clone(snap), nil
}

func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return apperrors.Wrap(apperrors.ErrCodeInvalidInput, err, "invalid snapshot id %q", id)
	}
	return nil
}

func notFound(id string) error {
	return apperrors.New(apperrors.ErrCodeSnapshotNotFound, "snapshot %s not found", id)
}

func clone(s *graph.Snapshot) *graph.Snapshot {
	c := *s
	c.Nodes = slices.Clone(s.Nodes)
	if c.Nodes == nil {
		c.Nodes = []graph.NodeSnapshot{}
	}
	c.Links = make([]relations.Record, len(s.Links))
	for i, r := range s.Links {
		r.Transfers = slices.Clone(r.Transfers)
		r.Accounts = slices.Clone(r.Accounts)
		c.Links[i] = r
	}
	return &c
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

func sortNewestFirst(sums []Summary) {
	slices.SortFunc(sums, func(a, b Summary) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
}
