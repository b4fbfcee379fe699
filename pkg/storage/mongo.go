package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/stellar-expert/relgraph/pkg/graph"
)

const (
	// DefaultDatabase is used when MongoConfig.Database is empty.
	DefaultDatabase = "relgraph"

	snapshotsCollection = "snapshots"
	disconnectTimeout   = 5 * time.Second
)

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI      string // e.g. mongodb://localhost:27017
	Database string
}

// MongoStore keeps snapshots in the "snapshots" collection, one document
// per snapshot keyed by its id.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoStore connects to MongoDB, verifies the connection and ensures the
// listing index exists.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	coll := client.Database(cfg.Database).Collection(snapshotsCollection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	if err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("create index: %w", err)
	}
	return &MongoStore{client: client, coll: coll}, nil
}

func (m *MongoStore) Save(ctx context.Context, snap *graph.Snapshot) (string, error) {
	c, err := prepare(snap)
	if err != nil {
		return "", err
	}
	_, err = m.coll.ReplaceOne(ctx, bson.M{"_id": c.ID}, c, options.Replace().SetUpsert(true))
	if err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	return c.ID, nil
}

func (m *MongoStore) Load(ctx context.Context, id string) (*graph.Snapshot, error) {
	var snap graph.Snapshot
	err := m.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&snap)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return &snap, nil
}

func (m *MongoStore) List(ctx context.Context, limit int) ([]Summary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: listLimit(limit)}},
		{{Key: "$project", Value: bson.D{
			{Key: "network", Value: 1},
			{Key: "selected", Value: 1},
			{Key: "created_at", Value: 1},
			{Key: "nodes", Value: bson.D{{Key: "$size", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$nodes", bson.A{}}}}}}},
			{Key: "links", Value: bson.D{{Key: "$size", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$links", bson.A{}}}}}}},
		}}},
	}
	cur, err := m.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	sums := []Summary{}
	if err := cur.All(ctx, &sums); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return sums, nil
}

func (m *MongoStore) Delete(ctx context.Context, id string) error {
	res, err := m.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if res.DeletedCount == 0 {
		return notFound(id)
	}
	return nil
}

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}
