package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/guidely/guidely-api/internal/models"
)

// LegacyMirror keeps the pre-migration MongoDB limits documents in step
// with the SQLite ledger. Writes are best-effort: the ledger remains the
// authority for gating, so a failed mirror write is logged by the caller
// and never blocks a request.
type LegacyMirror interface {
	IncrementGuide(ctx context.Context, userEmail string, bucket models.ModelBucket) error
	SetLastExport(ctx context.Context, userEmail string, at time.Time) error
	Close(ctx context.Context) error
}

// MongoMirror implements LegacyMirror against the original document store.
type MongoMirror struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoMirror connects to the legacy MongoDB instance.
func NewMongoMirror(ctx context.Context, uri, database string) (*MongoMirror, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to legacy store: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping legacy store: %w", err)
	}

	return &MongoMirror{
		client:     client,
		collection: client.Database(database).Collection("user_limits"),
	}, nil
}

// IncrementGuide bumps the per-bucket lifetime counter in the legacy
// document with an atomic $inc upsert, matching what the old backend did.
func (m *MongoMirror) IncrementGuide(ctx context.Context, userEmail string, bucket models.ModelBucket) error {
	_, err := m.collection.UpdateOne(ctx,
		bson.M{"_id": userEmail},
		bson.M{
			"$inc": bson.M{"guides." + string(bucket): 1},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// SetLastExport records the export timestamp in the legacy document.
func (m *MongoMirror) SetLastExport(ctx context.Context, userEmail string, at time.Time) error {
	_, err := m.collection.UpdateOne(ctx,
		bson.M{"_id": userEmail},
		bson.M{"$set": bson.M{
			"last_export": at.UTC(),
			"updated_at":  time.Now().UTC(),
		}},
		options.Update().SetUpsert(true),
	)
	return err
}

// Close disconnects from the legacy store.
func (m *MongoMirror) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// NoopMirror is used when no legacy store is configured.
type NoopMirror struct{}

func (NoopMirror) IncrementGuide(context.Context, string, models.ModelBucket) error { return nil }
func (NoopMirror) SetLastExport(context.Context, string, time.Time) error           { return nil }
func (NoopMirror) Close(context.Context) error                                      { return nil }
