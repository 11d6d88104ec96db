// Package audit appends moderation and role decisions to a MongoDB collection.
package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const collectionName = "audit_log"

// Actions recorded in the trail.
const (
	ActionProductApproved = "product.approved"
	ActionProductRejected = "product.rejected"
	ActionProductDeleted  = "product.deleted"
	ActionRoleChanged     = "role.changed"
	ActionOrderStatus     = "order.status"
)

// Entry is one audit record.
type Entry struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Action    string    `bson:"action" json:"action"`
	EntityID  string    `bson:"entity_id" json:"entity_id"`
	ActorID   string    `bson:"actor_id" json:"actor_id"`
	Data      bson.M    `bson:"data,omitempty" json:"data,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

type Log interface {
	Record(ctx context.Context, entry *Entry) error
	List(ctx context.Context, entityID string, limit int64) ([]*Entry, error)
}

type mongoLog struct {
	collection *mongo.Collection
}

func NewMongoLog(db *mongo.Database) Log {
	return &mongoLog{collection: db.Collection(collectionName)}
}

func (l *mongoLog) Record(ctx context.Context, entry *Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if _, err := l.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// List returns the newest entries for entityID first.
func (l *mongoLog) List(ctx context.Context, entityID string, limit int64) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)

	cursor, err := l.collection.Find(ctx, bson.M{"entity_id": entityID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer cursor.Close(ctx)

	entries := []*Entry{}
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode audit log: %w", err)
	}
	return entries, nil
}

// Nop discards entries. It is used when MongoDB is not configured.
type Nop struct{}

func (Nop) Record(context.Context, *Entry) error { return nil }

func (Nop) List(context.Context, string, int64) ([]*Entry, error) { return []*Entry{}, nil }
