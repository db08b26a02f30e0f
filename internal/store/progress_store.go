package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ndrandal/marketsim/internal/factory"
)

// ProgressStore durably mirrors factory.ProgressRecord so a caller can
// poll build progress after a process restart, and so terminal records
// survive past the in-memory factory.ProgressStore's own lifetime.
type ProgressStore struct {
	store *Store
}

// NewProgressStore wraps store for progress persistence.
func NewProgressStore(store *Store) *ProgressStore {
	return &ProgressStore{store: store}
}

type progressDoc struct {
	RequestId   string         `bson:"request_id"`
	Stage       string         `bson:"stage"`
	Percentage  int            `bson:"percentage"`
	Message     string         `bson:"message"`
	Details     map[string]any `bson:"details,omitempty"`
	StartedAt   time.Time      `bson:"started_at"`
	CompletedAt *time.Time     `bson:"completed_at,omitempty"`
	Error       *string        `bson:"error,omitempty"`
}

// Save upserts rec keyed by its request id.
func (s *ProgressStore) Save(ctx context.Context, rec factory.ProgressRecord) error {
	doc := progressDoc{
		RequestId:   rec.RequestId,
		Stage:       string(rec.Stage),
		Percentage:  rec.Percentage,
		Message:     rec.Message,
		Details:     rec.Details,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
		Error:       rec.Error,
	}
	_, err := s.store.db.Collection("progress").UpdateOne(ctx,
		bson.M{"request_id": doc.RequestId},
		bson.M{"$set": doc},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save progress %s: %w", doc.RequestId, err)
	}
	return nil
}

// PurgeOlderThan deletes terminal progress documents completed before
// cutoff, mirroring factory.ProgressStore.PurgeOlderThan for the
// durable copy.
func (s *ProgressStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.store.db.Collection("progress").DeleteMany(ctx, bson.M{
		"completed_at": bson.M{"$lt": cutoff, "$ne": nil},
	})
	if err != nil {
		return 0, fmt.Errorf("purge progress: %w", err)
	}
	return result.DeletedCount, nil
}
