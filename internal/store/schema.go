package store

import (
	"context"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// EnsureIndexes creates idempotent indexes on all collections.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	type idx struct {
		collection string
		model      mongo.IndexModel
	}

	indexes := []idx{
		{
			collection: "exports",
			model: mongo.IndexModel{
				Keys:    bson.D{{Key: "instance_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		{
			collection: "progress",
			model: mongo.IndexModel{
				Keys:    bson.D{{Key: "request_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		{
			collection: "progress",
			model: mongo.IndexModel{
				Keys: bson.D{{Key: "completed_at", Value: 1}},
			},
		},
		{
			collection: "trades",
			model: mongo.IndexModel{
				Keys: bson.D{
					{Key: "instance_id", Value: 1},
					{Key: "symbol", Value: 1},
					{Key: "occurred_at", Value: -1},
				},
			},
		},
	}

	for _, i := range indexes {
		_, err := db.Collection(i.collection).Indexes().CreateOne(ctx, i.model)
		if err != nil {
			return fmt.Errorf("create index on %s: %w", i.collection, err)
		}
	}

	log.Println("MongoDB indexes ensured")
	return nil
}
