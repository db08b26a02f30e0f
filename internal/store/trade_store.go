package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/ndrandal/marketsim/internal/factory"
)

// TradeStore persists a durable trade log per instance, fed by the
// same factory.TradeEvent records the push bus fans out to live
// WebSocket clients.
type TradeStore struct {
	store *Store
}

// NewTradeStore wraps store for trade history persistence.
func NewTradeStore(store *Store) *TradeStore {
	return &TradeStore{store: store}
}

type tradeDoc struct {
	InstanceId string    `bson:"instance_id"`
	Symbol     string    `bson:"symbol"`
	Side       string    `bson:"side"`
	Quantity   int64     `bson:"quantity"`
	Price      float64   `bson:"price"`
	TraderName string    `bson:"trader_name"`
	OccurredAt time.Time `bson:"occurred_at"`
}

// Append inserts one trade record for instanceId.
func (s *TradeStore) Append(ctx context.Context, instanceId string, ev factory.TradeEvent) error {
	doc := tradeDoc{
		InstanceId: instanceId,
		Symbol:     ev.Symbol,
		Side:       string(ev.Side),
		Quantity:   ev.Quantity,
		Price:      ev.Price,
		TraderName: ev.TraderName,
		OccurredAt: ev.OccurredAt,
	}
	if _, err := s.store.db.Collection("trades").InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("append trade for %s: %w", instanceId, err)
	}
	return nil
}

// TradeFilter controls which trades History returns.
type TradeFilter struct {
	InstanceId string
	Symbol     string
	Limit      int
	From       *time.Time
	To         *time.Time
}

// History returns trades matching f, most recent first.
func (s *TradeStore) History(ctx context.Context, f TradeFilter) ([]factory.TradeEvent, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 100
	}

	filter := bson.M{"instance_id": f.InstanceId}
	if f.Symbol != "" {
		filter["symbol"] = f.Symbol
	}
	if f.From != nil || f.To != nil {
		timeFilter := bson.M{}
		if f.From != nil {
			timeFilter["$gte"] = *f.From
		}
		if f.To != nil {
			timeFilter["$lte"] = *f.To
		}
		filter["occurred_at"] = timeFilter
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "occurred_at", Value: -1}}).
		SetLimit(int64(f.Limit))
	cursor, err := s.store.db.Collection("trades").Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []tradeDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode trades: %w", err)
	}

	out := make([]factory.TradeEvent, len(docs))
	for i, d := range docs {
		out[i] = factory.TradeEvent{
			Symbol:     d.Symbol,
			Side:       d.Side[0],
			Quantity:   d.Quantity,
			Price:      d.Price,
			TraderName: d.TraderName,
			OccurredAt: d.OccurredAt,
		}
	}
	return out, nil
}
