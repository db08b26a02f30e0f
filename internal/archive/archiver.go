// Package archive periodically moves terminal trade history out of
// MongoDB and into cold S3 storage, gzipped NDJSON keyed by day,
// pruning the oldest archived objects once the bucket prefix grows
// past a configured size.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Archiver moves old trades from MongoDB to gzipped NDJSON objects in
// S3, deleting the oldest archived objects under prefix when the
// total archived size exceeds maxBytes.
type Archiver struct {
	db       *mongo.Database
	s3       *s3.Client
	bucket   string
	prefix   string
	maxBytes int64
	interval time.Duration
	maxAge   time.Duration
}

// New creates a new Archiver. client is an already-configured S3
// client (see cmd/marketsim for how it is built from the environment).
func New(db *mongo.Database, client *s3.Client, bucket, prefix string, maxGB, intervalHours, afterHours int) *Archiver {
	return &Archiver{
		db:       db,
		s3:       client,
		bucket:   bucket,
		prefix:   prefix,
		maxBytes: int64(maxGB) * 1 << 30,
		interval: time.Duration(intervalHours) * time.Hour,
		maxAge:   time.Duration(afterHours) * time.Hour,
	}
}

// Run starts the periodic archive loop. Blocks until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	log.Printf("trade archiver: bucket=%s prefix=%s max=%dGB interval=%v age=%v",
		a.bucket, a.prefix, a.maxBytes>>30, a.interval, a.maxAge)

	a.cycle(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cycle(ctx)
		}
	}
}

func (a *Archiver) cycle(ctx context.Context) {
	cursor, err := a.loadCursor(ctx)
	if err != nil {
		log.Printf("trade archiver: load cursor: %v", err)
		return
	}

	cutoff := time.Now().Add(-a.maxAge)
	if !cursor.Before(cutoff) {
		return
	}

	trades, err := a.queryTrades(ctx, cursor, cutoff)
	if err != nil {
		log.Printf("trade archiver: query: %v", err)
		return
	}
	if len(trades) == 0 {
		a.saveCursor(ctx, cutoff)
		return
	}

	batches := groupByDay(trades)

	days := make([]string, 0, len(batches))
	for day := range batches {
		days = append(days, day)
	}
	sort.Strings(days)

	for _, day := range days {
		batch := batches[day]
		if err := a.writeBatch(ctx, day, batch); err != nil {
			log.Printf("trade archiver: write %s: %v", day, err)
			return
		}

		if err := a.deleteBatch(ctx, batch); err != nil {
			log.Printf("trade archiver: delete %s: %v", day, err)
			return
		}

		log.Printf("trade archiver: archived %d trades for %s", len(batch), day)
	}

	a.saveCursor(ctx, cutoff)
	a.rotate(ctx)
}

// tradeDoc mirrors the MongoDB trade document written by store.TradeStore.
type tradeDoc struct {
	InstanceId string    `bson:"instance_id" json:"instanceId"`
	Symbol     string    `bson:"symbol"      json:"symbol"`
	Side       string    `bson:"side"        json:"side"`
	Quantity   int64     `bson:"quantity"    json:"quantity"`
	Price      float64   `bson:"price"       json:"price"`
	TraderName string    `bson:"trader_name" json:"traderName"`
	OccurredAt time.Time `bson:"occurred_at" json:"occurredAt"`
}

func (a *Archiver) loadCursor(ctx context.Context) (time.Time, error) {
	var doc struct {
		ValueTime time.Time `bson:"value_time"`
	}
	err := a.db.Collection("sim_state").FindOne(ctx, bson.M{"key": "archive_cursor"}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return doc.ValueTime, nil
}

func (a *Archiver) saveCursor(ctx context.Context, t time.Time) {
	_, err := a.db.Collection("sim_state").UpdateOne(ctx,
		bson.M{"key": "archive_cursor"},
		bson.M{"$set": bson.M{
			"key":        "archive_cursor",
			"value_time": t,
			"updated_at": time.Now(),
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		log.Printf("trade archiver: save cursor: %v", err)
	}
}

func (a *Archiver) queryTrades(ctx context.Context, from, to time.Time) ([]tradeDoc, error) {
	filter := bson.M{
		"occurred_at": bson.M{"$gte": from, "$lt": to},
	}
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}})

	cur, err := a.db.Collection("trades").Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find trades: %w", err)
	}
	defer cur.Close(ctx)

	var trades []tradeDoc
	if err := cur.All(ctx, &trades); err != nil {
		return nil, fmt.Errorf("decode trades: %w", err)
	}
	return trades, nil
}

func groupByDay(trades []tradeDoc) map[string][]tradeDoc {
	batches := make(map[string][]tradeDoc)
	for _, t := range trades {
		day := t.OccurredAt.UTC().Format("2006/01/02")
		batches[day] = append(batches[day], t)
	}
	return batches
}

// writeBatch uploads trades as gzipped NDJSON to
// s3://bucket/prefix/YYYY/MM/DD-<unixnano>.jsonl.gz.
func (a *Archiver) writeBatch(ctx context.Context, day string, trades []tradeDoc) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, t := range trades {
		if err := enc.Encode(t); err != nil {
			gz.Close()
			return fmt.Errorf("encode: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("gzip close: %w", err)
	}

	key := fmt.Sprintf("%s/%s-%d.jsonl.gz", a.prefix, day, time.Now().UnixNano())
	_, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/x-ndjson"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (a *Archiver) deleteBatch(ctx context.Context, trades []tradeDoc) error {
	var minTime, maxTime time.Time
	for i, t := range trades {
		if i == 0 || t.OccurredAt.Before(minTime) {
			minTime = t.OccurredAt
		}
		if i == 0 || t.OccurredAt.After(maxTime) {
			maxTime = t.OccurredAt
		}
	}

	_, err := a.db.Collection("trades").DeleteMany(ctx, bson.M{
		"occurred_at": bson.M{"$gte": minTime, "$lte": maxTime},
	})
	if err != nil {
		return fmt.Errorf("delete archived trades: %w", err)
	}
	return nil
}

// rotate deletes the oldest archived objects under prefix until the
// total object size is under maxBytes.
func (a *Archiver) rotate(ctx context.Context) {
	type entry struct {
		key  string
		size int64
	}

	var objects []entry
	var total int64

	paginator := s3.NewListObjectsV2Paginator(a.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			log.Printf("trade archiver: list objects: %v", err)
			return
		}
		for _, obj := range page.Contents {
			size := aws.ToInt64(obj.Size)
			objects = append(objects, entry{key: aws.ToString(obj.Key), size: size})
			total += size
		}
	}

	if total <= a.maxBytes {
		return
	}

	// Keys embed YYYY/MM/DD, so lexicographic order is chronological.
	sort.Slice(objects, func(i, j int) bool { return objects[i].key < objects[j].key })

	for _, obj := range objects {
		if total <= a.maxBytes {
			break
		}
		_, err := a.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(obj.key),
		})
		if err != nil {
			log.Printf("trade archiver: remove %s: %v", obj.key, err)
			continue
		}
		total -= obj.size
		log.Printf("trade archiver: rotated out %s (%d bytes)", obj.key, obj.size)
	}
}
