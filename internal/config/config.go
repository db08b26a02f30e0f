package config

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/ndrandal/marketsim/internal/factory"
)

// Config holds all simulator configuration.
type Config struct {
	// Server
	HTTPPort int
	Host     string

	// Database
	MongoURI string

	// Progress retention
	ProgressTTLHours int

	// Tick loop / object lifecycle
	TickFPS            int
	MaxErrorsPerObject int

	// Instance factory
	WorkerPoolSize          int
	ReadingTemplatesTimeout time.Duration
	CreatingObjectsTimeout  time.Duration
	RNGSeed                 int64

	// Time series
	RetentionBucketsPerGranularity int

	// Push bus
	SubscriberBufferSize int

	// S3 cold archival (opt-in: only active when S3Bucket is set)
	S3Bucket             string
	S3Region             string
	S3Prefix             string
	ArchiveIntervalHours int
	ArchiveAfterHours    int
	ArchiveMaxGB         int
}

func Load() *Config {
	c := &Config{}

	flag.IntVar(&c.HTTPPort, "port", envInt("MARKETSIM_PORT", 8100), "HTTP/WebSocket server port")
	flag.StringVar(&c.Host, "host", envStr("MARKETSIM_HOST", "0.0.0.0"), "Listen host")

	flag.StringVar(&c.MongoURI, "mongo-uri", envStr("MONGO_URI", "mongodb://localhost:27017/marketsim"), "MongoDB connection URI")
	flag.IntVar(&c.ProgressTTLHours, "progress-ttl", envInt("PROGRESS_TTL_HOURS", 24), "Terminal progress record retention in hours (0 = keep forever)")

	flag.IntVar(&c.TickFPS, "tick-fps", envInt("TICK_FPS", 60), "Target tick loop frequency (1-120)")
	flag.IntVar(&c.MaxErrorsPerObject, "max-errors-per-object", envInt("MAX_ERRORS_PER_OBJECT", 3), "Hook errors (cumulative, not reset on success) before an object is destroyed")

	flag.IntVar(&c.WorkerPoolSize, "worker-pool-size", envInt("WORKER_POOL_SIZE", 0), "Instance factory worker pool size (0 = CPU count)")
	flag.DurationVar(&c.ReadingTemplatesTimeout, "reading-templates-timeout", envDuration("READING_TEMPLATES_TIMEOUT", factory.DefaultReadingTemplatesTimeout), "Soft deadline for the ReadingTemplates stage")
	flag.DurationVar(&c.CreatingObjectsTimeout, "creating-objects-timeout", envDuration("CREATING_OBJECTS_TIMEOUT", factory.DefaultCreatingObjectsTimeout), "Soft deadline for the CreatingObjects stage")
	flag.Int64Var(&c.RNGSeed, "rng-seed", envInt64("RNG_SEED", 0), "PRNG seed shared by every instance's exchange (0 = random)")

	flag.IntVar(&c.RetentionBucketsPerGranularity, "retention-buckets", envInt("RETENTION_BUCKETS_PER_GRANULARITY", 5000), "Finalized buckets kept per series/granularity before the oldest is evicted")

	flag.IntVar(&c.SubscriberBufferSize, "subscriber-buffer", envInt("SUBSCRIBER_BUFFER_SIZE", 256), "Per-subscriber push bus backlog before it is dropped as lagging")

	flag.StringVar(&c.S3Bucket, "s3-bucket", envStr("S3_BUCKET", ""), "S3 bucket for trade archival (empty = disabled)")
	flag.StringVar(&c.S3Region, "s3-region", envStr("S3_REGION", "us-east-1"), "AWS region for S3")
	flag.StringVar(&c.S3Prefix, "s3-prefix", envStr("S3_PREFIX", "marketsim"), "S3 key prefix for archived trades")
	flag.IntVar(&c.ArchiveIntervalHours, "archive-interval", envInt("ARCHIVE_INTERVAL_HOURS", 6), "Hours between archive runs")
	flag.IntVar(&c.ArchiveAfterHours, "archive-after", envInt("ARCHIVE_AFTER_HOURS", 24), "Archive trades older than this many hours")
	flag.IntVar(&c.ArchiveMaxGB, "archive-max-gb", envInt("ARCHIVE_MAX_GB", 50), "Total archived size in GB before the oldest objects are rotated out")

	flag.Parse()

	return c
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
