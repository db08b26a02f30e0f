package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ndrandal/marketsim/internal/archive"
	"github.com/ndrandal/marketsim/internal/config"
	"github.com/ndrandal/marketsim/internal/factory"
	"github.com/ndrandal/marketsim/internal/instance"
	"github.com/ndrandal/marketsim/internal/pushbus"
	"github.com/ndrandal/marketsim/internal/store"
	"github.com/ndrandal/marketsim/internal/template"
	"github.com/ndrandal/marketsim/internal/transport"
)

func main() {
	cfg := config.Load()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("market simulator starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = runtime.NumCPU()
	}

	// MongoDB
	db, err := store.NewStore(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close(context.Background())

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	exportStore := store.NewExportStore(db)
	progressStore := store.NewProgressStore(db)
	tradeStore := store.NewTradeStore(db)

	// Instance factory + controller
	fac := factory.New(template.NewProvider(), factory.Options{
		PoolSize:                poolSize,
		ReadingTemplatesTimeout: cfg.ReadingTemplatesTimeout,
		CreatingObjectsTimeout:  cfg.CreatingObjectsTimeout,
		TickFPS:                 cfg.TickFPS,
		ErrorThreshold:          cfg.MaxErrorsPerObject,
		PushBufferSize:          cfg.SubscriberBufferSize,
		RNGSeed:                 cfg.RNGSeed,
		RetentionBuckets:        cfg.RetentionBucketsPerGranularity,
	})
	ctrl := instance.New(fac)

	// Durably mirror every progress update as it is published.
	go func() {
		sub := ctrl.SubscribeProgress()
		defer ctrl.UnsubscribeProgress(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				rec, ok := ev.Payload.(factory.ProgressRecord)
				if !ok {
					continue
				}
				if err := progressStore.Save(ctx, rec); err != nil {
					log.Printf("persist progress %s: %v", rec.RequestId, err)
				}
			}
		}
	}()

	// Durably log every trade as instances finish building.
	ctrl.OnInstanceReady = func(instanceId string) {
		sub, err := ctrl.Subscribe(instanceId)
		if err != nil {
			return
		}
		go func() {
			defer ctrl.Unsubscribe(instanceId, sub)
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-sub.Events():
					if !ok {
						return
					}
					if ev.Topic != pushbus.TopicTrade {
						continue
					}
					trade, ok := ev.Payload.(factory.TradeEvent)
					if !ok {
						continue
					}
					if err := tradeStore.Append(ctx, instanceId, trade); err != nil {
						log.Printf("persist trade for %s: %v", instanceId, err)
					}
				case <-sub.Done():
					return
				}
			}
		}()
	}

	// Periodic durable export of every live instance.
	snapshotter := store.NewSnapshotter(exportStore, ctrl)
	go snapshotter.Run(ctx, 30*time.Second)

	// Progress retention sweep.
	go store.RunRetention(ctx, progressStore, time.Duration(cfg.ProgressTTLHours)*time.Hour)

	// Trade archiver (opt-in).
	if cfg.S3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
		if err != nil {
			log.Fatalf("aws config: %v", err)
		}
		s3Client := s3.NewFromConfig(awsCfg)
		archiver := archive.New(db.DB(), s3Client, cfg.S3Bucket, cfg.S3Prefix, cfg.ArchiveMaxGB, cfg.ArchiveIntervalHours, cfg.ArchiveAfterHours)
		go archiver.Run(ctx)
	}

	// HTTP/WebSocket server
	mux := http.NewServeMux()
	srv := transport.NewServer(ctrl, cfg.SubscriberBufferSize)
	srv.Register(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.HTTPPort)
	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	log.Printf("HTTP/WebSocket server listening on http://%s", addr)
	log.Printf("Health check: http://%s/healthz", addr)
	if err := httpSrv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}

	log.Println("market simulator stopped")
}
