// Command server runs the campaign API with its background workers: the
// engagement-event consumer and the mail delivery pipeline. Tracking
// endpoints are served in-process; cmd/tracking runs them standalone.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaigner/internal/api"
	"github.com/ignite/campaigner/internal/config"
	"github.com/ignite/campaigner/internal/importer"
	"github.com/ignite/campaigner/internal/mailer"
	"github.com/ignite/campaigner/internal/pkg/logger"
	"github.com/ignite/campaigner/internal/service/campaign"
	"github.com/ignite/campaigner/internal/service/contact"
	"github.com/ignite/campaigner/internal/stats"
	"github.com/ignite/campaigner/internal/store"
	"github.com/ignite/campaigner/internal/template"
	"github.com/ignite/campaigner/internal/tracking"
)

// Store is the union of every per-package repository interface, satisfied
// by both store backends.
type Store interface {
	campaign.Repository
	contact.Repository
	importer.Repository
	stats.CampaignStore
	api.TemplateStore
}

func newStore(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		log.Println("[server] using in-memory store")
		return store.NewMemory(), nil
	case "dynamodb":
		log.Printf("[server] using DynamoDB table %s", cfg.DynamoDBTable)
		return store.NewDynamo(ctx, cfg.DynamoDBTable, cfg.S3Bucket, cfg.AWSRegion, cfg.GetAWSProfile())
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}

func newSender(ctx context.Context, cfg config.MailerConfig) (mailer.Sender, error) {
	switch cfg.Type {
	case "", "log":
		return mailer.NewLogSender(), nil
	case "ses":
		return mailer.NewSESSender(ctx, cfg.AWSRegion,
			os.Getenv("SES_ACCESS_KEY"), os.Getenv("SES_SECRET_KEY"))
	default:
		return nil, fmt.Errorf("unknown mailer type %q", cfg.Type)
	}
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := newStore(ctx, cfg.Store)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}

	sender, err := newSender(ctx, cfg.Mailer)
	if err != nil {
		log.Fatalf("Failed to initialize mailer: %v", err)
	}

	campaigns := campaign.NewService(st, sender, template.NewEngine(), campaign.Options{
		FromName:        cfg.Mailer.FromName,
		FromEmail:       cfg.Mailer.FromEmail,
		BatchSize:       cfg.Mailer.BatchSize,
		TrackingBaseURL: cfg.Tracking.BaseURL,
	})
	contacts := contact.NewService(st)
	jobs := importer.NewRunner(st, cfg.Import.ProgressEveryRows, cfg.Import.MaxFileBytes)

	// Engagement pipeline. With Redis the pixel/click handlers enqueue and
	// a worker pool drains; without it events apply in-process.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("[server] redis unreachable (%v), falling back to in-process tracking", err)
			redisClient = nil
		}
	}

	var dedup stats.DedupCache
	if cfg.Tracking.DedupBackend == "redis" && redisClient != nil {
		dedup = stats.NewRedisCache(redisClient, cfg.Tracking.DedupWindow())
	} else {
		dedup = stats.NewLRUCache(cfg.Tracking.DedupCacheSize, cfg.Tracking.DedupWindow())
	}
	aggregator := stats.NewAggregator(st, dedup, cfg.Tracking.MaxUpdateAttempts)

	var (
		publisher tracking.Publisher
		consumer  *tracking.Consumer
	)
	if redisClient != nil {
		publisher = tracking.NewRedisPublisher(redisClient, tracking.DefaultQueueKey)
		consumer = tracking.NewConsumer(redisClient, tracking.DefaultQueueKey, aggregator, cfg.Tracking.ConsumerWorkers)
		consumer.Start(ctx)
	} else {
		publisher = tracking.NewDirectPublisher(aggregator)
	}
	trackingHandler := tracking.NewHandler(publisher)

	handlers := api.NewHandlers(campaigns, contacts, st, jobs, trackingHandler)
	srv := api.NewServer(cfg.Server, handlers)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		log.Printf("[server] listening on %s", addr)
		if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[server] shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[server] shutdown: %v", err)
	}

	// Stop the consumer after the HTTP server so in-flight tracking
	// requests still enqueue, then drain.
	cancel()
	if consumer != nil {
		consumer.Stop()
	}
	log.Println("[server] stopped")
}
