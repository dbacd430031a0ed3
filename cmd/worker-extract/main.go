// Command worker-extract runs the extract phase worker pool: fetches and
// parses the agenda, renders chapters, writes metadata, attempts
// best-effort audio extraction, and advances DOWNLOADED -> EXTRACTED.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cityhall/meetingpipe/internal/artifact"
	"github.com/cityhall/meetingpipe/internal/audioextract"
	"github.com/cityhall/meetingpipe/internal/config"
	"github.com/cityhall/meetingpipe/internal/logging"
	"github.com/cityhall/meetingpipe/internal/metrics"
	"github.com/cityhall/meetingpipe/internal/model"
	"github.com/cityhall/meetingpipe/internal/orchestrator"
	"github.com/cityhall/meetingpipe/internal/queue"
	"github.com/cityhall/meetingpipe/internal/store"
	"github.com/cityhall/meetingpipe/internal/worker"
	"github.com/cityhall/meetingpipe/internal/workers/extract"
)

func main() {
	logger := logging.New("worker-extract")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	config.RequireFatal("AGENDA_BASE_URL", cfg.AgendaBaseURL)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pgStore, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}

	artifacts, err := artifact.New(cfg.IsLocal, cfg.StorageRoot, cfg.RemoteBaseURL)
	if err != nil {
		log.Fatalf("initialize artifact store: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}
	opts := queue.RedisQueueOptions{
		MaxRetries: cfg.QueueMaxRetries, RetryBase: cfg.QueueRetryBase,
		CompletedCap: cfg.QueueCompletedCap, FailedCap: cfg.QueueFailedCap,
	}
	extractQueue := queue.NewRedisQueue(rdb, model.QueueExtract, opts)
	uploadQueue := queue.NewRedisQueue(rdb, model.QueueUpload, opts)

	orch := orchestrator.New(pgStore, map[string]queue.Queue{
		model.QueueExtract: extractQueue,
		model.QueueUpload:  uploadQueue,
	})

	w := &extract.Worker{
		Store:         pgStore,
		Artifacts:     artifacts,
		HTTPClient:    &http.Client{Timeout: 30 * time.Second},
		AgendaBaseURL: cfg.AgendaBaseURL,
		AudioTool:     audioextract.NewFFmpegExtractor(cfg.FFmpegPath),
		Orchestrator:  orch,
		ScratchRoot:   cfg.StorageRoot,
		Logger:        logger,
	}

	pool := &worker.Pool{
		Queue:         extractQueue,
		Concurrency:   cfg.ExtractWorkerConcurrency,
		DrainDeadline: cfg.DrainDeadline,
		Logger:        logger,
		Handle:        w.Handle,
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	logger.Info("worker-extract starting", "concurrency", cfg.ExtractWorkerConcurrency)
	if err := pool.Run(ctx); err != nil {
		log.Fatalf("worker pool stopped: %v", err)
	}
}
