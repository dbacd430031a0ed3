// Command worker-upload runs the upload phase worker pool: publishes to
// the external video host, resolves playlists, and advances
// EXTRACTED -> UPLOADED. Concurrency is pinned to 1 regardless of
// configuration: the video host enforces a strict per-account rate limit
// that concurrent uploads would trip.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/cityhall/meetingpipe/internal/artifact"
	"github.com/cityhall/meetingpipe/internal/config"
	"github.com/cityhall/meetingpipe/internal/logging"
	"github.com/cityhall/meetingpipe/internal/metrics"
	"github.com/cityhall/meetingpipe/internal/model"
	"github.com/cityhall/meetingpipe/internal/orchestrator"
	"github.com/cityhall/meetingpipe/internal/playlist"
	"github.com/cityhall/meetingpipe/internal/queue"
	"github.com/cityhall/meetingpipe/internal/store"
	"github.com/cityhall/meetingpipe/internal/videohost"
	"github.com/cityhall/meetingpipe/internal/worker"
	"github.com/cityhall/meetingpipe/internal/workers/upload"
)

func main() {
	logger := logging.New("worker-upload")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	config.RequireFatal("VIDEO_HOST_TOKEN", cfg.VideoHostToken)
	config.RequireFatal("VIDEO_HOST_BASE_URL", cfg.VideoHostBaseURL)

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
	uploadQueue := queue.NewRedisQueue(rdb, model.QueueUpload, opts)
	diarizeQueue := queue.NewRedisQueue(rdb, model.QueueDiarize, opts)

	orch := orchestrator.New(pgStore, map[string]queue.Queue{
		model.QueueUpload:  uploadQueue,
		model.QueueDiarize: diarizeQueue,
	})

	mappings, err := playlist.Compile(playlist.DefaultRows)
	if err != nil {
		log.Fatalf("compile playlist mappings: %v", err)
	}

	w := &upload.Worker{
		Store:            pgStore,
		Artifacts:        artifacts,
		VideoHost:        videohost.NewHTTPClient(cfg.VideoHostBaseURL, cfg.VideoHostToken),
		PlaylistMappings: mappings,
		PlaylistConfig:   cfg.PlaylistMappings,
		LocationTag:      cfg.LocationTag,
		Orchestrator:     orch,
		ScratchRoot:      cfg.StorageRoot,
		Logger:           logger,
	}

	pool := &worker.Pool{
		Queue:         uploadQueue,
		Concurrency:   1, // strictly single-concurrency: see package comment
		DrainDeadline: cfg.DrainDeadline,
		Logger:        logger,
		Handle:        w.Handle,
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	logger.Info("worker-upload starting")
	if err := pool.Run(ctx); err != nil {
		log.Fatalf("worker pool stopped: %v", err)
	}
}
