// Command worker-download runs the download phase worker pool: dequeues
// from the download queue, invokes the external downloader, writes
// RAW_VIDEO, and advances DISCOVERED -> DOWNLOADED.
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
	"github.com/cityhall/meetingpipe/internal/downloader"
	"github.com/cityhall/meetingpipe/internal/logging"
	"github.com/cityhall/meetingpipe/internal/metrics"
	"github.com/cityhall/meetingpipe/internal/model"
	"github.com/cityhall/meetingpipe/internal/orchestrator"
	"github.com/cityhall/meetingpipe/internal/queue"
	"github.com/cityhall/meetingpipe/internal/store"
	"github.com/cityhall/meetingpipe/internal/worker"
	"github.com/cityhall/meetingpipe/internal/workers/download"
)

func main() {
	logger := logging.New("worker-download")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	config.RequireFatal("DOWNLOADER_TOKEN", cfg.DownloaderToken)

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
	downloadQueue := queue.NewRedisQueue(rdb, model.QueueDownload, opts)
	extractQueue := queue.NewRedisQueue(rdb, model.QueueExtract, opts)

	orch := orchestrator.New(pgStore, map[string]queue.Queue{
		model.QueueDownload: downloadQueue,
		model.QueueExtract:  extractQueue,
	})

	w := &download.Worker{
		Store:        pgStore,
		Artifacts:    artifacts,
		Downloader:   downloader.NewExecDownloader(cfg.DownloaderPath, cfg.DownloaderToken),
		Orchestrator: orch,
		ScratchRoot:  cfg.StorageRoot,
		Logger:       logger,
	}

	pool := &worker.Pool{
		Queue:         downloadQueue,
		Concurrency:   cfg.DownloadWorkerConcurrency,
		DrainDeadline: cfg.DrainDeadline,
		Logger:        logger,
		Handle:        w.Handle,
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	logger.Info("worker-download starting", "concurrency", cfg.DownloadWorkerConcurrency)
	if err := pool.Run(ctx); err != nil {
		log.Fatalf("worker pool stopped: %v", err)
	}
}
