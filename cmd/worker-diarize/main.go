// Command worker-diarize runs the diarize phase worker pool: requires
// DERIVED_AUDIO to already exist, runs the external diarizer, writes
// DERIVED_DIARIZED, and advances UPLOADED -> DIARIZED, the pipeline's
// terminal success state.
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
	"github.com/cityhall/meetingpipe/internal/diarizer"
	"github.com/cityhall/meetingpipe/internal/logging"
	"github.com/cityhall/meetingpipe/internal/metrics"
	"github.com/cityhall/meetingpipe/internal/model"
	"github.com/cityhall/meetingpipe/internal/orchestrator"
	"github.com/cityhall/meetingpipe/internal/queue"
	"github.com/cityhall/meetingpipe/internal/store"
	"github.com/cityhall/meetingpipe/internal/worker"
	"github.com/cityhall/meetingpipe/internal/workers/diarize"
)

func main() {
	logger := logging.New("worker-diarize")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

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
	diarizeQueue := queue.NewRedisQueue(rdb, model.QueueDiarize, opts)

	orch := orchestrator.New(pgStore, map[string]queue.Queue{
		model.QueueDiarize: diarizeQueue,
	})

	w := &diarize.Worker{
		Store:                pgStore,
		Artifacts:            artifacts,
		Diarizer:             diarizer.NewExecDiarizer(cfg.DiarizerPath),
		Orchestrator:         orch,
		ScratchRoot:          cfg.DiarizeScratchRoot,
		ScratchWorldWritable: cfg.DiarizeScratchWorldWritable,
		Logger:               logger,
	}

	pool := &worker.Pool{
		Queue:         diarizeQueue,
		Concurrency:   cfg.DiarizeWorkerConcurrency,
		DrainDeadline: cfg.DrainDeadline,
		Logger:        logger,
		Handle:        w.Handle,
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	logger.Info("worker-diarize starting", "concurrency", cfg.DiarizeWorkerConcurrency)
	if err := pool.Run(ctx); err != nil {
		log.Fatalf("worker pool stopped: %v", err)
	}
}
