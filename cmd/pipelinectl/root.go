package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/cityhall/meetingpipe/internal/config"
	"github.com/cityhall/meetingpipe/internal/model"
	"github.com/cityhall/meetingpipe/internal/orchestrator"
	"github.com/cityhall/meetingpipe/internal/queue"
	"github.com/cityhall/meetingpipe/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "pipelinectl",
	Short: "Administrative CLI for the meeting ingestion pipeline",
}

// runtime wires the store and the four phase queues once, for whichever
// subcommand needs them. Built lazily so subcommands that don't touch
// Postgres/Redis (none currently, but this keeps the door open) don't
// pay the connection cost.
type runtime struct {
	cfg    config.Config
	store  store.Store
	queues map[string]queue.Queue
	orch   *orchestrator.Orchestrator
}

func newRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	pgStore, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	opts := queue.RedisQueueOptions{
		MaxRetries: cfg.QueueMaxRetries, RetryBase: cfg.QueueRetryBase,
		CompletedCap: cfg.QueueCompletedCap, FailedCap: cfg.QueueFailedCap,
	}
	queues := map[string]queue.Queue{
		model.QueueDownload: queue.NewRedisQueue(rdb, model.QueueDownload, opts),
		model.QueueExtract:  queue.NewRedisQueue(rdb, model.QueueExtract, opts),
		model.QueueUpload:   queue.NewRedisQueue(rdb, model.QueueUpload, opts),
		model.QueueDiarize:  queue.NewRedisQueue(rdb, model.QueueDiarize, opts),
	}

	return &runtime{
		cfg:    cfg,
		store:  pgStore,
		queues: queues,
		orch:   orchestrator.New(pgStore, queues),
	}, nil
}

// queueByName resolves one of the four fixed queue names, returning the
// same "invalid argument" failure mode every subcommand uses for a bad
// queue name.
func (r *runtime) queueByName(name string) (queue.Queue, error) {
	q, ok := r.queues[name]
	if !ok {
		return nil, fmt.Errorf("unknown queue %q (want one of: download, extract, upload, diarize)", name)
	}
	return q, nil
}
