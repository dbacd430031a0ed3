// Command discover runs one pass of the calendar poller: fetch the
// calendar for a date range, filter to meetings with video, and seed
// the download queue. Intended to be invoked on a cadence by an
// external timer (a systemd timer unit), not to self-schedule.
package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cityhall/meetingpipe/internal/calendar"
	"github.com/cityhall/meetingpipe/internal/config"
	"github.com/cityhall/meetingpipe/internal/discovery"
	"github.com/cityhall/meetingpipe/internal/logging"
	"github.com/cityhall/meetingpipe/internal/model"
	"github.com/cityhall/meetingpipe/internal/queue"
	"github.com/cityhall/meetingpipe/internal/store"
)

func main() {
	logger := logging.New("discover")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	config.RequireFatal("CALENDAR_BASE_URL", cfg.CalendarBaseURL)
	config.RequireFatal("AGENDA_BASE_URL", cfg.AgendaBaseURL)

	ctx := context.Background()

	pgStore, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}
	downloadQueue := queue.NewRedisQueue(rdb, model.QueueDownload, queue.RedisQueueOptions{
		MaxRetries: cfg.QueueMaxRetries,
		RetryBase:  cfg.QueueRetryBase,
		CompletedCap: cfg.QueueCompletedCap,
		FailedCap:    cfg.QueueFailedCap,
	})

	d := &discovery.Discovery{
		Calendar:      calendar.NewClient(cfg.CalendarBaseURL),
		Store:         pgStore,
		DownloadQueue: downloadQueue,
		UTCOffset:     cfg.CalendarUTCOffset,
		AgendaBaseURL: cfg.AgendaBaseURL,
		Logger:        logger,
	}

	runOnce(ctx, d, cfg.CalendarUTCOffset, logger)
}

func runOnce(ctx context.Context, d *discovery.Discovery, utcOffset string, logger *slog.Logger) {
	start, end, err := discovery.DefaultRange(time.Now(), utcOffset)
	if err != nil {
		log.Fatalf("compute default range: %v", err)
	}

	result, err := d.RunLocked(ctx, start, end)
	if err != nil {
		logger.Error("discovery run failed", "error", err)
		return
	}
	logger.Info("discovery run complete",
		"fetched", result.Fetched, "inserted", result.Inserted, "enqueued", result.Enqueued,
		"range_start", start, "range_end", end)
}
