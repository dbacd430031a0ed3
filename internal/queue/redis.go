package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cityhall/meetingpipe/internal/model"
)

// enqueueScript atomically checks the job's current state and, if it is
// absent or not in {waiting,active,delayed}, creates it in the waiting
// state and pushes it onto the waiting list. This is the dedup
// enforcement point: at most one job with identifier
// <queue>-<meetingId> exists across waiting/active/delayed.
var enqueueScript = redis.NewScript(`
local jobKey = KEYS[1]
local waitingKey = KEYS[2]
local jobID = ARGV[1]
local meetingID = ARGV[2]
local now = ARGV[3]

local state = redis.call('HGET', jobKey, 'state')
if state == 'waiting' or state == 'active' or state == 'delayed' then
	return 0
end

redis.call('HSET', jobKey, 'meeting_id', meetingID, 'state', 'waiting', 'attempts', '0', 'last_error', '', 'enqueued_at', now, 'updated_at', now)
redis.call('LPUSH', waitingKey, jobID)
return 1
`)

// RedisQueue implements Queue over a shared redis.Client, using the key
// layout documented at the top of this file's sibling functions.
type RedisQueue struct {
	rdb        *redis.Client
	queue      string
	maxRetries int
	retryBase  time.Duration
	completedCap int64
	failedCap    int64
}

// RedisQueueOptions configures retry policy and retention, defaulting to
// 3 attempts starting at 2s, with 100 completed / 500 failed jobs
// retained.
type RedisQueueOptions struct {
	MaxRetries   int
	RetryBase    time.Duration
	CompletedCap int64
	FailedCap    int64
}

func DefaultRedisQueueOptions() RedisQueueOptions {
	return RedisQueueOptions{
		MaxRetries:   3,
		RetryBase:    2 * time.Second,
		CompletedCap: 100,
		FailedCap:    500,
	}
}

func NewRedisQueue(rdb *redis.Client, name string, opts RedisQueueOptions) *RedisQueue {
	return &RedisQueue{
		rdb:          rdb,
		queue:        name,
		maxRetries:   opts.MaxRetries,
		retryBase:    opts.RetryBase,
		completedCap: opts.CompletedCap,
		failedCap:    opts.FailedCap,
	}
}

func (q *RedisQueue) Name() string { return q.queue }

func (q *RedisQueue) jobKey(jobID string) string      { return fmt.Sprintf("queue:%s:job:%s", q.queue, jobID) }
func (q *RedisQueue) waitingKey() string              { return fmt.Sprintf("queue:%s:waiting", q.queue) }
func (q *RedisQueue) activeKey() string               { return fmt.Sprintf("queue:%s:active", q.queue) }
func (q *RedisQueue) delayedKey() string              { return fmt.Sprintf("queue:%s:delayed", q.queue) }
func (q *RedisQueue) completedKey() string            { return fmt.Sprintf("queue:%s:completed", q.queue) }
func (q *RedisQueue) failedKey() string               { return fmt.Sprintf("queue:%s:failed", q.queue) }

func (q *RedisQueue) Enqueue(ctx context.Context, meetingID string) (bool, error) {
	jobID := model.JobID(q.queue, meetingID)
	now := nowRFC3339()
	res, err := enqueueScript.Run(ctx, q.rdb, []string{q.jobKey(jobID), q.waitingKey()}, jobID, meetingID, now).Int()
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", jobID, err)
	}
	return res == 1, nil
}

func (q *RedisQueue) promoteDue(ctx context.Context) error {
	nowMs := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := q.rdb.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{Min: "0", Max: nowMs}).Result()
	if err != nil {
		return err
	}
	for _, jobID := range due {
		removed, err := q.rdb.ZRem(ctx, q.delayedKey(), jobID).Result()
		if err != nil || removed == 0 {
			continue // another dequeuer already promoted it
		}
		now := nowRFC3339()
		if err := q.rdb.HSet(ctx, q.jobKey(jobID), "state", "waiting", "updated_at", now).Err(); err != nil {
			return err
		}
		if err := q.rdb.LPush(ctx, q.waitingKey(), jobID).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*JobRecord, error) {
	if err := q.promoteDue(ctx); err != nil {
		return nil, fmt.Errorf("promote delayed jobs: %w", err)
	}

	res, err := q.rdb.BRPop(ctx, timeout, q.waitingKey()).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("dequeue %s: %w", q.queue, err)
	}
	if len(res) < 2 {
		return nil, nil
	}
	jobID := res[1]

	now := nowRFC3339()
	if err := q.rdb.HSet(ctx, q.jobKey(jobID), "state", "active", "updated_at", now).Err(); err != nil {
		return nil, fmt.Errorf("mark active %s: %w", jobID, err)
	}
	if err := q.rdb.SAdd(ctx, q.activeKey(), jobID).Err(); err != nil {
		return nil, fmt.Errorf("track active %s: %w", jobID, err)
	}

	return q.Get(ctx, jobID)
}

func (q *RedisQueue) Complete(ctx context.Context, jobID string) error {
	now := nowRFC3339()
	pipe := q.rdb.TxPipeline()
	pipe.SRem(ctx, q.activeKey(), jobID)
	pipe.HSet(ctx, q.jobKey(jobID), "state", "completed", "updated_at", now)
	pipe.LPush(ctx, q.completedKey(), jobID)
	pipe.LTrim(ctx, q.completedKey(), 0, q.completedCap-1)
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("complete %s: %w", jobID, err)
	}
	return nil
}

func (q *RedisQueue) Fail(ctx context.Context, jobID string, cause error) error {
	attempts, err := q.rdb.HIncrBy(ctx, q.jobKey(jobID), "attempts", 1).Result()
	if err != nil {
		return fmt.Errorf("increment attempts %s: %w", jobID, err)
	}

	errMsg := ""
	if cause != nil {
		errMsg = cause.Error()
	}
	now := nowRFC3339()

	if q.maxRetries > 0 && attempts >= int64(q.maxRetries) {
		pipe := q.rdb.TxPipeline()
		pipe.SRem(ctx, q.activeKey(), jobID)
		pipe.HSet(ctx, q.jobKey(jobID), "state", "failed", "last_error", errMsg, "updated_at", now)
		pipe.LPush(ctx, q.failedKey(), jobID)
		pipe.LTrim(ctx, q.failedKey(), 0, q.failedCap-1)
		_, err := pipe.Exec(ctx)
		if err != nil {
			return fmt.Errorf("fail %s: %w", jobID, err)
		}
		return nil
	}

	backoff := q.retryBase * time.Duration(1<<uint(attempts-1))
	readyAt := time.Now().Add(backoff)

	pipe := q.rdb.TxPipeline()
	pipe.SRem(ctx, q.activeKey(), jobID)
	pipe.HSet(ctx, q.jobKey(jobID), "state", "delayed", "last_error", errMsg, "updated_at", now, "ready_at", readyAt.Format(time.RFC3339Nano))
	pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(readyAt.UnixMilli()), Member: jobID})
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("delay %s: %w", jobID, err)
	}
	return nil
}

func (q *RedisQueue) Get(ctx context.Context, jobID string) (*JobRecord, error) {
	fields, err := q.rdb.HGetAll(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return recordFromFields(q.queue, jobID, fields), nil
}

func (q *RedisQueue) List(ctx context.Context, state State, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var ids []string
	var err error
	switch state {
	case Waiting:
		ids, err = q.rdb.LRange(ctx, q.waitingKey(), 0, int64(limit-1)).Result()
	case Active:
		ids, err = q.rdb.SMembers(ctx, q.activeKey()).Result()
		if len(ids) > limit {
			ids = ids[:limit]
		}
	case Delayed:
		ids, err = q.rdb.ZRange(ctx, q.delayedKey(), 0, int64(limit-1)).Result()
	case Completed:
		ids, err = q.rdb.LRange(ctx, q.completedKey(), 0, int64(limit-1)).Result()
	case Failed:
		ids, err = q.rdb.LRange(ctx, q.failedKey(), 0, int64(limit-1)).Result()
	default:
		return nil, fmt.Errorf("unknown queue state %q", state)
	}
	if err != nil {
		return nil, fmt.Errorf("list %s/%s: %w", q.queue, state, err)
	}

	out := make([]JobRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := q.Get(ctx, id)
		if err != nil || rec == nil {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (q *RedisQueue) Retry(ctx context.Context, jobID string) error {
	rec, err := q.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("job %s not found", jobID)
	}

	now := nowRFC3339()
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.failedKey(), 0, jobID)
	pipe.HSet(ctx, q.jobKey(jobID), "state", "waiting", "attempts", "0", "last_error", "", "updated_at", now)
	pipe.LPush(ctx, q.waitingKey(), jobID)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("retry %s: %w", jobID, err)
	}
	return nil
}

func (q *RedisQueue) Remove(ctx context.Context, jobID string) error {
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.waitingKey(), 0, jobID)
	pipe.SRem(ctx, q.activeKey(), jobID)
	pipe.ZRem(ctx, q.delayedKey(), jobID)
	pipe.LRem(ctx, q.completedKey(), 0, jobID)
	pipe.LRem(ctx, q.failedKey(), 0, jobID)
	pipe.Del(ctx, q.jobKey(jobID))
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("remove %s: %w", jobID, err)
	}
	return nil
}

func (q *RedisQueue) Clean(ctx context.Context, state State, maxAge time.Duration) (int, error) {
	records, err := q.List(ctx, state, 10000)
	if err != nil {
		return 0, err
	}
	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, rec := range records {
		if maxAge > 0 && rec.UpdatedAt.After(cutoff) {
			continue
		}
		if err := q.Remove(ctx, rec.ID); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func recordFromFields(queue, jobID string, fields map[string]string) *JobRecord {
	attempts, _ := strconv.Atoi(fields["attempts"])
	rec := &JobRecord{
		ID:        jobID,
		Queue:     queue,
		MeetingID: fields["meeting_id"],
		State:     State(fields["state"]),
		Attempts:  attempts,
		LastError: fields["last_error"],
	}
	rec.EnqueuedAt = parseRFC3339(fields["enqueued_at"])
	rec.UpdatedAt = parseRFC3339(fields["updated_at"])
	rec.ReadyAt = parseRFC3339(fields["ready_at"])
	return rec
}

func parseRFC3339(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nowRFC3339() string {
	return time.Now().Format(time.RFC3339Nano)
}
