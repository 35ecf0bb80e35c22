package tasks

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	queueKey         = "tasks:queue"
	retryKey         = "tasks:retry"
	processingPrefix = "tasks:processing:"
	consumersKey     = "tasks:consumers"

	// A consumer whose heartbeat is older than this is presumed dead and
	// its processing list goes back onto the queue.
	staleConsumerAfter = time.Minute
)

// BackoffPolicy shapes the retry schedule: exponential growth from Base
// capped at Cap, with up to 50% added jitter so retries spread out.
type BackoffPolicy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Base:        time.Minute,
		Cap:         10 * time.Minute,
		MaxAttempts: 5,
	}
}

// Delay computes the wait before the given retry attempt (1-based).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.Base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.Cap {
			delay = p.Cap
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2 + 1))
	return delay + jitter
}

// RedisQueue is an at-least-once broker on a redis list. Dequeue moves a
// task into this consumer's processing list instead of popping it, and
// Ack removes it only after the handler ran; a worker that dies
// mid-task leaves the entry behind for ReclaimStale to re-queue. A
// sorted set holds tasks waiting for their retry time.
type RedisQueue struct {
	client        *redis.Client
	backoff       BackoffPolicy
	logger        *slog.Logger
	consumerID    string
	processingKey string
}

func NewRedisQueue(client *redis.Client, backoff BackoffPolicy, logger *slog.Logger) *RedisQueue {
	consumerID := uuid.NewString()
	return &RedisQueue{
		client:        client,
		backoff:       backoff,
		logger:        logger,
		consumerID:    consumerID,
		processingKey: processingPrefix + consumerID,
	}
}

// Enqueue marshals the payload and pushes a fresh task. Callers treat a
// returned error as log-and-continue: enqueue failures must never fail
// the mutation that produced them.
func (q *RedisQueue) Enqueue(ctx context.Context, taskType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	task := Task{
		ID:         uuid.New(),
		Type:       taskType,
		Payload:    raw,
		EnqueuedAt: time.Now().UTC(),
	}
	return q.push(ctx, task)
}

func (q *RedisQueue) push(ctx context.Context, task Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, queueKey, raw).Err()
}

// Dequeue blocks up to timeout for the next task, claiming it into the
// processing list. Returns nil on timeout.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	q.heartbeat(ctx)

	raw, err := q.client.BLMove(ctx, queueKey, q.processingKey, "RIGHT", "LEFT", timeout).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var task Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		q.logger.Error("dropping undecodable task", "error", err)
		q.client.LRem(ctx, q.processingKey, 1, raw)
		return nil, nil
	}
	task.claim = raw
	return &task, nil
}

// Ack removes the task from the processing list once its handler
// returned. Unacked tasks survive a worker crash and get re-queued.
func (q *RedisQueue) Ack(ctx context.Context, task *Task) error {
	if task.claim == "" {
		return nil
	}
	return q.client.LRem(ctx, q.processingKey, 1, task.claim).Err()
}

// Retry schedules the task for another attempt, or drops it once the
// attempt budget is spent. The caller still acks the original entry.
func (q *RedisQueue) Retry(ctx context.Context, task *Task) error {
	task.Attempts++
	if task.Attempts >= q.backoff.MaxAttempts {
		q.logger.Error("task exhausted its retries, dropping",
			"task_id", task.ID, "task_type", task.Type, "attempts", task.Attempts)
		return nil
	}

	raw, err := json.Marshal(task)
	if err != nil {
		return err
	}
	readyAt := time.Now().Add(q.backoff.Delay(task.Attempts))
	return q.client.ZAdd(ctx, retryKey, redis.Z{
		Score:  float64(readyAt.Unix()),
		Member: raw,
	}).Err()
}

// MoveDueRetries pushes every retry whose time has come back onto the
// main queue. Called periodically by the worker pool.
func (q *RedisQueue) MoveDueRetries(ctx context.Context) error {
	now := time.Now().Unix()
	members, err := q.client.ZRangeByScore(ctx, retryKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		return err
	}
	for _, member := range members {
		// Remove first so a concurrent mover cannot double-queue.
		removed, err := q.client.ZRem(ctx, retryKey, member).Result()
		if err != nil {
			return err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, queueKey, member).Err(); err != nil {
			return err
		}
	}
	return nil
}

// ReclaimStale re-queues the processing lists of consumers whose
// heartbeat went silent. Called periodically by the worker pool; tasks
// may arrive twice this way, which handlers already tolerate.
func (q *RedisQueue) ReclaimStale(ctx context.Context) error {
	q.heartbeat(ctx)

	consumers, err := q.client.HGetAll(ctx, consumersKey).Result()
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-staleConsumerAfter).Unix()
	for id, beat := range consumers {
		if id == q.consumerID {
			continue
		}
		seen, err := strconv.ParseInt(beat, 10, 64)
		if err == nil && seen >= cutoff {
			continue
		}
		stale := processingPrefix + id
		for {
			raw, err := q.client.LMove(ctx, stale, queueKey, "RIGHT", "LEFT").Result()
			if err == redis.Nil {
				break
			}
			if err != nil {
				return err
			}
			q.logger.Warn("re-queued task from dead consumer", "consumer_id", id, "entry", raw)
		}
		if err := q.client.HDel(ctx, consumersKey, id).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (q *RedisQueue) heartbeat(ctx context.Context) {
	if err := q.client.HSet(ctx, consumersKey, q.consumerID, time.Now().Unix()).Err(); err != nil {
		q.logger.Warn("consumer heartbeat failed", "error", err)
	}
}
