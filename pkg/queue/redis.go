package queue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"PaperDesk/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue is a list-backed job queue shared by every instance pointing at
// the same Redis and key prefix. Each instance both publishes and consumes.
//
// Keys under the prefix:
//
//	<prefix>:messages   pending messages (LPUSH / BRPOP)
//	<prefix>:retry      failed messages scored by their next attempt time
//	<prefix>:dlq        messages that ran out of attempts
//	<prefix>:dedup:*    recently published payload fingerprints
type RedisQueue struct {
	logger *logger.Logger
	config *QueueConfig
	client *redis.Client
	prefix string
	dedup  time.Duration
	poll   time.Duration

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type RedisQueueOption func(*RedisQueue)

func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithDedupWindow drops a publish whose type and payload match one published
// within d. Schedulers on several instances firing for the same range then
// enqueue a single run.
func WithDedupWindow(d time.Duration) RedisQueueOption {
	return func(r *RedisQueue) { r.dedup = d }
}

func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	if config == nil {
		config = &QueueConfig{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}
	if lgr == nil {
		lgr = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &RedisQueue{
		logger: lgr.With(logger.String("component", "redis_queue")),
		config: config,
		client: client,
		prefix: "paperdesk:queue",
		poll:   time.Second,
		jobs:   make(map[string]Job),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ QueueService = (*RedisQueue)(nil)

// RegisterJob registers a job by its message type. A second job for the same type is ignored.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.Type()]; ok {
		r.logger.Warn("job already registered", logger.String("type", job.Type()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.promoteRetries()

	r.running = true
	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("addr", r.client.Options().Addr),
		logger.String("prefix", r.prefix))
	return nil
}

// Stop cancels the workers and waits for in-flight jobs until ctx expires.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop redis queue: %w", ctx.Err())
	}
}

// PublishMessage pushes a message for msgType. It needs a registered job for
// the type and, with a dedup window, silently skips repeats.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()
	if !running {
		return fmt.Errorf("queue not running")
	}
	if !known {
		return fmt.Errorf("no job registered for type: %s", msgType)
	}

	msg, err := newMessage(uuid.NewString(), msgType, payload)
	if err != nil {
		return err
	}

	if r.dedup > 0 {
		fresh, err := r.client.SetNX(ctx, r.dedupKey(msg), msg.ID, r.dedup).Result()
		if err != nil {
			return fmt.Errorf("dedup check: %w", err)
		}
		if !fresh {
			r.logger.Debug("duplicate message dropped", logger.String("type", msgType))
			return nil
		}
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.key("messages"), b).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// Depth reports how many messages are pending and waiting for a retry.
func (r *RedisQueue) Depth(ctx context.Context) (pending, retrying int64, err error) {
	pipe := r.client.Pipeline()
	p := pipe.LLen(ctx, r.key("messages"))
	q := pipe.ZCard(ctx, r.key("retry"))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return p.Val(), q.Val(), nil
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	for r.ctx.Err() == nil {
		res, err := r.client.BRPop(r.ctx, r.poll, r.key("messages")).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || r.ctx.Err() != nil {
				continue
			}
			r.logger.Error("brpop", logger.Int("worker", id), logger.Error(err))
			r.sleep(r.poll)
			continue
		}
		if len(res) < 2 {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			r.logger.Error("undecodable message dropped", logger.Error(err))
			continue
		}
		r.run(msg)
	}
}

func (r *RedisQueue) run(msg Message) {
	r.mu.RLock()
	job, ok := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.park(msg)
		return
	}

	start := time.Now()
	err := job.Handle(r.ctx, msg.Payload)
	switch {
	case err == nil:
		r.logger.Debug("message processed",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Duration("elapsed", time.Since(start)))
	case errors.Is(err, context.Canceled):
		// shutting down; put it back for the next instance
		r.retryAt(msg, time.Now())
	default:
		msg.Attempts++
		if msg.Attempts > r.config.RetryLimit {
			r.logger.Error("message out of attempts",
				logger.String("id", msg.ID), logger.String("job", job.Name()), logger.Error(err))
			r.park(msg)
			return
		}
		at := time.Now().Add(r.backoff(msg.Attempts))
		r.logger.Warn("message failed, retry scheduled",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempt", msg.Attempts),
			logger.Time("retry_at", at),
			logger.Error(err))
		r.retryAt(msg, at)
	}
}

// backoff doubles the configured delay per attempt, capped at 32x.
func (r *RedisQueue) backoff(attempt int) time.Duration {
	shift := min(attempt-1, 5)
	return r.config.RetryDelay << shift
}

func (r *RedisQueue) retryAt(msg Message, at time.Time) {
	b, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal retry", logger.Error(err))
		return
	}
	z := redis.Z{Score: float64(at.Unix()), Member: b}
	if err := r.client.ZAdd(context.WithoutCancel(r.ctx), r.key("retry"), z).Err(); err != nil {
		r.logger.Error("zadd retry", logger.Error(err))
	}
}

func (r *RedisQueue) park(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal dlq", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.WithoutCancel(r.ctx), r.key("dlq"), b).Err(); err != nil {
		r.logger.Error("lpush dlq", logger.Error(err))
	}
}

// promoteRetries moves due retries back onto the pending list.
func (r *RedisQueue) promoteRetries() {
	defer r.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		}

		due, err := r.client.ZRangeByScore(r.ctx, r.key("retry"), &redis.ZRangeBy{
			Min: "-inf",
			Max: strconv.FormatInt(time.Now().Unix(), 10),
		}).Result()
		if err != nil {
			if r.ctx.Err() == nil {
				r.logger.Error("fetch due retries", logger.Error(err))
			}
			continue
		}
		for _, m := range due {
			// ZREM decides which instance owns the promotion.
			removed, err := r.client.ZRem(r.ctx, r.key("retry"), m).Result()
			if err != nil || removed == 0 {
				continue
			}
			if err := r.client.LPush(r.ctx, r.key("messages"), m).Err(); err != nil {
				r.logger.Error("promote retry", logger.Error(err))
			}
		}
	}
}

func (r *RedisQueue) sleep(d time.Duration) {
	select {
	case <-r.ctx.Done():
	case <-time.After(d):
	}
}

func (r *RedisQueue) key(name string) string {
	return r.prefix + ":" + name
}

func (r *RedisQueue) dedupKey(msg Message) string {
	sum := sha256.Sum256(append([]byte(msg.Type+"\x00"), msg.Payload...))
	return r.key("dedup:" + hex.EncodeToString(sum[:8]))
}
