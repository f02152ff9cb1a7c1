package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"PipeKit/pkg/logger"
)

// RedisQueue publishes to and consumes from Redis lists. Each (exchange, queue)
// pair is one list; failed messages wait in a sorted set before redelivery.
type RedisQueue struct {
	logger    *logger.Logger
	config    *QueueConfig
	client    *redis.Client
	jobs      map[string]Job
	wg        sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
	ctx       context.Context
	cancel    context.CancelFunc
	keyPrefix string
	now       func() time.Time
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.keyPrefix = prefix
		}
	}
}

// NewRedisQueue creates a new Redis queue.
func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	if lgr == nil {
		lgr = logger.Nop()
	}
	if config == nil {
		config = &QueueConfig{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}
	if config.BlockTimeout <= 0 {
		config.BlockTimeout = time.Second
	}

	rq := &RedisQueue{
		logger:    lgr.Named("redis.queue"),
		config:    config,
		client:    client,
		jobs:      make(map[string]Job),
		keyPrefix: "pipekit:queue",
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(rq)
	}

	return rq
}

// RegisterJob registers a job for its queue. A second job for the same queue is ignored.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.queueKey(job.Target())
	if _, exists := r.jobs[key]; exists {
		r.logger.Warn("job already registered", logger.String("job", job.Name()), logger.String("key", key))
		return
	}

	r.jobs[key] = job
	r.logger.Info("job registered", logger.String("job", job.Name()), logger.String("key", key))
}

// Start checks the connection and starts workers for registered jobs.
// Without jobs the queue is publish-only.
func (r *RedisQueue) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.isRunning {
		return fmt.Errorf("queue already running")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))
	r.isRunning = true

	if len(r.jobs) == 0 {
		r.logger.Info("redis publisher started", logger.String("addr", r.client.Options().Addr))
		return nil
	}

	for key, job := range r.jobs {
		for i := 0; i < r.config.Workers; i++ {
			r.wg.Add(1)
			go r.worker(key, job)
		}
	}
	r.wg.Add(1)
	go r.retryProcessor()

	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.Int("queues", len(r.jobs)),
		logger.String("addr", r.client.Options().Addr))
	return nil
}

// Stop cancels workers and waits for in-flight messages.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	r.cancel()
	r.mu.Unlock()

	doneCh := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-doneCh:
		r.logger.Info("redis queue stopped")
		return nil
	}
}

// Publish pushes payload onto the list for queue and exchange.
func (r *RedisQueue) Publish(ctx context.Context, queue, exchange string, payload interface{}) error {
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	raw, err := encodePayload(payload)
	if err != nil {
		return err
	}

	msg := Message{
		ID:        uuid.NewString(),
		Queue:     queue,
		Exchange:  exchange,
		Payload:   raw,
		Timestamp: r.now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := r.client.LPush(ctx, r.queueKey(queue, exchange), data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// PublishMessage publishes payload to topic with no exchange.
func (r *RedisQueue) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return r.Publish(ctx, topic, "", payload)
}

func (r *RedisQueue) worker(key string, job Job) {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
			r.processNextMessage(key, job)
		}
	}
}

func (r *RedisQueue) processNextMessage(key string, job Job) {
	result, err := r.client.BRPop(r.ctx, r.config.BlockTimeout, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || r.ctx.Err() != nil {
			return
		}
		r.logger.Error("brpop error", logger.String("key", key), logger.Error(err))
		select {
		case <-time.After(time.Second):
		case <-r.ctx.Done():
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		r.logger.Error("unmarshal message", logger.String("key", key), logger.Error(err))
		return
	}

	r.processMessage(msg, job)
}

func (r *RedisQueue) processMessage(msg Message, job Job) {
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("job panic: %v", rec)
			}
		}()
		return job.Handle(r.ctx, msg.Payload)
	}()
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		r.logger.Warn("message cancelled", logger.String("id", msg.ID), logger.String("job", job.Name()))
		return
	}
	r.handleProcessingError(msg, job, err)
}

func (r *RedisQueue) handleProcessingError(msg Message, job Job, err error) {
	r.logger.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if msg.Attempts < r.config.RetryLimit {
		msg.Attempts++
		r.scheduleRetry(msg, r.now().Add(r.config.RetryDelay))
		return
	}
	r.logger.Error("max retries reached", logger.String("id", msg.ID), logger.String("job", job.Name()))
	r.moveToDeadLetterQueue(msg)
}

func (r *RedisQueue) scheduleRetry(msg Message, retryAt time.Time) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal retry", logger.Error(err))
		return
	}
	err = r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{
		Score:  float64(retryAt.Unix()),
		Member: data,
	}).Err()
	if err != nil {
		r.logger.Error("zadd retry", logger.Error(err))
	}
}

func (r *RedisQueue) moveToDeadLetterQueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal dlq", logger.Error(err))
		return
	}
	if err := r.client.LPush(context.Background(), r.deadLetterKey(), data).Err(); err != nil {
		r.logger.Error("lpush dlq", logger.Error(err))
	}
}

func (r *RedisQueue) retryProcessor() {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.processRetryMessages(r.ctx)
		}
	}
}

// processRetryMessages moves due retries back onto their queues.
func (r *RedisQueue) processRetryMessages(ctx context.Context) {
	due, err := r.client.ZRangeByScore(ctx, r.retryKey(), &redis.ZRangeBy{
		Min: "0",
		Max: strconv.FormatInt(r.now().Unix(), 10),
	}).Result()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Error("fetch retry messages", logger.Error(err))
		}
		return
	}

	for _, data := range due {
		var msg Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			r.logger.Error("unmarshal retry", logger.Error(err))
			r.client.ZRem(ctx, r.retryKey(), data)
			continue
		}

		pipe := r.client.TxPipeline()
		pipe.ZRem(ctx, r.retryKey(), data)
		pipe.LPush(ctx, r.queueKey(msg.Queue, msg.Exchange), data)
		if _, err := pipe.Exec(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.logger.Error("move retry to queue", logger.Error(err))
		}
	}
}

func (r *RedisQueue) queueKey(queue, exchange string) string {
	if exchange == "" {
		return fmt.Sprintf("%s:%s", r.keyPrefix, queue)
	}
	return fmt.Sprintf("%s:%s:%s", r.keyPrefix, exchange, queue)
}

func (r *RedisQueue) retryKey() string {
	return fmt.Sprintf("%s:retry", r.keyPrefix)
}

func (r *RedisQueue) deadLetterKey() string {
	return fmt.Sprintf("%s:dlq", r.keyPrefix)
}
