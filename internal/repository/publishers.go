package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"PipeKit/internal/domain/models"
	"PipeKit/internal/domain/repository"
	pkgkafka "PipeKit/pkg/kafka"
)

const (
	headerExchange  = "exchange"
	headerMessageID = "message_id"
)

type kafkaProducer interface {
	Publish(ctx context.Context, topic string, msg pkgkafka.Message) error
	Close() error
}

// KafkaPublisher publishes a batch as one JSON message; the queue name is the topic
// and the exchange travels as a header.
type KafkaPublisher struct {
	producer kafkaProducer
	defaults QueueDefaults
}

// QueueDefaults fill in an empty queue or exchange on Publish.
type QueueDefaults struct {
	Queue    string
	Exchange string
}

func (d QueueDefaults) resolve(queue, exchange string) (string, string, error) {
	if queue == "" {
		queue = d.Queue
	}
	if exchange == "" {
		exchange = d.Exchange
	}
	if queue == "" {
		return "", "", fmt.Errorf("%w: queue name is empty", models.ErrConfiguration)
	}
	return queue, exchange, nil
}

// NewKafkaPublisher wraps a producer.
func NewKafkaPublisher(p kafkaProducer, defaults QueueDefaults) *KafkaPublisher {
	return &KafkaPublisher{producer: p, defaults: defaults}
}

var _ repository.Publisher = (*KafkaPublisher)(nil)

func (k *KafkaPublisher) Publish(ctx context.Context, batch models.Batch, queue, exchange string) error {
	queue, exchange, err := k.defaults.resolve(queue, exchange)
	if err != nil {
		return err
	}
	return k.producer.Publish(ctx, queue, pkgkafka.Message{
		Key:   []byte(exchange),
		Value: batch,
		Headers: map[string]string{
			headerExchange:  exchange,
			headerMessageID: uuid.NewString(),
		},
	})
}

// PublishMessage sends an arbitrary payload; the log collector ships through it.
func (k *KafkaPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return k.producer.Publish(ctx, topic, pkgkafka.Message{Value: payload})
}

func (k *KafkaPublisher) Close() error { return k.producer.Close() }

type redisQueue interface {
	Publish(ctx context.Context, queue, exchange string, payload interface{}) error
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
	Stop(ctx context.Context) error
}

// RedisPublisher pushes a batch onto the Redis list for queue and exchange.
type RedisPublisher struct {
	queue    redisQueue
	defaults QueueDefaults
}

// NewRedisPublisher wraps a started queue.
func NewRedisPublisher(q redisQueue, defaults QueueDefaults) *RedisPublisher {
	return &RedisPublisher{queue: q, defaults: defaults}
}

var _ repository.Publisher = (*RedisPublisher)(nil)

func (r *RedisPublisher) Publish(ctx context.Context, batch models.Batch, queue, exchange string) error {
	queue, exchange, err := r.defaults.resolve(queue, exchange)
	if err != nil {
		return err
	}
	return r.queue.Publish(ctx, queue, exchange, batch)
}

// PublishMessage sends an arbitrary payload; the log collector ships through it.
func (r *RedisPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return r.queue.PublishMessage(ctx, topic, payload)
}

func (r *RedisPublisher) Close() error { return r.queue.Stop(context.Background()) }
