package repository

import (
	"context"

	"PipeKit/internal/domain/repository"
	pkgkafka "PipeKit/pkg/kafka"
	"PipeKit/pkg/queue"
)

// KafkaSource consumes one input topic.
type KafkaSource struct {
	consumer *pkgkafka.Consumer
	topic    string
}

// NewKafkaSource wraps a consumer for topic.
func NewKafkaSource(c *pkgkafka.Consumer, topic string) *KafkaSource {
	return &KafkaSource{consumer: c, topic: topic}
}

var _ repository.MessageSource = (*KafkaSource)(nil)

func (s *KafkaSource) Start(ctx context.Context, handle func(context.Context, []byte) error) error {
	s.consumer.RegisterHandler(pkgkafka.HandlerFunc(s.topic, handle))
	return s.consumer.Start(ctx)
}

func (s *KafkaSource) Stop(ctx context.Context) error { return s.consumer.Stop(ctx) }

// RedisSource consumes one Redis list.
type RedisSource struct {
	queue *queue.RedisQueue
	name  string
}

// NewRedisSource wraps a queue for the input list name.
func NewRedisSource(q *queue.RedisQueue, name string) *RedisSource {
	return &RedisSource{queue: q, name: name}
}

var _ repository.MessageSource = (*RedisSource)(nil)

func (s *RedisSource) Start(ctx context.Context, handle func(context.Context, []byte) error) error {
	s.queue.RegisterJob(queue.NewJob("dispatch", s.name, "", handle))
	return s.queue.Start(ctx)
}

func (s *RedisSource) Stop(ctx context.Context) error { return s.queue.Stop(ctx) }
