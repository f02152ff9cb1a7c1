package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T, cfg *QueueConfig) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisQueue(nil, cfg, client, WithKeyPrefix("test")), mr
}

func TestPublishPushesEnvelope(t *testing.T) {
	q, mr := newTestQueue(t, nil)
	ctx := context.Background()

	if err := q.Publish(ctx, "results", "analysis", []map[string]any{{"text": "hi"}}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	items, err := mr.List("test:analysis:results")
	if err != nil || len(items) != 1 {
		t.Fatalf("list = %v, %v", items, err)
	}
	var msg Message
	if err := json.Unmarshal([]byte(items[0]), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Queue != "results" || msg.Exchange != "analysis" || msg.ID == "" {
		t.Fatalf("envelope = %+v", msg)
	}
	if string(msg.Payload) != `[{"text":"hi"}]` {
		t.Fatalf("payload = %s", msg.Payload)
	}
}

func TestPublishWithoutExchangeAndRawPayload(t *testing.T) {
	q, mr := newTestQueue(t, nil)
	ctx := context.Background()

	if err := q.PublishMessage(ctx, "logs", json.RawMessage(`{"a":1}`)); err != nil {
		t.Fatalf("PublishMessage: %v", err)
	}
	items, err := mr.List("test:logs")
	if err != nil || len(items) != 1 {
		t.Fatalf("queued = %v, %v", items, err)
	}

	if err := q.Publish(ctx, "logs", "", []byte("not json")); err == nil {
		t.Fatalf("expected error for invalid raw payload")
	}
	if err := q.Publish(ctx, "", "", "x"); err == nil {
		t.Fatalf("expected error for empty queue name")
	}
}

func TestWorkerDeliversPayload(t *testing.T) {
	q, _ := newTestQueue(t, &QueueConfig{BlockTimeout: 50 * time.Millisecond})
	got := make(chan string, 1)
	q.RegisterJob(NewJob("collect", "input", "", func(_ context.Context, payload []byte) error {
		got <- string(payload)
		return nil
	}))

	ctx := context.Background()
	if err := q.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = q.Stop(context.Background()) }()

	if err := q.Publish(ctx, "input", "", map[string]string{"text": "hello"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case p := <-got:
		if p != `{"text":"hello"}` {
			t.Fatalf("payload = %s", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("message not delivered")
	}
}

func TestFailedMessageGoesToDeadLetters(t *testing.T) {
	q, mr := newTestQueue(t, &QueueConfig{RetryLimit: 0})
	job := NewJob("fail", "input", "", func(context.Context, []byte) error { return errors.New("bad batch") })
	q.ctx = context.Background()

	q.processMessage(Message{ID: "1", Queue: "input", Payload: json.RawMessage(`{}`)}, job)

	items, err := mr.List("test:dlq")
	if err != nil || len(items) != 1 {
		t.Fatalf("dead letters = %v, %v", items, err)
	}
}

func TestRetryIsRequeuedWhenDue(t *testing.T) {
	q, mr := newTestQueue(t, &QueueConfig{RetryLimit: 2, RetryDelay: time.Minute})
	base := time.Unix(1_700_000_000, 0)
	q.now = func() time.Time { return base }
	q.ctx = context.Background()

	job := NewJob("fail", "input", "ex", func(context.Context, []byte) error { return errors.New("flaky") })
	q.processMessage(Message{ID: "1", Queue: "input", Exchange: "ex", Payload: json.RawMessage(`{}`)}, job)

	ctx := context.Background()
	q.processRetryMessages(ctx)
	if items, _ := mr.List("test:ex:input"); len(items) != 0 {
		t.Fatalf("retry requeued before it was due")
	}

	q.now = func() time.Time { return base.Add(2 * time.Minute) }
	q.processRetryMessages(ctx)

	items, _ := mr.List("test:ex:input")
	if len(items) != 1 {
		t.Fatalf("requeued = %d, want 1", len(items))
	}
	var msg Message
	if err := json.Unmarshal([]byte(items[0]), &msg); err != nil || msg.Attempts != 1 {
		t.Fatalf("requeued message = %+v, %v", msg, err)
	}
}

func TestStartFailsWhenRedisIsDown(t *testing.T) {
	q, mr := newTestQueue(t, nil)
	mr.Close()

	if err := q.Start(context.Background()); err == nil {
		t.Fatalf("expected ping error")
	}
}
