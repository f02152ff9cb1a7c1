package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// QueueService publishes a payload to a topic. The log collector ships through it.
type QueueService interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

// QueueConfig contains the configuration for the queue
type QueueConfig struct {
	Workers      int           // workers per subscribed queue
	RetryLimit   int           // redeliveries before a message goes to the dead letter list
	RetryDelay   time.Duration // delay before a failed message is redelivered
	BlockTimeout time.Duration // BRPOP wait per poll
}

// Message is the envelope stored in Redis lists.
type Message struct {
	ID        string          `json:"id"`
	Queue     string          `json:"queue"`
	Exchange  string          `json:"exchange,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
}

func encodePayload(payload interface{}) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, fmt.Errorf("payload is not valid json")
		}
		return p, nil
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		return b, nil
	}
}
