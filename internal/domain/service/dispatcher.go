package service

import (
	"context"

	"PipeKit/internal/domain/models"
)

// OutputDispatcher delivers processed data to the configured outputs. Neither call
// returns an error: delivery failures are logged and counted by the implementation.
type OutputDispatcher interface {
	Send(ctx context.Context, batch models.Batch)
	SendTradeSimulation(ctx context.Context, record models.Record)
}

// Poller fetches the samples for one symbol.
type Poller interface {
	Poll(ctx context.Context, symbol string) (models.Batch, error)
}

// RateLimiter blocks until a call for key is allowed.
type RateLimiter interface {
	Wait(ctx context.Context, key string) error
}
