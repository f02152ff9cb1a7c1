package usecase

import (
	"context"
	"fmt"

	"PipeKit/internal/domain/models"
	"PipeKit/internal/domain/service"
	"PipeKit/pkg/logger"
)

// BatchHandler decodes queue payloads and hands them to the dispatcher.
type BatchHandler struct {
	dispatcher service.OutputDispatcher
	log        *logger.Logger
}

// NewBatchHandler creates a handler for the input queue.
func NewBatchHandler(d service.OutputDispatcher, lgr *logger.Logger) *BatchHandler {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &BatchHandler{dispatcher: d, log: lgr.Named("batch")}
}

// Handle accepts a JSON array of records or a single record. Only decode errors are
// returned; delivery is the dispatcher's concern.
func (h *BatchHandler) Handle(ctx context.Context, payload []byte) error {
	batch, err := models.DecodeBatch(payload)
	if err != nil {
		h.log.Warn("undecodable batch", logger.Error(err), logger.Int("bytes", len(payload)))
		return fmt.Errorf("decode payload: %w", err)
	}
	if len(batch) == 0 {
		h.log.Debug("empty batch ignored")
		return nil
	}
	h.dispatcher.Send(ctx, batch)
	return nil
}
