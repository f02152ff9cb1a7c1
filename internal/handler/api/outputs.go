package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"PipeKit/internal/domain/models"
	"PipeKit/internal/domain/service"
	xhttp "PipeKit/pkg/http"
	xlogger "PipeKit/pkg/logger"
)

const (
	codeUnknown      = "ERR_UNKNOWN"
	codeInvalidTrade = "ERR_INVALID_TRADE"
)

// OutputsHandler exposes the dispatcher over HTTP.
type OutputsHandler struct {
	logger     *xlogger.Logger
	dispatcher service.OutputDispatcher
}

func NewOutputsHandler(logger *xlogger.Logger, d service.OutputDispatcher) *OutputsHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &OutputsHandler{logger: logger.Named("api"), dispatcher: d}
}

func (h *OutputsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.POST("/outputs", h.Outputs)
	g.POST("/paper-trades", h.PaperTrades)
}

// Outputs dispatches {"records": [...]} and answers 202 once every sink has run.
func (h *OutputsHandler) Outputs(c echo.Context) error {
	req := &models.OutputRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	// a client hang-up must not abort queue retries
	h.dispatcher.Send(context.WithoutCancel(c.Request().Context()), req.Records)
	return xhttp.AcceptedResponse(c, models.AcceptedResult{Records: len(req.Records)})
}

// PaperTrades dispatches one simulated trade event.
func (h *OutputsHandler) PaperTrades(c echo.Context) error {
	var event models.Record
	if err := c.Bind(&event); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf(codeUnknown, "body must be a JSON object").WithError(err))
	}
	if !models.IsValidTradeEvent(event) {
		h.logger.Debug("rejected trade event", h.logger.Payload("event", event))
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf(codeInvalidTrade,
			"trade event needs symbol, action (BUY or SELL), quantity, price and timestamp"))
	}

	h.dispatcher.SendTradeSimulation(context.WithoutCancel(c.Request().Context()), event)
	return xhttp.AcceptedResponse(c, models.AcceptedResult{Records: 1})
}
