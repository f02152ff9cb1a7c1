// Package poller fetches market samples from an external source, one symbol at a time.
package poller

import (
	"context"
	"fmt"
	"time"

	"PipeKit/internal/domain/models"
	pkghttp "PipeKit/pkg/http"
	"PipeKit/pkg/logger"
)

// Poller returns the samples available for symbol since the previous call.
type Poller interface {
	Poll(ctx context.Context, symbol string) (models.Batch, error)
	Close() error
}

// Type names a poller implementation.
const (
	TypeHTTP      = "http"
	TypeWebsocket = "websocket"
)

// Config selects and configures a poller.
type Config struct {
	Type           string
	URL            string
	APIKey         string
	Symbols        []string
	RequestTimeout time.Duration
	PingInterval   time.Duration
}

// New builds the poller named by cfg.Type.
func New(cfg Config, lgr *logger.Logger) (Poller, error) {
	if lgr == nil {
		lgr = logger.Nop()
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: poller url is required", models.ErrConfiguration)
	}
	switch cfg.Type {
	case TypeHTTP:
		return NewHTTPPoller(pkghttp.NewClient(pkghttp.WithTimeout(cfg.RequestTimeout)), cfg.URL, cfg.APIKey), nil
	case TypeWebsocket:
		return NewWebsocketPoller(cfg.URL, cfg.APIKey, cfg.Symbols, cfg.PingInterval, lgr), nil
	default:
		return nil, fmt.Errorf("%w: unsupported poller %q", models.ErrConfiguration, cfg.Type)
	}
}

// stamp fills symbol and timestamp on samples that lack them.
func stamp(batch models.Batch, symbol string, now time.Time) {
	for _, r := range batch {
		if r == nil {
			continue
		}
		if _, ok := r["symbol"]; !ok {
			r["symbol"] = symbol
		}
		if _, ok := r["timestamp"]; !ok {
			r["timestamp"] = now.Unix()
		}
	}
}
