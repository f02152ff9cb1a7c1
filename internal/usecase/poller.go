package usecase

import (
	"context"
	"errors"
	"time"

	"PipeKit/internal/domain/models"
	"PipeKit/internal/domain/repository"
	"PipeKit/internal/domain/service"
	"PipeKit/pkg/logger"
)

// PollerConfig drives the poll loop.
type PollerConfig struct {
	Symbols    []string
	Interval   time.Duration
	RetryDelay time.Duration
	Queue      string
	Exchange   string
}

// Poller polls every symbol in turn and publishes the samples to the output queue.
type Poller struct {
	cfg       PollerConfig
	source    service.Poller
	limiter   service.RateLimiter
	publisher repository.Publisher
	log       *logger.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewPoller creates the poll loop. limiter may be nil.
func NewPoller(cfg PollerConfig, source service.Poller, limiter service.RateLimiter, pub repository.Publisher, lgr *logger.Logger) *Poller {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &Poller{
		cfg:       cfg,
		source:    source,
		limiter:   limiter,
		publisher: pub,
		log:       lgr.Named("poller"),
		sleep:     sleepContext,
	}
}

// Run polls until ctx is done. It returns nil on cancellation.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("poller started",
		logger.Strings("symbols", p.cfg.Symbols),
		logger.Duration("interval", p.cfg.Interval),
		logger.String("queue", p.cfg.Queue))

	for {
		p.round(ctx)
		if err := p.sleep(ctx, p.cfg.Interval); err != nil {
			p.log.Info("poller stopped")
			return nil
		}
	}
}

// round makes one pass over the symbols.
func (p *Poller) round(ctx context.Context) {
	for _, symbol := range p.cfg.Symbols {
		if ctx.Err() != nil {
			return
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx, symbol); err != nil {
				return
			}
		}

		batch, err := p.source.Poll(ctx, symbol)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.log.Warn("poll failed", logger.String("symbol", symbol), logger.Error(err))
			if p.sleep(ctx, p.cfg.RetryDelay) != nil {
				return
			}
			continue
		}
		if len(batch) == 0 {
			continue
		}
		if !models.IsValidBatch(batch) {
			p.log.Warn("poll returned invalid samples", logger.String("symbol", symbol), logger.Int("records", len(batch)))
			continue
		}

		if err := p.publisher.Publish(ctx, batch, p.cfg.Queue, p.cfg.Exchange); err != nil {
			p.log.Error("publish poll result", logger.String("symbol", symbol), logger.Error(err))
			continue
		}
		p.log.Debug("poll result published", logger.String("symbol", symbol), logger.Int("records", len(batch)))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
