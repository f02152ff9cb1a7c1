package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"PipeKit/internal/domain/repository"
	"PipeKit/internal/usecase"
	"PipeKit/pkg/config"
	xhttp "PipeKit/pkg/http"
	applogger "PipeKit/pkg/logger"
)

// App runs the processing service: input queue consumer plus HTTP server.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	source     repository.MessageSource
	handler    *usecase.BatchHandler
	httpServer *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	source repository.MessageSource,
	handler *usecase.BatchHandler,
	httpServer *xhttp.Server,
) *App {
	return &App{
		cfg:        cfg,
		log:        l,
		source:     source,
		handler:    handler,
		httpServer: httpServer,
	}
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

func (a *App) run(ctx context.Context) error {
	logStartup(a.log, a.cfg)

	if err := a.source.Start(ctx, a.handler.Handle); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	a.log.Info("input consumer started",
		applogger.String("type", a.cfg.Queue.Type),
		applogger.String("queue", a.cfg.Queue.Input))

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown stops intake first so in-flight batches can finish dispatching.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}
	if err := a.source.Stop(ctx); err != nil {
		a.log.Warn("consumer stop error", applogger.Error(err))
	}
	a.log.RemoveCollector()

	a.log.Info("shutdown complete")
	return nil
}

// logStartup reports the enabled outputs and their settings. Sink locations and the
// insert statement pass through the logger's redaction; the statement only shows at debug.
func logStartup(l *applogger.Logger, cfg *config.Config) {
	modes := make([]string, 0, len(cfg.OutputModes()))
	for _, m := range cfg.OutputModes() {
		modes = append(modes, m.String())
	}
	l.Info("output dispatcher configured",
		applogger.String("environment", cfg.Environment),
		applogger.Strings("modes", modes),
		applogger.Bool("paper_trading", cfg.PaperTrading.Enabled),
		applogger.String("paper_trade_mode", cfg.PaperTrading.Mode))

	if cfg.Output.Queue.Name != "" {
		l.Info("queue output", applogger.String("queue", cfg.Output.Queue.Name), applogger.String("exchange", cfg.Output.Queue.Exchange))
	}
	if cfg.Output.REST.URL != "" {
		l.Info("rest output", applogger.String("url", l.Redact(cfg.Output.REST.URL)), applogger.Duration("timeout", cfg.Output.REST.Timeout))
	}
	if cfg.Output.S3.Bucket != "" {
		l.Info("s3 output", applogger.String("bucket", l.Redact(cfg.Output.S3.Bucket)), applogger.String("prefix", l.Redact(cfg.Output.S3.Prefix)))
	}
	if cfg.Output.Database.URL != "" {
		l.Info("database output", applogger.String("url", l.Redact(cfg.Output.Database.URL)))
		l.Debug("database insert statement", applogger.String("sql", l.Redact(cfg.Output.Database.InsertSQL)))
	}
}
