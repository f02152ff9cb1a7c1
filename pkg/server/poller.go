package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"PipeKit/internal/usecase"
	"PipeKit/pkg/config"
	xhttp "PipeKit/pkg/http"
	applogger "PipeKit/pkg/logger"
)

// PollerApp runs the poll loop next to a health and metrics server.
type PollerApp struct {
	cfg        *config.Config
	log        *applogger.Logger
	poller     *usecase.Poller
	httpServer *xhttp.Server
}

// NewPollerApp creates the poller service.
func NewPollerApp(cfg *config.Config, l *applogger.Logger, p *usecase.Poller, httpServer *xhttp.Server) *PollerApp {
	return &PollerApp{cfg: cfg, log: l, poller: p, httpServer: httpServer}
}

// Run polls until SIGINT or SIGTERM.
func (a *PollerApp) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.httpServer.Start(); err != nil {
		return err
	}
	err := a.poller.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if serr := a.httpServer.Stop(shutdownCtx); serr != nil {
		a.log.Error("http shutdown error", applogger.Error(serr))
	}
	a.log.RemoveCollector()
	return err
}
