// Package output routes processed batches to the configured sinks.
//
// The Dispatcher is the last stage of a pipeline service: analysis workers and
// queue consumers hand it a batch and move on. Delivery problems end in a log
// line and a metric, never in an error returned to the caller.
package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"PipeKit/internal/domain/models"
	"PipeKit/internal/domain/repository"
	"PipeKit/pkg/logger"
)

// QueueTarget names the queue and exchange a publish goes to.
type QueueTarget struct {
	Name     string
	Exchange string
}

// PaperTrading controls the simulation override.
type PaperTrading struct {
	Enabled         bool
	Mode            string // output mode used for every batch while Enabled
	DatabaseEnabled bool   // SendTradeSimulation writes to the database instead of the queue
	Queue           QueueTarget
	InsertSQL       string
}

// Config is read once by New. Modes keeps its configured order.
type Config struct {
	Modes             []models.OutputMode
	RequiredKeys      []string
	Queue             QueueTarget
	RESTURL           string
	RESTTimeout       time.Duration
	S3Bucket          string
	S3Prefix          string
	DatabaseInsertSQL string
	PaperTrading      PaperTrading
}

// Deps are the collaborators behind each sink. A nil collaborator leaves its mode
// without a handler.
type Deps struct {
	Logger    *logger.Logger
	Metrics   repository.Metrics
	Publisher repository.Publisher
	REST      repository.RESTPoster
	Store     repository.ObjectStore
	DB        repository.RecordWriter
	Stdout    io.Writer
}

// Option tweaks a Dispatcher, mostly for tests.
type Option func(*Dispatcher)

// WithSleeper replaces the wait used between queue publish attempts.
func WithSleeper(s Sleeper) Option {
	return func(d *Dispatcher) { d.sleep = s }
}

// WithKeyFunc replaces the unique id generator used for object keys.
func WithKeyFunc(fn func() string) Option {
	return func(d *Dispatcher) { d.newKey = fn }
}

// WithClock replaces the time source used for dispatch durations.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

type sinkFunc func(ctx context.Context, batch models.Batch) error

// Dispatcher delivers batches to every enabled output mode.
type Dispatcher struct {
	cfg      Config
	modes    []models.OutputMode
	required []string
	handlers map[models.OutputMode]sinkFunc

	paperMode   models.OutputMode
	paperModeOK bool

	log       *logger.Logger
	metrics   repository.Metrics
	publisher repository.Publisher
	rest      repository.RESTPoster
	store     repository.ObjectStore
	db        repository.RecordWriter
	stdout    io.Writer

	metricTable map[string]func(destination string, n int)

	sleep  Sleeper
	newKey func() string
	now    func() time.Time
}

// New builds a dispatcher. An empty mode list is accepted; Send warns about it.
func New(cfg Config, deps Deps, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:       cfg,
		modes:     append([]models.OutputMode(nil), cfg.Modes...),
		required:  cfg.RequiredKeys,
		log:       deps.Logger,
		metrics:   deps.Metrics,
		publisher: deps.Publisher,
		rest:      deps.REST,
		store:     deps.Store,
		db:        deps.DB,
		stdout:    deps.Stdout,
		sleep:     SleepContext,
		newKey:    newObjectID,
		now:       time.Now,
	}
	if d.required == nil {
		d.required = models.DefaultRequiredKeys
	}
	if d.log == nil {
		d.log = logger.Nop()
	}
	d.log = d.log.Named("output")
	if d.metrics == nil {
		d.metrics = nopMetrics{}
	}
	if d.stdout == nil {
		d.stdout = os.Stdout
	}
	if d.cfg.RESTTimeout <= 0 {
		d.cfg.RESTTimeout = defaultRESTTimeout
	}
	for _, opt := range opts {
		opt(d)
	}

	if cfg.PaperTrading.Enabled {
		if m, err := models.ParseOutputMode(cfg.PaperTrading.Mode); err == nil {
			d.paperMode, d.paperModeOK = m, true
		}
	}

	d.handlers = d.buildHandlers()
	d.metricTable = d.buildMetricTable()
	return d
}

// Modes returns the configured modes in order.
func (d *Dispatcher) Modes() []models.OutputMode {
	return append([]models.OutputMode(nil), d.modes...)
}

func (d *Dispatcher) buildHandlers() map[models.OutputMode]sinkFunc {
	h := map[models.OutputMode]sinkFunc{
		models.ModeLog:    d.outputToLog,
		models.ModeStdout: d.outputToStdout,
	}
	if d.publisher != nil {
		h[models.ModeQueue] = d.outputToQueue
	}
	if d.rest != nil {
		h[models.ModeREST] = d.outputToREST
	}
	if d.store != nil {
		h[models.ModeS3] = d.outputToS3
	}
	if d.db != nil {
		h[models.ModeDatabase] = d.outputToDatabase
	}
	return h
}

func (d *Dispatcher) handlerFor(mode models.OutputMode) (sinkFunc, bool) {
	h, ok := d.handlers[mode]
	return h, ok
}

type outcome struct {
	mode models.OutputMode
	err  error
}

// Send validates the batch and hands it to each enabled sink in configured order.
// Nothing is returned: failures are logged and counted.
func (d *Dispatcher) Send(ctx context.Context, batch models.Batch) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("failed to send output", logger.Error(fmt.Errorf("panic: %v", r)))
		}
	}()

	if err := models.ValidateBatch(batch, d.required); err != nil {
		d.log.Error("batch validation failed",
			logger.Error(err),
			logger.Int("records", len(batch)))
		return
	}
	if batch == nil {
		batch = models.Batch{}
	}

	if d.cfg.PaperTrading.Enabled {
		d.log.Debug("paper trading enabled, dispatching to paper mode",
			logger.String("mode", d.cfg.PaperTrading.Mode))
		h, ok := d.paperHandler()
		if !ok {
			d.log.Warn("invalid paper trading output mode",
				logger.String("mode", d.cfg.PaperTrading.Mode))
			return
		}
		d.summarize([]outcome{d.run(ctx, d.paperMode, h, batch)}, len(batch))
		return
	}

	if len(d.modes) == 0 {
		d.log.Warn("no output modes configured, batch dropped", logger.Int("records", len(batch)))
		return
	}

	outcomes := make([]outcome, 0, len(d.modes))
	for _, mode := range d.modes {
		h, ok := d.handlerFor(mode)
		if !ok {
			d.log.Warn("unhandled output mode", logger.String("mode", mode.String()))
			outcomes = append(outcomes, outcome{mode: mode, err: fmt.Errorf("%w: no handler for %s", models.ErrConfiguration, mode)})
			continue
		}
		outcomes = append(outcomes, d.run(ctx, mode, h, batch))
	}
	d.summarize(outcomes, len(batch))
}

func (d *Dispatcher) paperHandler() (sinkFunc, bool) {
	if !d.paperModeOK {
		return nil, false
	}
	return d.handlerFor(d.paperMode)
}

// run isolates one sink so a panic or error there leaves the others untouched.
func (d *Dispatcher) run(ctx context.Context, mode models.OutputMode, h sinkFunc, batch models.Batch) (out outcome) {
	out.mode = mode
	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("%s sink panic: %v", mode, r)
			d.log.Error("failed to send output", logger.String("mode", mode.String()), logger.Error(out.err))
		}
	}()

	out.err = h(ctx, batch)
	var sinkErr *models.SinkError
	if out.err != nil && !errors.As(out.err, &sinkErr) {
		// sink errors are logged where they happen
		d.log.Error("failed to send output", logger.String("mode", mode.String()), logger.Error(out.err))
	}
	return out
}

func (d *Dispatcher) summarize(outcomes []outcome, records int) {
	var ok, failed []string
	for _, o := range outcomes {
		if o.err != nil {
			failed = append(failed, o.mode.String())
		} else {
			ok = append(ok, o.mode.String())
		}
	}
	fields := []logger.Field{
		logger.Int("records", records),
		logger.String("delivered", strings.Join(ok, ",")),
		logger.String("failed", strings.Join(failed, ",")),
	}
	if len(failed) > 0 {
		d.log.Warn("dispatch finished with failures", fields...)
		return
	}
	d.log.Debug("dispatch finished", fields...)
}

// SendTradeSimulation routes one simulated trade to the database or the paper
// trading queue. Failures are logged and counted, never returned.
func (d *Dispatcher) SendTradeSimulation(ctx context.Context, record models.Record) {
	destination := destinationQueue
	if d.cfg.PaperTrading.DatabaseEnabled {
		destination = destinationDatabase
	}

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("failed to send paper trade", logger.Error(fmt.Errorf("panic: %v", r)))
			d.recordMetric(metricPaperTradeFailure, destination, 1)
		}
	}()

	var err error
	if destination == destinationDatabase {
		err = d.paperTradeToDatabase(ctx, record)
	} else {
		err = d.paperTradeToQueue(ctx, record)
	}
	if err != nil {
		d.log.Error("failed to send paper trade",
			logger.String("destination", destination),
			logger.Error(err))
		d.recordMetric(metricPaperTradeFailure, destination, 1)
	}
}
