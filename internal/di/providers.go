package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"PipeKit/internal/domain/models"
	"PipeKit/internal/domain/repository"
	"PipeKit/internal/domain/service"
	"PipeKit/internal/handler/api"
	"PipeKit/internal/output"
	internalrepo "PipeKit/internal/repository"
	"PipeKit/internal/service/poller"
	"PipeKit/internal/service/ratelimit"
	"PipeKit/internal/usecase"
	"PipeKit/pkg/config"
	"PipeKit/pkg/database"
	xhttp "PipeKit/pkg/http"
	pkgkafka "PipeKit/pkg/kafka"
	"PipeKit/pkg/logger"
	"PipeKit/pkg/metrics"
	"PipeKit/pkg/queue"
	pkgs3 "PipeKit/pkg/s3"
	"PipeKit/pkg/server"
)

// QueuePublisher is a batch publisher that can also carry the log collector.
type QueuePublisher interface {
	repository.Publisher
	queue.QueueService
}

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		Redact: cfg.Logging.Redact,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.Named(cfg.Service), nil
}

// ProvideRegistry creates the Prometheus registry served on the metrics path.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// ProvideMetrics creates the dispatch metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.New(reg)
}

// ProvideRedisClient creates a Redis client. Connections are opened lazily.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, func()) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return rdb, func() { _ = rdb.Close() }
}

func redisQueueConfig(cfg *config.Config) *queue.QueueConfig {
	return &queue.QueueConfig{
		Workers:      cfg.Redis.Workers,
		RetryLimit:   cfg.Redis.RetryLimit,
		RetryDelay:   cfg.Redis.RetryDelay,
		BlockTimeout: cfg.Redis.BlockTimeout,
	}
}

// ProvidePublisher creates the queue publisher for the configured queue type and
// attaches the error log collector to it. Output queue settings are the default
// target of a publish.
func ProvidePublisher(cfg *config.Config, lgr *logger.Logger, rdb *redis.Client, reg *prometheus.Registry) (QueuePublisher, func(), error) {
	pub, cleanup, err := newPublisher(cfg, lgr, rdb, reg)
	if err != nil {
		return nil, nil, err
	}
	attachCollector(cfg, lgr, pub)
	return pub, cleanup, nil
}

func newPublisher(cfg *config.Config, lgr *logger.Logger, rdb *redis.Client, reg *prometheus.Registry) (QueuePublisher, func(), error) {
	defaults := internalrepo.QueueDefaults{Queue: cfg.Output.Queue.Name, Exchange: cfg.Output.Queue.Exchange}

	switch cfg.Queue.Type {
	case "redis":
		q := queue.NewRedisQueue(lgr, redisQueueConfig(cfg), rdb, queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
		pub := internalrepo.NewRedisPublisher(q, defaults)
		return pub, func() {}, nil
	default:
		pkgkafka.SetMetricsRegisterer(reg)
		producer, err := pkgkafka.NewProducer(
			pkgkafka.WithBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithCompression(cfg.Kafka.Compression),
			pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
			pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
			pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
			pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
			pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
			pkgkafka.WithHashByKey(true),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("kafka producer: %w", err)
		}
		pub := internalrepo.NewKafkaPublisher(producer, defaults)
		return pub, func() {
			if err := pub.Close(); err != nil {
				lgr.Warn("kafka producer close", logger.Error(err))
			}
		}, nil
	}
}

// ProvideMessageSource creates the input queue consumer.
func ProvideMessageSource(cfg *config.Config, lgr *logger.Logger, rdb *redis.Client, reg *prometheus.Registry) (repository.MessageSource, error) {
	switch cfg.Queue.Type {
	case "redis":
		q := queue.NewRedisQueue(lgr, redisQueueConfig(cfg), rdb, queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
		return internalrepo.NewRedisSource(q, cfg.Queue.Input), nil
	default:
		pkgkafka.SetMetricsRegisterer(reg)
		consumer, err := pkgkafka.NewConsumer(
			pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
			pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
			pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
			pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
			pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
			pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
			pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
			pkgkafka.WithConsumerLogger(lgr),
		)
		if err != nil {
			return nil, fmt.Errorf("kafka consumer: %w", err)
		}
		return internalrepo.NewKafkaSource(consumer, cfg.Queue.Input), nil
	}
}

// ProvideRESTPoster returns nil when no mode posts to REST.
func ProvideRESTPoster(cfg *config.Config) repository.RESTPoster {
	if !cfg.NeedsMode(models.ModeREST) {
		return nil
	}
	return internalrepo.NewRESTPoster(xhttp.NewClient(xhttp.WithTimeout(cfg.Output.REST.Timeout)))
}

// ProvideObjectStore returns nil when no mode writes to S3.
func ProvideObjectStore(cfg *config.Config) (repository.ObjectStore, error) {
	if !cfg.NeedsMode(models.ModeS3) {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgs3.NewClient(ctx,
		pkgs3.WithRegion(cfg.Output.S3.Region),
		pkgs3.WithEndpoint(cfg.Output.S3.Endpoint, cfg.Output.S3.UsePathStyle),
	)
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return internalrepo.NewS3ObjectStore(client), nil
}

// ProvideDatabase opens the output database when the database mode or paper trade
// persistence needs it. It returns nil otherwise.
func ProvideDatabase(cfg *config.Config) (*database.Client, func(), error) {
	if !cfg.NeedsMode(models.ModeDatabase) && !(cfg.PaperTrading.DatabaseEnabled && cfg.Output.Database.URL != "") {
		return nil, func() {}, nil
	}
	client, err := database.NewClient(
		database.WithURL(cfg.Output.Database.URL),
		database.WithMaxConnections(cfg.Output.Database.MaxOpenConns, cfg.Output.Database.MaxIdleConns),
		database.WithDialTimeout(cfg.Output.Database.DialTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("database client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideRecordWriter returns nil when no database is open.
func ProvideRecordWriter(db *database.Client) repository.RecordWriter {
	if db == nil {
		return nil
	}
	return internalrepo.NewSQLRecordWriter(db.DB(), db.Driver())
}

// ProvideDispatcher creates the output dispatcher from the validated config.
func ProvideDispatcher(
	cfg *config.Config,
	lgr *logger.Logger,
	m repository.Metrics,
	pub QueuePublisher,
	rest repository.RESTPoster,
	store repository.ObjectStore,
	db repository.RecordWriter,
) *output.Dispatcher {
	var publisher repository.Publisher
	if pub != nil {
		publisher = pub
	}
	return output.New(output.Config{
		Modes:             cfg.OutputModes(),
		RequiredKeys:      cfg.Output.RequiredKeys,
		Queue:             output.QueueTarget{Name: cfg.Output.Queue.Name, Exchange: cfg.Output.Queue.Exchange},
		RESTURL:           cfg.Output.REST.URL,
		RESTTimeout:       cfg.Output.REST.Timeout,
		S3Bucket:          cfg.Output.S3.Bucket,
		S3Prefix:          cfg.Output.S3.Prefix,
		DatabaseInsertSQL: cfg.Output.Database.InsertSQL,
		PaperTrading: output.PaperTrading{
			Enabled:         cfg.PaperTrading.Enabled,
			Mode:            cfg.PaperTrading.Mode,
			DatabaseEnabled: cfg.PaperTrading.DatabaseEnabled,
			Queue:           output.QueueTarget{Name: cfg.PaperTrading.Queue.Name, Exchange: cfg.PaperTrading.Queue.Exchange},
			InsertSQL:       cfg.PaperTrading.InsertSQL,
		},
	}, output.Deps{
		Logger:    lgr,
		Metrics:   m,
		Publisher: publisher,
		REST:      rest,
		Store:     store,
		DB:        db,
	})
}

// ProvideOutputDispatcher exposes the dispatcher through its domain interface.
func ProvideOutputDispatcher(d *output.Dispatcher) service.OutputDispatcher {
	return d
}

// ProvideBatchHandler creates the input queue handler.
func ProvideBatchHandler(d service.OutputDispatcher, lgr *logger.Logger) *usecase.BatchHandler {
	return usecase.NewBatchHandler(d, lgr)
}

// ProvideHTTPHandlers lists the route groups of the processing service.
func ProvideHTTPHandlers(lgr *logger.Logger, d service.OutputDispatcher) []xhttp.Handler {
	return []xhttp.Handler{api.NewOutputsHandler(lgr, d)}
}

// ProvideHTTPServer creates the echo server with health and metrics routes.
func ProvideHTTPServer(cfg *config.Config, lgr *logger.Logger, reg *prometheus.Registry, handlers []xhttp.Handler) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(lgr),
	}
	path := ""
	if cfg.Metrics.Enabled {
		path = cfg.Metrics.Path
	}
	opts = append(opts, xhttp.WithMetrics(path, reg, reg))
	return xhttp.NewServer(handlers, opts...)
}

// ProvideApp creates the processing service.
func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	source repository.MessageSource,
	handler *usecase.BatchHandler,
	srv *xhttp.Server,
) *server.App {
	return server.New(cfg, lgr, source, handler, srv)
}

// ProvidePollerSource creates the configured poller.
func ProvidePollerSource(cfg *config.Config, lgr *logger.Logger) (poller.Poller, func(), error) {
	p, err := poller.New(poller.Config{
		Type:           cfg.Poller.Type,
		URL:            cfg.Poller.URL,
		APIKey:         cfg.Poller.APIKey,
		Symbols:        cfg.Poller.Symbols,
		RequestTimeout: cfg.Poller.RequestTimeout,
		PingInterval:   cfg.Poller.PingInterval,
	}, lgr)
	if err != nil {
		return nil, nil, err
	}
	return p, func() { _ = p.Close() }, nil
}

// ProvideRateLimiter creates the per-symbol limiter: capacity tokens, one more per refill period.
func ProvideRateLimiter(cfg *config.Config) service.RateLimiter {
	perSec := 1.0
	if cfg.Poller.RateLimit.Refill > 0 {
		perSec = 1 / cfg.Poller.RateLimit.Refill.Seconds()
	}
	return ratelimit.New(float64(cfg.Poller.RateLimit.Capacity), perSec)
}

// ProvidePoller creates the poll loop.
func ProvidePoller(cfg *config.Config, src poller.Poller, limiter service.RateLimiter, pub QueuePublisher, lgr *logger.Logger) *usecase.Poller {
	target := cfg.Poller.Output
	if target.Name == "" {
		target = cfg.Output.Queue
	}
	return usecase.NewPoller(usecase.PollerConfig{
		Symbols:    cfg.Poller.Symbols,
		Interval:   cfg.Poller.Interval,
		RetryDelay: cfg.Poller.RetryDelay,
		Queue:      target.Name,
		Exchange:   target.Exchange,
	}, src, limiter, pub, lgr)
}

// ProvidePollerApp creates the poller service. Its HTTP server only serves health and metrics.
func ProvidePollerApp(cfg *config.Config, lgr *logger.Logger, p *usecase.Poller, reg *prometheus.Registry) *server.PollerApp {
	return server.NewPollerApp(cfg, lgr, p, ProvideHTTPServer(cfg, lgr, reg, nil))
}

func attachCollector(cfg *config.Config, lgr *logger.Logger, pub queue.QueueService) {
	if cfg.Logging.Collector.Topic == "" || pub == nil {
		return
	}
	lgr.AddCollector(&logger.CollectionConfig{
		TimeInterval:   cfg.Logging.Collector.Interval,
		CountThreshold: cfg.Logging.Collector.MaxBatch,
		Topic:          cfg.Logging.Collector.Topic,
		Publisher:      pub,
	})
}
