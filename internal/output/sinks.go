package output

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"PipeKit/internal/domain/models"
	"PipeKit/pkg/logger"
	"PipeKit/pkg/metrics"

	"github.com/google/uuid"
)

const (
	sinkREST     = "rest"
	sinkS3       = "s3"
	sinkDatabase = "database"

	statusException = "exception"
	statusSuccess   = "success"
	statusS3OK      = "200"
)

var restHeaders = map[string]string{"Content-Type": "application/json"}

func newObjectID() string { return uuid.NewString() }

func (d *Dispatcher) outputToLog(_ context.Context, batch models.Batch) error {
	for _, item := range batch {
		pretty, err := item.Pretty()
		if err != nil {
			return err
		}
		d.log.Info("processed message", logger.String("record", pretty))
	}
	return nil
}

func (d *Dispatcher) outputToStdout(_ context.Context, batch models.Batch) error {
	for _, item := range batch {
		pretty, err := item.Pretty()
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(d.stdout, pretty); err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}
	}
	return nil
}

func (d *Dispatcher) outputToQueue(ctx context.Context, batch models.Batch) error {
	attempts, err := retry(ctx, queueAttempts, d.sleep, func(attempt int) error {
		perr := d.publisher.Publish(ctx, batch, d.cfg.Queue.Name, d.cfg.Queue.Exchange)
		if perr != nil {
			d.log.Warn("queue publish attempt failed",
				logger.Int("attempt", attempt),
				logger.Error(perr))
		}
		return perr
	})
	if err != nil {
		return &models.TransientSinkError{Mode: models.ModeQueue, Attempts: attempts, Err: err}
	}

	d.log.Info("output published to queue", logger.Int("messages", len(batch)))
	d.recordMetric(metricOutputQueueSuccess, destinationQueue, len(batch))
	return nil
}

func (d *Dispatcher) outputToREST(ctx context.Context, batch models.Batch) error {
	url := d.cfg.RESTURL
	if url == "" {
		return d.restFailure(statusException, fmt.Errorf("%w: rest output url is empty", models.ErrConfiguration))
	}

	start := d.now()
	resp, err := d.rest.PostJSON(ctx, url, batch, restHeaders, d.cfg.RESTTimeout)
	if err != nil {
		return d.restFailure(statusException, err)
	}

	status := metrics.StatusLabel(resp.StatusCode)
	d.metrics.ObserveDispatch(sinkREST, status, d.now().Sub(start))

	if !resp.OK() {
		return d.restFailure(status, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	d.log.Info("sent data to rest", logger.Int("status", resp.StatusCode))
	d.metrics.IncDispatch(sinkREST, status)
	return nil
}

func (d *Dispatcher) restFailure(status string, err error) error {
	d.log.Error("rest output failed", logger.String("status", status), logger.Error(err))
	d.metrics.IncDispatchFailure(sinkREST, status)
	return &models.SinkError{Mode: models.ModeREST, Status: status, Err: err}
}

// objectKey builds "<prefix>/outputs/<id>.json"; without a prefix it is "outputs/<id>.json".
func (d *Dispatcher) objectKey() string {
	return path.Join(d.cfg.S3Prefix, "outputs", d.newKey()+".json")
}

func (d *Dispatcher) outputToS3(ctx context.Context, batch models.Batch) error {
	bucket := d.cfg.S3Bucket
	key := d.objectKey()

	start := d.now()
	err := func() error {
		if bucket == "" {
			return fmt.Errorf("%w: s3 output bucket is empty", models.ErrConfiguration)
		}
		body, err := json.Marshal(batch)
		if err != nil {
			return fmt.Errorf("marshal batch: %w", err)
		}
		return d.store.PutObject(ctx, bucket, key, body)
	}()
	if err != nil {
		d.log.Error("s3 upload failed", logger.Error(err))
		d.metrics.IncDispatchFailure(sinkS3, statusException)
		return &models.SinkError{Mode: models.ModeS3, Status: statusException, Err: err}
	}

	d.metrics.ObserveDispatch(sinkS3, statusS3OK, d.now().Sub(start))
	d.metrics.IncDispatch(sinkS3, statusS3OK)
	d.log.Info("uploaded output to s3", logger.String("bucket", bucket), logger.String("key", key))
	return nil
}

func (d *Dispatcher) outputToDatabase(ctx context.Context, batch models.Batch) error {
	start := d.now()
	written, err := d.writeRecords(ctx, d.cfg.DatabaseInsertSQL, batch)
	if err != nil {
		d.log.Error("database output failed", logger.Error(err))
		d.metrics.IncDispatchFailure(sinkDatabase, statusException)
		return &models.SinkError{Mode: models.ModeDatabase, Status: statusException, Err: err}
	}

	d.metrics.ObserveDispatch(sinkDatabase, statusSuccess, d.now().Sub(start))
	d.metrics.IncDispatch(sinkDatabase, statusSuccess)
	d.log.Info("wrote records to database", logger.Int("records", written))
	return nil
}

func (d *Dispatcher) writeRecords(ctx context.Context, insertSQL string, batch models.Batch) (int, error) {
	if insertSQL == "" {
		return 0, fmt.Errorf("%w: insert statement is empty", models.ErrConfiguration)
	}
	return d.db.WriteRecords(ctx, insertSQL, batch, func(i int) {
		d.log.Warn("invalid item in database batch", logger.Int("index", i))
	})
}

func (d *Dispatcher) paperTradeToQueue(ctx context.Context, record models.Record) error {
	if d.publisher == nil {
		return fmt.Errorf("%w: no queue publisher for paper trades", models.ErrConfiguration)
	}
	target := d.cfg.PaperTrading.Queue

	attempts, err := retry(ctx, queueAttempts, d.sleep, func(int) error {
		return d.publisher.Publish(ctx, models.Batch{record}, target.Name, target.Exchange)
	})
	if err != nil {
		return &models.TransientSinkError{Mode: models.ModeQueue, Attempts: attempts, Err: err}
	}

	d.log.Info("paper trade sent to queue", d.log.Payload("trade", record))
	d.recordMetric(metricPaperTradeSent, destinationQueue, 1)
	return nil
}

func (d *Dispatcher) paperTradeToDatabase(ctx context.Context, record models.Record) error {
	if d.db == nil || d.cfg.PaperTrading.InsertSQL == "" {
		d.log.Warn("paper trading database integration not configured")
		d.recordMetric(metricPaperTradeSkipped, destinationDatabase, 1)
		return nil
	}
	if record == nil {
		return fmt.Errorf("%w: paper trade record is nil", models.ErrValidation)
	}

	if _, err := d.writeRecords(ctx, d.cfg.PaperTrading.InsertSQL, models.Batch{record}); err != nil {
		return err
	}
	d.log.Info("paper trade written to database", logger.Any("symbol", record["symbol"]))
	d.recordMetric(metricPaperTradeSent, destinationDatabase, 1)
	return nil
}
