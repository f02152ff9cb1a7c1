package repository

import (
	"context"
	"time"

	"PipeKit/internal/domain/models"
)

// Publisher delivers a batch to a named queue. queue and exchange fall back to the
// publisher's defaults when empty.
type Publisher interface {
	Publish(ctx context.Context, batch models.Batch, queue, exchange string) error
	Close() error
}

// RESTResponse is the part of an HTTP response the REST sink acts on.
type RESTResponse struct {
	StatusCode int
}

// OK reports a 2xx status.
func (r RESTResponse) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// RESTPoster posts a JSON body. Transport failures are returned as errors; non-2xx is not.
type RESTPoster interface {
	PostJSON(ctx context.Context, url string, body any, headers map[string]string, timeout time.Duration) (RESTResponse, error)
}

// ObjectStore writes a single object.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, body []byte) error
}

// RecordWriter writes records in one transaction using a parameterised statement.
// Nil records are skipped and reported through the skipped callback.
type RecordWriter interface {
	WriteRecords(ctx context.Context, insertSQL string, batch models.Batch, skipped func(index int)) (int, error)
}

// MessageSource feeds raw queue payloads to a handler until ctx is done.
type MessageSource interface {
	Start(ctx context.Context, handle func(context.Context, []byte) error) error
	Stop(ctx context.Context) error
}

// Metrics is the dispatch metrics sink.
type Metrics interface {
	IncOutput(mode string, n int)
	IncPaperTrade(destination string, n int)
	IncPaperTradeFailure(destination string, n int)
	IncDispatch(sink, status string)
	IncDispatchFailure(sink, status string)
	ObserveDispatch(sink, status string, d time.Duration)
}
