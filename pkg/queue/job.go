package queue

import "context"

// Job consumes the messages of one queue.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Target returns the queue and exchange the job reads from.
	Target() (queue, exchange string)

	// Handle processes one message payload.
	Handle(ctx context.Context, payload []byte) error
}

type funcJob struct {
	name, queue, exchange string
	fn                    func(context.Context, []byte) error
}

func (j funcJob) Name() string { return j.name }
func (j funcJob) Target() (string, string) { return j.queue, j.exchange }
func (j funcJob) Handle(ctx context.Context, payload []byte) error { return j.fn(ctx, payload) }

// NewJob builds a Job from a function.
func NewJob(name, queue, exchange string, fn func(context.Context, []byte) error) Job {
	return funcJob{name: name, queue: queue, exchange: exchange, fn: fn}
}
