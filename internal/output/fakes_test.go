package output

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"PipeKit/internal/domain/models"
	"PipeKit/internal/domain/repository"
	"PipeKit/pkg/logger"
)

// calls is shared by fakes so tests can assert cross-sink ordering.
type calls struct {
	mu  sync.Mutex
	seq []string
}

func (c *calls) add(s string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = append(c.seq, s)
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.seq...)
}

type publishCall struct {
	batch    models.Batch
	queue    string
	exchange string
}

type fakePublisher struct {
	calls  *calls
	errs   []error // consumed per attempt; last one repeats
	panics bool
	got    []publishCall
}

func (p *fakePublisher) Publish(_ context.Context, batch models.Batch, queue, exchange string) error {
	p.calls.add("queue")
	if p.panics {
		panic("publisher exploded")
	}
	p.got = append(p.got, publishCall{batch: batch, queue: queue, exchange: exchange})
	if len(p.errs) == 0 {
		return nil
	}
	err := p.errs[0]
	if len(p.errs) > 1 {
		p.errs = p.errs[1:]
	}
	return err
}

func (p *fakePublisher) Close() error { return nil }

type fakeREST struct {
	calls   *calls
	status  int
	err     error
	url     string
	body    any
	headers map[string]string
	timeout time.Duration
	n       int
}

func (r *fakeREST) PostJSON(_ context.Context, url string, body any, headers map[string]string, timeout time.Duration) (repository.RESTResponse, error) {
	r.calls.add("rest")
	r.n++
	r.url, r.body, r.headers, r.timeout = url, body, headers, timeout
	if r.err != nil {
		return repository.RESTResponse{}, r.err
	}
	return repository.RESTResponse{StatusCode: r.status}, nil
}

type fakeStore struct {
	calls  *calls
	err    error
	bucket string
	key    string
	body   []byte
	n      int
}

func (s *fakeStore) PutObject(_ context.Context, bucket, key string, body []byte) error {
	s.calls.add("s3")
	s.n++
	s.bucket, s.key, s.body = bucket, key, body
	return s.err
}

type fakeDB struct {
	calls *calls
	err   error
	sql   []string
	rows  []models.Record
	batch models.Batch
}

func (db *fakeDB) WriteRecords(_ context.Context, insertSQL string, batch models.Batch, skipped func(int)) (int, error) {
	db.calls.add("database")
	db.sql = append(db.sql, insertSQL)
	db.batch = batch
	if db.err != nil {
		return 0, db.err
	}
	n := 0
	for i, r := range batch {
		if r == nil {
			skipped(i)
			continue
		}
		db.rows = append(db.rows, r)
		n++
	}
	return n, nil
}

type fakeMetrics struct {
	mu     sync.Mutex
	events []string
}

func (m *fakeMetrics) add(format string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, fmt.Sprintf(format, args...))
}

func (m *fakeMetrics) IncOutput(mode string, n int) { m.add("output %s %d", mode, n) }
func (m *fakeMetrics) IncPaperTrade(dest string, n int) { m.add("paper_sent %s %d", dest, n) }
func (m *fakeMetrics) IncPaperTradeFailure(dest string, n int) {
	m.add("paper_failure %s %d", dest, n)
}
func (m *fakeMetrics) IncDispatch(sink, status string) { m.add("ok %s %s", sink, status) }
func (m *fakeMetrics) IncDispatchFailure(sink, status string) { m.add("fail %s %s", sink, status) }
func (m *fakeMetrics) ObserveDispatch(sink, status string, _ time.Duration) {
	m.add("observe %s %s", sink, status)
}

func (m *fakeMetrics) list() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.events...)
}

type recordedSleeps struct {
	waits []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func newTestLogger(t *testing.T) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	l, err := logger.NewWithWriter(buf, &logger.Config{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l, buf
}

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var lines []map[string]any
	for _, raw := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if raw == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			t.Fatalf("bad log line %q: %v", raw, err)
		}
		lines = append(lines, m)
	}
	return lines
}

func countMessages(lines []map[string]any, msg string) int {
	n := 0
	for _, l := range lines {
		if l["message"] == msg {
			n++
		}
	}
	return n
}

func findMessage(lines []map[string]any, msg string) map[string]any {
	for _, l := range lines {
		if l["message"] == msg {
			return l
		}
	}
	return nil
}
