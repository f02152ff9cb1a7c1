package output

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"PipeKit/internal/domain/models"
	"PipeKit/pkg/logger"
)

type harness struct {
	calls   *calls
	pub     *fakePublisher
	rest    *fakeREST
	store   *fakeStore
	db      *fakeDB
	metrics *fakeMetrics
	sleeps  *recordedSleeps
	stdout  *bytes.Buffer
	logs    *bytes.Buffer
	d       *Dispatcher
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	c := &calls{}
	h := &harness{
		calls:   c,
		pub:     &fakePublisher{calls: c},
		rest:    &fakeREST{calls: c, status: 200},
		store:   &fakeStore{calls: c},
		db:      &fakeDB{calls: c},
		metrics: &fakeMetrics{},
		sleeps:  &recordedSleeps{},
		stdout:  &bytes.Buffer{},
	}
	l, buf := newTestLogger(t)
	h.logs = buf
	if cfg.RESTURL == "" {
		cfg.RESTURL = "http://sink.local/ingest"
	}
	if cfg.S3Bucket == "" {
		cfg.S3Bucket = "outputs-bucket"
	}
	if cfg.DatabaseInsertSQL == "" {
		cfg.DatabaseInsertSQL = "INSERT INTO results (text) VALUES (:text)"
	}
	h.d = New(cfg, Deps{
		Logger:    l,
		Metrics:   h.metrics,
		Publisher: h.pub,
		REST:      h.rest,
		Store:     h.store,
		DB:        h.db,
		Stdout:    h.stdout,
	}, WithSleeper(h.sleeps.sleep), WithKeyFunc(func() string { return "fixed" }))
	return h
}

func hello() models.Batch {
	return models.Batch{{"text": "hello"}}
}

func TestNewAcceptsEmptyModes(t *testing.T) {
	h := newHarness(t, Config{})
	if len(h.d.Modes()) != 0 {
		t.Fatalf("expected no modes")
	}

	h.d.Send(context.Background(), hello())

	if got := h.calls.list(); len(got) != 0 {
		t.Fatalf("expected no sink calls, got %v", got)
	}
	if countMessages(logLines(t, h.logs), "no output modes configured, batch dropped") != 1 {
		t.Fatalf("expected one empty-modes warning")
	}
}

func TestSendValidationFailureTouchesNoSink(t *testing.T) {
	all := []models.OutputMode{models.ModeLog, models.ModeStdout, models.ModeQueue, models.ModeREST, models.ModeS3, models.ModeDatabase}
	batches := []models.Batch{
		{{"body": "no text"}},
		{{"text": "ok"}, {"other": 1}},
		{{"text": "ok"}, nil},
	}
	for _, b := range batches {
		h := newHarness(t, Config{Modes: all})
		h.d.Send(context.Background(), b)

		if got := h.calls.list(); len(got) != 0 {
			t.Fatalf("expected zero sink calls, got %v", got)
		}
		if h.stdout.Len() != 0 {
			t.Fatalf("stdout sink ran on invalid batch")
		}
		lines := logLines(t, h.logs)
		if n := countMessages(lines, "batch validation failed"); n != 1 {
			t.Fatalf("validation failures logged = %d, want 1", n)
		}
		if countMessages(lines, "processed message") != 0 {
			t.Fatalf("log sink ran on invalid batch")
		}
		if len(h.metrics.list()) != 0 {
			t.Fatalf("unexpected metrics %v", h.metrics.list())
		}
	}
}

func TestSendCustomRequiredKeys(t *testing.T) {
	h := newHarness(t, Config{Modes: []models.OutputMode{models.ModeQueue}, RequiredKeys: []string{"symbol", "price"}})
	h.d.Send(context.Background(), models.Batch{{"symbol": "AAPL", "price": 1.5}})
	if len(h.pub.got) != 1 {
		t.Fatalf("expected publish with custom keys")
	}
	h.d.Send(context.Background(), hello())
	if len(h.pub.got) != 1 {
		t.Fatalf("batch without custom keys should be rejected")
	}
}

func TestSendInvokesModesInConfiguredOrder(t *testing.T) {
	modes := []models.OutputMode{models.ModeDatabase, models.ModeQueue, models.ModeS3, models.ModeREST}
	h := newHarness(t, Config{Modes: modes, Queue: QueueTarget{Name: "results", Exchange: "analysis"}})
	batch := models.Batch{{"text": "a"}, {"text": "b"}}

	h.d.Send(context.Background(), batch)

	want := []string{"database", "queue", "s3", "rest"}
	if got := h.calls.list(); !reflect.DeepEqual(got, want) {
		t.Fatalf("call order = %v, want %v", got, want)
	}

	same := func(got models.Batch) bool {
		return reflect.ValueOf(got).Pointer() == reflect.ValueOf(batch).Pointer() && len(got) == len(batch)
	}
	if !same(h.pub.got[0].batch) || !same(h.db.batch) || !same(h.rest.body.(models.Batch)) {
		t.Fatalf("sinks did not receive the same batch")
	}
	if h.pub.got[0].queue != "results" || h.pub.got[0].exchange != "analysis" {
		t.Fatalf("unexpected queue target %+v", h.pub.got[0])
	}
	if len(batch) != 2 || batch[0]["text"] != "a" {
		t.Fatalf("batch was mutated: %v", batch)
	}
}

func TestFailingSinkDoesNotBlockOthers(t *testing.T) {
	modes := []models.OutputMode{models.ModeQueue, models.ModeREST, models.ModeS3, models.ModeDatabase, models.ModeStdout}
	h := newHarness(t, Config{Modes: modes})
	h.pub.errs = []error{errors.New("broker down")}
	h.rest.status = 503
	h.store.err = errors.New("access denied")
	h.db.err = errors.New("connection refused")

	h.d.Send(context.Background(), hello())

	want := []string{"queue", "queue", "queue", "rest", "s3", "database"}
	if got := h.calls.list(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	if h.stdout.Len() == 0 {
		t.Fatalf("stdout sink should still run after failures")
	}
	summary := findMessage(logLines(t, h.logs), "dispatch finished with failures")
	if summary == nil {
		t.Fatalf("expected failure summary")
	}
	if summary["failed"] != "queue,rest,s3,database" || summary["delivered"] != "stdout" {
		t.Fatalf("unexpected summary %v", summary)
	}
}

func TestQueueRetriesThenSwallows(t *testing.T) {
	h := newHarness(t, Config{Modes: []models.OutputMode{models.ModeQueue}})
	h.pub.errs = []error{errors.New("publish failed")}

	h.d.Send(context.Background(), hello())

	if len(h.pub.got) != 3 {
		t.Fatalf("publish attempts = %d, want 3", len(h.pub.got))
	}
	if want := []time.Duration{time.Second, 2 * time.Second}; !reflect.DeepEqual(h.sleeps.waits, want) {
		t.Fatalf("waits = %v, want %v", h.sleeps.waits, want)
	}
	for _, e := range h.metrics.list() {
		if e == "output queue 1" {
			t.Fatalf("success metric recorded on failure")
		}
	}
	lines := logLines(t, h.logs)
	if countMessages(lines, "failed to send output") != 1 {
		t.Fatalf("expected one final failure log")
	}
	if countMessages(lines, "queue publish attempt failed") != 3 {
		t.Fatalf("expected a warning per attempt")
	}
}

func TestQueueRetrySucceeds(t *testing.T) {
	h := newHarness(t, Config{Modes: []models.OutputMode{models.ModeQueue}})
	h.pub.errs = []error{errors.New("blip"), nil}
	batch := models.Batch{{"text": "a"}, {"text": "b"}, {"text": "c"}}

	h.d.Send(context.Background(), batch)

	if len(h.pub.got) != 2 {
		t.Fatalf("publish attempts = %d, want 2", len(h.pub.got))
	}
	if got := h.metrics.list(); !reflect.DeepEqual(got, []string{"output queue 3"}) {
		t.Fatalf("metrics = %v", got)
	}
}

func TestQueueRetryStopsOnCancel(t *testing.T) {
	h := newHarness(t, Config{Modes: []models.OutputMode{models.ModeQueue}})
	h.pub.errs = []error{errors.New("down")}
	h.d.sleep = SleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.d.Send(ctx, hello())

	if len(h.pub.got) != 1 {
		t.Fatalf("publish attempts = %d, want 1 after cancel", len(h.pub.got))
	}
}

func TestQueueBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 0},
		{2, time.Second},
		{3, 2 * time.Second},
		{4, 4 * time.Second},
		{5, 8 * time.Second},
		{6, 10 * time.Second},
		{40, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := queueBackoff(tt.attempt); got != tt.want {
			t.Fatalf("queueBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestPaperTradingOverridesModes(t *testing.T) {
	h := newHarness(t, Config{
		Modes:        []models.OutputMode{models.ModeQueue, models.ModeREST},
		PaperTrading: PaperTrading{Enabled: true, Mode: "stdout"},
	})

	h.d.Send(context.Background(), hello())

	if got := h.calls.list(); len(got) != 0 {
		t.Fatalf("configured modes should be ignored, got %v", got)
	}
	if h.stdout.Len() == 0 {
		t.Fatalf("expected paper mode delivery to stdout")
	}
}

func TestPaperTradingUnknownModeDeliversNothing(t *testing.T) {
	h := newHarness(t, Config{
		Modes:        []models.OutputMode{models.ModeQueue, models.ModeLog},
		PaperTrading: PaperTrading{Enabled: true, Mode: "fax"},
	})

	h.d.Send(context.Background(), hello())

	if got := h.calls.list(); len(got) != 0 {
		t.Fatalf("expected no deliveries, got %v", got)
	}
	lines := logLines(t, h.logs)
	if countMessages(lines, "invalid paper trading output mode") != 1 {
		t.Fatalf("expected one warning")
	}
	if countMessages(lines, "processed message") != 0 {
		t.Fatalf("log mode must not run while paper trading")
	}
}

func TestMissingHandlerIsSkipped(t *testing.T) {
	l, buf := newTestLogger(t)
	out := &bytes.Buffer{}
	d := New(Config{Modes: []models.OutputMode{models.ModeREST, models.ModeStdout}}, Deps{Logger: l, Stdout: out})

	d.Send(context.Background(), hello())

	if out.Len() == 0 {
		t.Fatalf("stdout should run after the missing rest handler")
	}
	line := findMessage(logLines(t, buf), "unhandled output mode")
	if line == nil || line["mode"] != "rest" {
		t.Fatalf("expected unhandled mode warning, got %v", line)
	}
}

func TestPanickingSinkIsContained(t *testing.T) {
	h := newHarness(t, Config{Modes: []models.OutputMode{models.ModeQueue, models.ModeStdout}})
	h.pub.panics = true

	h.d.Send(context.Background(), hello())

	if h.stdout.Len() == 0 {
		t.Fatalf("stdout should run after a panicking sink")
	}
}

func TestSendTradeSimulationQueue(t *testing.T) {
	h := newHarness(t, Config{PaperTrading: PaperTrading{Queue: QueueTarget{Name: "paper", Exchange: "sim"}}})
	trade := models.Record{"symbol": "AAPL", "action": "BUY", "quantity": 1, "price": 10.0, "timestamp": "t"}

	h.d.SendTradeSimulation(context.Background(), trade)

	if len(h.pub.got) != 1 || h.pub.got[0].queue != "paper" || h.pub.got[0].exchange != "sim" {
		t.Fatalf("unexpected publish %+v", h.pub.got)
	}
	if !reflect.DeepEqual(h.pub.got[0].batch, models.Batch{trade}) {
		t.Fatalf("unexpected batch %v", h.pub.got[0].batch)
	}
	if got := h.metrics.list(); !reflect.DeepEqual(got, []string{"paper_sent queue 1"}) {
		t.Fatalf("metrics = %v", got)
	}
	if len(h.db.sql) != 0 {
		t.Fatalf("database must not be used")
	}
}

func TestSendTradeSimulationQueueFailure(t *testing.T) {
	h := newHarness(t, Config{})
	h.pub.errs = []error{errors.New("down")}

	h.d.SendTradeSimulation(context.Background(), models.Record{"symbol": "AAPL"})

	if len(h.pub.got) != 3 {
		t.Fatalf("attempts = %d, want 3", len(h.pub.got))
	}
	if got := h.metrics.list(); !reflect.DeepEqual(got, []string{"paper_failure queue 1"}) {
		t.Fatalf("metrics = %v", got)
	}
}

func TestSendTradeSimulationDatabase(t *testing.T) {
	h := newHarness(t, Config{PaperTrading: PaperTrading{DatabaseEnabled: true, InsertSQL: "INSERT INTO paper (symbol) VALUES (:symbol)"}})
	trade := models.Record{"symbol": "AAPL"}

	h.d.SendTradeSimulation(context.Background(), trade)

	if len(h.pub.got) != 0 {
		t.Fatalf("queue must not be used")
	}
	if len(h.db.sql) != 1 || h.db.sql[0] != "INSERT INTO paper (symbol) VALUES (:symbol)" {
		t.Fatalf("unexpected statements %v", h.db.sql)
	}
	if got := h.metrics.list(); !reflect.DeepEqual(got, []string{"paper_sent database 1"}) {
		t.Fatalf("metrics = %v", got)
	}
}

func TestSendTradeSimulationDatabaseFailure(t *testing.T) {
	h := newHarness(t, Config{PaperTrading: PaperTrading{DatabaseEnabled: true, InsertSQL: "INSERT"}})
	h.db.err = errors.New("deadlock")

	h.d.SendTradeSimulation(context.Background(), models.Record{"symbol": "AAPL"})

	if got := h.metrics.list(); !reflect.DeepEqual(got, []string{"paper_failure database 1"}) {
		t.Fatalf("metrics = %v", got)
	}
}

func TestSendTradeSimulationDatabaseNotConfigured(t *testing.T) {
	h := newHarness(t, Config{PaperTrading: PaperTrading{DatabaseEnabled: true}})

	h.d.SendTradeSimulation(context.Background(), models.Record{"symbol": "AAPL"})

	if len(h.db.sql) != 0 {
		t.Fatalf("database should not be called without an insert statement")
	}
	if len(h.metrics.list()) != 0 {
		t.Fatalf("skipped trade is not a counted metric: %v", h.metrics.list())
	}
	lines := logLines(t, h.logs)
	line := findMessage(lines, "metric")
	if line == nil || line["name"] != "paper_trade_skipped" {
		t.Fatalf("expected debug metric line, got %v", line)
	}
}

func TestUnknownMetricFallsThroughToDebug(t *testing.T) {
	h := newHarness(t, Config{})
	h.d.recordMetric("something_else", destinationQueue, 4)

	if len(h.metrics.list()) != 0 {
		t.Fatalf("unexpected counter for unknown metric")
	}
	line := findMessage(logLines(t, h.logs), "metric")
	if line == nil || line["level"] != "debug" || line["value"] != float64(4) {
		t.Fatalf("expected debug metric line, got %v", line)
	}
}

func TestSendTradeSimulationRedactsLoggedTrade(t *testing.T) {
	buf := &bytes.Buffer{}
	l, err := logger.NewWithWriter(buf, &logger.Config{Level: "debug", Redact: true})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	pub := &fakePublisher{}
	d := New(Config{PaperTrading: PaperTrading{Queue: QueueTarget{Name: "paper"}}},
		Deps{Logger: l, Metrics: &fakeMetrics{}, Publisher: pub})
	trade := models.Record{"symbol": "AAPL", "action": "BUY", "quantity": 1, "price": 10.0, "timestamp": "t", "token": "tok-9"}

	d.SendTradeSimulation(context.Background(), trade)

	line := findMessage(logLines(t, buf), "paper trade sent to queue")
	if line == nil {
		t.Fatalf("missing paper trade log: %s", buf.String())
	}
	logged, ok := line["trade"].(map[string]any)
	if !ok || logged["symbol"] != "AAPL" || logged["token"] == "tok-9" {
		t.Fatalf("logged trade = %v", line["trade"])
	}
	if len(pub.got) != 1 || pub.got[0].batch[0]["token"] != "tok-9" {
		t.Fatalf("published trade must keep its values: %+v", pub.got)
	}
}
