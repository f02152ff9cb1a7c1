package server

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"PipeKit/internal/domain/models"
	"PipeKit/internal/usecase"
	"PipeKit/pkg/config"
	xhttp "PipeKit/pkg/http"
	applogger "PipeKit/pkg/logger"
)

// syncBuffer is written by the http server goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeSource struct {
	handle  func(context.Context, []byte) error
	stopped bool
}

func (s *fakeSource) Start(_ context.Context, handle func(context.Context, []byte) error) error {
	s.handle = handle
	return nil
}

func (s *fakeSource) Stop(context.Context) error {
	s.stopped = true
	return nil
}

type recordingDispatcher struct{ sent []models.Batch }

func (d *recordingDispatcher) Send(_ context.Context, b models.Batch) { d.sent = append(d.sent, b) }

func (d *recordingDispatcher) SendTradeSimulation(context.Context, models.Record) {}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Queue.Type = "redis"
	cfg.Output.Modes = []string{"log", "database"}
	cfg.Output.Database.URL = "postgres://app:secret@db/pipeline"
	cfg.Output.Database.InsertSQL = "INSERT INTO results (text) VALUES (:text)"
	cfg.Output.S3.Bucket = "acme-private-results"
	cfg.Output.S3.Prefix = "tenant-7"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func TestAppRunStartsAndStopsConsumer(t *testing.T) {
	cfg := testConfig(t)
	var buf syncBuffer
	l, err := applogger.NewWithWriter(&buf, &applogger.Config{Level: "debug", Redact: true})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	src := &fakeSource{}
	d := &recordingDispatcher{}
	reg := prometheus.NewRegistry()
	srv := xhttp.NewServer(nil, xhttp.WithHost("127.0.0.1"), xhttp.WithPort(0), xhttp.WithMetrics("", reg, reg))
	app := New(cfg, l, src, usecase.NewBatchHandler(d, l), srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := app.run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if src.handle == nil || !src.stopped {
		t.Fatalf("consumer started=%v stopped=%v", src.handle != nil, src.stopped)
	}

	if err := src.handle(context.Background(), []byte(`[{"text":"hi"}]`)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(d.sent) != 1 {
		t.Fatalf("dispatched = %d", len(d.sent))
	}

	out := buf.String()
	for _, want := range []string{"output dispatcher configured", `"modes":["log","database"]`, "database insert statement", "s3 output"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %q:\n%s", want, out)
		}
	}
	for _, leak := range []string{"secret", "acme-private-results", "tenant-7", "INSERT INTO results"} {
		if strings.Contains(out, leak) {
			t.Fatalf("%q not redacted:\n%s", leak, out)
		}
	}
}
