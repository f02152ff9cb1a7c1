package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	outputs            *prometheus.CounterVec
	paperTrades        *prometheus.CounterVec
	paperTradeFailures *prometheus.CounterVec
	dispatches         *prometheus.CounterVec
	dispatchFailures   *prometheus.CounterVec
	dispatchDuration   *prometheus.HistogramVec
}

// New registers dispatch collectors on reg. A nil reg means the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		outputs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipekit_output_messages_total",
				Help: "Records delivered per output mode",
			},
			[]string{"mode"},
		),
		paperTrades: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipekit_paper_trades_total",
				Help: "Paper trades sent per destination",
			},
			[]string{"destination"},
		),
		paperTradeFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipekit_paper_trade_failures_total",
				Help: "Paper trades that could not be sent",
			},
			[]string{"destination"},
		),
		dispatches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipekit_dispatch_total",
				Help: "Successful sink dispatches",
			},
			[]string{"sink", "status"},
		),
		dispatchFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipekit_dispatch_failures_total",
				Help: "Failed sink dispatches",
			},
			[]string{"sink", "status"},
		),
		dispatchDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipekit_dispatch_duration_seconds",
				Help:    "Sink dispatch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"sink", "status"},
		),
	}
}

// IncOutput adds n delivered records for a mode.
func (r *Recorder) IncOutput(mode string, n int) {
	r.outputs.WithLabelValues(mode).Add(float64(n))
}

// IncPaperTrade adds n sent paper trades.
func (r *Recorder) IncPaperTrade(destination string, n int) {
	r.paperTrades.WithLabelValues(destination).Add(float64(n))
}

// IncPaperTradeFailure adds n failed paper trades.
func (r *Recorder) IncPaperTradeFailure(destination string, n int) {
	r.paperTradeFailures.WithLabelValues(destination).Add(float64(n))
}

// IncDispatch records one successful dispatch.
func (r *Recorder) IncDispatch(sink, status string) {
	r.dispatches.WithLabelValues(sink, status).Inc()
}

// IncDispatchFailure records one failed dispatch.
func (r *Recorder) IncDispatchFailure(sink, status string) {
	r.dispatchFailures.WithLabelValues(sink, status).Inc()
}

// ObserveDispatch records dispatch latency.
func (r *Recorder) ObserveDispatch(sink, status string, d time.Duration) {
	r.dispatchDuration.WithLabelValues(sink, status).Observe(d.Seconds())
}

// StatusLabel renders an HTTP status code as a metric label.
func StatusLabel(code int) string {
	return strconv.Itoa(code)
}
