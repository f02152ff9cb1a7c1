package output

import (
	"time"

	"PipeKit/pkg/logger"
)

const (
	metricOutputQueueSuccess = "output_queue_success"
	metricPaperTradeSent     = "paper_trade_sent"
	metricPaperTradeFailure  = "paper_trade_failure"
	metricPaperTradeSkipped  = "paper_trade_skipped"

	destinationQueue    = "queue"
	destinationDatabase = "database"
)

// buildMetricTable is the allow-list of event names that become counters.
// Anything else is only logged at debug level.
func (d *Dispatcher) buildMetricTable() map[string]func(destination string, n int) {
	return map[string]func(string, int){
		metricOutputQueueSuccess: func(_ string, n int) { d.metrics.IncOutput(destinationQueue, n) },
		metricPaperTradeSent:     d.metrics.IncPaperTrade,
		metricPaperTradeFailure:  d.metrics.IncPaperTradeFailure,
	}
}

func (d *Dispatcher) recordMetric(name, destination string, value int) {
	if inc, ok := d.metricTable[name]; ok {
		inc(destination, value)
		return
	}
	d.log.Debug("metric", logger.String("name", name), logger.Int("value", value))
}

type nopMetrics struct{}

func (nopMetrics) IncOutput(string, int) {}
func (nopMetrics) IncPaperTrade(string, int) {}
func (nopMetrics) IncPaperTradeFailure(string, int) {}
func (nopMetrics) IncDispatch(string, string) {}
func (nopMetrics) IncDispatchFailure(string, string) {}
func (nopMetrics) ObserveDispatch(string, string, time.Duration) {}
