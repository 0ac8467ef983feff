// Package prom exports keel operations as Prometheus metrics.
package prom

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/keel/pkg/core"
)

// Observer implements core.Observer with Prometheus collectors.
type Observer struct {
	writesTotal         *prometheus.CounterVec
	writeDuration       prometheus.Histogram
	appendsTotal        *prometheus.CounterVec
	verificationsTotal  *prometheus.CounterVec
	chainErrorsTotal    *prometheus.CounterVec
	transactionsTotal   *prometheus.CounterVec
	transactionDuration *prometheus.HistogramVec
}

// NewObserver registers the keel collectors on reg. A nil reg means the
// default registerer.
func NewObserver(reg prometheus.Registerer) *Observer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Observer{
		writesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "keel_store_writes_total",
			Help: "Total resource writes by result.",
		}, []string{"result"}),

		writeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "keel_store_write_duration_seconds",
			Help:    "Resource write duration in seconds, including verification.",
			Buckets: prometheus.DefBuckets,
		}),

		appendsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "keel_log_appends_total",
			Help: "Total audit log appends by category and result.",
		}, []string{"category", "result"}),

		verificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "keel_log_verifications_total",
			Help: "Total chain verifications by category and outcome.",
		}, []string{"category", "outcome"}),

		chainErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "keel_log_chain_errors_total",
			Help: "Total anomalies found by verification, by category and kind.",
		}, []string{"category", "kind"}),

		transactionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "keel_transactions_total",
			Help: "Total transactions by final status.",
		}, []string{"status"}),

		transactionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "keel_transaction_duration_seconds",
			Help:    "Transaction duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
	}
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

func (o *Observer) ObserveWrite(key string, err error, d time.Duration) {
	o.writesTotal.WithLabelValues(result(err)).Inc()
	o.writeDuration.Observe(d.Seconds())
}

func (o *Observer) ObserveAppend(category string, err error) {
	o.appendsTotal.WithLabelValues(category, result(err)).Inc()
}

func (o *Observer) ObserveVerify(category string, res core.VerifyResult) {
	outcome := "valid"
	if !res.Valid {
		outcome = "invalid"
	}
	o.verificationsTotal.WithLabelValues(category, outcome).Inc()
	for _, e := range res.Errors {
		o.chainErrorsTotal.WithLabelValues(category, string(e.Kind)).Inc()
	}
}

func (o *Observer) ObserveTransaction(status core.TxStatus, d time.Duration) {
	o.transactionsTotal.WithLabelValues(string(status)).Inc()
	o.transactionDuration.WithLabelValues(string(status)).Observe(d.Seconds())
}

// Handler serves the metrics gathered by g, or the default gatherer when g
// is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

var _ core.Observer = (*Observer)(nil)
