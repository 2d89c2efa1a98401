// Package metrics provides Prometheus metrics for the flux feeder.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

var (
	// OracleFeedPrice is a gauge of the latest price seen per feed source.
	OracleFeedPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_feed_price",
			Help: "Latest price observed from a feed source",
		},
		[]string{"submitter", "feed", "source"},
	)

	// OracleLastSubmittedPrice is a gauge of the last price submitted on-chain.
	OracleLastSubmittedPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_last_submitted_price",
			Help: "Last price value submitted to the aggregator",
		},
		[]string{"submitter", "feed"},
	)

	// OracleSinceLastSubmitSeconds is a gauge of seconds since the last submission.
	OracleSinceLastSubmitSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_since_last_submit_seconds",
			Help: "Seconds elapsed since the last successful submission",
		},
		[]string{"submitter", "feed"},
	)

	// OracleSubmitRetryTotal is a counter of submission retries.
	OracleSubmitRetryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_submit_retry_total",
			Help: "Total number of submission retries",
		},
		[]string{"submitter", "feed"},
	)

	// OracleBalance is a gauge of the oracle owner account balance.
	OracleBalance = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_balance",
			Help: "Balance of the oracle owner account in whole tokens",
		},
		[]string{"submitter"},
	)

	// SourceHealth is a gauge of the health status of price sources.
	SourceHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "source_health",
			Help: "Health status of price sources (1=connected, 0=disconnected)",
		},
		[]string{"source"},
	)

	// PriceUpdatesTotal is a counter of price updates received from sources.
	PriceUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_updates_total",
			Help: "Total number of price updates received from sources",
		},
		[]string{"source", "pair"},
	)
)

// Init registers all metrics with the default Prometheus registry.
func Init() {
	prometheus.MustRegister(
		OracleFeedPrice,
		OracleLastSubmittedPrice,
		OracleSinceLastSubmitSeconds,
		OracleSubmitRetryTotal,
		OracleBalance,
		SourceHealth,
		PriceUpdatesTotal,
	)
}

// ServeHTTP serves Prometheus metrics on the specified address.
func ServeHTTP(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// PriceValue converts a scaled fixed-point value to a float for gauges.
func PriceValue(value int64, decimals int) float64 {
	f, _ := decimal.New(value, int32(-decimals)).Float64()
	return f
}

// RecordFeedPrice records the latest price seen from a source.
func RecordFeedPrice(submitter, feed, source string, value int64, decimals int) {
	OracleFeedPrice.WithLabelValues(submitter, feed, source).Set(PriceValue(value, decimals))
	PriceUpdatesTotal.WithLabelValues(source, feed).Inc()
}

// RecordLastSubmitted records a successful submission.
func RecordLastSubmitted(submitter, feed string, value int64, decimals int) {
	OracleLastSubmittedPrice.WithLabelValues(submitter, feed).Set(PriceValue(value, decimals))
	OracleSinceLastSubmitSeconds.WithLabelValues(submitter, feed).Set(0)
}

// RecordSinceLastSubmit records the time elapsed since the last submission.
func RecordSinceLastSubmit(submitter, feed string, elapsed time.Duration) {
	OracleSinceLastSubmitSeconds.WithLabelValues(submitter, feed).Set(elapsed.Seconds())
}

// RecordSubmitRetry records a submission retry.
func RecordSubmitRetry(submitter, feed string) {
	OracleSubmitRetryTotal.WithLabelValues(submitter, feed).Inc()
}

// RecordSourceHealth records the connection status of a source.
func RecordSourceHealth(source string, healthy bool) {
	val := 0.0
	if healthy {
		val = 1.0
	}
	SourceHealth.WithLabelValues(source).Set(val)
}
