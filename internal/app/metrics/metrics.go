// Package metrics exposes the Prometheus collectors for the ledger core.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "marketledger",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketledger",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marketledger",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	transfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketledger",
			Subsystem: "ledger",
			Name:      "transfers_total",
			Help:      "Total number of transfer attempts by type and outcome.",
		},
		[]string{"tx_type", "status"},
	)

	depositsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marketledger",
			Subsystem: "ledger",
			Name:      "deposits_total",
			Help:      "Total number of credited deposits.",
		},
	)

	redemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketledger",
			Subsystem: "payouts",
			Name:      "redemptions_total",
			Help:      "Redemption state transitions by type and resulting status.",
		},
		[]string{"type", "status"},
	)

	sweepRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marketledger",
			Subsystem: "payouts",
			Name:      "sweep_runs_total",
			Help:      "Total number of completed payout sweeps.",
		},
	)

	sweepOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketledger",
			Subsystem: "payouts",
			Name:      "sweep_items_total",
			Help:      "Per-principal sweep outcomes.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		transfersTotal,
		depositsTotal,
		redemptionsTotal,
		sweepRuns,
		sweepOutcomes,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered collectors.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordTransfer counts one transfer attempt.
func RecordTransfer(txType, status string) {
	transfersTotal.WithLabelValues(txType, status).Inc()
}

// RecordDeposit counts one credited deposit.
func RecordDeposit() {
	depositsTotal.Inc()
}

// RecordRedemption counts one redemption state transition.
func RecordRedemption(rtype, status string) {
	redemptionsTotal.WithLabelValues(rtype, status).Inc()
}

// RecordSweep records the outcome counts of one payout sweep.
func RecordSweep(processed, skipped, failed int) {
	sweepRuns.Inc()
	sweepOutcomes.WithLabelValues("processed").Add(float64(processed))
	sweepOutcomes.WithLabelValues("skipped").Add(float64(skipped))
	sweepOutcomes.WithLabelValues("failed").Add(float64(failed))
}

// InstrumentHandler wraps the provided handler with HTTP metrics
// collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses entity ids so label cardinality stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "principals":
		if len(parts) == 1 {
			return "/principals"
		}
		if len(parts) == 2 {
			return "/principals/:principal"
		}
		return "/principals/:principal/" + parts[2]
	case "redemptions":
		if len(parts) == 1 {
			return "/redemptions"
		}
		if len(parts) == 2 {
			return "/redemptions/:id"
		}
		return "/redemptions/:id/" + parts[2]
	default:
		return "/" + parts[0]
	}
}
