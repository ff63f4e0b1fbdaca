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
			Namespace: "escrow_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escrow_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "escrow_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	listings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "escrow_layer",
			Subsystem: "escrow",
			Name:      "listings_total",
			Help:      "Total number of accepted sell listings.",
		},
	)

	settlements = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "escrow_layer",
			Subsystem: "escrow",
			Name:      "settlements_total",
			Help:      "Total number of settled purchases.",
		},
	)

	royaltyPaid = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "escrow_layer",
			Subsystem: "escrow",
			Name:      "royalty_paid_total",
			Help:      "Cumulative royalty amount paid to the creator, by denomination.",
		},
		[]string{"denom"},
	)

	blockedTransfers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "escrow_layer",
			Subsystem: "gate",
			Name:      "blocked_transfers_total",
			Help:      "Total number of transfers denied by the authorization gate.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		listings,
		settlements,
		royaltyPaid,
		blockedTransfers,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
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

// RecordListing counts an accepted sell listing.
func RecordListing() {
	listings.Inc()
}

// RecordSettlement counts a settled purchase and the royalty it paid.
func RecordSettlement(denom string, royalty uint64) {
	settlements.Inc()
	if royalty > 0 {
		royaltyPaid.WithLabelValues(denom).Add(float64(royalty))
	}
}

// RecordBlockedTransfer counts a transfer denied by the gate.
func RecordBlockedTransfer() {
	blockedTransfers.Inc()
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

func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) == 1 {
		return "/" + parts[0]
	}
	return "/" + parts[0] + "/" + parts[1]
}
