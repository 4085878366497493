package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ThrottledTotal  *prometheus.CounterVec
	AdmittedTotal   *prometheus.CounterVec
	StoreErrors     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateql_requests_total",
				Help: "Total HTTP requests processed by the server",
			},
			[]string{"path", "method", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateql_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "method"},
		),
		ThrottledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateql_throttled_total",
				Help: "Total resolver calls denied by a throttle policy",
			},
			[]string{"resolver", "scope"},
		),
		AdmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateql_admitted_total",
				Help: "Total resolver calls counted against their throttle policies",
			},
			[]string{"resolver"},
		),
		StoreErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateql_throttle_store_errors_total",
				Help: "Total throttle counter store failures",
			},
			[]string{"resolver"},
		),
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.ThrottledTotal, m.AdmittedTotal, m.StoreErrors)
	return m
}

// Throttled, Admitted and StoreError match the guard's callback signatures.
func (m *Metrics) Throttled(resolver, scope string) {
	m.ThrottledTotal.WithLabelValues(resolver, scope).Inc()
}

func (m *Metrics) Admitted(resolver string) {
	m.AdmittedTotal.WithLabelValues(resolver).Inc()
}

func (m *Metrics) StoreError(resolver string) {
	m.StoreErrors.WithLabelValues(resolver).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Middleware records per-request metrics, labelled by the chi route pattern
// so that path parameters do not explode cardinality.
func (m *Metrics) Middleware(skip map[string]struct{}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			path := "unknown"
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					path = p
				}
			}

			method := r.Method
			code := rec.status
			if code == 0 {
				code = http.StatusOK
			}

			m.RequestDuration.WithLabelValues(path, method).Observe(time.Since(start).Seconds())
			m.RequestsTotal.WithLabelValues(path, method, strconv.Itoa(code)).Inc()
		})
	}
}
