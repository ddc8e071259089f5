package obs

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/SmitUplenchwar2687/Folio/internal/quota"
)

// Conversion results reported to ObserveConversion.
const (
	ConversionOK         = "ok"
	ConversionBadRequest = "bad_request"
	ConversionFailed     = "failed"
	ConversionLimited    = "rate_limited"
)

type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	QuotaDecisions  *prometheus.CounterVec
	StoreErrors     *prometheus.CounterVec
	Conversions     *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "folio_requests_total",
				Help: "Total HTTP requests served",
			},
			[]string{"route", "method", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "folio_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		QuotaDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "folio_quota_decisions_total",
				Help: "Quota accountant outcomes",
			},
			[]string{"outcome"},
		),
		StoreErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "folio_store_errors_total",
				Help: "Quota store failures by accountant operation",
			},
			[]string{"op"},
		),
		Conversions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "folio_conversions_total",
				Help: "PDF conversions by result",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.QuotaDecisions, m.StoreErrors, m.Conversions)
	return m
}

// ObserveQuota is an accountant event hook.
func (m *Metrics) ObserveQuota(ev quota.Event) {
	m.QuotaDecisions.WithLabelValues(string(ev.Outcome)).Inc()
	if ev.Outcome == quota.OutcomeError {
		m.StoreErrors.WithLabelValues(string(ev.Op)).Inc()
	}
}

// ObserveConversion counts one /parse result.
func (m *Metrics) ObserveConversion(result string) {
	m.Conversions.WithLabelValues(result).Inc()
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

// Hijack lets websocket upgrades pass through the recorder.
func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	if w.status == 0 {
		w.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records per-request metrics labelled by the matched chi route
// pattern, so path parameters never explode label cardinality.
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

			route := "unknown"
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					route = p
				}
			}

			code := rec.status
			if code == 0 {
				code = http.StatusOK
			}

			m.RequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
			m.RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(code)).Inc()
		})
	}
}
