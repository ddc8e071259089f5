package obs

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmitUplenchwar2687/Folio/internal/quota"
)

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn", "json")
	logger.Info().Msg("hidden")
	logger.Warn().Str("k", "v").Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["message"])
	assert.Equal(t, "v", line["k"])
}

func TestNewLogger_BadLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "loud", "json")
	logger.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
	logger.Info().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestAccessLog_EchoesRequestID(t *testing.T) {
	var buf bytes.Buffer
	h := AccessLog(NewLogger(&buf, "info", "json"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "/health", line["path"])
	assert.EqualValues(t, http.StatusTeapot, line["status"])
	assert.NotEmpty(t, line["req_id"])
}

func TestMetrics_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	r := chi.NewRouter()
	r.Use(m.Middleware(map[string]struct{}{"/metrics": {}}))
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {})

	for _, path := range []string{"/items/1", "/items/2", "/metrics"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/items/{id}", "GET", "429")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestsTotal))
}

func TestMetrics_ObserveQuota(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveQuota(quota.Event{Op: quota.OpRecord, Outcome: quota.OutcomeAllowed})
	m.ObserveQuota(quota.Event{Op: quota.OpRecord, Outcome: quota.OutcomeDenied})
	m.ObserveQuota(quota.Event{Op: quota.OpQuery, Outcome: quota.OutcomeError, Err: errors.New("down")})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuotaDecisions.WithLabelValues("denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues("query")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.StoreErrors.WithLabelValues("record")))

	m.ObserveConversion(ConversionOK)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Conversions.WithLabelValues(ConversionOK)))
}
