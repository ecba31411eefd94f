package middleware

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asplund/netasset/internal/metrics"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	header := rec.Header().Get("X-Request-ID")
	assert.True(t, strings.HasPrefix(header, "req_"))
	assert.Equal(t, header, seen)

	// Each request gets a fresh id.
	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEqual(t, header, rec2.Header().Get("X-Request-ID"))
}

func TestGetRequestIDWithoutMiddleware(t *testing.T) {
	assert.Equal(t, "unknown", GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestRecovery(t *testing.T) {
	handler := Recovery(slog.Default())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler exploded")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "Internal server error")
}

func TestContentType(t *testing.T) {
	handler := ContentType()(okHandler())

	tests := []struct {
		name        string
		method      string
		contentType string
		want        int
	}{
		{"get passes through", http.MethodGet, "", http.StatusOK},
		{"delete passes through", http.MethodDelete, "text/plain", http.StatusOK},
		{"post with json", http.MethodPost, "application/json", http.StatusOK},
		{"post with json and charset", http.MethodPost, "application/json; charset=utf-8", http.StatusOK},
		{"post without content type", http.MethodPost, "", http.StatusOK},
		{"post with xml", http.MethodPost, "application/xml", http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMetricsMiddleware(t *testing.T) {
	registry := metrics.NewRegistry()
	handler := Metrics(registry)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/devices", nil))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	all := registry.GetMetrics()

	var requests, errors, durations int
	for key, m := range all {
		switch {
		case strings.HasPrefix(key, metrics.MetricHTTPRequests):
			requests++
		case strings.HasPrefix(key, "http_errors_total"):
			errors++
			assert.Equal(t, "404", m.Labels["status"])
		case strings.HasPrefix(key, metrics.MetricHTTPDuration):
			durations++
		}
	}
	assert.Equal(t, 2, requests)
	assert.Equal(t, 1, errors)
	assert.Equal(t, 2, durations)
}

func TestRequestTimeout(t *testing.T) {
	handler := RequestTimeout(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok := r.Context().Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 20*time.Millisecond)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestLoggingPreservesResponse(t *testing.T) {
	handler := Logging(slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}

func TestResponseWriterSupportsHijack(t *testing.T) {
	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}

	// Connection upgrades reach the underlying writer through either
	// the Hijacker interface or the Unwrap chain.
	hj, ok := interface{}(rw).(http.Hijacker)
	require.True(t, ok)
	assert.Implements(t, (*http.Flusher)(nil), rw)

	// The recorder has no connection to hand over.
	conn, buf, err := hj.Hijack()
	assert.ErrorIs(t, err, http.ErrNotSupported)
	assert.Nil(t, conn)
	assert.Nil(t, buf)

	// Nested wrappers unwrap all the way down.
	outer := &responseWriter{ResponseWriter: rw}
	assert.Same(t, rw, outer.Unwrap())
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", getClientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "203.0.113.10")
	assert.Equal(t, "203.0.113.10", getClientIP(req))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.5:52100"
	assert.Equal(t, "192.0.2.5", getClientIP(req))
}
