package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asplund/netasset/internal/config"
	"github.com/asplund/netasset/internal/device"
	"github.com/asplund/netasset/internal/enrich"
	"github.com/asplund/netasset/internal/metrics"
	"github.com/asplund/netasset/internal/probe"
	"github.com/asplund/netasset/internal/registry"
	"github.com/asplund/netasset/internal/scan"
)

func newTestServer(t *testing.T, metricsRegistry metrics.MetricsRegistry) *Server {
	t.Helper()
	cfg := config.Default()
	store := registry.NewMemoryStore()
	orchestrator := scan.New(scan.DefaultConfig(), probe.NewNmapAdapter(),
		enrich.NewEngine(enrich.DefaultConfig()), store, metricsRegistry)
	return New(cfg, store, orchestrator, metricsRegistry)
}

func TestServerHealthRoute(t *testing.T) {
	server := newTestServer(t, metrics.NewRegistry())

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServerVersionRoute(t *testing.T) {
	server := newTestServer(t, metrics.NewRegistry())

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/version", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, Version, resp["version"])
}

func TestServerUnknownRoute(t *testing.T) {
	server := newTestServer(t, metrics.NewRegistry())

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerRejectsNonJSONPost(t *testing.T) {
	server := newTestServer(t, metrics.NewRegistry())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/discover", nil)
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestServerDevicesRoute(t *testing.T) {
	server := newTestServer(t, metrics.NewRegistry())

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.EqualValues(t, 0, resp["total"])
}

func TestServerMetricsRoute(t *testing.T) {
	// The Prometheus exposition endpoint is only mounted when the
	// registry backend supports it.
	server := newTestServer(t, metrics.NewPrometheusRegistry())

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	plain := newTestServer(t, metrics.NewRegistry())
	rec = httptest.NewRecorder()
	plain.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// loopbackAdapter reports a single live host so discovery can run end
// to end without a probe binary.
type loopbackAdapter struct{}

func (loopbackAdapter) DiscoverHosts(context.Context, string) ([]probe.RawHost, error) {
	return []probe.RawHost{{IP: "127.0.0.1", Status: "up", Hostname: "localhost"}}, nil
}

func (loopbackAdapter) ProbeHost(context.Context, string) (*probe.HostDetail, error) {
	return &probe.HostDetail{}, nil
}

func (loopbackAdapter) ResolveHostname(context.Context, string) (string, error) {
	return "", stderrors.New("no resolver")
}

func (loopbackAdapter) LookupMAC(context.Context, string) (string, error) {
	return "", stderrors.New("no arp entry")
}

func TestDiscoveryEndToEnd(t *testing.T) {
	store := registry.NewMemoryStore()
	orchestrator := scan.New(scan.DefaultConfig(), loopbackAdapter{},
		enrich.NewEngine(enrich.DefaultConfig()), store, metrics.NewRegistry())
	server := New(config.Default(), store, orchestrator, metrics.NewRegistry())
	router := server.Router()

	// Submit a sweep of the loopback address.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/discover",
		bytes.NewBufferString(`{"network_range":"127.0.0.1/32"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitted struct {
		ScanID uuid.UUID `json:"scan_id"`
		Status string    `json:"status"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&submitted))
	require.NotEqual(t, uuid.Nil, submitted.ScanID)
	assert.Equal(t, device.ScanStatusRunning, submitted.Status)

	// Poll the status endpoint until the scan completes.
	var status struct {
		Status       string `json:"status"`
		Progress     int    `json:"progress"`
		TotalDevices int    `json:"total_devices"`
		Message      string `json:"message"`
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
			"/api/v1/scan/status/"+submitted.ScanID.String(), nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
		if status.Status == device.ScanStatusCompleted {
			break
		}
		require.Equal(t, device.ScanStatusRunning, status.Status)
		if time.Now().After(deadline) {
			t.Fatalf("scan did not complete, last status %+v", status)
		}
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, 1, status.TotalDevices)
	assert.Equal(t, "Scan completed", status.Message)

	// The device list for this scan holds exactly the swept host.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/v1/devices?scan_id="+submitted.ScanID.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listed struct {
		Devices []device.Device `json:"devices"`
		Total   int             `json:"total"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&listed))
	require.Equal(t, 1, listed.Total)
	assert.Equal(t, "127.0.0.1", listed.Devices[0].IPAddress)
	assert.Equal(t, "localhost", *listed.Devices[0].Hostname)
	assert.Equal(t, submitted.ScanID, listed.Devices[0].ScanID)
	assert.Equal(t, device.StatusUp, listed.Devices[0].Status)

	orchestrator.Wait()
}

func TestServerAddress(t *testing.T) {
	server := newTestServer(t, metrics.NewRegistry())
	assert.Equal(t, "0.0.0.0:8000", server.Address())
}
