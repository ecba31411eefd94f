package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asplund/netasset/internal/device"
	"github.com/asplund/netasset/internal/errors"
	"github.com/asplund/netasset/internal/metrics"
	"github.com/asplund/netasset/internal/registry"
	"github.com/asplund/netasset/internal/scan"
)

type fakeOrchestrator struct {
	submitDiscovery func(ctx context.Context, networkRange string) (*device.Scan, error)
	status          func(scanID uuid.UUID) (*device.Scan, error)
	submitDetailed  func(ctx context.Context, deviceID uuid.UUID, creds *device.Credentials) (*device.Device, error)
	subscribe       func(scanID uuid.UUID) (<-chan scan.ProgressEvent, func())
}

func (f *fakeOrchestrator) SubmitDiscovery(ctx context.Context, networkRange string) (*device.Scan, error) {
	return f.submitDiscovery(ctx, networkRange)
}

func (f *fakeOrchestrator) Status(scanID uuid.UUID) (*device.Scan, error) {
	return f.status(scanID)
}

func (f *fakeOrchestrator) SubmitDetailed(ctx context.Context, deviceID uuid.UUID, creds *device.Credentials) (*device.Device, error) {
	return f.submitDetailed(ctx, deviceID, creds)
}

func (f *fakeOrchestrator) Subscribe(scanID uuid.UUID) (<-chan scan.ProgressEvent, func()) {
	if f.subscribe != nil {
		return f.subscribe(scanID)
	}
	ch := make(chan scan.ProgressEvent)
	close(ch)
	return ch, func() {}
}

func newScanRouter(orchestrator Orchestrator, store registry.Store) *mux.Router {
	handler := NewScanHandler(orchestrator, store, slog.Default(), metrics.NewRegistry())
	router := mux.NewRouter()
	router.HandleFunc("/scan/discover", handler.Discover).Methods(http.MethodPost)
	router.HandleFunc("/scan/status/{id}", handler.Status).Methods(http.MethodGet)
	router.HandleFunc("/scan/detailed", handler.Detailed).Methods(http.MethodPost)
	router.HandleFunc("/scans", handler.List).Methods(http.MethodGet)
	return router
}

func postJSON(t *testing.T, router http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestDiscoverAccepted(t *testing.T) {
	scanID := uuid.New()
	orchestrator := &fakeOrchestrator{
		submitDiscovery: func(_ context.Context, networkRange string) (*device.Scan, error) {
			assert.Equal(t, "192.168.1.0/24", networkRange)
			return &device.Scan{
				ID:           scanID,
				NetworkRange: networkRange,
				Status:       device.ScanStatusRunning,
				StartedAt:    time.Now().UTC(),
			}, nil
		},
	}
	router := newScanRouter(orchestrator, registry.NewMemoryStore())

	rec := postJSON(t, router, "/scan/discover", `{"network_range":"192.168.1.0/24"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp DiscoverResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, scanID, resp.ScanID)
	assert.Equal(t, device.ScanStatusRunning, resp.Status)
	assert.Equal(t, "Scan started for network 192.168.1.0/24", resp.Message)
}

func TestDiscoverRejectsBadBody(t *testing.T) {
	router := newScanRouter(&fakeOrchestrator{}, registry.NewMemoryStore())

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"network_range":`},
		{"unknown field", `{"network_range":"10.0.0.0/24","extra":true}`},
		{"missing range", `{}`},
		{"not a cidr", `{"network_range":"invalid_range"}`},
		{"host without prefix", `{"network_range":"192.168.1.10"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, router, "/scan/discover", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestDiscoverMapsServiceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"range rejected downstream", errors.ErrInvalidRange("10.0.0.0/24"), http.StatusBadRequest},
		{"duplicate scan", errors.ErrDuplicateScan(uuid.NewString()), http.StatusConflict},
		{"internal failure", errors.NewScanError(errors.CodeUnknown, "boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orchestrator := &fakeOrchestrator{
				submitDiscovery: func(context.Context, string) (*device.Scan, error) {
					return nil, tt.err
				},
			}
			router := newScanRouter(orchestrator, registry.NewMemoryStore())

			rec := postJSON(t, router, "/scan/discover", `{"network_range":"10.0.0.0/24"}`)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestScanStatus(t *testing.T) {
	scanID := uuid.New()
	orchestrator := &fakeOrchestrator{
		status: func(id uuid.UUID) (*device.Scan, error) {
			if id != scanID {
				return nil, errors.ErrScanNotFound(id.String())
			}
			return &device.Scan{
				ID:          scanID,
				Status:      device.ScanStatusCompleted,
				Progress:    100,
				DeviceCount: 7,
			}, nil
		},
	}
	router := newScanRouter(orchestrator, registry.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/scan/status/"+scanID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ScanStatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, scanID, resp.ID)
	assert.Equal(t, 100, resp.Progress)
	assert.Equal(t, 7, resp.DeviceCount)
	assert.Equal(t, "Scan completed", resp.Message)
}

func TestStatusMessage(t *testing.T) {
	errText := "sweep failed"
	tests := []struct {
		name string
		scan device.Scan
		want string
	}{
		{"running", device.Scan{Status: device.ScanStatusRunning}, "Scan in progress"},
		{"completed", device.Scan{Status: device.ScanStatusCompleted}, "Scan completed"},
		{"failed with error", device.Scan{Status: device.ScanStatusFailed, Error: &errText}, "sweep failed"},
		{"failed without error", device.Scan{Status: device.ScanStatusFailed}, "Scan failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusMessage(&tt.scan))
		})
	}
}

func TestScanStatusUnknownID(t *testing.T) {
	orchestrator := &fakeOrchestrator{
		status: func(id uuid.UUID) (*device.Scan, error) {
			return nil, errors.ErrScanNotFound(id.String())
		},
	}
	router := newScanRouter(orchestrator, registry.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/scan/status/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScanStatusMalformedID(t *testing.T) {
	router := newScanRouter(&fakeOrchestrator{}, registry.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/scan/status/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDetailedAccepted(t *testing.T) {
	deviceID := uuid.New()
	var gotCreds *device.Credentials
	orchestrator := &fakeOrchestrator{
		submitDetailed: func(_ context.Context, id uuid.UUID, creds *device.Credentials) (*device.Device, error) {
			assert.Equal(t, deviceID, id)
			gotCreds = creds
			return &device.Device{ID: deviceID, IPAddress: "192.168.1.50"}, nil
		},
	}
	router := newScanRouter(orchestrator, registry.NewMemoryStore())

	body := `{"device_id":"` + deviceID.String() + `","credentials":{"username":"admin","password":"s3cret","protocol":"snmp","community":"public"}}`
	rec := postJSON(t, router, "/scan/detailed", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp DetailedResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, deviceID, resp.DeviceID)
	assert.Equal(t, "Detailed scan started for device 192.168.1.50", resp.Message)

	require.NotNil(t, gotCreds)
	assert.Equal(t, device.ProtocolSNMP, gotCreds.Protocol)
	assert.Equal(t, "public", gotCreds.Community)
}

func TestDetailedWithoutCredentials(t *testing.T) {
	deviceID := uuid.New()
	orchestrator := &fakeOrchestrator{
		submitDetailed: func(_ context.Context, id uuid.UUID, creds *device.Credentials) (*device.Device, error) {
			assert.Nil(t, creds)
			return &device.Device{ID: id, IPAddress: "10.0.0.5"}, nil
		},
	}
	router := newScanRouter(orchestrator, registry.NewMemoryStore())

	rec := postJSON(t, router, "/scan/detailed", `{"device_id":"`+deviceID.String()+`"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestDetailedRejectsBadRequests(t *testing.T) {
	router := newScanRouter(&fakeOrchestrator{}, registry.NewMemoryStore())

	tests := []struct {
		name string
		body string
	}{
		{"missing device id", `{}`},
		{"bad protocol", `{"device_id":"` + uuid.NewString() + `","credentials":{"protocol":"telnet"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, router, "/scan/detailed", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestDetailedUnknownDevice(t *testing.T) {
	orchestrator := &fakeOrchestrator{
		submitDetailed: func(_ context.Context, id uuid.UUID, _ *device.Credentials) (*device.Device, error) {
			return nil, errors.ErrDeviceNotFound(id.String())
		},
	}
	router := newScanRouter(orchestrator, registry.NewMemoryStore())

	rec := postJSON(t, router, "/scan/detailed", `{"device_id":"`+uuid.NewString()+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScanList(t *testing.T) {
	store := registry.NewMemoryStore()
	require.NoError(t, store.InsertScan(context.Background(), &device.Scan{
		ID:           uuid.New(),
		NetworkRange: "192.168.1.0/24",
		Status:       device.ScanStatusCompleted,
		Progress:     100,
		StartedAt:    time.Now().UTC(),
	}))
	router := newScanRouter(&fakeOrchestrator{}, store)

	req := httptest.NewRequest(http.MethodGet, "/scans", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Scans []device.Scan `json:"scans"`
		Total int           `json:"total"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Total)
	require.Len(t, resp.Scans, 1)
	assert.Equal(t, "192.168.1.0/24", resp.Scans[0].NetworkRange)
}

func TestConvertCredentials(t *testing.T) {
	creds, err := convertCredentials(nil)
	require.NoError(t, err)
	assert.Nil(t, creds)

	// An omitted protocol means SSH, matching the historical client
	// behavior.
	creds, err = convertCredentials(&CredentialsRequest{Username: "root"})
	require.NoError(t, err)
	assert.Equal(t, device.ProtocolSSH, creds.Protocol)

	creds, err = convertCredentials(&CredentialsRequest{Protocol: "ad", Username: "admin"})
	require.NoError(t, err)
	assert.Equal(t, device.ProtocolWMI, creds.Protocol)

	_, err = convertCredentials(&CredentialsRequest{Protocol: "telnet"})
	require.Error(t, err)
}
