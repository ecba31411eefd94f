package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/asplund/netasset/internal/device"
	"github.com/asplund/netasset/internal/metrics"
	"github.com/asplund/netasset/internal/registry"
	"github.com/asplund/netasset/internal/scan"
)

// Orchestrator is the scan lifecycle surface the handlers depend on.
type Orchestrator interface {
	SubmitDiscovery(ctx context.Context, networkRange string) (*device.Scan, error)
	Status(scanID uuid.UUID) (*device.Scan, error)
	SubmitDetailed(ctx context.Context, deviceID uuid.UUID, creds *device.Credentials) (*device.Device, error)
	Subscribe(scanID uuid.UUID) (<-chan scan.ProgressEvent, func())
}

// ScanHandler handles scan submission and status endpoints.
type ScanHandler struct {
	orchestrator Orchestrator
	store        registry.Store
	logger       *slog.Logger
	metrics      metrics.MetricsRegistry
	validate     *validator.Validate
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(orchestrator Orchestrator, store registry.Store,
	logger *slog.Logger, metricsRegistry metrics.MetricsRegistry) *ScanHandler {
	return &ScanHandler{
		orchestrator: orchestrator,
		store:        store,
		logger:       logger.With("handler", "scan"),
		metrics:      metricsRegistry,
		validate:     validator.New(),
	}
}

// DiscoverRequest is the body of a discovery scan submission.
type DiscoverRequest struct {
	NetworkRange string `json:"network_range" validate:"required,cidr"`
}

// DiscoverResponse acknowledges an admitted discovery scan.
type DiscoverResponse struct {
	ScanID  uuid.UUID `json:"scan_id"`
	Status  string    `json:"status"`
	Message string    `json:"message"`
}

// CredentialsRequest carries per-request scan credentials. They live
// only for the duration of the scan job and are never persisted.
type CredentialsRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Community string `json:"community"`
	Protocol  string `json:"protocol" validate:"omitempty,oneof=ssh snmp wmi ad"`
}

// ScanStatusResponse is a scan snapshot with a human-readable message.
type ScanStatusResponse struct {
	device.Scan
	Message string `json:"message"`
}

// DetailedRequest is the body of a detailed scan submission.
type DetailedRequest struct {
	DeviceID    uuid.UUID           `json:"device_id" validate:"required"`
	Credentials *CredentialsRequest `json:"credentials"`
}

// DetailedResponse acknowledges an admitted detailed scan.
type DetailedResponse struct {
	DeviceID uuid.UUID `json:"device_id"`
	Message  string    `json:"message"`
}

// Discover handles POST /scan/discover.
func (h *ScanHandler) Discover(w http.ResponseWriter, r *http.Request) {
	var req DiscoverRequest
	if err := parseJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, http.StatusBadRequest,
			fmt.Errorf("network_range must be a valid CIDR"))
		return
	}

	scanRecord, err := h.orchestrator.SubmitDiscovery(r.Context(), req.NetworkRange)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.recordMetric("api_scans_submitted_total", metrics.Labels{"type": "discovery"})
	writeJSON(w, r, http.StatusAccepted, DiscoverResponse{
		ScanID:  scanRecord.ID,
		Status:  scanRecord.Status,
		Message: fmt.Sprintf("Scan started for network %s", scanRecord.NetworkRange),
	})
}

// Status handles GET /scan/status/{id}.
func (h *ScanHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := extractUUIDFromPath(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	scanRecord, err := h.orchestrator.Status(id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, ScanStatusResponse{
		Scan:    *scanRecord,
		Message: statusMessage(scanRecord),
	})
}

// statusMessage renders the per-state message clients display alongside
// the progress number.
func statusMessage(s *device.Scan) string {
	switch s.Status {
	case device.ScanStatusCompleted:
		return "Scan completed"
	case device.ScanStatusFailed:
		if s.Error != nil {
			return *s.Error
		}
		return "Scan failed"
	default:
		return "Scan in progress"
	}
}

// Detailed handles POST /scan/detailed.
func (h *ScanHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	var req DetailedRequest
	if err := parseJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}

	creds, err := convertCredentials(req.Credentials)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	d, err := h.orchestrator.SubmitDetailed(r.Context(), req.DeviceID, creds)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.recordMetric("api_scans_submitted_total", metrics.Labels{"type": "detailed"})
	writeJSON(w, r, http.StatusAccepted, DetailedResponse{
		DeviceID: d.ID,
		Message:  fmt.Sprintf("Detailed scan started for device %s", d.IPAddress),
	})
}

// List handles GET /scans.
func (h *ScanHandler) List(w http.ResponseWriter, r *http.Request) {
	scans, err := h.store.ListScans(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"scans": scans,
		"total": len(scans),
	})
}

// convertCredentials maps the request credentials onto the scan
// credentials type, validating the protocol name.
func convertCredentials(req *CredentialsRequest) (*device.Credentials, error) {
	if req == nil {
		return nil, nil
	}

	protocol, err := device.ParseProtocol(req.Protocol)
	if err != nil {
		return nil, err
	}

	return &device.Credentials{
		Username:  req.Username,
		Password:  req.Password,
		Community: req.Community,
		Protocol:  protocol,
	}, nil
}

func (h *ScanHandler) recordMetric(name string, labels metrics.Labels) {
	if h.metrics != nil {
		h.metrics.Counter(name, labels)
	}
}
