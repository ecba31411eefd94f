package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/asplund/netasset/internal/metrics"
	"github.com/asplund/netasset/internal/registry"
)

// DeviceHandler handles device inventory endpoints.
type DeviceHandler struct {
	store   registry.Store
	logger  *slog.Logger
	metrics metrics.MetricsRegistry
}

// NewDeviceHandler creates a new device handler.
func NewDeviceHandler(store registry.Store, logger *slog.Logger,
	metricsRegistry metrics.MetricsRegistry) *DeviceHandler {
	return &DeviceHandler{
		store:   store,
		logger:  logger.With("handler", "device"),
		metrics: metricsRegistry,
	}
}

// List handles GET /devices with an optional scan_id filter.
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter registry.DeviceFilter
	if raw := r.URL.Query().Get("scan_id"); raw != "" {
		scanID, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid scan_id: %s", raw))
			return
		}
		filter.ScanID = &scanID
	}

	devices, err := h.store.ListDevices(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"devices": devices,
		"total":   len(devices),
	})
}

// Get handles GET /devices/{id}.
func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := extractUUIDFromPath(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	d, err := h.store.GetDevice(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, d)
}

// Delete handles DELETE /devices/{id}.
func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := extractUUIDFromPath(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	removed, err := h.store.DeleteDevice(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if removed == 0 {
		writeError(w, r, http.StatusNotFound, fmt.Errorf("device not found"))
		return
	}

	if h.metrics != nil {
		h.metrics.Counter("api_devices_deleted_total", nil)
	}
	writeJSON(w, r, http.StatusOK, map[string]string{
		"message": "Device deleted",
	})
}
