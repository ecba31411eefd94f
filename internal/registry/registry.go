// Package registry is the persistence boundary for device and scan
// records. The Store interface has upsert semantics keyed on device id:
// repeating a call with the same id is safe, and overlapping writes
// resolve last-write-wins. Two implementations exist, a PostgreSQL store
// for production and an in-memory store for tests and store-less runs.
package registry

import (
	"context"

	"github.com/google/uuid"

	"github.com/asplund/netasset/internal/device"
)

// DeviceFilter narrows ListDevices output. A nil ScanID matches all.
type DeviceFilter struct {
	ScanID *uuid.UUID
}

// Store is the registry contract the orchestrator and API consume.
type Store interface {
	// UpsertDevice inserts or fully replaces a device record by id.
	UpsertDevice(ctx context.Context, d *device.Device) error

	// ListDevices returns devices matching the filter, ordered by IP.
	ListDevices(ctx context.Context, filter DeviceFilter) ([]device.Device, error)

	// GetDevice returns a device or a not-found error.
	GetDevice(ctx context.Context, id uuid.UUID) (*device.Device, error)

	// DeleteDevice removes a device and returns the number removed.
	DeleteDevice(ctx context.Context, id uuid.UUID) (int64, error)

	// InsertScan records a finished discovery run in the scan history.
	InsertScan(ctx context.Context, s *device.Scan) error

	// ListScans returns the scan history, newest first.
	ListScans(ctx context.Context) ([]device.Scan, error)

	// Close releases the store's resources.
	Close() error
}
