package registry

import (
	"bytes"
	"context"
	"net"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/asplund/netasset/internal/device"
	"github.com/asplund/netasset/internal/errors"
)

// MemoryStore is an in-memory Store with the same semantics as the
// PostgreSQL implementation. Records are deep-copied on the way in and
// out, so callers can never mutate stored state through a returned
// pointer.
type MemoryStore struct {
	mu      sync.RWMutex
	devices map[uuid.UUID]*device.Device
	scans   []device.Scan
}

// Ensure MemoryStore satisfies the Store interface.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		devices: make(map[uuid.UUID]*device.Device),
	}
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

// UpsertDevice inserts or fully replaces a device record.
func (s *MemoryStore) UpsertDevice(_ context.Context, d *device.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.ID] = copyDevice(d)
	return nil
}

// ListDevices returns matching devices ordered by IP address.
func (s *MemoryStore) ListDevices(_ context.Context, filter DeviceFilter) ([]device.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make([]device.Device, 0, len(s.devices))
	for _, d := range s.devices {
		if filter.ScanID != nil && d.ScanID != *filter.ScanID {
			continue
		}
		devices = append(devices, *copyDevice(d))
	}

	sort.Slice(devices, func(i, j int) bool {
		return compareIPs(devices[i].IPAddress, devices[j].IPAddress) < 0
	})
	return devices, nil
}

// GetDevice returns a copy of the device or a not-found error.
func (s *MemoryStore) GetDevice(_ context.Context, id uuid.UUID) (*device.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[id]
	if !ok {
		return nil, errors.ErrDeviceNotFound(id.String())
	}
	return copyDevice(d), nil
}

// DeleteDevice removes a device record.
func (s *MemoryStore) DeleteDevice(_ context.Context, id uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[id]; !ok {
		return 0, nil
	}
	delete(s.devices, id)
	return 1, nil
}

// InsertScan records a discovery run, replacing any record with the
// same id.
func (s *MemoryStore) InsertScan(_ context.Context, scan *device.Scan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.scans {
		if s.scans[i].ID == scan.ID {
			s.scans[i] = *copyScan(scan)
			return nil
		}
	}
	s.scans = append(s.scans, *copyScan(scan))
	return nil
}

// ListScans returns the scan history, newest first.
func (s *MemoryStore) ListScans(_ context.Context) ([]device.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scans := make([]device.Scan, 0, len(s.scans))
	for i := range s.scans {
		scans = append(scans, *copyScan(&s.scans[i]))
	}
	sort.SliceStable(scans, func(i, j int) bool {
		return scans[i].StartedAt.After(scans[j].StartedAt)
	})
	return scans, nil
}

// compareIPs orders addresses numerically, falling back to string order
// for anything that fails to parse.
func compareIPs(a, b string) int {
	ipA, ipB := net.ParseIP(a), net.ParseIP(b)
	if ipA != nil && ipB != nil {
		return bytes.Compare(ipA.To16(), ipB.To16())
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func copyDevice(d *device.Device) *device.Device {
	clone := *d
	if d.MACAddress != nil {
		v := *d.MACAddress
		clone.MACAddress = &v
	}
	if d.Hostname != nil {
		v := *d.Hostname
		clone.Hostname = &v
	}
	if d.OSInfo != nil {
		v := *d.OSInfo
		clone.OSInfo = &v
	}
	if d.HardwareSpecs != nil {
		clone.HardwareSpecs = make(map[string]string, len(d.HardwareSpecs))
		for k, v := range d.HardwareSpecs {
			clone.HardwareSpecs[k] = v
		}
	}
	if d.OpenPorts != nil {
		clone.OpenPorts = append([]device.OpenPort(nil), d.OpenPorts...)
	}
	if d.LastScanned != nil {
		v := *d.LastScanned
		clone.LastScanned = &v
	}
	if d.ScanError != nil {
		v := *d.ScanError
		clone.ScanError = &v
	}
	return &clone
}

func copyScan(s *device.Scan) *device.Scan {
	clone := *s
	if s.CompletedAt != nil {
		v := *s.CompletedAt
		clone.CompletedAt = &v
	}
	if s.Error != nil {
		v := *s.Error
		clone.Error = &v
	}
	return &clone
}
