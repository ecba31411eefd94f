package registry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asplund/netasset/internal/device"
	"github.com/asplund/netasset/internal/errors"
)

func makeDevice(scanID uuid.UUID, ip string) *device.Device {
	hostname := "host-" + ip
	return &device.Device{
		ID:           uuid.New(),
		ScanID:       scanID,
		IPAddress:    ip,
		Hostname:     &hostname,
		Type:         device.TypeUnknown,
		Status:       device.StatusUp,
		DiscoveredAt: time.Now().UTC(),
		OpenPorts:    []device.OpenPort{},
	}
}

func TestMemoryStoreUpsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	scanID := uuid.New()

	d := makeDevice(scanID, "192.168.1.10")
	require.NoError(t, store.UpsertDevice(ctx, d))

	got, err := store.GetDevice(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.IPAddress, got.IPAddress)
	assert.Equal(t, *d.Hostname, *got.Hostname)

	// Upsert with the same id fully replaces the record.
	d.Status = device.StatusDown
	d.Type = "Router"
	require.NoError(t, store.UpsertDevice(ctx, d))

	got, err = store.GetDevice(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, device.StatusDown, got.Status)
	assert.Equal(t, "Router", got.Type)
}

func TestMemoryStoreGetUnknownDevice(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.GetDevice(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	d := makeDevice(uuid.New(), "10.0.0.1")
	d.HardwareSpecs = map[string]string{"cpu": "4 cores"}
	require.NoError(t, store.UpsertDevice(ctx, d))

	got, err := store.GetDevice(ctx, d.ID)
	require.NoError(t, err)

	// Mutating the returned record must not affect stored state.
	*got.Hostname = "mutated"
	got.HardwareSpecs["cpu"] = "mutated"

	fresh, err := store.GetDevice(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "host-10.0.0.1", *fresh.Hostname)
	assert.Equal(t, "4 cores", fresh.HardwareSpecs["cpu"])
}

func TestMemoryStoreListOrdersByIP(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	scanID := uuid.New()

	// Insert out of order, including an address that sorts differently
	// under lexical and numeric ordering.
	for _, ip := range []string{"192.168.1.20", "192.168.1.3", "192.168.1.100"} {
		require.NoError(t, store.UpsertDevice(ctx, makeDevice(scanID, ip)))
	}

	devices, err := store.ListDevices(ctx, DeviceFilter{})
	require.NoError(t, err)
	require.Len(t, devices, 3)
	assert.Equal(t, "192.168.1.3", devices[0].IPAddress)
	assert.Equal(t, "192.168.1.20", devices[1].IPAddress)
	assert.Equal(t, "192.168.1.100", devices[2].IPAddress)
}

func TestMemoryStoreListFiltersByScanID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	scanA, scanB := uuid.New(), uuid.New()

	require.NoError(t, store.UpsertDevice(ctx, makeDevice(scanA, "10.0.0.1")))
	require.NoError(t, store.UpsertDevice(ctx, makeDevice(scanA, "10.0.0.2")))
	require.NoError(t, store.UpsertDevice(ctx, makeDevice(scanB, "10.0.0.3")))

	devices, err := store.ListDevices(ctx, DeviceFilter{ScanID: &scanA})
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	all, err := store.ListDevices(ctx, DeviceFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMemoryStoreDeleteDevice(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	d := makeDevice(uuid.New(), "10.0.0.1")
	require.NoError(t, store.UpsertDevice(ctx, d))

	removed, err := store.DeleteDevice(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// Deleting an unknown id is not an error, just zero rows.
	removed, err = store.DeleteDevice(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}

func TestMemoryStoreScanHistory(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	older := &device.Scan{
		ID:           uuid.New(),
		NetworkRange: "192.168.1.0/24",
		Status:       device.ScanStatusCompleted,
		Progress:     100,
		StartedAt:    time.Now().Add(-time.Hour),
	}
	newer := &device.Scan{
		ID:           uuid.New(),
		NetworkRange: "10.0.0.0/24",
		Status:       device.ScanStatusFailed,
		StartedAt:    time.Now(),
	}

	require.NoError(t, store.InsertScan(ctx, older))
	require.NoError(t, store.InsertScan(ctx, newer))

	scans, err := store.ListScans(ctx)
	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.Equal(t, newer.ID, scans[0].ID)
	assert.Equal(t, older.ID, scans[1].ID)

	// Re-inserting the same id replaces the record.
	older.Progress = 50
	require.NoError(t, store.InsertScan(ctx, older))
	scans, err = store.ListScans(ctx)
	require.NoError(t, err)
	require.Len(t, scans, 2)
	assert.Equal(t, 50, scans[1].Progress)
}

func TestCompareIPs(t *testing.T) {
	assert.Negative(t, compareIPs("10.0.0.2", "10.0.0.10"))
	assert.Positive(t, compareIPs("192.168.1.1", "10.0.0.1"))
	assert.Zero(t, compareIPs("10.0.0.1", "10.0.0.1"))
	// Unparseable values fall back to string order.
	assert.Negative(t, compareIPs("abc", "abd"))
}
