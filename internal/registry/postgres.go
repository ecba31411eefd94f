package registry

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/asplund/netasset/internal/device"
	"github.com/asplund/netasset/internal/errors"
	"github.com/asplund/netasset/internal/logging"
)

// Config holds PostgreSQL connection settings.
type Config struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	Database        string        `yaml:"database" json:"database"`
	Username        string        `yaml:"username" json:"username"`
	Password        string        `yaml:"password" json:"password"`
	SSLMode         string        `yaml:"ssl_mode" json:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// DefaultConfig returns default database configuration.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		Database:        "netasset",
		Username:        "netasset",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// DSN builds the connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		c.Host, strconv.Itoa(c.Port), c.Database, c.Username, c.Password, c.SSLMode)
}

// schema is applied on connect; every statement is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS devices (
	id              UUID PRIMARY KEY,
	scan_id         UUID NOT NULL,
	ip_address      INET NOT NULL,
	mac_address     TEXT,
	hostname        TEXT,
	device_type     TEXT NOT NULL DEFAULT 'Unknown',
	os_info         JSONB,
	hardware_specs  JSONB,
	status          TEXT NOT NULL DEFAULT 'up',
	discovered_at   TIMESTAMPTZ NOT NULL,
	authenticated   BOOLEAN NOT NULL DEFAULT FALSE,
	open_ports      JSONB NOT NULL DEFAULT '[]',
	last_scanned    TIMESTAMPTZ,
	scan_error      TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS devices_scan_ip_idx ON devices (scan_id, ip_address);

CREATE TABLE IF NOT EXISTS scans (
	scan_id         UUID PRIMARY KEY,
	network_range   CIDR NOT NULL,
	status          TEXT NOT NULL,
	progress        INTEGER NOT NULL DEFAULT 0,
	total_devices   INTEGER NOT NULL DEFAULT 0,
	started_at      TIMESTAMPTZ NOT NULL,
	completed_at    TIMESTAMPTZ,
	error           TEXT
);
`

// PostgresStore implements Store on PostgreSQL via sqlx.
type PostgresStore struct {
	db     *sqlx.DB
	logger *logging.Logger
}

// Ensure PostgresStore satisfies the Store interface.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to PostgreSQL and bootstraps the schema.
func NewPostgresStore(ctx context.Context, cfg Config) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, errors.WrapRegistryError(errors.CodeRegistryConnection,
			"failed to connect to database", "connect", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := &PostgresStore{
		db:     db,
		logger: logging.Default().WithComponent("registry"),
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.WrapRegistryError(errors.CodeRegistryQuery,
			"failed to bootstrap schema", "migrate", err)
	}

	store.logger.Info("Connected to database",
		"host", cfg.Host, "database", cfg.Database)
	return store, nil
}

// NewPostgresStoreFromDB wraps an existing connection; used by tests.
func NewPostgresStoreFromDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logging.Default().WithComponent("registry"),
	}
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// deviceRow is the flat database representation of a device document.
type deviceRow struct {
	ID            uuid.UUID      `db:"id"`
	ScanID        uuid.UUID      `db:"scan_id"`
	IPAddress     string         `db:"ip_address"`
	MACAddress    sql.NullString `db:"mac_address"`
	Hostname      sql.NullString `db:"hostname"`
	DeviceType    string         `db:"device_type"`
	OSInfo        JSONB          `db:"os_info"`
	HardwareSpecs JSONB          `db:"hardware_specs"`
	Status        string         `db:"status"`
	DiscoveredAt  time.Time      `db:"discovered_at"`
	Authenticated bool           `db:"authenticated"`
	OpenPorts     JSONB          `db:"open_ports"`
	LastScanned   sql.NullTime   `db:"last_scanned"`
	ScanError     sql.NullString `db:"scan_error"`
}

func toDeviceRow(d *device.Device) (*deviceRow, error) {
	osInfo, err := marshalJSONB(d.OSInfo)
	if err != nil {
		return nil, fmt.Errorf("marshal os_info: %w", err)
	}
	specs, err := marshalJSONB(d.HardwareSpecs)
	if err != nil {
		return nil, fmt.Errorf("marshal hardware_specs: %w", err)
	}
	ports := d.OpenPorts
	if ports == nil {
		ports = []device.OpenPort{}
	}
	openPorts, err := marshalJSONB(ports)
	if err != nil {
		return nil, fmt.Errorf("marshal open_ports: %w", err)
	}

	row := &deviceRow{
		ID:            d.ID,
		ScanID:        d.ScanID,
		IPAddress:     d.IPAddress,
		DeviceType:    d.Type,
		OSInfo:        osInfo,
		HardwareSpecs: specs,
		Status:        d.Status,
		DiscoveredAt:  d.DiscoveredAt,
		Authenticated: d.Authenticated,
		OpenPorts:     openPorts,
	}
	if d.MACAddress != nil {
		row.MACAddress = sql.NullString{String: *d.MACAddress, Valid: true}
	}
	if d.Hostname != nil {
		row.Hostname = sql.NullString{String: *d.Hostname, Valid: true}
	}
	if d.LastScanned != nil {
		row.LastScanned = sql.NullTime{Time: *d.LastScanned, Valid: true}
	}
	if d.ScanError != nil {
		row.ScanError = sql.NullString{String: *d.ScanError, Valid: true}
	}
	return row, nil
}

func (r *deviceRow) toDevice() (*device.Device, error) {
	d := &device.Device{
		ID:            r.ID,
		ScanID:        r.ScanID,
		IPAddress:     stripPrefixLen(r.IPAddress),
		Type:          r.DeviceType,
		Status:        r.Status,
		DiscoveredAt:  r.DiscoveredAt,
		Authenticated: r.Authenticated,
		OpenPorts:     []device.OpenPort{},
	}
	if r.MACAddress.Valid {
		d.MACAddress = &r.MACAddress.String
	}
	if r.Hostname.Valid {
		d.Hostname = &r.Hostname.String
	}
	if r.LastScanned.Valid {
		t := r.LastScanned.Time
		d.LastScanned = &t
	}
	if r.ScanError.Valid {
		d.ScanError = &r.ScanError.String
	}
	if err := unmarshalJSONB(r.OSInfo, &d.OSInfo); err != nil {
		return nil, fmt.Errorf("unmarshal os_info: %w", err)
	}
	if err := unmarshalJSONB(r.HardwareSpecs, &d.HardwareSpecs); err != nil {
		return nil, fmt.Errorf("unmarshal hardware_specs: %w", err)
	}
	if err := unmarshalJSONB(r.OpenPorts, &d.OpenPorts); err != nil {
		return nil, fmt.Errorf("unmarshal open_ports: %w", err)
	}
	return d, nil
}

// stripPrefixLen removes a trailing /32 or /128 that INET columns can
// report for single addresses.
func stripPrefixLen(ip string) string {
	if parsed, _, err := net.ParseCIDR(ip); err == nil {
		return parsed.String()
	}
	return ip
}

const upsertDeviceQuery = `
	INSERT INTO devices (
		id, scan_id, ip_address, mac_address, hostname, device_type,
		os_info, hardware_specs, status, discovered_at, authenticated,
		open_ports, last_scanned, scan_error
	) VALUES (
		:id, :scan_id, :ip_address, :mac_address, :hostname, :device_type,
		:os_info, :hardware_specs, :status, :discovered_at, :authenticated,
		:open_ports, :last_scanned, :scan_error
	)
	ON CONFLICT (id) DO UPDATE SET
		scan_id        = EXCLUDED.scan_id,
		ip_address     = EXCLUDED.ip_address,
		mac_address    = EXCLUDED.mac_address,
		hostname       = EXCLUDED.hostname,
		device_type    = EXCLUDED.device_type,
		os_info        = EXCLUDED.os_info,
		hardware_specs = EXCLUDED.hardware_specs,
		status         = EXCLUDED.status,
		discovered_at  = EXCLUDED.discovered_at,
		authenticated  = EXCLUDED.authenticated,
		open_ports     = EXCLUDED.open_ports,
		last_scanned   = EXCLUDED.last_scanned,
		scan_error     = EXCLUDED.scan_error`

// UpsertDevice inserts or fully replaces a device record.
func (s *PostgresStore) UpsertDevice(ctx context.Context, d *device.Device) error {
	row, err := toDeviceRow(d)
	if err != nil {
		return errors.WrapRegistryError(errors.CodeRegistryQuery,
			"failed to encode device", "upsert_device", err)
	}
	if _, err := s.db.NamedExecContext(ctx, upsertDeviceQuery, row); err != nil {
		return errors.WrapRegistryError(errors.CodeRegistryQuery,
			"failed to upsert device", "upsert_device", err)
	}
	return nil
}

const selectDeviceColumns = `
	id, scan_id, ip_address, mac_address, hostname, device_type,
	os_info, hardware_specs, status, discovered_at, authenticated,
	open_ports, last_scanned, scan_error`

// ListDevices returns devices matching the filter ordered by IP address.
// INET ordering sorts numerically, not lexically.
func (s *PostgresStore) ListDevices(ctx context.Context, filter DeviceFilter) ([]device.Device, error) {
	query := `SELECT` + selectDeviceColumns + ` FROM devices`
	var args []interface{}
	if filter.ScanID != nil {
		query += ` WHERE scan_id = $1`
		args = append(args, *filter.ScanID)
	}
	query += ` ORDER BY ip_address`

	var rows []deviceRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.WrapRegistryError(errors.CodeRegistryQuery,
			"failed to list devices", "list_devices", err)
	}

	devices := make([]device.Device, 0, len(rows))
	for i := range rows {
		d, err := rows[i].toDevice()
		if err != nil {
			return nil, errors.WrapRegistryError(errors.CodeRegistryQuery,
				"failed to decode device", "list_devices", err)
		}
		devices = append(devices, *d)
	}
	return devices, nil
}

// GetDevice returns a single device or a not-found error.
func (s *PostgresStore) GetDevice(ctx context.Context, id uuid.UUID) (*device.Device, error) {
	var row deviceRow
	query := `SELECT` + selectDeviceColumns + ` FROM devices WHERE id = $1`
	err := s.db.GetContext(ctx, &row, query, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrDeviceNotFound(id.String())
	}
	if err != nil {
		return nil, errors.WrapRegistryError(errors.CodeRegistryQuery,
			"failed to get device", "get_device", err)
	}
	return row.toDevice()
}

// DeleteDevice removes a device record and reports how many rows went.
func (s *PostgresStore) DeleteDevice(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return 0, errors.WrapRegistryError(errors.CodeRegistryQuery,
			"failed to delete device", "delete_device", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.WrapRegistryError(errors.CodeRegistryQuery,
			"failed to read delete result", "delete_device", err)
	}
	return affected, nil
}

// InsertScan records a discovery run in the scan history. Repeating the
// insert for the same id updates the record in place.
func (s *PostgresStore) InsertScan(ctx context.Context, scan *device.Scan) error {
	query := `
		INSERT INTO scans (
			scan_id, network_range, status, progress, total_devices,
			started_at, completed_at, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (scan_id) DO UPDATE SET
			status        = EXCLUDED.status,
			progress      = EXCLUDED.progress,
			total_devices = EXCLUDED.total_devices,
			completed_at  = EXCLUDED.completed_at,
			error         = EXCLUDED.error`

	_, err := s.db.ExecContext(ctx, query,
		scan.ID, scan.NetworkRange, scan.Status, scan.Progress,
		scan.DeviceCount, scan.StartedAt, scan.CompletedAt, scan.Error)
	if err != nil {
		return errors.WrapRegistryError(errors.CodeRegistryQuery,
			"failed to insert scan record", "insert_scan", err)
	}
	return nil
}

// ListScans returns the scan history, newest first.
func (s *PostgresStore) ListScans(ctx context.Context) ([]device.Scan, error) {
	var scans []device.Scan
	query := `
		SELECT scan_id, network_range, status, progress, total_devices,
		       started_at, completed_at, error
		FROM scans ORDER BY started_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.WrapRegistryError(errors.CodeRegistryQuery,
			"failed to list scans", "list_scans", err)
	}
	defer rows.Close()

	for rows.Next() {
		var scan device.Scan
		var completedAt sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(&scan.ID, &scan.NetworkRange, &scan.Status,
			&scan.Progress, &scan.DeviceCount, &scan.StartedAt,
			&completedAt, &errMsg); err != nil {
			return nil, errors.WrapRegistryError(errors.CodeRegistryQuery,
				"failed to scan history row", "list_scans", err)
		}
		if completedAt.Valid {
			t := completedAt.Time
			scan.CompletedAt = &t
		}
		if errMsg.Valid {
			scan.Error = &errMsg.String
		}
		scans = append(scans, scan)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapRegistryError(errors.CodeRegistryQuery,
			"failed to iterate scan history", "list_scans", err)
	}
	return scans, nil
}
