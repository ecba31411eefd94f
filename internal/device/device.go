// Package device defines the core data model for netasset: discovered
// devices, scan records, and the credential types used for authenticated
// enrichment. These types are shared between the orchestrator, the
// registry, and the API layer.
package device

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Reachability states reported by discovery.
const (
	StatusUp   = "up"
	StatusDown = "down"
)

// Scan lifecycle states. Completed and Failed are terminal.
const (
	ScanStatusRunning   = "running"
	ScanStatusCompleted = "completed"
	ScanStatusFailed    = "failed"
)

// HostnameUnknown is the sentinel used when hostname resolution fails
// for an individual host.
const HostnameUnknown = "Unknown"

// TypeUnknown is the default device type before any classification ran.
const TypeUnknown = "Unknown"

// OpenPort describes a single open port observed on a device.
type OpenPort struct {
	Port    uint16 `json:"port"`
	Service string `json:"service"`
	Product string `json:"product,omitempty"`
	Version string `json:"version,omitempty"`
}

// OSInfo holds the best OS fingerprint candidate for a device.
type OSInfo struct {
	Name     string `json:"name"`
	Accuracy int    `json:"accuracy"`
	Type     string `json:"type"`
	Vendor   string `json:"vendor"`
	Family   string `json:"os_family"`
}

// Device is a single inventoried host. One record is created per
// responsive host per discovery scan and later mutated in place by
// detailed scans. Authenticated is only ever set by a successful
// enrichment pass, never by discovery alone.
type Device struct {
	ID            uuid.UUID         `json:"id"`
	ScanID        uuid.UUID         `json:"scan_id"`
	IPAddress     string            `json:"ip_address"`
	MACAddress    *string           `json:"mac_address,omitempty"`
	Hostname      *string           `json:"hostname,omitempty"`
	Type          string            `json:"device_type"`
	OSInfo        *OSInfo           `json:"os_info,omitempty"`
	HardwareSpecs map[string]string `json:"hardware_specs,omitempty"`
	Status        string            `json:"status"`
	DiscoveredAt  time.Time         `json:"discovered_at"`
	Authenticated bool              `json:"authenticated"`
	OpenPorts     []OpenPort        `json:"open_ports"`
	LastScanned   *time.Time        `json:"last_scanned,omitempty"`
	ScanError     *string           `json:"scan_error,omitempty"`
}

// HostnameOrUnknown returns the resolved hostname or the Unknown sentinel.
func (d *Device) HostnameOrUnknown() string {
	if d.Hostname == nil || *d.Hostname == "" {
		return HostnameUnknown
	}
	return *d.Hostname
}

// Scan is a discovery run over a network range. Progress is an integer
// percentage that only moves forward and reaches 100 exactly when the
// scan completes.
type Scan struct {
	ID           uuid.UUID  `json:"scan_id"`
	NetworkRange string     `json:"network_range"`
	Status       string     `json:"status"`
	Progress     int        `json:"progress"`
	DeviceCount  int        `json:"total_devices"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        *string    `json:"error,omitempty"`
}

// IsTerminal reports whether the scan reached a final state.
func (s *Scan) IsTerminal() bool {
	return s.Status == ScanStatusCompleted || s.Status == ScanStatusFailed
}

// Protocol selects the authenticated collector used for enrichment.
// The set is closed: adding a protocol means adding a constant here and
// a case to every switch over it.
type Protocol int

const (
	ProtocolSSH Protocol = iota
	ProtocolSNMP
	ProtocolWMI
)

// String returns the wire name of the protocol.
func (p Protocol) String() string {
	switch p {
	case ProtocolSSH:
		return "ssh"
	case ProtocolSNMP:
		return "snmp"
	case ProtocolWMI:
		return "wmi"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// ParseProtocol maps a wire string to a Protocol. The legacy "ad" alias
// selects the WMI collector since both speak the same authentication shape.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ssh":
		return ProtocolSSH, nil
	case "snmp":
		return ProtocolSNMP, nil
	case "wmi", "ad":
		return ProtocolWMI, nil
	default:
		return 0, fmt.Errorf("unsupported auth protocol: %q", s)
	}
}

// Credentials are ephemeral enrichment inputs. They are passed once into
// the enrichment engine and discarded; nothing in this struct is ever
// written to the registry or logged.
type Credentials struct {
	Username  string
	Password  string
	Community string
	Protocol  Protocol
}

// SNMPCommunity returns the community string for the SNMP collector,
// falling back to the username field as the original clients did.
func (c *Credentials) SNMPCommunity() string {
	if c.Community != "" {
		return c.Community
	}
	return c.Username
}
