// Package probe wraps the external host-discovery capability (nmap)
// behind a small adapter interface. Discovery returns per-host raw
// results; a second entry point performs the deep per-host probe used by
// detailed scans. The package also carries the soft fallbacks for
// hostname and MAC resolution.
package probe

import (
	"context"
)

// RawHost is the unauthenticated discovery result for a single host.
// Hostname and MAC may be empty when the probe could not observe them;
// callers are expected to run the fallback lookups.
type RawHost struct {
	IP       string
	Status   string
	Hostname string
	MAC      string
}

// OSMatch is one ranked OS-fingerprint candidate.
type OSMatch struct {
	Name     string
	Accuracy int
	Type     string
	Vendor   string
	Family   string
}

// PortDetail describes one open port found by the deep probe.
type PortDetail struct {
	Port    uint16
	Service string
	Product string
	Version string
}

// HostDetail is the result of a deep probe against a single host:
// OS candidates ranked best-first and the open ports observed.
type HostDetail struct {
	OSMatches []OSMatch
	OpenPorts []PortDetail
}

// Adapter is the contract the orchestrator consumes. DiscoverHosts and
// ProbeHost surface probe-backend failures as errors; ResolveHostname and
// LookupMAC are per-host soft operations whose failures callers absorb.
type Adapter interface {
	// DiscoverHosts sweeps a CIDR range and returns one RawHost per
	// responsive address, in the order the probe reported them.
	DiscoverHosts(ctx context.Context, network string) ([]RawHost, error)

	// ProbeHost runs OS and service detection against a single address.
	ProbeHost(ctx context.Context, ip string) (*HostDetail, error)

	// ResolveHostname attempts a reverse lookup for the address.
	ResolveHostname(ctx context.Context, ip string) (string, error)

	// LookupMAC queries the local ARP table for the address.
	LookupMAC(ctx context.Context, ip string) (string, error)
}
