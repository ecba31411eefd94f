package probe

import (
	"context"

	"github.com/Ullaakut/nmap/v3"

	"github.com/asplund/netasset/internal/errors"
	"github.com/asplund/netasset/internal/logging"
)

const (
	// Discovery uses an aggressive ping sweep with a minimum packet
	// rate, matching a plain "-sn -T4 --min-rate 100" nmap run.
	discoveryMinRate = 100

	// Deep probes inspect the most common ports only.
	detailTopPorts = 100
)

// NmapAdapter implements Adapter on top of the nmap binary via the
// Ullaakut/nmap library. The zero value is not usable; use NewNmapAdapter.
type NmapAdapter struct {
	logger *logging.Logger
}

// NewNmapAdapter creates a probe adapter backed by nmap.
func NewNmapAdapter() *NmapAdapter {
	return &NmapAdapter{
		logger: logging.Default().WithComponent("probe"),
	}
}

// DiscoverHosts performs a ping sweep over the network range. Any
// scanner creation or execution failure is a probe failure that the
// caller surfaces as a scan-level error; it is not retried here.
func (a *NmapAdapter) DiscoverHosts(ctx context.Context, network string) ([]RawHost, error) {
	scanner, err := nmap.NewScanner(ctx, discoveryOptions(network)...)
	if err != nil {
		return nil, errors.ErrProbeUnavailable(network, err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, errors.WrapScanErrorWithTarget(
			errors.CodeDiscoveryFailed, "host discovery failed", network, err)
	}
	if warnings != nil && len(*warnings) > 0 {
		a.logger.Warn("Discovery completed with warnings", "network", network, "warnings", *warnings)
	}

	hosts := make([]RawHost, 0, len(result.Hosts))
	for i := range result.Hosts {
		if raw, ok := convertDiscoveredHost(&result.Hosts[i]); ok {
			hosts = append(hosts, raw)
		}
	}

	a.logger.InfoDiscovery("Host discovery finished", network, "hosts", len(hosts))
	return hosts, nil
}

// ProbeHost runs OS detection and service/version detection against a
// single address.
func (a *NmapAdapter) ProbeHost(ctx context.Context, ip string) (*HostDetail, error) {
	scanner, err := nmap.NewScanner(ctx, detailOptions(ip)...)
	if err != nil {
		return nil, errors.ErrProbeUnavailable(ip, err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, errors.WrapScanErrorWithTarget(
			errors.CodeProbeFailed, "detail probe failed", ip, err)
	}
	if warnings != nil && len(*warnings) > 0 {
		a.logger.Warn("Detail probe completed with warnings", "target", ip, "warnings", *warnings)
	}

	for i := range result.Hosts {
		if hostAddress(&result.Hosts[i]) == ip {
			detail := convertHostDetail(&result.Hosts[i])
			return detail, nil
		}
	}

	// Host did not answer the deep probe; report an empty detail rather
	// than an error so the caller keeps the existing record intact.
	return &HostDetail{}, nil
}

// discoveryOptions builds the nmap options for the unauthenticated sweep.
func discoveryOptions(network string) []nmap.Option {
	return []nmap.Option{
		nmap.WithTargets(network),
		nmap.WithPingScan(),
		nmap.WithTimingTemplate(nmap.TimingAggressive),
		nmap.WithMinRate(discoveryMinRate),
	}
}

// detailOptions builds the nmap options for the per-host deep probe.
func detailOptions(ip string) []nmap.Option {
	return []nmap.Option{
		nmap.WithTargets(ip),
		nmap.WithOSDetection(),
		nmap.WithServiceInfo(),
		nmap.WithMostCommonPorts(detailTopPorts),
		nmap.WithTimingTemplate(nmap.TimingAggressive),
	}
}

// hostAddress returns the primary IPv4 address of an nmap host.
func hostAddress(h *nmap.Host) string {
	for _, addr := range h.Addresses {
		if addr.AddrType == "ipv4" || addr.AddrType == "ipv6" {
			return addr.Addr
		}
	}
	if len(h.Addresses) > 0 {
		return h.Addresses[0].Addr
	}
	return ""
}

// convertDiscoveredHost maps an nmap sweep result to a RawHost. Hosts
// without an address are dropped.
func convertDiscoveredHost(h *nmap.Host) (RawHost, bool) {
	ip := hostAddress(h)
	if ip == "" {
		return RawHost{}, false
	}

	raw := RawHost{
		IP:     ip,
		Status: h.Status.State,
	}
	if len(h.Hostnames) > 0 {
		raw.Hostname = h.Hostnames[0].Name
	}
	for _, addr := range h.Addresses {
		if addr.AddrType == "mac" {
			raw.MAC = addr.Addr
			break
		}
	}
	return raw, true
}

// convertHostDetail maps deep-probe output to a HostDetail. OS matches
// keep nmap's ranking; only open ports are carried over.
func convertHostDetail(h *nmap.Host) *HostDetail {
	detail := &HostDetail{
		OSMatches: make([]OSMatch, 0, len(h.OS.Matches)),
		OpenPorts: make([]PortDetail, 0, len(h.Ports)),
	}

	for _, match := range h.OS.Matches {
		m := OSMatch{
			Name:     match.Name,
			Accuracy: match.Accuracy,
		}
		if len(match.Classes) > 0 {
			m.Type = match.Classes[0].Type
			m.Vendor = match.Classes[0].Vendor
			m.Family = match.Classes[0].Family
		}
		detail.OSMatches = append(detail.OSMatches, m)
	}

	for i := range h.Ports {
		p := &h.Ports[i]
		if p.State.State != "open" {
			continue
		}
		detail.OpenPorts = append(detail.OpenPorts, PortDetail{
			Port:    p.ID,
			Service: p.Service.Name,
			Product: p.Service.Product,
			Version: p.Service.Version,
		})
	}

	return detail
}
