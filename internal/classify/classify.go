// Package classify implements device-type classification heuristics.
// Classification is two-tiered: a hostname keyword match available right
// after discovery, and a service/OS based match used once a detailed scan
// has produced an OS fingerprint and an open-port list. Both tiers are
// deterministic and side-effect free.
package classify

import (
	"strings"

	"github.com/asplund/netasset/internal/device"
)

// Device type labels produced by the classifier.
const (
	TypeRouter         = "Router"
	TypeSwitch         = "Switch"
	TypeAccessPoint    = "Access Point"
	TypeServer         = "Server"
	TypePrinter        = "Printer"
	TypeIPCamera       = "IP Camera"
	TypeUnknownDevice  = "Unknown Device"
	TypeRouterFirewall = "Router/Firewall"
	TypeNetworkPrinter = "Network Printer"
	TypeWindows        = "Windows Computer"
	TypeLinux          = "Linux Server/Device"
)

// hostnameRule maps hostname keywords to a device type. Rules are
// evaluated in order; the first match wins.
type hostnameRule struct {
	keywords []string
	label    string
}

var hostnameRules = []hostnameRule{
	{[]string{"router", "gateway", "rt-", "gw-"}, TypeRouter},
	{[]string{"switch", "sw-"}, TypeSwitch},
	{[]string{"ap-", "access-point", "wifi"}, TypeAccessPoint},
	{[]string{"server", "srv-"}, TypeServer},
	{[]string{"printer", "print"}, TypePrinter},
	{[]string{"camera", "cam-", "ipcam"}, TypeIPCamera},
}

// ByHostname performs the tier-1 classification: a case-insensitive
// substring match of the hostname against curated keyword sets. It is the
// only classification available before a detailed scan has run.
func ByHostname(hostname string) string {
	lower := strings.ToLower(hostname)
	for _, rule := range hostnameRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.label
			}
		}
	}
	return TypeUnknownDevice
}

// ByServices performs the tier-2 classification from the OS fingerprint
// and open service set gathered by a detailed scan. When no tier-2 rule
// matches it falls back to the hostname heuristic on the same record, so
// tier 2 strictly supersedes tier 1 only when it produces a non-default
// label.
func ByServices(d *device.Device) string {
	if label := byOSType(d.OSInfo); label != "" {
		return label
	}
	if label := byServiceSet(d.OpenPorts); label != "" {
		return label
	}
	return ByHostname(d.HostnameOrUnknown())
}

func byOSType(os *device.OSInfo) string {
	if os == nil {
		return ""
	}
	osType := strings.ToLower(os.Type)
	switch {
	case strings.Contains(osType, "router") || strings.Contains(osType, "firewall"):
		return TypeRouterFirewall
	case strings.Contains(osType, "switch"):
		return TypeSwitch
	case strings.Contains(osType, "access point") || strings.Contains(osType, "wireless"):
		return TypeAccessPoint
	}
	return ""
}

func byServiceSet(ports []device.OpenPort) string {
	services := make(map[string]bool, len(ports))
	for _, p := range ports {
		services[strings.ToLower(p.Service)] = true
	}

	hasHTTP := services["http"] || services["https"]
	hasShell := services["ssh"] || services["telnet"]

	if hasHTTP && hasShell {
		if services["printer"] || services["ipp"] {
			return TypeNetworkPrinter
		}
		return TypeServer
	}
	if services["smb"] || services["microsoft-ds"] {
		return TypeWindows
	}
	if services["ssh"] && !services["http"] {
		return TypeLinux
	}
	if services["rtsp"] {
		return TypeIPCamera
	}
	return ""
}
