package probe

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"time"
)

// arpTimeout bounds the ARP table query; failure past it is absorbed by
// the caller and leaves the MAC unset.
const arpTimeout = 5 * time.Second

var macPattern = regexp.MustCompile(`([0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}`)

// LookupMAC queries the local ARP table for the given address. It only
// works for hosts on the local broadcast domain; anything else, and any
// exec failure, returns an error the caller silently absorbs.
func (a *NmapAdapter) LookupMAC(ctx context.Context, ip string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, arpTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "arp", "-n", ip).Output()
	if err != nil {
		return "", fmt.Errorf("arp lookup for %s: %w", ip, err)
	}

	mac := parseARPOutput(string(out))
	if mac == "" {
		return "", fmt.Errorf("no ARP entry for %s", ip)
	}
	return mac, nil
}

// parseARPOutput extracts the first MAC address from arp command output.
func parseARPOutput(out string) string {
	return macPattern.FindString(out)
}
