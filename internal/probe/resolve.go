package probe

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// resolveTimeout bounds the reverse lookup; resolution failure is a
// per-host soft failure, never propagated past the caller.
const resolveTimeout = 3 * time.Second

// resolvConfPath is overridable in tests.
var resolvConfPath = "/etc/resolv.conf"

// ResolveHostname performs a reverse PTR lookup for the address against
// the system resolver. The empty-hostname case is decided by the caller,
// which substitutes the Unknown sentinel.
func (a *NmapAdapter) ResolveHostname(ctx context.Context, ip string) (string, error) {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", fmt.Errorf("reverse addr for %s: %w", ip, err)
	}

	conf, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil || len(conf.Servers) == 0 {
		return "", fmt.Errorf("no resolver available for %s", ip)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)

	client := &dns.Client{Timeout: resolveTimeout}
	resp, _, err := client.ExchangeContext(ctx, msg, net.JoinHostPort(conf.Servers[0], conf.Port))
	if err != nil {
		return "", fmt.Errorf("ptr query for %s: %w", ip, err)
	}

	for _, answer := range resp.Answer {
		if ptr, ok := answer.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", fmt.Errorf("no PTR record for %s", ip)
}
