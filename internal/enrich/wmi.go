package enrich

import (
	"context"
	"fmt"

	"github.com/asplund/netasset/internal/device"
)

// collectWMI covers the Windows-management and directory-service
// protocols. Both authenticate with the same username/password shape as
// the shell collector, but the actual query surface is an external
// capability this process does not carry; until a management gateway is
// wired in, the collector reports the failure like any other, so the
// device keeps its record and the error text.
func (e *Engine) collectWMI(_ context.Context, ip string, creds device.Credentials) (Facts, error) {
	if creds.Username == "" {
		return nil, fmt.Errorf("wmi collection for %s: username required", ip)
	}
	return nil, fmt.Errorf("wmi collection for %s not available: no management gateway configured", ip)
}
