// netasset is a network asset discovery and classification service.
// It sweeps network ranges for live hosts, classifies what it finds,
// and optionally deep-scans and enriches individual devices.
package main

import (
	"github.com/asplund/netasset/cmd/cli"
)

// Build information set by ldflags.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cli.SetVersion(version, commit, buildTime)
	cli.Execute()
}
