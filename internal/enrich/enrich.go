// Package enrich implements the authenticated collectors that turn a
// credential bundle into hardware/software facts for a device. Each
// protocol has its own collector; exactly one runs per invocation,
// selected by the credential's protocol tag.
//
// Collectors never raise to the orchestrator: every failure is reduced
// to "no facts produced" with the error text retained for diagnostics,
// so a failed enrichment shows up as state on the device rather than as
// a failed request.
package enrich

import (
	"context"
	"time"

	"github.com/asplund/netasset/internal/device"
	"github.com/asplund/netasset/internal/logging"
)

// Facts is a category-keyed bundle of free-form diagnostic text.
type Facts map[string]string

// Config holds enrichment collector settings.
type Config struct {
	// SSHTimeout bounds the SSH connect; command execution shares the
	// session's fate.
	SSHTimeout time.Duration `yaml:"ssh_timeout" json:"ssh_timeout"`

	// SNMPTimeout bounds each SNMP request.
	SNMPTimeout time.Duration `yaml:"snmp_timeout" json:"snmp_timeout"`

	// SNMPRetries is the number of SNMP retries after the first attempt.
	SNMPRetries int `yaml:"snmp_retries" json:"snmp_retries"`

	// AllowUnknownHostKeys controls the SSH host-key policy. The default
	// accepts any host key (trust on first use), matching what inventory
	// tooling commonly does on internal networks. Setting it to false
	// rejects every connection, since no known-hosts store is kept;
	// operators who need verification should front this with one.
	AllowUnknownHostKeys bool `yaml:"allow_unknown_host_keys" json:"allow_unknown_host_keys"`
}

// DefaultConfig returns the default enrichment configuration.
func DefaultConfig() Config {
	return Config{
		SSHTimeout:           10 * time.Second,
		SNMPTimeout:          5 * time.Second,
		SNMPRetries:          1,
		AllowUnknownHostKeys: true,
	}
}

// Engine dispatches enrichment requests to protocol collectors.
type Engine struct {
	config Config
	logger *logging.Logger
}

// NewEngine creates an enrichment engine.
func NewEngine(cfg Config) *Engine {
	if cfg.SSHTimeout <= 0 {
		cfg.SSHTimeout = DefaultConfig().SSHTimeout
	}
	if cfg.SNMPTimeout <= 0 {
		cfg.SNMPTimeout = DefaultConfig().SNMPTimeout
	}
	return &Engine{
		config: cfg,
		logger: logging.Default().WithComponent("enrich"),
	}
}

// Collect runs the collector selected by the credentials and returns the
// facts bundle. On any collector failure the bundle is nil and errText
// carries the diagnostic; Collect itself never fails. Credentials are
// used for this single invocation and are never logged or retained.
func (e *Engine) Collect(ctx context.Context, ip string, creds device.Credentials) (facts Facts, errText string) {
	var err error

	switch creds.Protocol {
	case device.ProtocolSSH:
		facts, err = e.collectSSH(ctx, ip, creds)
	case device.ProtocolSNMP:
		facts, err = e.collectSNMP(ctx, ip, creds.SNMPCommunity())
	case device.ProtocolWMI:
		facts, err = e.collectWMI(ctx, ip, creds)
	default:
		// Protocol is a closed set; reaching this is a programming error
		// in the caller, reported the same way as any collector failure.
		e.logger.Error("Unknown enrichment protocol", "protocol", int(creds.Protocol))
		return nil, "unknown enrichment protocol"
	}

	if err != nil {
		e.logger.ErrorScan("Enrichment failed", ip, err, "protocol", creds.Protocol.String())
		return nil, err.Error()
	}

	e.logger.InfoScan("Enrichment succeeded", ip,
		"protocol", creds.Protocol.String(), "facts", len(facts))
	return facts, ""
}
