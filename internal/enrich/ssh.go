package enrich

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/crypto/ssh"

	"github.com/asplund/netasset/internal/device"
)

// inventoryCommand is one read-only command in the fixed SSH sequence.
// Output is truncated to limit bytes to cap storage growth per device.
type inventoryCommand struct {
	category string
	command  string
	limit    int
}

// The command sequence mirrors what an operator would run by hand, with
// fallbacks for minimal systems that lack the primary tool.
var sshInventoryCommands = []inventoryCommand{
	{"cpu", "lscpu 2>/dev/null || cat /proc/cpuinfo | head -20", 500},
	{"memory", "free -h 2>/dev/null || cat /proc/meminfo | head -5", 500},
	{"disk", "df -h 2>/dev/null", 1000},
	{"os_release", "cat /etc/os-release 2>/dev/null || uname -a", 500},
}

// collectSSH opens an authenticated session and runs the inventory
// command sequence. Any connection or command failure aborts the whole
// collector; partial bundles are never returned.
func (e *Engine) collectSSH(ctx context.Context, ip string, creds device.Credentials) (Facts, error) {
	client, err := e.dialSSH(ctx, ip, creds)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	facts := make(Facts, len(sshInventoryCommands))
	for _, cmd := range sshInventoryCommands {
		out, err := runSSHCommand(client, cmd.command)
		if err != nil {
			return nil, fmt.Errorf("inventory command %s: %w", cmd.category, err)
		}
		if out != "" {
			facts[cmd.category] = truncate(out, cmd.limit)
		}
	}
	return facts, nil
}

// dialSSH establishes the SSH connection with a bounded connect timeout.
func (e *Engine) dialSSH(ctx context.Context, ip string, creds device.Credentials) (*ssh.Client, error) {
	hostKeyCallback := ssh.InsecureIgnoreHostKey() // trust on first use, see Config.AllowUnknownHostKeys
	if !e.config.AllowUnknownHostKeys {
		hostKeyCallback = rejectAllHostKeys
	}

	config := &ssh.ClientConfig{
		User: creds.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(creds.Password),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         e.config.SSHTimeout,
	}

	addr := net.JoinHostPort(ip, "22")
	dialer := &net.Dialer{Timeout: e.config.SSHTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// runSSHCommand executes one command in its own session.
func runSSHCommand(client *ssh.Client, command string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("new session: %w", err)
	}
	defer session.Close()

	out, err := session.Output(command)
	if err != nil {
		return "", fmt.Errorf("run %q: %w", command, err)
	}
	return string(out), nil
}

func rejectAllHostKeys(hostname string, _ net.Addr, _ ssh.PublicKey) error {
	return fmt.Errorf("host key verification required but no known-hosts store configured (host %s)", hostname)
}

// truncate caps a captured text block at limit bytes.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
