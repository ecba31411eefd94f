package enrich

import (
	"context"
	"fmt"

	"github.com/gosnmp/gosnmp"
)

// sysDescrOID is the standard system-description object (SNMPv2-MIB
// sysDescr.0), the single object the SNMP collector reads.
const sysDescrOID = "1.3.6.1.2.1.1.1.0"

const snmpPort = 161

// collectSNMP issues one GET for sysDescr against the target using the
// supplied community string. Any error yields no facts.
func (e *Engine) collectSNMP(ctx context.Context, ip, community string) (Facts, error) {
	client := &gosnmp.GoSNMP{
		Target:    ip,
		Port:      snmpPort,
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   e.config.SNMPTimeout,
		Retries:   e.config.SNMPRetries,
		Context:   ctx,
	}

	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("snmp connect %s: %w", ip, err)
	}
	defer client.Conn.Close()

	result, err := client.Get([]string{sysDescrOID})
	if err != nil {
		return nil, fmt.Errorf("snmp get sysDescr from %s: %w", ip, err)
	}
	if result.Error != gosnmp.NoError {
		return nil, fmt.Errorf("snmp error from %s: %v", ip, result.Error)
	}

	for _, variable := range result.Variables {
		switch variable.Type {
		case gosnmp.OctetString:
			if b, ok := variable.Value.([]byte); ok {
				return Facts{"system_description": string(b)}, nil
			}
		case gosnmp.NoSuchObject, gosnmp.NoSuchInstance:
			continue
		}
	}
	return nil, fmt.Errorf("no sysDescr value from %s", ip)
}
