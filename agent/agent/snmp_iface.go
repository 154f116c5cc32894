package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

// SNMPClient abstracts gosnmp so tests can inject canned responses.
type SNMPClient interface {
	Connect() error
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	Walk(root string, walkFn gosnmp.WalkFunc) error
	Close() error
}

// SNMPConfig holds the per-query SNMP parameters.
type SNMPConfig struct {
	Community string
	Version   gosnmp.SnmpVersion
	Port      uint16
	Timeout   time.Duration
	Retries   int
}

// DefaultSNMPConfig returns v2c with the "public" community, 2s timeout and one retry.
func DefaultSNMPConfig() SNMPConfig {
	return SNMPConfig{
		Community: "public",
		Version:   gosnmp.Version2c,
		Port:      161,
		Timeout:   2 * time.Second,
		Retries:   1,
	}
}

// ParseSNMPVersion accepts "1", "v1", "2c" and "v2c".
func ParseSNMPVersion(s string) (gosnmp.SnmpVersion, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "v")) {
	case "1":
		return gosnmp.Version1, nil
	case "2c", "2", "":
		return gosnmp.Version2c, nil
	}
	return gosnmp.Version2c, fmt.Errorf("unsupported snmp version %q", s)
}

// ClientFactory opens an SNMP session to target.
type ClientFactory func(cfg SNMPConfig, target string) (SNMPClient, error)

// NewSNMPClient is the production ClientFactory. Retries are capped at one so
// a probe issues at most two datagrams per query.
func NewSNMPClient(cfg SNMPConfig, target string) (SNMPClient, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Port == 0 {
		cfg.Port = 161
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	if retries > 1 {
		retries = 1
	}
	snmp := &gosnmp.GoSNMP{
		Target:    target,
		Port:      cfg.Port,
		Community: cfg.Community,
		Version:   cfg.Version,
		Timeout:   cfg.Timeout,
		Retries:   retries,
		MaxOids:   gosnmp.MaxOids,
	}
	if err := snmp.Connect(); err != nil {
		return nil, err
	}
	return &gosnmpWrapper{snmp: snmp}, nil
}

// gosnmpWrapper implements SNMPClient by delegating to gosnmp.GoSNMP.
type gosnmpWrapper struct {
	snmp *gosnmp.GoSNMP
}

func (g *gosnmpWrapper) Connect() error { return g.snmp.Connect() }

func (g *gosnmpWrapper) Get(oids []string) (*gosnmp.SnmpPacket, error) {
	return g.snmp.Get(oids)
}

// Walk uses GETBULK on v2c and plain GETNEXT on v1.
func (g *gosnmpWrapper) Walk(root string, walkFn gosnmp.WalkFunc) error {
	if g.snmp.Version == gosnmp.Version1 {
		return g.snmp.Walk(root, walkFn)
	}
	return g.snmp.BulkWalk(root, walkFn)
}

func (g *gosnmpWrapper) Close() error {
	if g.snmp == nil || g.snmp.Conn == nil {
		return nil
	}
	return g.snmp.Conn.Close()
}
