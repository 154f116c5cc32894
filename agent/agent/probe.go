package agent

import (
	"context"
	"strings"

	"printrelay/common/snmp/oids"
	"printrelay/common/storage"
)

// ProbeResult is a host that answered sysDescr and was classified as a printer.
type ProbeResult struct {
	Address    string
	Descriptor string
}

// DeviceInfo is what Describe reads from a confirmed printer. Attributes the
// device did not report are UNKNOWN.
type DeviceInfo struct {
	Model  string
	Name   string
	Serial string
}

// Prober runs the descriptor query and the follow-up identity reads.
type Prober struct {
	cfg       SNMPConfig
	classify  Classifier
	newClient ClientFactory
	log       Logger
}

// NewProber builds a Prober. A nil classifier uses DefaultKeywords.
func NewProber(cfg SNMPConfig, classify Classifier, log Logger) *Prober {
	if classify == nil {
		classify = KeywordClassifier(nil)
	}
	return &Prober{cfg: cfg, classify: classify, newClient: NewSNMPClient, log: orNop(log)}
}

// Probe issues a single sysDescr GET against addr. Hosts that fail to answer,
// or whose descriptor does not classify as a printer, report false with no error.
func (p *Prober) Probe(ctx context.Context, addr string) (ProbeResult, bool) {
	if ctx.Err() != nil {
		return ProbeResult{}, false
	}
	client, err := p.newClient(p.cfg, addr)
	if err != nil {
		return ProbeResult{}, false
	}
	defer closeQuietly(client)

	pdu, _, ok := getScalar(client, oids.SysDescr)
	if !ok {
		return ProbeResult{}, false
	}
	descriptor := pduString(pdu)
	if !p.classify(descriptor) {
		p.log.Debug("Host is not a printer", "ip", addr, "sysdescr", descriptor)
		return ProbeResult{}, false
	}
	return ProbeResult{Address: addr, Descriptor: descriptor}, true
}

// Describe reads model, name and serial from addr, one GET per attribute so a
// device that rejects one OID still reports the others.
func (p *Prober) Describe(ctx context.Context, addr string) (DeviceInfo, error) {
	info := DeviceInfo{Model: storage.UnknownValue, Name: storage.UnknownValue, Serial: storage.UnknownValue}
	if err := ctx.Err(); err != nil {
		return info, err
	}
	client, err := p.newClient(p.cfg, addr)
	if err != nil {
		return info, err
	}
	defer closeQuietly(client)

	read := func(oid string, dest *string) {
		if pdu, _, ok := getScalar(client, oid); ok {
			if v := strings.TrimSpace(pduString(pdu)); v != "" {
				*dest = v
			}
		}
	}
	read(oids.HrDeviceDescr, &info.Model)
	read(oids.SysName, &info.Name)
	read(oids.PrtGeneralSerialNumber, &info.Serial)
	return info, nil
}
