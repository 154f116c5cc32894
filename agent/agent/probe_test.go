package agent

import (
	"context"
	"testing"

	"printrelay/common/snmp/oids"
	"printrelay/common/storage"
)

func newTestProber(clients map[string]*mockSNMPClient) *Prober {
	p := NewProber(DefaultSNMPConfig(), nil, nil)
	p.newClient = mockFactory(clients)
	return p
}

func TestProbe_ClassifiesPrinter(t *testing.T) {
	t.Parallel()

	client := newMockClient().withString(oids.SysDescr, "Laser Printer Model X")
	p := newTestProber(map[string]*mockSNMPClient{"10.0.0.1": client})

	res, ok := p.Probe(context.Background(), "10.0.0.1")
	if !ok {
		t.Fatal("expected printer")
	}
	if res.Address != "10.0.0.1" || res.Descriptor != "Laser Printer Model X" {
		t.Errorf("result = %+v", res)
	}
	if len(client.gets) != 1 {
		t.Errorf("probe issued %d GETs, want exactly one", len(client.gets))
	}
	if !client.closed {
		t.Error("client was not closed")
	}
}

func TestProbe_NegativeOutcomes(t *testing.T) {
	t.Parallel()

	clients := map[string]*mockSNMPClient{
		"10.0.0.1": newMockClient().withString(oids.SysDescr, "Linux nas 6.1.0 armv7l"),
		"10.0.0.2": unreachableClient(),
		"10.0.0.3": newMockClient(),
	}
	p := newTestProber(clients)
	for _, addr := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"} {
		if _, ok := p.Probe(context.Background(), addr); ok {
			t.Errorf("Probe(%s) classified as printer", addr)
		}
	}

	p.newClient = failingFactory
	if _, ok := p.Probe(context.Background(), "10.0.0.1"); ok {
		t.Error("connect failure should not classify as printer")
	}
}

func TestProbe_CanceledContext(t *testing.T) {
	t.Parallel()

	client := newMockClient().withString(oids.SysDescr, "HP LaserJet")
	p := newTestProber(map[string]*mockSNMPClient{"10.0.0.1": client})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := p.Probe(ctx, "10.0.0.1"); ok {
		t.Error("canceled probe should report no device")
	}
	if len(client.gets) != 0 {
		t.Error("canceled probe should not query the host")
	}
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	client := newMockClient().
		withString(oids.HrDeviceDescr, "HP LaserJet M404dn").
		withString(oids.SysName, "NPI8C3D2A").
		withString(oids.PrtGeneralSerialNumber, "PHB8K01234")
	p := newTestProber(map[string]*mockSNMPClient{"10.0.0.1": client})

	info, err := p.Describe(context.Background(), "10.0.0.1")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	want := DeviceInfo{Model: "HP LaserJet M404dn", Name: "NPI8C3D2A", Serial: "PHB8K01234"}
	if info != want {
		t.Errorf("info = %+v, want %+v", info, want)
	}
}

func TestDescribe_MissingValuesAreUnknown(t *testing.T) {
	t.Parallel()

	client := newMockClient().withString(oids.SysName, "front-desk")
	client.failGet[oids.PrtGeneralSerialNumber] = true
	p := newTestProber(map[string]*mockSNMPClient{"10.0.0.1": client})

	info, err := p.Describe(context.Background(), "10.0.0.1")
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if info.Model != storage.UnknownValue || info.Serial != storage.UnknownValue {
		t.Errorf("missing attributes = %+v, want UNKNOWN", info)
	}
	if info.Name != "front-desk" {
		t.Errorf("Name = %q", info.Name)
	}
}
