package agent

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gosnmp/gosnmp"
)

var errTimeout = errors.New("request timeout (after 1 retries)")

// mockSNMPClient answers from canned values. OIDs absent from values come back
// as noSuchObject; OIDs in failGet time out.
type mockSNMPClient struct {
	mu      sync.Mutex
	values  map[string]gosnmp.SnmpPDU
	failGet map[string]bool
	getErr  error
	walks   map[string][]gosnmp.SnmpPDU
	walkErr error
	gets    []string
	closed  bool
}

func newMockClient() *mockSNMPClient {
	return &mockSNMPClient{
		values:  map[string]gosnmp.SnmpPDU{},
		failGet: map[string]bool{},
		walks:   map[string][]gosnmp.SnmpPDU{},
	}
}

// unreachableClient times out on everything.
func unreachableClient() *mockSNMPClient {
	m := newMockClient()
	m.getErr = errTimeout
	m.walkErr = errTimeout
	return m
}

func (m *mockSNMPClient) withString(oid, v string) *mockSNMPClient {
	m.values[oid] = gosnmp.SnmpPDU{Name: "." + oid, Type: gosnmp.OctetString, Value: []byte(v)}
	return m
}

func (m *mockSNMPClient) withInt(oid string, v int) *mockSNMPClient {
	m.values[oid] = gosnmp.SnmpPDU{Name: "." + oid, Type: gosnmp.Integer, Value: v}
	return m
}

func (m *mockSNMPClient) withPDU(oid string, pdu gosnmp.SnmpPDU) *mockSNMPClient {
	pdu.Name = "." + oid
	m.values[oid] = pdu
	return m
}

func (m *mockSNMPClient) withWalk(root string, pdus ...gosnmp.SnmpPDU) *mockSNMPClient {
	m.walks[root] = append(m.walks[root], pdus...)
	return m
}

func (m *mockSNMPClient) Connect() error { return nil }

func (m *mockSNMPClient) Get(oids []string) (*gosnmp.SnmpPacket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets = append(m.gets, oids...)
	if m.getErr != nil {
		return nil, m.getErr
	}
	pkt := &gosnmp.SnmpPacket{}
	for _, oid := range oids {
		if m.failGet[oid] {
			return nil, errTimeout
		}
		if pdu, ok := m.values[oid]; ok {
			pkt.Variables = append(pkt.Variables, pdu)
			continue
		}
		pkt.Variables = append(pkt.Variables, gosnmp.SnmpPDU{Name: "." + oid, Type: gosnmp.NoSuchObject})
	}
	return pkt, nil
}

func (m *mockSNMPClient) Walk(root string, fn gosnmp.WalkFunc) error {
	m.mu.Lock()
	pdus := append([]gosnmp.SnmpPDU(nil), m.walks[root]...)
	walkErr := m.walkErr
	m.mu.Unlock()
	if walkErr != nil {
		return walkErr
	}
	for _, p := range pdus {
		if err := fn(p); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockSNMPClient) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *mockSNMPClient) queried(oid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.gets {
		if g == oid {
			return true
		}
	}
	return false
}

// mockFactory hands out the client registered for each target. Unknown
// targets behave like silent hosts.
func mockFactory(clients map[string]*mockSNMPClient) ClientFactory {
	return func(_ SNMPConfig, target string) (SNMPClient, error) {
		if c, ok := clients[target]; ok {
			return c, nil
		}
		return unreachableClient(), nil
	}
}

func failingFactory(cfg SNMPConfig, target string) (SNMPClient, error) {
	return nil, fmt.Errorf("dial %s: connection refused", target)
}

// supplyRow builds the desc and level varbinds for one supply table row.
func supplyRow(root, index string, value interface{}, typ gosnmp.Asn1BER) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: "." + root + "." + index, Type: typ, Value: value}
}
