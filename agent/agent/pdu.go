package agent

import (
	"fmt"

	"github.com/gosnmp/gosnmp"

	"printrelay/common/util"
)

// pduPresent reports whether a varbind carries an actual value.
func pduPresent(p gosnmp.SnmpPDU) bool {
	switch p.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
		return false
	}
	return p.Value != nil
}

// pduString renders a varbind value as text.
func pduString(p gosnmp.SnmpPDU) string {
	switch v := p.Value.(type) {
	case []byte:
		return util.DecodeOctetString(v)
	case string:
		return util.DecodeOctetString([]byte(v))
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// getScalar issues one GET for oid. responded is true when the agent answered
// at all; ok is true when it answered with a value.
func getScalar(client SNMPClient, oid string) (pdu gosnmp.SnmpPDU, responded, ok bool) {
	pkt, err := client.Get([]string{oid})
	if err != nil || pkt == nil {
		return gosnmp.SnmpPDU{}, false, false
	}
	for _, v := range pkt.Variables {
		if pduPresent(v) {
			return v, true, true
		}
	}
	return gosnmp.SnmpPDU{}, true, false
}

func closeQuietly(client SNMPClient) {
	if client != nil {
		_ = client.Close()
	}
}
