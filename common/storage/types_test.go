package storage

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestDeviceIsFieldLocked(t *testing.T) {
	t.Parallel()

	d := Device{LockedFields: []FieldLock{{Field: FieldSerial, Reason: "manual_override"}}}
	if !d.IsFieldLocked(FieldSerial) {
		t.Error("serial should be locked")
	}
	if d.IsFieldLocked(FieldModel) {
		t.Error("model should not be locked")
	}
	var empty Device
	if empty.IsFieldLocked(FieldSerial) {
		t.Error("zero device has no locks")
	}
}

func TestAgentIdentityOmitsCredential(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(AgentIdentity{AgentID: "a1", Credential: "secret-token"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret-token") {
		t.Errorf("credential leaked into JSON: %s", data)
	}
}

func TestEnvelopePayloadWireFormat(t *testing.T) {
	t.Parallel()

	p := EnvelopePayload{
		MessageID: "m-1",
		Type:      EnvelopeDiscovery,
		AgentID:   "agent-1",
		PrinterID: 5,
		CreatedAt: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Data:      json.RawMessage(`{"address":"10.0.0.5"}`),
	}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	if fields["type"] != "printer_discovery" || fields["agent_id"] != "agent-1" || fields["message_id"] != "m-1" {
		t.Errorf("wire fields = %v", fields)
	}
	if _, ok := fields["remote_id"]; ok {
		t.Error("empty remote_id should be omitted")
	}
	inner, _ := fields["data"].(map[string]interface{})
	if inner["address"] != "10.0.0.5" {
		t.Errorf("data = %v", fields["data"])
	}
}

func TestMetricsRecordOmitsAbsentFields(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(MetricsRecord{SchemaVersion: MetricsSchemaVersion, DeviceID: 1, Status: StatusUnknown})
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"page_count", "error_detail", "supply_levels"} {
		if strings.Contains(string(data), `"`+key+`"`) {
			t.Errorf("%s should be omitted when absent: %s", key, data)
		}
	}

	count := int64(0)
	data, _ = json.Marshal(MetricsRecord{PageCount: &count})
	if !strings.Contains(string(data), `"page_count":0`) {
		t.Errorf("a zero page count is a reading and must be kept: %s", data)
	}
}
