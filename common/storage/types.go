// Package storage holds the canonical records shared by the agent core and its SQLite store.
package storage

import (
	"encoding/json"
	"time"
)

// UnknownValue marks a device attribute that could not be read.
const UnknownValue = "UNKNOWN"

// MetricsSchemaVersion is stamped on every metrics record and stored alongside it.
const MetricsSchemaVersion = 1

// Lockable device fields.
const (
	FieldSerial = "serial"
	FieldModel  = "model"
	FieldName   = "name"
)

// FieldLock pins a device attribute so discovery no longer overwrites it.
type FieldLock struct {
	Field    string    `json:"field"`
	Reason   string    `json:"reason,omitempty"`
	LockedAt time.Time `json:"locked_at"`
}

// Device is one SNMP-reachable printer, keyed by its network address.
type Device struct {
	ID           int64       `json:"id"`
	Address      string      `json:"address"`
	Model        string      `json:"model"`
	Name         string      `json:"name"`
	Serial       string      `json:"serial"`
	Descriptor   string      `json:"descriptor,omitempty"`
	FirstSeen    time.Time   `json:"first_seen"`
	LastSeen     time.Time   `json:"last_seen"`
	RemoteID     string      `json:"remote_id,omitempty"`
	LockedFields []FieldLock `json:"locked_fields,omitempty"`
}

// IsFieldLocked reports whether field carries a lock.
func (d *Device) IsFieldLocked(field string) bool {
	for _, l := range d.LockedFields {
		if l.Field == field {
			return true
		}
	}
	return false
}

// DeviceFields are the attributes discovery reports for an address. Empty or
// UNKNOWN values never replace a known value already on file.
type DeviceFields struct {
	Model      string `json:"model"`
	Name       string `json:"name"`
	Serial     string `json:"serial"`
	Descriptor string `json:"descriptor,omitempty"`
}

// DeviceStatus is the normalized operational state of a printer.
type DeviceStatus string

const (
	StatusOther    DeviceStatus = "other"
	StatusUnknown  DeviceStatus = "unknown"
	StatusIdle     DeviceStatus = "idle"
	StatusPrinting DeviceStatus = "printing"
	StatusWarmup   DeviceStatus = "warmup"
	StatusError    DeviceStatus = "error"
)

// MetricsRecord is one telemetry sample taken from a device.
type MetricsRecord struct {
	SchemaVersion int                    `json:"schema_version"`
	DeviceID      int64                  `json:"device_id"`
	Address       string                 `json:"address"`
	Timestamp     time.Time              `json:"timestamp"`
	PageCount     *int64                 `json:"page_count,omitempty"`
	Status        DeviceStatus           `json:"status"`
	ErrorDetail   string                 `json:"error_detail,omitempty"`
	SupplyLevels  map[string]int64       `json:"supply_levels,omitempty"`
	Raw           map[string]interface{} `json:"raw,omitempty"`
}

// EnvelopeType tags what an envelope payload carries.
type EnvelopeType string

const (
	EnvelopeDiscovery EnvelopeType = "printer_discovery"
	EnvelopeMetrics   EnvelopeType = "metrics"
	EnvelopeUpdate    EnvelopeType = "printer_update"
)

// EnvelopePayload is the JSON body posted to the aggregator's /data endpoint.
// MessageID is stable across redeliveries so the aggregator can drop duplicates.
type EnvelopePayload struct {
	MessageID string          `json:"message_id"`
	Type      EnvelopeType    `json:"type"`
	AgentID   string          `json:"agent_id"`
	PrinterID int64           `json:"printer_id"`
	RemoteID  string          `json:"remote_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

// Envelope is one queued outbound message.
type Envelope struct {
	ID        int64           `json:"id"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
}

// AgentIdentity is the agent's persisted identity. AgentID never changes once written.
type AgentIdentity struct {
	AgentID       string    `json:"agent_id"`
	Credential    string    `json:"-"`
	RemoteAgentID string    `json:"remote_agent_id,omitempty"`
	RegisteredAt  time.Time `json:"registered_at,omitempty"`
}
