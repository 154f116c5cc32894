package storage

import (
	"context"
	"errors"

	commonstorage "printrelay/common/storage"
)

var (
	// ErrNotFound is returned when a device, or other keyed row, does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidField is returned when a manual override names a field that cannot be set.
	ErrInvalidField = errors.New("invalid device field")
	// ErrStoreUnavailable wraps every driver-level failure.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Type aliases keep call sites in this package short.
type (
	Device        = commonstorage.Device
	DeviceFields  = commonstorage.DeviceFields
	FieldLock     = commonstorage.FieldLock
	MetricsRecord = commonstorage.MetricsRecord
	Envelope      = commonstorage.Envelope
	AgentIdentity = commonstorage.AgentIdentity
)

// EnvelopeBuilder produces the payload to enqueue for a device row written in
// the same transaction. The device passed in reflects the write.
type EnvelopeBuilder func(device *Device) (interface{}, error)

// DeviceRegistry is the persistent record of discovered devices.
type DeviceRegistry interface {
	// UpsertDevice inserts or refreshes the device at address and returns its id.
	UpsertDevice(ctx context.Context, address string, fields DeviceFields) (int64, error)
	// GetDeviceByAddress returns ErrNotFound for an unknown address.
	GetDeviceByAddress(ctx context.Context, address string) (*Device, error)
	// ListDevices returns a snapshot of every device ordered by id.
	ListDevices(ctx context.Context) ([]*Device, error)
	// SetRemoteIdentity links a device to its aggregator-side id. Idempotent.
	SetRemoteIdentity(ctx context.Context, deviceID int64, remoteID string) error
	// ManualOverride sets and locks a field, enqueuing an update envelope atomically.
	ManualOverride(ctx context.Context, address, field, value string, build EnvelopeBuilder) (*Device, error)
	// StoreDiscoveryAtomic upserts a device and enqueues its discovery envelope in one transaction.
	StoreDiscoveryAtomic(ctx context.Context, address string, fields DeviceFields, build EnvelopeBuilder) (*Device, error)
}

// MetricsStore holds the per-device metrics history.
type MetricsStore interface {
	// StoreMetricsAtomic appends rec and enqueues its envelope in one transaction.
	StoreMetricsAtomic(ctx context.Context, rec *MetricsRecord, build EnvelopeBuilder) error
	LatestMetrics(ctx context.Context, deviceID int64) (*MetricsRecord, error)
	MetricsHistory(ctx context.Context, deviceID int64, limit int) ([]*MetricsRecord, error)
}

// OutboundQueue is the durable FIFO of envelopes awaiting delivery.
type OutboundQueue interface {
	Enqueue(ctx context.Context, payload interface{}) (int64, error)
	// PeekBatch returns up to limit envelopes, oldest first, without removing them.
	PeekBatch(ctx context.Context, limit int) ([]Envelope, error)
	// Ack removes the envelope with id. Unknown ids are ignored.
	Ack(ctx context.Context, id int64) error
	RecordAttempt(ctx context.Context, id int64, errText string) error
	QueueDepth(ctx context.Context) (int, error)
}

// IdentityStore persists the agent's identity and small state values.
type IdentityStore interface {
	LoadIdentity(ctx context.Context) (AgentIdentity, error)
	// EnsureAgentID stores candidate unless an id already exists, and returns the stored id.
	EnsureAgentID(ctx context.Context, candidate string) (string, error)
	SaveCredential(ctx context.Context, credential string) error
	SaveRegistration(ctx context.Context, remoteAgentID string) error
	SetStateValue(ctx context.Context, key string, value interface{}) error
	GetStateValue(ctx context.Context, key string, dest interface{}) (bool, error)
}

// Store is everything the agent persists.
type Store interface {
	DeviceRegistry
	MetricsStore
	OutboundQueue
	IdentityStore
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
