package agent

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"printrelay/agent/storage"
	commonstorage "printrelay/common/storage"
)

// EnvelopeFactory stamps outbound payloads with the agent id and a message id
// the aggregator can deduplicate on.
type EnvelopeFactory struct {
	agentID func() string
	now     func() time.Time
}

// NewEnvelopeFactory reads the agent id at build time so a late registration
// is reflected in envelopes built afterwards.
func NewEnvelopeFactory(agentID func() string) *EnvelopeFactory {
	return &EnvelopeFactory{agentID: agentID, now: time.Now}
}

// Build wraps data for device into a payload of the given kind.
func (f *EnvelopeFactory) Build(kind commonstorage.EnvelopeType, device *storage.Device, data interface{}) (*commonstorage.EnvelopePayload, error) {
	if device == nil {
		return nil, fmt.Errorf("device is nil")
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s data: %w", kind, err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &commonstorage.EnvelopePayload{
		MessageID: id.String(),
		Type:      kind,
		AgentID:   f.agentID(),
		PrinterID: device.ID,
		RemoteID:  device.RemoteID,
		CreatedAt: f.now().UTC(),
		Data:      raw,
	}, nil
}

// Discovery returns a builder that announces the device row itself.
func (f *EnvelopeFactory) Discovery() storage.EnvelopeBuilder {
	return func(d *storage.Device) (interface{}, error) {
		return f.Build(commonstorage.EnvelopeDiscovery, d, d)
	}
}

// Update returns a builder for an operator correction to the device row.
func (f *EnvelopeFactory) Update() storage.EnvelopeBuilder {
	return func(d *storage.Device) (interface{}, error) {
		return f.Build(commonstorage.EnvelopeUpdate, d, d)
	}
}

// Metrics returns a builder that carries rec. rec is read when the builder
// runs, after the store has settled its timestamp.
func (f *EnvelopeFactory) Metrics(rec *storage.MetricsRecord) storage.EnvelopeBuilder {
	return func(d *storage.Device) (interface{}, error) {
		rec.Address = d.Address
		return f.Build(commonstorage.EnvelopeMetrics, d, rec)
	}
}
