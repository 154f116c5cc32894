package agent

import (
	"encoding/json"
	"testing"
	"time"

	"printrelay/agent/storage"
	commonstorage "printrelay/common/storage"
)

func TestEnvelopeFactory_Build(t *testing.T) {
	t.Parallel()

	agentID := "first"
	f := NewEnvelopeFactory(func() string { return agentID })
	f.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600)) }
	dev := &storage.Device{ID: 12, Address: "10.0.0.12", RemoteID: "r-12", Serial: "S1"}

	a, err := f.Build(commonstorage.EnvelopeDiscovery, dev, dev)
	if err != nil {
		t.Fatal(err)
	}
	agentID = "second"
	b, err := f.Build(commonstorage.EnvelopeDiscovery, dev, dev)
	if err != nil {
		t.Fatal(err)
	}

	if a.MessageID == "" || a.MessageID == b.MessageID {
		t.Errorf("message ids %q and %q should be unique", a.MessageID, b.MessageID)
	}
	if a.AgentID != "first" || b.AgentID != "second" {
		t.Errorf("agent ids = %q, %q", a.AgentID, b.AgentID)
	}
	if a.PrinterID != 12 || a.RemoteID != "r-12" || a.CreatedAt.Location() != time.UTC {
		t.Errorf("payload = %+v", a)
	}
	var data storage.Device
	if err := json.Unmarshal(a.Data, &data); err != nil || data.Serial != "S1" {
		t.Errorf("data = %s (%v)", a.Data, err)
	}

	if _, err := f.Build(commonstorage.EnvelopeMetrics, nil, nil); err == nil {
		t.Error("nil device should fail")
	}
}

func TestEnvelopeFactory_MetricsReadsSettledRecord(t *testing.T) {
	t.Parallel()

	f := testEnvelopes()
	rec := &storage.MetricsRecord{DeviceID: 4, Status: commonstorage.StatusIdle}
	build := f.Metrics(rec)
	rec.Timestamp = time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)

	out, err := build(&storage.Device{ID: 4, Address: "10.0.0.4"})
	if err != nil {
		t.Fatal(err)
	}
	payload := out.(*commonstorage.EnvelopePayload)
	var got storage.MetricsRecord
	if err := json.Unmarshal(payload.Data, &got); err != nil {
		t.Fatal(err)
	}
	if !got.Timestamp.Equal(rec.Timestamp) || got.Address != "10.0.0.4" || payload.Type != commonstorage.EnvelopeMetrics {
		t.Errorf("metrics envelope = %+v / %+v", payload, got)
	}
}

func TestSettingsHolder_SnapshotsAreIsolated(t *testing.T) {
	t.Parallel()

	h := NewSettingsHolder(DefaultSettings())
	s := h.Load()
	s.Subnets[0] = "10.9.0.0/24"
	if h.Load().Subnets[0] != "192.168.1.0/24" {
		t.Error("mutating a loaded snapshot leaked into the holder")
	}
	h.Store(s)
	s.Subnets[0] = "10.8.0.0/24"
	if h.Load().Subnets[0] != "10.9.0.0/24" {
		t.Error("mutating a stored value leaked into the holder")
	}
	var zero SettingsHolder
	if zero.Load().SyncBatchSize != DefaultSyncBatchSize {
		t.Error("zero holder should serve defaults")
	}
}
