package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	commonstorage "printrelay/common/storage"
)

func TestUpsertDevice_InsertThenUpdate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, clock := newTestStore(t)
	firstSeen := clock.Now()

	id := mustUpsert(t, store, "10.0.0.5", DeviceFields{Model: "LaserJet 400", Name: "hallway", Serial: "SN1"})

	clock.Advance(time.Hour)
	again := mustUpsert(t, store, "10.0.0.5", DeviceFields{Model: "LaserJet 400 M401", Name: "hallway"})
	if again != id {
		t.Fatalf("upsert of same address returned new id %d (first %d)", again, id)
	}

	d, err := store.GetDeviceByAddress(ctx, "10.0.0.5")
	if err != nil {
		t.Fatalf("GetDeviceByAddress: %v", err)
	}
	if d.Model != "LaserJet 400 M401" {
		t.Errorf("model not refreshed: %q", d.Model)
	}
	if d.Serial != "SN1" {
		t.Errorf("serial lost on update without serial: %q", d.Serial)
	}
	if !d.FirstSeen.Equal(firstSeen) {
		t.Errorf("first_seen changed: %v", d.FirstSeen)
	}
	if !d.LastSeen.Equal(firstSeen.Add(time.Hour)) {
		t.Errorf("last_seen not advanced: %v", d.LastSeen)
	}
}

func TestUpsertDevice_Idempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t)
	fields := DeviceFields{Model: "M", Name: "N", Serial: "S"}

	for i := 0; i < 3; i++ {
		mustUpsert(t, store, "192.168.1.20", fields)
	}
	devices, err := store.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(devices))
	}
	if d := devices[0]; d.Model != "M" || d.Name != "N" || d.Serial != "S" {
		t.Errorf("unexpected device %+v", d)
	}
}

func TestUpsertDevice_UnknownNeverOverwritesKnown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t)

	mustUpsert(t, store, "10.1.1.1", DeviceFields{Serial: "REAL-SERIAL"})
	mustUpsert(t, store, "10.1.1.1", DeviceFields{Serial: commonstorage.UnknownValue, Model: "Known"})

	d, err := store.GetDeviceByAddress(ctx, "10.1.1.1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Serial != "REAL-SERIAL" {
		t.Errorf("serial overwritten with sentinel: %q", d.Serial)
	}
	if d.Model != "Known" {
		t.Errorf("model replaced UNKNOWN placeholder incorrectly: %q", d.Model)
	}
}

func TestUpsertDevice_MissingFieldsBecomeUnknown(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	mustUpsert(t, store, "10.1.1.2", DeviceFields{})

	d, err := store.GetDeviceByAddress(context.Background(), "10.1.1.2")
	if err != nil {
		t.Fatal(err)
	}
	if d.Model != commonstorage.UnknownValue || d.Name != commonstorage.UnknownValue || d.Serial != commonstorage.UnknownValue {
		t.Errorf("expected UNKNOWN placeholders, got %+v", d)
	}
}

func TestGetDeviceByAddress_NotFound(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	if _, err := store.GetDeviceByAddress(context.Background(), "10.9.9.9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetRemoteIdentity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t)
	id := mustUpsert(t, store, "10.0.0.7", DeviceFields{Serial: "A"})

	for i := 0; i < 2; i++ {
		if err := store.SetRemoteIdentity(ctx, id, "remote-42"); err != nil {
			t.Fatalf("SetRemoteIdentity #%d: %v", i, err)
		}
	}
	d, _ := store.GetDeviceByAddress(ctx, "10.0.0.7")
	if d.RemoteID != "remote-42" {
		t.Errorf("remote id = %q", d.RemoteID)
	}

	if err := store.SetRemoteIdentity(ctx, id+100, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown device, got %v", err)
	}
}

func TestManualOverride_LocksFieldAndEnqueues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t)
	id := mustUpsert(t, store, "10.0.0.8", DeviceFields{Serial: commonstorage.UnknownValue})

	var seen *Device
	d, err := store.ManualOverride(ctx, "10.0.0.8", commonstorage.FieldSerial, "CN12345", payloadBuilder(commonstorage.EnvelopeUpdate, &seen))
	if err != nil {
		t.Fatalf("ManualOverride: %v", err)
	}
	if d.ID != id || d.Serial != "CN12345" || !d.IsFieldLocked(commonstorage.FieldSerial) {
		t.Errorf("unexpected device after override: %+v", d)
	}
	if seen == nil || seen.Serial != "CN12345" {
		t.Errorf("builder did not see the updated device: %+v", seen)
	}

	batch, err := store.PeekBatch(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 || decodePayload(t, batch[0])["type"] != string(commonstorage.EnvelopeUpdate) {
		t.Fatalf("expected one printer_update envelope, got %+v", batch)
	}

	// Discovery must not undo the override.
	mustUpsert(t, store, "10.0.0.8", DeviceFields{Serial: "FROM-SNMP"})
	d, _ = store.GetDeviceByAddress(ctx, "10.0.0.8")
	if d.Serial != "CN12345" {
		t.Errorf("locked serial overwritten by discovery: %q", d.Serial)
	}

	// Overriding again keeps a single lock entry.
	d, err = store.ManualOverride(ctx, "10.0.0.8", commonstorage.FieldSerial, "CN99999", payloadBuilder(commonstorage.EnvelopeUpdate, nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(d.LockedFields) != 1 || d.Serial != "CN99999" {
		t.Errorf("unexpected locks after second override: %+v", d)
	}
}

func TestManualOverride_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t)
	mustUpsert(t, store, "10.0.0.9", DeviceFields{})
	build := payloadBuilder(commonstorage.EnvelopeUpdate, nil)

	if _, err := store.ManualOverride(ctx, "10.0.0.250", commonstorage.FieldSerial, "X", build); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown address: expected ErrNotFound, got %v", err)
	}
	if _, err := store.ManualOverride(ctx, "10.0.0.9", "firmware", "X", build); !errors.Is(err, ErrInvalidField) {
		t.Errorf("bad field: expected ErrInvalidField, got %v", err)
	}

	failing := func(*Device) (interface{}, error) { return nil, errors.New("boom") }
	if _, err := store.ManualOverride(ctx, "10.0.0.9", commonstorage.FieldSerial, "X", failing); err == nil {
		t.Fatal("expected builder error")
	}
	d, _ := store.GetDeviceByAddress(ctx, "10.0.0.9")
	if d.Serial == "X" || d.IsFieldLocked(commonstorage.FieldSerial) {
		t.Errorf("failed override left partial writes: %+v", d)
	}
	if n, _ := store.QueueDepth(ctx); n != 0 {
		t.Errorf("failed override enqueued %d envelopes", n)
	}
}

func TestStoreDiscoveryAtomic(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t)

	var seen *Device
	d, err := store.StoreDiscoveryAtomic(ctx, "10.0.0.1", DeviceFields{Model: "Laser Printer Model X"}, payloadBuilder(commonstorage.EnvelopeDiscovery, &seen))
	if err != nil {
		t.Fatalf("StoreDiscoveryAtomic: %v", err)
	}
	if seen == nil || seen.ID != d.ID {
		t.Fatalf("builder saw %+v, stored %+v", seen, d)
	}

	batch, _ := store.PeekBatch(ctx, 10)
	if len(batch) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(batch))
	}
	if got := decodePayload(t, batch[0])["printer_id"]; got != float64(d.ID) {
		t.Errorf("envelope printer_id = %v, want %d", got, d.ID)
	}

	failing := func(*Device) (interface{}, error) { return nil, errors.New("boom") }
	if _, err := store.StoreDiscoveryAtomic(ctx, "10.0.0.2", DeviceFields{}, failing); err == nil {
		t.Fatal("expected builder failure")
	}
	if _, err := store.GetDeviceByAddress(ctx, "10.0.0.2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("device written despite rolled back transaction: %v", err)
	}
}
