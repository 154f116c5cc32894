package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	commonstorage "printrelay/common/storage"
)

func int64Ptr(v int64) *int64 { return &v }

func TestStoreMetricsAtomic_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, clock := newTestStore(t)
	id := mustUpsert(t, store, "10.0.0.3", DeviceFields{Serial: "S"})

	rec := &MetricsRecord{
		DeviceID:     id,
		Timestamp:    clock.Now(),
		PageCount:    int64Ptr(15230),
		Status:       commonstorage.StatusIdle,
		SupplyLevels: map[string]int64{"Black Toner": 80, "Cyan Toner": 45},
		Raw:          map[string]interface{}{"uptime_seconds": 42.0},
	}
	var built *Device
	if err := store.StoreMetricsAtomic(ctx, rec, payloadBuilder(commonstorage.EnvelopeMetrics, &built)); err != nil {
		t.Fatalf("StoreMetricsAtomic: %v", err)
	}
	if built == nil || built.ID != id {
		t.Fatalf("builder did not receive device: %+v", built)
	}

	got, err := store.LatestMetrics(ctx, id)
	if err != nil {
		t.Fatalf("LatestMetrics: %v", err)
	}
	if got.SchemaVersion != commonstorage.MetricsSchemaVersion {
		t.Errorf("schema version = %d", got.SchemaVersion)
	}
	if got.PageCount == nil || *got.PageCount != 15230 {
		t.Errorf("page count = %v", got.PageCount)
	}
	if got.Status != commonstorage.StatusIdle || got.Address != "10.0.0.3" {
		t.Errorf("unexpected record %+v", got)
	}
	if got.SupplyLevels["Black Toner"] != 80 || got.SupplyLevels["Cyan Toner"] != 45 {
		t.Errorf("supply levels = %v", got.SupplyLevels)
	}

	if n, _ := store.QueueDepth(ctx); n != 1 {
		t.Errorf("expected one metrics envelope, got %d", n)
	}
}

func TestStoreMetricsAtomic_AbsentFieldsStayAbsent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t)
	id := mustUpsert(t, store, "10.0.0.4", DeviceFields{})

	if err := store.StoreMetricsAtomic(ctx, &MetricsRecord{DeviceID: id}, payloadBuilder(commonstorage.EnvelopeMetrics, nil)); err != nil {
		t.Fatal(err)
	}
	got, err := store.LatestMetrics(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if got.PageCount != nil || len(got.SupplyLevels) != 0 || got.Status != commonstorage.StatusUnknown {
		t.Errorf("expected empty record with unknown status, got %+v", got)
	}
}

func TestStoreMetricsAtomic_TimestampsNonDecreasing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, clock := newTestStore(t)
	id := mustUpsert(t, store, "10.0.0.5", DeviceFields{})
	build := payloadBuilder(commonstorage.EnvelopeMetrics, nil)

	newer := clock.Now()
	if err := store.StoreMetricsAtomic(ctx, &MetricsRecord{DeviceID: id, Timestamp: newer}, build); err != nil {
		t.Fatal(err)
	}
	stale := &MetricsRecord{DeviceID: id, Timestamp: newer.Add(-time.Minute)}
	if err := store.StoreMetricsAtomic(ctx, stale, build); err != nil {
		t.Fatal(err)
	}
	if !stale.Timestamp.Equal(newer) {
		t.Errorf("stale timestamp not clamped: %v", stale.Timestamp)
	}

	history, err := store.MetricsHistory(ctx, id, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 records, got %d", len(history))
	}
	if history[1].Timestamp.Before(history[0].Timestamp) {
		t.Errorf("history out of order: %v then %v", history[0].Timestamp, history[1].Timestamp)
	}
}

func TestStoreMetricsAtomic_UnknownDevice(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t)
	err := store.StoreMetricsAtomic(ctx, &MetricsRecord{DeviceID: 77}, payloadBuilder(commonstorage.EnvelopeMetrics, nil))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if n, _ := store.QueueDepth(ctx); n != 0 {
		t.Errorf("envelope enqueued for unknown device")
	}
	if _, err := store.LatestMetrics(ctx, 77); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestMetrics: expected ErrNotFound, got %v", err)
	}
}
