package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	commonstorage "printrelay/common/storage"
)

// newTestStore opens an in-memory store with a controllable clock.
func newTestStore(t testing.TB) (*SQLiteStore, *testClock) {
	t.Helper()
	store, err := NewSQLiteStore(":memory:", nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := &testClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	store.now = clock.Now
	return store, clock
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// payloadBuilder returns a builder that records the device it was handed.
func payloadBuilder(kind commonstorage.EnvelopeType, seen **Device) EnvelopeBuilder {
	return func(d *Device) (interface{}, error) {
		if seen != nil {
			*seen = d
		}
		return map[string]interface{}{"type": kind, "printer_id": d.ID}, nil
	}
}

func mustUpsert(t *testing.T, s *SQLiteStore, address string, fields DeviceFields) int64 {
	t.Helper()
	id, err := s.UpsertDevice(context.Background(), address, fields)
	if err != nil {
		t.Fatalf("UpsertDevice(%s): %v", address, err)
	}
	return id
}

func decodePayload(t testing.TB, env Envelope) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.Unmarshal(env.Payload, &m); err != nil {
		t.Fatalf("decode payload of envelope %d: %v", env.ID, err)
	}
	return m
}
