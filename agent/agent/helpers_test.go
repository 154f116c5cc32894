package agent

import (
	"context"
	"testing"

	"printrelay/agent/storage"
)

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore("", nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testEnvelopes() *EnvelopeFactory {
	return NewEnvelopeFactory(func() string { return "agent-under-test" })
}

func testSettings(mutate func(*Settings)) *SettingsHolder {
	s := DefaultSettings()
	s.ProbeWorkers = 4
	s.CollectWorkers = 2
	if mutate != nil {
		mutate(&s)
	}
	return NewSettingsHolder(s)
}

func queuedEnvelopes(t *testing.T, store *storage.SQLiteStore) []storage.Envelope {
	t.Helper()
	batch, err := store.PeekBatch(context.Background(), 1000)
	if err != nil {
		t.Fatalf("PeekBatch: %v", err)
	}
	return batch
}
