package storage

import (
	"context"
	"testing"
)

func TestEnsureAgentID_WriteOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t)

	first, err := store.EnsureAgentID(ctx, "11111111-aaaa")
	if err != nil {
		t.Fatalf("EnsureAgentID: %v", err)
	}
	second, err := store.EnsureAgentID(ctx, "22222222-bbbb")
	if err != nil {
		t.Fatalf("EnsureAgentID: %v", err)
	}
	if first != "11111111-aaaa" || second != first {
		t.Errorf("agent id changed: first=%q second=%q", first, second)
	}

	if _, err := store.EnsureAgentID(ctx, "  "); err == nil {
		t.Error("expected error for blank candidate")
	}
}

func TestCredentialAndRegistration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, clock := newTestStore(t)

	id, err := store.LoadIdentity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id.Credential != "" || !id.RegisteredAt.IsZero() {
		t.Errorf("fresh store should have empty identity, got %+v", id)
	}

	if err := store.SaveCredential(ctx, "token-1"); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveCredential(ctx, "token-2"); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveRegistration(ctx, "remote-agent-9"); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveRegistration(ctx, ""); err != nil {
		t.Fatal(err)
	}

	id, err = store.LoadIdentity(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id.Credential != "token-2" {
		t.Errorf("credential = %q", id.Credential)
	}
	if id.RemoteAgentID != "remote-agent-9" {
		t.Errorf("remote agent id = %q", id.RemoteAgentID)
	}
	if !id.RegisteredAt.Equal(clock.Now()) {
		t.Errorf("registered at = %v, want %v", id.RegisteredAt, clock.Now())
	}
}

func TestStateValues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newTestStore(t)

	type overrides struct {
		Subnets []string `json:"subnets"`
	}
	var got overrides
	ok, err := store.GetStateValue(ctx, "remote_config", &got)
	if err != nil || ok {
		t.Fatalf("absent key: ok=%v err=%v", ok, err)
	}

	if err := store.SetStateValue(ctx, "remote_config", overrides{Subnets: []string{"10.0.0.0/24"}}); err != nil {
		t.Fatal(err)
	}
	ok, err = store.GetStateValue(ctx, "remote_config", &got)
	if err != nil || !ok {
		t.Fatalf("present key: ok=%v err=%v", ok, err)
	}
	if len(got.Subnets) != 1 || got.Subnets[0] != "10.0.0.0/24" {
		t.Errorf("unexpected value %+v", got)
	}
}
