package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	stateAgentID       = "agent_id"
	stateCredential    = "credential"
	stateRemoteAgentID = "remote_agent_id"
	stateRegisteredAt  = "registered_at"
)

func (s *SQLiteStore) getState(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM agent_state WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("read state "+key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) putState(ctx context.Context, ex execer, key, value string) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO agent_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, toUnix(s.now()))
	if err != nil {
		return unavailable("write state "+key, err)
	}
	return nil
}

// LoadIdentity returns whatever identity has been persisted. Missing pieces are empty.
func (s *SQLiteStore) LoadIdentity(ctx context.Context) (AgentIdentity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id AgentIdentity
	var err error
	if id.AgentID, _, err = s.getState(ctx, stateAgentID); err != nil {
		return AgentIdentity{}, err
	}
	if id.Credential, _, err = s.getState(ctx, stateCredential); err != nil {
		return AgentIdentity{}, err
	}
	if id.RemoteAgentID, _, err = s.getState(ctx, stateRemoteAgentID); err != nil {
		return AgentIdentity{}, err
	}
	registeredAt, ok, err := s.getState(ctx, stateRegisteredAt)
	if err != nil {
		return AgentIdentity{}, err
	}
	if ok {
		if t, err := time.Parse(time.RFC3339Nano, registeredAt); err == nil {
			id.RegisteredAt = t
		}
	}
	return id, nil
}

// EnsureAgentID persists candidate as the agent id unless one is already
// stored. The stored id is returned either way and is never replaced.
func (s *SQLiteStore) EnsureAgentID(ctx context.Context, candidate string) (string, error) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return "", fmt.Errorf("agent id candidate is empty")
	}

	var agentID string
	err := s.withTx(ctx, "ensure agent id", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO agent_state (key, value, updated_at) VALUES (?, ?, ?)",
			stateAgentID, candidate, toUnix(s.now())); err != nil {
			return unavailable("insert agent id", err)
		}
		if err := tx.QueryRowContext(ctx, "SELECT value FROM agent_state WHERE key = ?", stateAgentID).Scan(&agentID); err != nil {
			return unavailable("read agent id", err)
		}
		return nil
	})
	return agentID, err
}

// SaveCredential replaces the stored aggregator credential.
func (s *SQLiteStore) SaveCredential(ctx context.Context, credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putState(ctx, s.db, stateCredential, credential)
}

// SaveRegistration records a successful registration and, when the
// aggregator returned one, its id for this agent.
func (s *SQLiteStore) SaveRegistration(ctx context.Context, remoteAgentID string) error {
	return s.withTx(ctx, "save registration", func(tx *sql.Tx) error {
		if remoteAgentID != "" {
			if err := s.putState(ctx, tx, stateRemoteAgentID, remoteAgentID); err != nil {
				return err
			}
		}
		return s.putState(ctx, tx, stateRegisteredAt, s.now().UTC().Format(time.RFC3339Nano))
	})
}

// SetStateValue stores any JSON-serializable value under key.
func (s *SQLiteStore) SetStateValue(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putState(ctx, s.db, key, string(data))
}

// GetStateValue decodes the value stored under key into dest. It reports
// false, leaving dest untouched, when the key is absent.
func (s *SQLiteStore) GetStateValue(ctx context.Context, key string, dest interface{}) (bool, error) {
	s.mu.Lock()
	value, ok, err := s.getState(ctx, key)
	s.mu.Unlock()
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(value), dest); err != nil {
		return false, fmt.Errorf("decode state %s: %w", key, err)
	}
	return true, nil
}
