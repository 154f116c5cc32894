package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

func (s *SQLiteStore) enqueue(ctx context.Context, ex execer, payload interface{}) (int64, error) {
	var data []byte
	switch p := payload.(type) {
	case json.RawMessage:
		data = p
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return 0, fmt.Errorf("encode envelope payload: %w", err)
		}
	}
	if !json.Valid(data) {
		return 0, fmt.Errorf("envelope payload is not valid JSON")
	}

	res, err := ex.ExecContext(ctx, "INSERT INTO outbound_queue (payload, created_at) VALUES (?, ?)",
		string(data), toUnix(s.now()))
	if err != nil {
		return 0, unavailable("enqueue", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, unavailable("enqueue id", err)
	}
	return id, nil
}

// Enqueue appends payload, JSON encoded, to the outbound queue and returns its
// sequence id. Ids only grow, so id order is creation order.
func (s *SQLiteStore) Enqueue(ctx context.Context, payload interface{}) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enqueue(ctx, s.db, payload)
}

// PeekBatch returns at most limit envelopes, oldest first. Nothing is removed.
func (s *SQLiteStore) PeekBatch(ctx context.Context, limit int) ([]Envelope, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload, created_at, attempts, last_error
		FROM outbound_queue ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, unavailable("peek queue", err)
	}
	defer rows.Close()

	var batch []Envelope
	for rows.Next() {
		var (
			env       Envelope
			payload   string
			createdAt int64
		)
		if err := rows.Scan(&env.ID, &payload, &createdAt, &env.Attempts, &env.LastError); err != nil {
			return nil, unavailable("scan envelope", err)
		}
		env.Payload = json.RawMessage(payload)
		env.CreatedAt = fromUnix(createdAt)
		batch = append(batch, env)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("peek queue", err)
	}
	return batch, nil
}

// Ack removes the envelope with id. Acking an id that is already gone is a no-op.
func (s *SQLiteStore) Ack(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM outbound_queue WHERE id = ?", id); err != nil {
		return unavailable("ack envelope", err)
	}
	return nil
}

// RecordAttempt notes a failed delivery on the envelope. The envelope stays queued.
func (s *SQLiteStore) RecordAttempt(ctx context.Context, id int64, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		"UPDATE outbound_queue SET attempts = attempts + 1, last_error = ? WHERE id = ?", errText, id); err != nil {
		return unavailable("record attempt", err)
	}
	return nil
}

// QueueDepth returns the number of envelopes awaiting delivery.
func (s *SQLiteStore) QueueDepth(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM outbound_queue").Scan(&n); err != nil {
		return 0, unavailable("queue depth", err)
	}
	return n, nil
}
