package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	commonstorage "printrelay/common/storage"
)

// StoreMetricsAtomic appends rec to the device's history, refreshes the
// device's last_seen, and enqueues the envelope from build, all in one
// transaction. A timestamp older than the device's newest sample is raised to
// it so history stays ordered; rec is updated before build runs.
func (s *SQLiteStore) StoreMetricsAtomic(ctx context.Context, rec *MetricsRecord, build EnvelopeBuilder) error {
	if rec == nil {
		return fmt.Errorf("metrics record is nil")
	}
	if build == nil {
		return fmt.Errorf("envelope builder is nil")
	}
	if rec.SchemaVersion == 0 {
		rec.SchemaVersion = commonstorage.MetricsSchemaVersion
	}
	if rec.Status == "" {
		rec.Status = commonstorage.StatusUnknown
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now().UTC()
	}

	supplies, err := json.Marshal(rec.SupplyLevels)
	if err != nil {
		return fmt.Errorf("encode supply levels: %w", err)
	}
	raw, err := json.Marshal(rec.Raw)
	if err != nil {
		return fmt.Errorf("encode raw payload: %w", err)
	}

	return s.withTx(ctx, "store metrics", func(tx *sql.Tx) error {
		if _, err := getDeviceByID(ctx, tx, rec.DeviceID); err != nil {
			return err
		}

		var latest sql.NullInt64
		if err := tx.QueryRowContext(ctx,
			"SELECT MAX(ts) FROM metrics_history WHERE device_id = ?", rec.DeviceID).Scan(&latest); err != nil {
			return unavailable("latest metrics timestamp", err)
		}
		if latest.Valid && toUnix(rec.Timestamp) < latest.Int64 {
			rec.Timestamp = fromUnix(latest.Int64)
		}

		var pageCount sql.NullInt64
		if rec.PageCount != nil {
			pageCount = sql.NullInt64{Int64: *rec.PageCount, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO metrics_history (device_id, ts, schema_version, page_count, status, error_detail, supply_levels, raw)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.DeviceID, toUnix(rec.Timestamp), rec.SchemaVersion, pageCount, string(rec.Status),
			rec.ErrorDetail, string(supplies), string(raw)); err != nil {
			return unavailable("insert metrics", err)
		}

		if _, err := tx.ExecContext(ctx, "UPDATE devices SET last_seen = ? WHERE id = ?",
			toUnix(s.now()), rec.DeviceID); err != nil {
			return unavailable("touch device", err)
		}

		device, err := getDeviceByID(ctx, tx, rec.DeviceID)
		if err != nil {
			return err
		}
		payload, err := build(device)
		if err != nil {
			return fmt.Errorf("build metrics envelope: %w", err)
		}
		_, err = s.enqueue(ctx, tx, payload)
		return err
	})
}

const metricsColumns = `device_id, ts, schema_version, page_count, status, error_detail, supply_levels, raw`

func scanMetrics(row rowScanner) (*MetricsRecord, error) {
	var (
		rec       MetricsRecord
		ts        int64
		pageCount sql.NullInt64
		status    string
		supplies  string
		raw       string
	)
	if err := row.Scan(&rec.DeviceID, &ts, &rec.SchemaVersion, &pageCount, &status, &rec.ErrorDetail, &supplies, &raw); err != nil {
		return nil, err
	}
	rec.Timestamp = fromUnix(ts)
	rec.Status = commonstorage.DeviceStatus(status)
	if pageCount.Valid {
		v := pageCount.Int64
		rec.PageCount = &v
	}
	if err := json.Unmarshal([]byte(supplies), &rec.SupplyLevels); err != nil {
		return nil, fmt.Errorf("decode supply levels: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &rec.Raw); err != nil {
		return nil, fmt.Errorf("decode raw payload: %w", err)
	}
	return &rec, nil
}

// LatestMetrics returns the newest sample for a device, or ErrNotFound.
func (s *SQLiteStore) LatestMetrics(ctx context.Context, deviceID int64) (*MetricsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := scanMetrics(s.db.QueryRowContext(ctx,
		"SELECT "+metricsColumns+" FROM metrics_history WHERE device_id = ? ORDER BY ts DESC, id DESC LIMIT 1", deviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("latest metrics", err)
	}
	s.fillAddress(ctx, rec)
	return rec, nil
}

// MetricsHistory returns up to limit samples for a device in storage order.
func (s *SQLiteStore) MetricsHistory(ctx context.Context, deviceID int64, limit int) ([]*MetricsRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+metricsColumns+" FROM metrics_history WHERE device_id = ? ORDER BY id ASC LIMIT ?", deviceID, limit)
	if err != nil {
		return nil, unavailable("metrics history", err)
	}
	defer rows.Close()

	var out []*MetricsRecord
	for rows.Next() {
		rec, err := scanMetrics(rows)
		if err != nil {
			return nil, unavailable("scan metrics", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("metrics history", err)
	}
	// The pool holds a single connection; release it before the address lookups.
	rows.Close()
	for _, rec := range out {
		s.fillAddress(ctx, rec)
	}
	return out, nil
}

// fillAddress is called with mu held.
func (s *SQLiteStore) fillAddress(ctx context.Context, rec *MetricsRecord) {
	if d, err := getDeviceByID(ctx, s.db, rec.DeviceID); err == nil {
		rec.Address = d.Address
	}
}
