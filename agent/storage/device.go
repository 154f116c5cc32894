package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	commonstorage "printrelay/common/storage"
)

const deviceColumns = `id, address, model, name, serial, descriptor, first_seen, last_seen, remote_id, locked_fields`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row rowScanner) (*Device, error) {
	var (
		d                   Device
		firstSeen, lastSeen int64
		locks               string
	)
	if err := row.Scan(&d.ID, &d.Address, &d.Model, &d.Name, &d.Serial, &d.Descriptor,
		&firstSeen, &lastSeen, &d.RemoteID, &locks); err != nil {
		return nil, err
	}
	d.FirstSeen = fromUnix(firstSeen)
	d.LastSeen = fromUnix(lastSeen)
	if locks != "" {
		if err := json.Unmarshal([]byte(locks), &d.LockedFields); err != nil {
			return nil, fmt.Errorf("decode locked fields for %s: %w", d.Address, err)
		}
	}
	return &d, nil
}

func getDeviceByAddress(ctx context.Context, ex execer, address string) (*Device, error) {
	d, err := scanDevice(ex.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE address = ?", address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get device", err)
	}
	return d, nil
}

func getDeviceByID(ctx context.Context, ex execer, id int64) (*Device, error) {
	d, err := scanDevice(ex.QueryRowContext(ctx, "SELECT "+deviceColumns+" FROM devices WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get device", err)
	}
	return d, nil
}

// mergeField picks the stored value for one attribute. Locked fields keep their
// value, and an empty or UNKNOWN reading never replaces a known one.
func mergeField(d *Device, field, current, incoming string) string {
	if d.IsFieldLocked(field) {
		return current
	}
	incoming = strings.TrimSpace(incoming)
	if incoming == "" {
		return current
	}
	if incoming == commonstorage.UnknownValue && current != "" {
		return current
	}
	return incoming
}

func normalizeNew(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return commonstorage.UnknownValue
	}
	return v
}

// upsertDevice runs inside a transaction owned by the caller.
func (s *SQLiteStore) upsertDevice(ctx context.Context, ex execer, address string, fields DeviceFields) (*Device, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("device address is empty")
	}
	now := toUnix(s.now())

	existing, err := getDeviceByAddress(ctx, ex, address)
	switch {
	case errors.Is(err, ErrNotFound):
		res, err := ex.ExecContext(ctx, `
			INSERT INTO devices (address, model, name, serial, descriptor, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			address, normalizeNew(fields.Model), normalizeNew(fields.Name), normalizeNew(fields.Serial),
			strings.TrimSpace(fields.Descriptor), now, now)
		if err != nil {
			return nil, unavailable("insert device", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, unavailable("insert device id", err)
		}
		return getDeviceByID(ctx, ex, id)
	case err != nil:
		return nil, err
	}

	model := mergeField(existing, commonstorage.FieldModel, existing.Model, fields.Model)
	name := mergeField(existing, commonstorage.FieldName, existing.Name, fields.Name)
	serial := mergeField(existing, commonstorage.FieldSerial, existing.Serial, fields.Serial)
	descriptor := existing.Descriptor
	if d := strings.TrimSpace(fields.Descriptor); d != "" {
		descriptor = d
	}

	if _, err := ex.ExecContext(ctx, `
		UPDATE devices SET model = ?, name = ?, serial = ?, descriptor = ?, last_seen = ?
		WHERE id = ?`,
		model, name, serial, descriptor, now, existing.ID); err != nil {
		return nil, unavailable("update device", err)
	}
	return getDeviceByID(ctx, ex, existing.ID)
}

// UpsertDevice inserts a device for a new address or refreshes the existing row.
func (s *SQLiteStore) UpsertDevice(ctx context.Context, address string, fields DeviceFields) (int64, error) {
	var id int64
	err := s.withTx(ctx, "upsert device", func(tx *sql.Tx) error {
		d, err := s.upsertDevice(ctx, tx, address, fields)
		if err != nil {
			return err
		}
		id = d.ID
		return nil
	})
	return id, err
}

// StoreDiscoveryAtomic upserts the device at address and enqueues the envelope
// returned by build. Either both writes land or neither does.
func (s *SQLiteStore) StoreDiscoveryAtomic(ctx context.Context, address string, fields DeviceFields, build EnvelopeBuilder) (*Device, error) {
	if build == nil {
		return nil, fmt.Errorf("envelope builder is nil")
	}
	var device *Device
	err := s.withTx(ctx, "store discovery", func(tx *sql.Tx) error {
		d, err := s.upsertDevice(ctx, tx, address, fields)
		if err != nil {
			return err
		}
		payload, err := build(d)
		if err != nil {
			return fmt.Errorf("build discovery envelope: %w", err)
		}
		if _, err := s.enqueue(ctx, tx, payload); err != nil {
			return err
		}
		device = d
		return nil
	})
	return device, err
}

// GetDeviceByAddress returns the device registered at address.
func (s *SQLiteStore) GetDeviceByAddress(ctx context.Context, address string) (*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getDeviceByAddress(ctx, s.db, address)
}

// ListDevices returns every registered device ordered by id.
func (s *SQLiteStore) ListDevices(ctx context.Context) ([]*Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY id")
	if err != nil {
		return nil, unavailable("list devices", err)
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, unavailable("scan device", err)
		}
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list devices", err)
	}
	return devices, nil
}

// SetRemoteIdentity records the aggregator-side id of a device.
func (s *SQLiteStore) SetRemoteIdentity(ctx context.Context, deviceID int64, remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "UPDATE devices SET remote_id = ? WHERE id = ?", remoteID, deviceID)
	if err != nil {
		return unavailable("set remote identity", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("set remote identity", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ManualOverride sets field on the device at address, locks the field against
// discovery, and enqueues the envelope produced by build in the same transaction.
func (s *SQLiteStore) ManualOverride(ctx context.Context, address, field, value string, build EnvelopeBuilder) (*Device, error) {
	column, ok := lockableColumns[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("%w: empty value for %q", ErrInvalidField, field)
	}
	if build == nil {
		return nil, fmt.Errorf("envelope builder is nil")
	}

	var device *Device
	err := s.withTx(ctx, "manual override", func(tx *sql.Tx) error {
		d, err := getDeviceByAddress(ctx, tx, address)
		if err != nil {
			return err
		}

		locks := d.LockedFields
		if !d.IsFieldLocked(field) {
			locks = append(locks, FieldLock{Field: field, Reason: "manual_override", LockedAt: s.now().UTC()})
		}
		encoded, err := json.Marshal(locks)
		if err != nil {
			return fmt.Errorf("encode locked fields: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE devices SET "+column+" = ?, locked_fields = ? WHERE id = ?",
			value, string(encoded), d.ID); err != nil {
			return unavailable("manual override", err)
		}

		d, err = getDeviceByID(ctx, tx, d.ID)
		if err != nil {
			return err
		}
		payload, err := build(d)
		if err != nil {
			return fmt.Errorf("build update envelope: %w", err)
		}
		if _, err := s.enqueue(ctx, tx, payload); err != nil {
			return err
		}
		device = d
		return nil
	})
	return device, err
}

var lockableColumns = map[string]string{
	commonstorage.FieldSerial: "serial",
	commonstorage.FieldModel:  "model",
	commonstorage.FieldName:   "name",
}
