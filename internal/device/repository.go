package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/flora-iot/flora-core/internal/infrastructure/database"
)

// Repository defines the interface for device persistence operations.
type Repository interface {
	// Create inserts a new device.
	// Returns ErrDeviceExists if a device with the same ID already exists.
	Create(ctx context.Context, device *Device) error

	// ListByOwner returns the owner's devices ordered by ID. A non-empty
	// deviceID narrows the result to that device.
	ListByOwner(ctx context.Context, ownerID, deviceID string) ([]Device, error)

	// Exists reports whether a device with this ID is registered to anyone.
	Exists(ctx context.Context, deviceID string) (bool, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, owner_id, nickname, battery_life,
			latitude, longitude, location_name, location_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.DeviceID, d.OwnerID, d.Nickname, d.BatteryLife,
		d.Location.Lat, d.Location.Long, d.Location.LocationName, d.Location.LocationKey,
		d.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if database.IsConstraintViolation(err) {
			return fmt.Errorf("%w: %s", ErrDeviceExists, d.DeviceID)
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's devices.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID, deviceID string) ([]Device, error) {
	query := `
		SELECT device_id, owner_id, nickname, battery_life,
			latitude, longitude, location_name, location_key, created_at
		FROM devices
		WHERE owner_id = ?`
	args := []any{ownerID}
	if deviceID != "" {
		query += " AND device_id = ?"
		args = append(args, deviceID)
	}
	query += " ORDER BY device_id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		var (
			d         Device
			createdAt string
		)
		if err := rows.Scan(&d.DeviceID, &d.OwnerID, &d.Nickname, &d.BatteryLife,
			&d.Location.Lat, &d.Location.Long, &d.Location.LocationName, &d.Location.LocationKey,
			&createdAt); err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Exists reports whether deviceID is registered.
func (r *SQLiteRepository) Exists(ctx context.Context, deviceID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM devices WHERE device_id = ?`, deviceID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking device: %w", err)
	}
	return true, nil
}
