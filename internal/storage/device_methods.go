package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/signage-server/signage-gateway-pro/internal/models"
	"github.com/signage-server/signage-gateway-pro/pkg/protocol"
)

// ========== Device Methods ==========

// CreateDevice creates a new device
func (s *PostgresStore) CreateDevice(ctx context.Context, device *models.Device) error {
	if device.ID == uuid.Nil {
		device.ID = uuid.New()
	}

	now := time.Now()
	device.CreatedAt = now
	device.UpdatedAt = now

	query := `
        INSERT INTO devices (
            id, created_at, updated_at, imei, name, description,
            device_type, communication, is_approved, is_disabled
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		device.ID, device.CreatedAt, device.UpdatedAt, device.IMEI,
		device.Name, device.Description, device.DeviceType,
		int(device.Communication), device.IsApproved, device.IsDisabled,
	)

	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateKey
		}
		return err
	}

	return nil
}

const deviceColumns = `id, created_at, updated_at, imei, name, description,
               device_type, communication, is_approved, is_disabled,
               first_seen_at, last_seen_at`

func scanDevice(row interface{ Scan(...interface{}) error }) (*models.Device, error) {
	device := &models.Device{}
	var comm int

	err := row.Scan(
		&device.ID, &device.CreatedAt, &device.UpdatedAt, &device.IMEI,
		&device.Name, &device.Description, &device.DeviceType,
		&comm, &device.IsApproved, &device.IsDisabled,
		&device.FirstSeenAt, &device.LastSeenAt,
	)
	if err != nil {
		return nil, err
	}

	device.Communication = protocol.CommunicationType(comm)
	return device, nil
}

// GetDevice gets a device by ID
func (s *PostgresStore) GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`

	device, err := scanDevice(s.getDB().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return device, nil
}

// GetDeviceByIMEI gets a device by IMEI
func (s *PostgresStore) GetDeviceByIMEI(ctx context.Context, imei string) (*models.Device, error) {
	query := `SELECT ` + deviceColumns + ` FROM devices WHERE imei = $1`

	device, err := scanDevice(s.getDB().QueryRowContext(ctx, query, imei))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return device, nil
}

// UpdateDevice updates a device
func (s *PostgresStore) UpdateDevice(ctx context.Context, device *models.Device) error {
	device.UpdatedAt = time.Now()

	query := `
        UPDATE devices SET
            updated_at = $2, name = $3, description = $4, device_type = $5,
            communication = $6, is_approved = $7, is_disabled = $8
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		device.ID, device.UpdatedAt, device.Name, device.Description,
		device.DeviceType, int(device.Communication),
		device.IsApproved, device.IsDisabled,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteDevice deletes a device
func (s *PostgresStore) DeleteDevice(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDevices lists devices with pagination
func (s *PostgresStore) ListDevices(ctx context.Context, limit, offset int) ([]*models.Device, int64, error) {
	var total int64
	if err := s.getDB().QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + deviceColumns + ` FROM devices ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.getDB().QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var devices []*models.Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, 0, err
		}
		devices = append(devices, device)
	}

	return devices, total, rows.Err()
}

// SetDeviceApproval flips the approval flag for an IMEI
func (s *PostgresStore) SetDeviceApproval(ctx context.Context, imei string, approved bool) error {
	result, err := s.getDB().ExecContext(ctx,
		`UPDATE devices SET is_approved = $2, updated_at = $3 WHERE imei = $1`,
		imei, approved, time.Now(),
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// IsApproved reports whether the registry approves the IMEI.
// An unknown IMEI is not approved; disabled devices are never approved.
func (s *PostgresStore) IsApproved(ctx context.Context, imei string) (bool, error) {
	var approved, disabled bool
	err := s.getDB().QueryRowContext(ctx,
		`SELECT is_approved, is_disabled FROM devices WHERE imei = $1`, imei,
	).Scan(&approved, &disabled)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return approved && !disabled, nil
}

// TouchDeviceSeen records first/last contact timestamps for an IMEI.
// Unknown IMEIs are ignored; the gateway tracks them in memory only.
func (s *PostgresStore) TouchDeviceSeen(ctx context.Context, imei string, seenAt time.Time) error {
	_, err := s.getDB().ExecContext(ctx, `
        UPDATE devices SET
            last_seen_at = $2,
            first_seen_at = COALESCE(first_seen_at, $2)
        WHERE imei = $1`,
		imei, seenAt,
	)
	return err
}
