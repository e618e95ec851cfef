package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signage-server/signage-gateway-pro/internal/models"
)

// ========== Event Log Methods ==========

// CreateEventLog creates an event log entry
func (s *PostgresStore) CreateEventLog(ctx context.Context, event *models.EventLog) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
        INSERT INTO event_logs (
            id, created_at, device_id, imei, type, level, description, details
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		event.ID, event.CreatedAt, event.DeviceID, event.IMEI,
		string(event.Type), string(event.Level), event.Description, event.Details,
	)
	return err
}

// ListEventLogs lists event logs matching the filters
func (s *PostgresStore) ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	argn := 0

	addArg := func(clause string, v interface{}) {
		argn++
		where += fmt.Sprintf(" AND %s $%d", clause, argn)
		args = append(args, v)
	}

	if filters.DeviceID != nil {
		addArg("device_id =", *filters.DeviceID)
	}
	if filters.IMEI != "" {
		addArg("imei =", filters.IMEI)
	}
	if filters.Type != nil {
		addArg("type =", string(*filters.Type))
	}
	if filters.Level != nil {
		addArg("level =", string(*filters.Level))
	}
	if filters.StartTime != nil {
		addArg("created_at >=", *filters.StartTime)
	}
	if filters.EndTime != nil {
		addArg("created_at <=", *filters.EndTime)
	}

	var total int64
	if err := s.getDB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM event_logs"+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
        SELECT id, created_at, device_id, imei, type, level, description, details
        FROM event_logs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		where, argn+1, argn+2)
	args = append(args, limit, offset)

	rows, err := s.getDB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*models.EventLog
	for rows.Next() {
		event := &models.EventLog{}
		var evType, evLevel string

		err := rows.Scan(
			&event.ID, &event.CreatedAt, &event.DeviceID, &event.IMEI,
			&evType, &evLevel, &event.Description, &event.Details,
		)
		if err != nil {
			return nil, 0, err
		}

		event.Type = models.EventType(evType)
		event.Level = models.EventLevel(evLevel)
		events = append(events, event)
	}

	return events, total, rows.Err()
}
