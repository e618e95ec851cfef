package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/signage-server/signage-gateway-pro/internal/models"
)

// ========== Schedule Rule Methods ==========

// CreateScheduleRule creates a new schedule rule
func (s *PostgresStore) CreateScheduleRule(ctx context.Context, rule *models.ScheduleRule) error {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	query := `
        INSERT INTO schedule_rules (
            id, created_at, updated_at, device_id, start_date_time, end_date_time,
            is_recurring, recurring_days, priority, content_kind, content_id
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
        )`

	_, err := s.getDB().ExecContext(ctx, query,
		rule.ID, rule.CreatedAt, rule.UpdatedAt, rule.DeviceID,
		rule.StartDateTime, rule.EndDateTime,
		rule.IsRecurring, pq.Array(rule.RecurringDays),
		int(rule.Priority), string(rule.Content.Kind), rule.Content.ID,
	)
	return err
}

const ruleColumns = `id, created_at, updated_at, device_id, start_date_time, end_date_time,
               is_recurring, recurring_days, priority, content_kind, content_id`

func scanScheduleRule(row interface{ Scan(...interface{}) error }) (*models.ScheduleRule, error) {
	rule := &models.ScheduleRule{}
	var priority int
	var kind string
	var days pq.Int64Array

	err := row.Scan(
		&rule.ID, &rule.CreatedAt, &rule.UpdatedAt, &rule.DeviceID,
		&rule.StartDateTime, &rule.EndDateTime,
		&rule.IsRecurring, &days,
		&priority, &kind, &rule.Content.ID,
	)
	if err != nil {
		return nil, err
	}

	rule.Priority = models.RulePriority(priority)
	rule.Content.Kind = models.ContentKind(kind)
	for _, d := range days {
		rule.RecurringDays = append(rule.RecurringDays, int(d))
	}
	return rule, nil
}

// GetScheduleRule gets a schedule rule by ID
func (s *PostgresStore) GetScheduleRule(ctx context.Context, id uuid.UUID) (*models.ScheduleRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM schedule_rules WHERE id = $1`

	rule, err := scanScheduleRule(s.getDB().QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rule, nil
}

// UpdateScheduleRule updates a schedule rule
func (s *PostgresStore) UpdateScheduleRule(ctx context.Context, rule *models.ScheduleRule) error {
	rule.UpdatedAt = time.Now()

	query := `
        UPDATE schedule_rules SET
            updated_at = $2, start_date_time = $3, end_date_time = $4,
            is_recurring = $5, recurring_days = $6, priority = $7,
            content_kind = $8, content_id = $9
        WHERE id = $1`

	result, err := s.getDB().ExecContext(ctx, query,
		rule.ID, rule.UpdatedAt, rule.StartDateTime, rule.EndDateTime,
		rule.IsRecurring, pq.Array(rule.RecurringDays),
		int(rule.Priority), string(rule.Content.Kind), rule.Content.ID,
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

// DeleteScheduleRule deletes a schedule rule
func (s *PostgresStore) DeleteScheduleRule(ctx context.Context, id uuid.UUID) error {
	result, err := s.getDB().ExecContext(ctx, `DELETE FROM schedule_rules WHERE id = $1`, id)
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

// ListScheduleRules lists schedule rules, optionally filtered by device
func (s *PostgresStore) ListScheduleRules(ctx context.Context, deviceID *uuid.UUID, limit, offset int) ([]*models.ScheduleRule, int64, error) {
	var total int64
	var rows *sql.Rows
	var err error

	if deviceID != nil {
		if err := s.getDB().QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schedule_rules WHERE device_id = $1`, *deviceID,
		).Scan(&total); err != nil {
			return nil, 0, err
		}

		query := `SELECT ` + ruleColumns + ` FROM schedule_rules
                  WHERE device_id = $1 ORDER BY start_date_time LIMIT $2 OFFSET $3`
		rows, err = s.getDB().QueryContext(ctx, query, *deviceID, limit, offset)
	} else {
		if err := s.getDB().QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schedule_rules`,
		).Scan(&total); err != nil {
			return nil, 0, err
		}

		query := `SELECT ` + ruleColumns + ` FROM schedule_rules
                  ORDER BY start_date_time LIMIT $1 OFFSET $2`
		rows, err = s.getDB().QueryContext(ctx, query, limit, offset)
	}
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var rules []*models.ScheduleRule
	for rows.Next() {
		rule, err := scanScheduleRule(rows)
		if err != nil {
			return nil, 0, err
		}
		rules = append(rules, rule)
	}

	return rules, total, rows.Err()
}

// GetRulesForDevice returns all schedule rules configured for a device
func (s *PostgresStore) GetRulesForDevice(ctx context.Context, deviceID uuid.UUID) ([]*models.ScheduleRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM schedule_rules
              WHERE device_id = $1 ORDER BY start_date_time`

	rows, err := s.getDB().QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*models.ScheduleRule
	for rows.Next() {
		rule, err := scanScheduleRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	return rules, rows.Err()
}
