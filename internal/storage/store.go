package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/signage-server/signage-gateway-pro/internal/models"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrInvalidData  = errors.New("invalid data")
)

// Store defines the storage interface
type Store interface {
	// Transaction support
	BeginTx(ctx context.Context) (Store, error)
	Commit() error
	Rollback() error

	// Device registry methods
	CreateDevice(ctx context.Context, device *models.Device) error
	GetDevice(ctx context.Context, id uuid.UUID) (*models.Device, error)
	GetDeviceByIMEI(ctx context.Context, imei string) (*models.Device, error)
	UpdateDevice(ctx context.Context, device *models.Device) error
	DeleteDevice(ctx context.Context, id uuid.UUID) error
	ListDevices(ctx context.Context, limit, offset int) ([]*models.Device, int64, error)
	SetDeviceApproval(ctx context.Context, imei string, approved bool) error
	IsApproved(ctx context.Context, imei string) (bool, error)
	TouchDeviceSeen(ctx context.Context, imei string, seenAt time.Time) error

	// Schedule rule methods
	CreateScheduleRule(ctx context.Context, rule *models.ScheduleRule) error
	GetScheduleRule(ctx context.Context, id uuid.UUID) (*models.ScheduleRule, error)
	UpdateScheduleRule(ctx context.Context, rule *models.ScheduleRule) error
	DeleteScheduleRule(ctx context.Context, id uuid.UUID) error
	ListScheduleRules(ctx context.Context, deviceID *uuid.UUID, limit, offset int) ([]*models.ScheduleRule, int64, error)
	GetRulesForDevice(ctx context.Context, deviceID uuid.UUID) ([]*models.ScheduleRule, error)

	// Event log methods
	CreateEventLog(ctx context.Context, event *models.EventLog) error
	ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error)

	// User methods
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error

	// Close the store
	Close() error
}

// EventLogFilters represents filters for event logs
type EventLogFilters struct {
	DeviceID  *uuid.UUID
	IMEI      string
	Type      *models.EventType
	Level     *models.EventLevel
	StartTime *time.Time
	EndTime   *time.Time
}
