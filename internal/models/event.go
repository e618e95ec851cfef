package models

import (
	"time"

	"github.com/google/uuid"
)

// EventLog represents an event log entry
type EventLog struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	DeviceID *uuid.UUID `json:"deviceId,omitempty" db:"device_id"`
	IMEI     string     `json:"imei,omitempty" db:"imei"`

	Type        EventType  `json:"type" db:"type"`
	Level       EventLevel `json:"level" db:"level"`
	Description string     `json:"description" db:"description"`

	Details Variables `json:"details,omitempty" db:"details"`
}

// EventType represents event types
type EventType string

const (
	// Gateway events
	EventTypeConnected   EventType = "CONNECTED"
	EventTypeAdmitted    EventType = "ADMITTED"
	EventTypeRejected    EventType = "REJECTED"
	EventTypeBlacklisted EventType = "BLACKLISTED"
	EventTypeRateLimited EventType = "RATE_LIMITED"
	EventTypeClosed      EventType = "CLOSED"
	EventTypePush        EventType = "PUSH"

	// System events
	EventTypeAPICall EventType = "API_CALL"
	EventTypeError   EventType = "ERROR"
)

// EventLevel represents event severity levels
type EventLevel string

const (
	EventLevelDebug   EventLevel = "DEBUG"
	EventLevelInfo    EventLevel = "INFO"
	EventLevelWarning EventLevel = "WARNING"
	EventLevelError   EventLevel = "ERROR"
)
