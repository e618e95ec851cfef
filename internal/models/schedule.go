package models

import (
	"time"

	"github.com/google/uuid"
)

// RulePriority orders simultaneously active rules, Low < Medium < High
type RulePriority int

const (
	PriorityLow RulePriority = iota
	PriorityMedium
	PriorityHigh
)

// String returns a readable name
func (p RulePriority) String() string {
	switch p {
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	default:
		return "LOW"
	}
}

// ContentKind names the screen message table a rule points into
type ContentKind string

const (
	ContentFullScreen      ContentKind = "FULL_SCREEN"
	ContentScrollingScreen ContentKind = "SCROLLING_SCREEN"
	ContentBitmapScreen    ContentKind = "BITMAP_SCREEN"
)

// ContentReference points at the display content a rule activates. The
// gateway only forwards the reference; rendering is out of its hands.
type ContentReference struct {
	Kind ContentKind `json:"kind" db:"content_kind"`
	ID   uuid.UUID   `json:"id" db:"content_id"`
}

// ScheduleRule assigns display content to a device for a time window,
// optionally recurring on selected weekdays (1=Monday .. 7=Sunday).
type ScheduleRule struct {
	BaseModel

	DeviceID uuid.UUID `json:"deviceId" db:"device_id"`

	StartDateTime time.Time `json:"startDateTime" db:"start_date_time"`
	EndDateTime   time.Time `json:"endDateTime" db:"end_date_time"`

	IsRecurring   bool  `json:"isRecurring" db:"is_recurring"`
	RecurringDays []int `json:"recurringDays,omitempty" db:"recurring_days"`

	Priority RulePriority     `json:"priority" db:"priority"`
	Content  ContentReference `json:"content"`
}

// MatchesWeekday reports whether the rule recurs on the given weekday
// (ISO numbering, 1=Monday .. 7=Sunday)
func (r *ScheduleRule) MatchesWeekday(day int) bool {
	for _, d := range r.RecurringDays {
		if d == day {
			return true
		}
	}
	return false
}

// ISOWeekday maps time.Weekday to 1=Monday .. 7=Sunday
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
