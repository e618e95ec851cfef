package models

import (
	"time"

	"github.com/signage-server/signage-gateway-pro/pkg/protocol"
)

// Device represents a registered display device in the registry
type Device struct {
	BaseModel

	IMEI        string `json:"imei" db:"imei"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`

	// DeviceType 站牌类型（公交/有轨电车/车站大屏等）
	DeviceType string `json:"deviceType" db:"device_type"`

	Communication protocol.CommunicationType `json:"communication" db:"communication"`

	IsApproved bool `json:"isApproved" db:"is_approved"`
	IsDisabled bool `json:"isDisabled" db:"is_disabled"`

	FirstSeenAt *time.Time `json:"firstSeenAt,omitempty" db:"first_seen_at"`
	LastSeenAt  *time.Time `json:"lastSeenAt,omitempty" db:"last_seen_at"`
}

// VerificationStatus represents the gateway-side admission state of an IMEI
type VerificationStatus string

const (
	StatusUnapproved  VerificationStatus = "UNAPPROVED"
	StatusApproved    VerificationStatus = "APPROVED"
	StatusBlacklisted VerificationStatus = "BLACKLISTED"
	StatusRateLimited VerificationStatus = "RATE_LIMITED"
)

// VerificationRecord tracks per-IMEI connection history inside the gateway.
// It lives in memory only; the durable registry is the Device table.
type VerificationRecord struct {
	IMEI               string             `json:"imei"`
	Status             VerificationStatus `json:"status"`
	FirstSeenAt        time.Time          `json:"firstSeenAt"`
	LastSeenAt         time.Time          `json:"lastSeenAt"`
	ConnectionCount    uint64             `json:"connectionCount"`
	UnapprovedAttempts int                `json:"unapprovedAttempts"`
	BlacklistedUntil   *time.Time         `json:"blacklistedUntil,omitempty"`
}
