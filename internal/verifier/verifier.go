package verifier

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/signage-server/signage-gateway-pro/internal/models"
)

// Registry is the external device registry consulted for approval.
// Lookups may be I/O bound; a lookup error fails closed.
type Registry interface {
	IsApproved(ctx context.Context, imei string) (bool, error)
}

// Reason explains an admission decision
type Reason string

const (
	ReasonApproved    Reason = "APPROVED"
	ReasonUnapproved  Reason = "UNAPPROVED"
	ReasonBlacklisted Reason = "BLACKLISTED"
	ReasonRateLimited Reason = "RATE_LIMITED"
)

// Decision is the outcome of one admission attempt
type Decision struct {
	Accepted bool
	Reason   Reason
	// Record is a snapshot of the verification record after the attempt
	Record models.VerificationRecord
}

// Config holds the admission thresholds
type Config struct {
	RateLimitPerMinute    int
	MaxUnapprovedAttempts int
	BlacklistDuration     time.Duration
}

// record extends the verification record with the rate limit window
type record struct {
	models.VerificationRecord
	windowStart time.Time
	windowCount int
}

// DeviceVerifier tracks per-IMEI connection history and decides admission.
// The IMEI table is shared across all connection goroutines and mutated
// under a single mutex; admission attempts are short and lock-cheap.
type DeviceVerifier struct {
	cfg      Config
	registry Registry
	counters Counters

	mu      sync.Mutex
	records map[string]*record
}

// New creates a verifier backed by the given registry
func New(cfg Config, registry Registry) *DeviceVerifier {
	return &DeviceVerifier{
		cfg:      cfg,
		registry: registry,
		records:  make(map[string]*record),
	}
}

// Admit runs one admission attempt for an IMEI at the given instant.
// Every call updates lastSeenAt and connectionCount regardless of outcome,
// and this is the sole place admission statistics are incremented.
// The registry lookup runs outside the table lock so one slow lookup
// never stalls admission for other devices.
func (v *DeviceVerifier) Admit(ctx context.Context, imei string, now time.Time) Decision {
	v.mu.Lock()

	rec, ok := v.records[imei]
	if !ok {
		rec = &record{
			VerificationRecord: models.VerificationRecord{
				IMEI:        imei,
				Status:      models.StatusUnapproved,
				FirstSeenAt: now,
			},
		}
		v.records[imei] = rec
	}

	rec.LastSeenAt = now
	rec.ConnectionCount++

	// 固定60秒窗口计数，所有尝试都计入
	if now.Sub(rec.windowStart) >= time.Minute {
		rec.windowStart = now
		rec.windowCount = 0
	}
	rec.windowCount++

	// Active blacklist rejects before anything else and without
	// touching the attempt counter.
	if rec.Status == models.StatusBlacklisted {
		if rec.BlacklistedUntil != nil && now.Before(*rec.BlacklistedUntil) {
			v.counters.RejectedBlacklisted.Add(1)
			d := Decision{Accepted: false, Reason: ReasonBlacklisted, Record: rec.VerificationRecord}
			v.mu.Unlock()
			return d
		}
		// Blacklist expired: demote to unapproved, counter starts over
		rec.Status = models.StatusUnapproved
		rec.UnapprovedAttempts = 0
		rec.BlacklistedUntil = nil
	}

	// Rate limiting is independent of approval and does not count
	// toward the unapproved-attempt threshold.
	if v.cfg.RateLimitPerMinute > 0 && rec.windowCount > v.cfg.RateLimitPerMinute {
		if rec.Status != models.StatusApproved {
			rec.Status = models.StatusRateLimited
		}
		v.counters.RejectedRateLimited.Add(1)
		d := Decision{Accepted: false, Reason: ReasonRateLimited, Record: rec.VerificationRecord}
		v.mu.Unlock()
		return d
	}

	// 注册表查询可能是慢 IO，锁外执行
	v.mu.Unlock()

	approved, err := v.registry.IsApproved(ctx, imei)
	if err != nil {
		// 注册表故障按未批准处理（fail closed）
		log.Warn().Err(err).Str("imei", imei).Msg("device registry lookup failed, treating as unapproved")
		approved = false
	}

	// 同一 IMEI 的并发握手各自查询注册表，后出结果的覆盖状态
	v.mu.Lock()
	defer v.mu.Unlock()

	if approved {
		rec.Status = models.StatusApproved
		rec.UnapprovedAttempts = 0
		v.counters.Accepted.Add(1)
		return Decision{Accepted: true, Reason: ReasonApproved, Record: rec.VerificationRecord}
	}

	rec.Status = models.StatusUnapproved
	rec.UnapprovedAttempts++

	if v.cfg.MaxUnapprovedAttempts > 0 && rec.UnapprovedAttempts > v.cfg.MaxUnapprovedAttempts {
		until := now.Add(v.cfg.BlacklistDuration)
		rec.Status = models.StatusBlacklisted
		rec.BlacklistedUntil = &until
		v.counters.RejectedBlacklisted.Add(1)

		log.Info().
			Str("imei", imei).
			Int("attempts", rec.UnapprovedAttempts).
			Time("until", until).
			Msg("device blacklisted after repeated unapproved attempts")

		return Decision{Accepted: false, Reason: ReasonBlacklisted, Record: rec.VerificationRecord}
	}

	v.counters.RejectedUnapproved.Add(1)
	return Decision{Accepted: false, Reason: ReasonUnapproved, Record: rec.VerificationRecord}
}

// Record returns a snapshot of the verification record for an IMEI
func (v *DeviceVerifier) Record(imei string) (models.VerificationRecord, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	rec, ok := v.records[imei]
	if !ok {
		return models.VerificationRecord{}, false
	}
	return rec.VerificationRecord, true
}

// Records returns a snapshot of all verification records
func (v *DeviceVerifier) Records() []models.VerificationRecord {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]models.VerificationRecord, 0, len(v.records))
	for _, rec := range v.records {
		out = append(out, rec.VerificationRecord)
	}
	return out
}

// Counters returns the live admission counters
func (v *DeviceVerifier) Counters() *Counters {
	return &v.counters
}
