package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/signage-server/signage-gateway-pro/internal/models"
)

// RuleCache is a short-TTL Redis cache in front of the rule store.
// Rules change at human speed; a few seconds of staleness is acceptable
// and keeps per-frame evaluations off the database. All failures are
// soft: a broken cache degrades to direct store reads.
type RuleCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRuleCache creates a rule cache with the given staleness bound
func NewRuleCache(client *redis.Client, ttl time.Duration) *RuleCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RuleCache{client: client, ttl: ttl}
}

func ruleKey(deviceID uuid.UUID) string {
	return fmt.Sprintf("gateway:rules:%s", deviceID)
}

// Get returns the cached rules for a device, or false on miss or error
func (c *RuleCache) Get(ctx context.Context, deviceID uuid.UUID) ([]*models.ScheduleRule, bool) {
	data, err := c.client.Get(ctx, ruleKey(deviceID)).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Str("device_id", deviceID.String()).Msg("rule cache read failed")
		return nil, false
	}

	var rules []*models.ScheduleRule
	if err := json.Unmarshal([]byte(data), &rules); err != nil {
		log.Warn().Err(err).Str("device_id", deviceID.String()).Msg("rule cache entry corrupt, ignoring")
		return nil, false
	}
	return rules, true
}

// Set stores the rules for a device with the configured TTL
func (c *RuleCache) Set(ctx context.Context, deviceID uuid.UUID, rules []*models.ScheduleRule) {
	data, err := json.Marshal(rules)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, ruleKey(deviceID), string(data), c.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("device_id", deviceID.String()).Msg("rule cache write failed")
	}
}

// Invalidate drops the cached rules for a device, used after rule writes
func (c *RuleCache) Invalidate(ctx context.Context, deviceID uuid.UUID) {
	if err := c.client.Del(ctx, ruleKey(deviceID)).Err(); err != nil {
		log.Warn().Err(err).Str("device_id", deviceID.String()).Msg("rule cache invalidation failed")
	}
}
