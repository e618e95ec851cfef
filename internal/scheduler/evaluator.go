package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/signage-server/signage-gateway-pro/internal/models"
)

// RuleSource is the external schedule-rule store
type RuleSource interface {
	GetRulesForDevice(ctx context.Context, deviceID uuid.UUID) ([]*models.ScheduleRule, error)
}

// Evaluator selects the active content rule for a device at an instant.
// It holds no mutable state of its own and is safe for concurrent use.
type Evaluator struct {
	source RuleSource
	cache  *RuleCache
}

// New creates an evaluator reading rules straight from the source
func New(source RuleSource) *Evaluator {
	return &Evaluator{source: source}
}

// NewWithCache creates an evaluator with a bounded-staleness rule cache
func NewWithCache(source RuleSource, cache *RuleCache) *Evaluator {
	return &Evaluator{source: source, cache: cache}
}

// ActiveRule returns the single highest-priority rule active for the
// device at the given instant, or nil when none is. "No active rule" is
// a valid outcome, not an error; rule-store failures degrade to it.
func (e *Evaluator) ActiveRule(ctx context.Context, deviceID uuid.UUID, now time.Time) *models.ScheduleRule {
	rules := e.fetchRules(ctx, deviceID)

	var best *models.ScheduleRule
	weekday := models.ISOWeekday(now)

	for _, rule := range rules {
		if now.Before(rule.StartDateTime) || now.After(rule.EndDateTime) {
			continue
		}

		if rule.IsRecurring {
			if len(rule.RecurringDays) == 0 {
				// 坏数据：周期规则却没配置星期，宽松处理为每天生效
				log.Warn().
					Str("rule_id", rule.ID.String()).
					Str("device_id", deviceID.String()).
					Msg("recurring rule without recurring days, treating as active every day")
			} else if !rule.MatchesWeekday(weekday) {
				continue
			}
		}

		if best == nil || ruleWins(rule, best) {
			best = rule
		}
	}

	return best
}

// ruleWins reports whether a beats b: higher priority first, then the
// earlier start, then rule ID so selection is deterministic for
// identical inputs.
func ruleWins(a, b *models.ScheduleRule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.StartDateTime.Equal(b.StartDateTime) {
		return a.StartDateTime.Before(b.StartDateTime)
	}
	return a.ID.String() < b.ID.String()
}

// fetchRules reads the device's rules through the cache when configured
func (e *Evaluator) fetchRules(ctx context.Context, deviceID uuid.UUID) []*models.ScheduleRule {
	if e.cache != nil {
		if rules, ok := e.cache.Get(ctx, deviceID); ok {
			return rules
		}
	}

	rules, err := e.source.GetRulesForDevice(ctx, deviceID)
	if err != nil {
		// 规则库故障时按无生效规则处理（fail empty）
		log.Warn().Err(err).Str("device_id", deviceID.String()).Msg("rule store lookup failed, treating as no active rule")
		return nil
	}

	if e.cache != nil {
		e.cache.Set(ctx, deviceID, rules)
	}

	return rules
}
