package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/signage-server/signage-gateway-pro/internal/models"
	"github.com/signage-server/signage-gateway-pro/internal/scheduler"
)

func newTestCache(t *testing.T) (*scheduler.RuleCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return scheduler.NewRuleCache(client, 10*time.Second), mr
}

func TestRuleCache_SetGet(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	deviceID := uuid.New()

	rules := []*models.ScheduleRule{
		newRule("11111111-1111-1111-1111-111111111111",
			time.Date(2026, time.August, 24, 8, 0, 0, 0, time.UTC),
			time.Date(2026, time.August, 24, 18, 0, 0, 0, time.UTC),
			models.PriorityHigh),
	}

	_, ok := cache.Get(ctx, deviceID)
	require.False(t, ok)

	cache.Set(ctx, deviceID, rules)

	got, ok := cache.Get(ctx, deviceID)
	require.True(t, ok)
	require.Len(t, got, 1)
	require.Equal(t, rules[0].ID, got[0].ID)
	require.Equal(t, rules[0].Priority, got[0].Priority)
	require.Equal(t, rules[0].Content.Kind, got[0].Content.Kind)
}

func TestRuleCache_EmptySetIsCached(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	deviceID := uuid.New()

	cache.Set(ctx, deviceID, nil)

	got, ok := cache.Get(ctx, deviceID)
	require.True(t, ok)
	require.Empty(t, got)
}

func TestRuleCache_Expiry(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	deviceID := uuid.New()

	cache.Set(ctx, deviceID, []*models.ScheduleRule{})
	_, ok := cache.Get(ctx, deviceID)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)

	_, ok = cache.Get(ctx, deviceID)
	require.False(t, ok)
}

func TestRuleCache_Invalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	deviceID := uuid.New()

	cache.Set(ctx, deviceID, []*models.ScheduleRule{})
	cache.Invalidate(ctx, deviceID)

	_, ok := cache.Get(ctx, deviceID)
	require.False(t, ok)
}

func TestRuleCache_CorruptEntryIsAMiss(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	deviceID := uuid.New()

	require.NoError(t, mr.Set("gateway:rules:"+deviceID.String(), "not json"))

	_, ok := cache.Get(ctx, deviceID)
	require.False(t, ok)
}

func TestEvaluator_ServesFromCacheWhileSourceDown(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	day := time.Date(2026, time.August, 24, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{rules: []*models.ScheduleRule{
		newRule("11111111-1111-1111-1111-111111111111", day, day.Add(24*time.Hour), models.PriorityMedium),
	}}
	e := scheduler.NewWithCache(src, cache)

	got := e.ActiveRule(ctx, testDeviceID, day.Add(time.Hour))
	require.NotNil(t, got)
	require.Equal(t, 1, src.calls)

	// 规则已缓存，源故障时仍可命中
	src.err = context.DeadlineExceeded
	got = e.ActiveRule(ctx, testDeviceID, day.Add(2*time.Hour))
	require.NotNil(t, got)
	require.Equal(t, 1, src.calls)
}
