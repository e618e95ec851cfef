package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/signage-server/signage-gateway-pro/internal/models"
	"github.com/signage-server/signage-gateway-pro/internal/scheduler"
)

type fakeSource struct {
	rules []*models.ScheduleRule
	err   error
	calls int
}

func (f *fakeSource) GetRulesForDevice(ctx context.Context, deviceID uuid.UUID) ([]*models.ScheduleRule, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.rules, nil
}

var testDeviceID = uuid.MustParse("7b0bd26b-2312-4bd2-b383-0a599846cc27")

func newRule(id string, start, end time.Time, priority models.RulePriority) *models.ScheduleRule {
	rule := &models.ScheduleRule{
		DeviceID:      testDeviceID,
		StartDateTime: start,
		EndDateTime:   end,
		Priority:      priority,
		Content: models.ContentReference{
			Kind: models.ContentFullScreen,
			ID:   uuid.New(),
		},
	}
	rule.ID = uuid.MustParse(id)
	return rule
}

func TestActiveRule_NoRules(t *testing.T) {
	e := scheduler.New(&fakeSource{})
	require.Nil(t, e.ActiveRule(context.Background(), testDeviceID, time.Now()))
}

func TestActiveRule_WindowBounds(t *testing.T) {
	start := time.Date(2026, time.August, 24, 8, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.August, 24, 18, 0, 0, 0, time.UTC)
	src := &fakeSource{rules: []*models.ScheduleRule{
		newRule("11111111-1111-1111-1111-111111111111", start, end, models.PriorityLow),
	}}
	e := scheduler.New(src)
	ctx := context.Background()

	require.Nil(t, e.ActiveRule(ctx, testDeviceID, start.Add(-time.Second)))
	require.NotNil(t, e.ActiveRule(ctx, testDeviceID, start))
	require.NotNil(t, e.ActiveRule(ctx, testDeviceID, end))
	require.Nil(t, e.ActiveRule(ctx, testDeviceID, end.Add(time.Second)))
}

func TestActiveRule_HigherPriorityWins(t *testing.T) {
	day := time.Date(2026, time.August, 24, 0, 0, 0, 0, time.UTC)
	low := newRule("11111111-1111-1111-1111-111111111111", day, day.Add(24*time.Hour), models.PriorityLow)
	high := newRule("22222222-2222-2222-2222-222222222222", day, day.Add(24*time.Hour), models.PriorityHigh)
	medium := newRule("33333333-3333-3333-3333-333333333333", day, day.Add(24*time.Hour), models.PriorityMedium)

	e := scheduler.New(&fakeSource{rules: []*models.ScheduleRule{low, high, medium}})

	got := e.ActiveRule(context.Background(), testDeviceID, day.Add(12*time.Hour))
	require.NotNil(t, got)
	require.Equal(t, high.ID, got.ID)
}

func TestActiveRule_EarlierStartBreaksPriorityTie(t *testing.T) {
	day := time.Date(2026, time.August, 24, 0, 0, 0, 0, time.UTC)
	late := newRule("11111111-1111-1111-1111-111111111111", day.Add(6*time.Hour), day.Add(24*time.Hour), models.PriorityMedium)
	early := newRule("22222222-2222-2222-2222-222222222222", day, day.Add(24*time.Hour), models.PriorityMedium)

	e := scheduler.New(&fakeSource{rules: []*models.ScheduleRule{late, early}})

	got := e.ActiveRule(context.Background(), testDeviceID, day.Add(12*time.Hour))
	require.NotNil(t, got)
	require.Equal(t, early.ID, got.ID)
}

func TestActiveRule_IDBreaksFullTie(t *testing.T) {
	day := time.Date(2026, time.August, 24, 0, 0, 0, 0, time.UTC)
	a := newRule("11111111-1111-1111-1111-111111111111", day, day.Add(24*time.Hour), models.PriorityMedium)
	b := newRule("22222222-2222-2222-2222-222222222222", day, day.Add(24*time.Hour), models.PriorityMedium)

	// 顺序无关，结果确定
	for _, rules := range [][]*models.ScheduleRule{{a, b}, {b, a}} {
		e := scheduler.New(&fakeSource{rules: rules})
		got := e.ActiveRule(context.Background(), testDeviceID, day.Add(time.Hour))
		require.NotNil(t, got)
		require.Equal(t, a.ID, got.ID)
	}
}

func TestActiveRule_RecurringWeekdays(t *testing.T) {
	start := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.August, 31, 23, 59, 59, 0, time.UTC)

	weekend := newRule("11111111-1111-1111-1111-111111111111", start, end, models.PriorityLow)
	weekend.IsRecurring = true
	weekend.RecurringDays = []int{6, 7}

	e := scheduler.New(&fakeSource{rules: []*models.ScheduleRule{weekend}})
	ctx := context.Background()

	saturday := time.Date(2026, time.August, 29, 10, 0, 0, 0, time.UTC)
	require.Equal(t, 6, models.ISOWeekday(saturday))
	require.NotNil(t, e.ActiveRule(ctx, testDeviceID, saturday))

	sunday := time.Date(2026, time.August, 30, 10, 0, 0, 0, time.UTC)
	require.Equal(t, 7, models.ISOWeekday(sunday))
	require.NotNil(t, e.ActiveRule(ctx, testDeviceID, sunday))

	wednesday := time.Date(2026, time.August, 26, 10, 0, 0, 0, time.UTC)
	require.Equal(t, 3, models.ISOWeekday(wednesday))
	require.Nil(t, e.ActiveRule(ctx, testDeviceID, wednesday))
}

func TestActiveRule_RecurringWithoutDaysActsDaily(t *testing.T) {
	start := time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.August, 31, 23, 59, 59, 0, time.UTC)

	rule := newRule("11111111-1111-1111-1111-111111111111", start, end, models.PriorityLow)
	rule.IsRecurring = true

	e := scheduler.New(&fakeSource{rules: []*models.ScheduleRule{rule}})

	wednesday := time.Date(2026, time.August, 26, 10, 0, 0, 0, time.UTC)
	require.NotNil(t, e.ActiveRule(context.Background(), testDeviceID, wednesday))
}

func TestActiveRule_SourceErrorYieldsNoRule(t *testing.T) {
	e := scheduler.New(&fakeSource{err: errors.New("db down")})
	require.Nil(t, e.ActiveRule(context.Background(), testDeviceID, time.Now()))
}
