package verifier_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/signage-server/signage-gateway-pro/internal/models"
	"github.com/signage-server/signage-gateway-pro/internal/verifier"
)

type fakeRegistry struct {
	approved map[string]bool
	err      error
	calls    int
}

func (f *fakeRegistry) IsApproved(ctx context.Context, imei string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.approved[imei], nil
}

func testConfig() verifier.Config {
	return verifier.Config{
		RateLimitPerMinute:    60,
		MaxUnapprovedAttempts: 3,
		BlacklistDuration:     30 * time.Minute,
	}
}

func TestAdmit_ApprovedDevice(t *testing.T) {
	reg := &fakeRegistry{approved: map[string]bool{"358276051111111": true}}
	v := verifier.New(testConfig(), reg)
	now := time.Now()

	d := v.Admit(context.Background(), "358276051111111", now)
	require.True(t, d.Accepted)
	require.Equal(t, verifier.ReasonApproved, d.Reason)
	require.Equal(t, models.StatusApproved, d.Record.Status)
	require.Equal(t, uint64(1), d.Record.ConnectionCount)
	require.Equal(t, now, d.Record.FirstSeenAt)
}

func TestAdmit_UnknownDeviceRejected(t *testing.T) {
	reg := &fakeRegistry{}
	v := verifier.New(testConfig(), reg)

	d := v.Admit(context.Background(), "358276052222222", time.Now())
	require.False(t, d.Accepted)
	require.Equal(t, verifier.ReasonUnapproved, d.Reason)
	require.Equal(t, 1, d.Record.UnapprovedAttempts)
}

func TestAdmit_BlacklistAfterRepeatedAttempts(t *testing.T) {
	reg := &fakeRegistry{}
	v := verifier.New(testConfig(), reg)
	ctx := context.Background()
	now := time.Now()
	imei := "358276053333333"

	// 未批准阈值内反复尝试
	for i := 1; i <= 3; i++ {
		d := v.Admit(ctx, imei, now.Add(time.Duration(i)*time.Second))
		require.False(t, d.Accepted)
		require.Equal(t, verifier.ReasonUnapproved, d.Reason)
		require.Equal(t, i, d.Record.UnapprovedAttempts)
	}

	// 超过阈值的一次触发拉黑
	d := v.Admit(ctx, imei, now.Add(4*time.Second))
	require.False(t, d.Accepted)
	require.Equal(t, verifier.ReasonBlacklisted, d.Reason)
	require.Equal(t, models.StatusBlacklisted, d.Record.Status)
	require.NotNil(t, d.Record.BlacklistedUntil)
	require.Equal(t, now.Add(4*time.Second).Add(30*time.Minute), *d.Record.BlacklistedUntil)

	// 拉黑期间拒绝且不再触碰注册表，也不累积尝试次数
	callsBefore := reg.calls
	d = v.Admit(ctx, imei, now.Add(5*time.Second))
	require.False(t, d.Accepted)
	require.Equal(t, verifier.ReasonBlacklisted, d.Reason)
	require.Equal(t, 4, d.Record.UnapprovedAttempts)
	require.Equal(t, callsBefore, reg.calls)
}

func TestAdmit_BlacklistExpiresLazily(t *testing.T) {
	reg := &fakeRegistry{}
	v := verifier.New(testConfig(), reg)
	ctx := context.Background()
	now := time.Now()
	imei := "358276054444444"

	for i := 0; i < 4; i++ {
		v.Admit(ctx, imei, now)
	}
	rec, ok := v.Record(imei)
	require.True(t, ok)
	require.Equal(t, models.StatusBlacklisted, rec.Status)

	// 拉黑到期后的下一次尝试重新按未批准计数
	d := v.Admit(ctx, imei, now.Add(31*time.Minute))
	require.False(t, d.Accepted)
	require.Equal(t, verifier.ReasonUnapproved, d.Reason)
	require.Equal(t, models.StatusUnapproved, d.Record.Status)
	require.Equal(t, 1, d.Record.UnapprovedAttempts)
	require.Nil(t, d.Record.BlacklistedUntil)
}

func TestAdmit_BlacklistExpiryAllowsApprovedDevice(t *testing.T) {
	reg := &fakeRegistry{approved: map[string]bool{}}
	v := verifier.New(testConfig(), reg)
	ctx := context.Background()
	now := time.Now()
	imei := "358276055555555"

	for i := 0; i < 4; i++ {
		v.Admit(ctx, imei, now)
	}

	// 运营侧批准后，拉黑到期即可上线
	reg.approved[imei] = true
	d := v.Admit(ctx, imei, now.Add(31*time.Minute))
	require.True(t, d.Accepted)
	require.Equal(t, models.StatusApproved, d.Record.Status)
	require.Zero(t, d.Record.UnapprovedAttempts)
}

func TestAdmit_RateLimitIndependentOfApproval(t *testing.T) {
	imei := "358276056666666"
	reg := &fakeRegistry{approved: map[string]bool{imei: true}}
	cfg := testConfig()
	cfg.RateLimitPerMinute = 5
	v := verifier.New(cfg, reg)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		d := v.Admit(ctx, imei, now.Add(time.Duration(i)*time.Second))
		require.True(t, d.Accepted)
	}

	// 同一分钟窗口内第六次被限流，但批准状态不受影响
	d := v.Admit(ctx, imei, now.Add(6*time.Second))
	require.False(t, d.Accepted)
	require.Equal(t, verifier.ReasonRateLimited, d.Reason)
	require.Equal(t, models.StatusApproved, d.Record.Status)

	// 限流不计入未批准阈值
	require.Zero(t, d.Record.UnapprovedAttempts)

	// 窗口翻转后恢复
	d = v.Admit(ctx, imei, now.Add(61*time.Second))
	require.True(t, d.Accepted)
}

func TestAdmit_RateLimitedUnapprovedKeepsAttempts(t *testing.T) {
	imei := "358276057777777"
	reg := &fakeRegistry{}
	cfg := testConfig()
	cfg.RateLimitPerMinute = 2
	cfg.MaxUnapprovedAttempts = 10
	v := verifier.New(cfg, reg)
	ctx := context.Background()
	now := time.Now()

	v.Admit(ctx, imei, now)
	v.Admit(ctx, imei, now.Add(time.Second))

	d := v.Admit(ctx, imei, now.Add(2*time.Second))
	require.Equal(t, verifier.ReasonRateLimited, d.Reason)
	require.Equal(t, models.StatusRateLimited, d.Record.Status)
	// 被限流的尝试没有走到注册表判定
	require.Equal(t, 2, d.Record.UnapprovedAttempts)
}

func TestAdmit_RegistryErrorFailsClosed(t *testing.T) {
	reg := &fakeRegistry{err: errors.New("connection refused")}
	v := verifier.New(testConfig(), reg)

	d := v.Admit(context.Background(), "358276058888888", time.Now())
	require.False(t, d.Accepted)
	require.Equal(t, verifier.ReasonUnapproved, d.Reason)
}

func TestCounters(t *testing.T) {
	imei := "358276059999999"
	reg := &fakeRegistry{approved: map[string]bool{imei: true}}
	v := verifier.New(testConfig(), reg)
	ctx := context.Background()
	now := time.Now()

	v.Admit(ctx, imei, now)
	v.Admit(ctx, "358276050000000", now)

	snap := v.Counters().Snapshot()
	require.Equal(t, uint64(1), snap.Accepted)
	require.Equal(t, uint64(1), snap.RejectedUnapproved)
	require.Zero(t, snap.RejectedBlacklisted)
	require.Zero(t, snap.RejectedRateLimited)
}

// gatedRegistry 对指定 IMEI 的查询阻塞到 release 关闭为止
type gatedRegistry struct {
	slowIMEI string
	entered  chan struct{}
	release  chan struct{}
	approved map[string]bool
}

func (g *gatedRegistry) IsApproved(ctx context.Context, imei string) (bool, error) {
	if imei == g.slowIMEI {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.approved[imei], nil
}

func TestAdmit_SlowRegistryLookupDoesNotBlockOtherDevices(t *testing.T) {
	slowIMEI := "358276051111111"
	reg := &gatedRegistry{
		slowIMEI: slowIMEI,
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
		approved: map[string]bool{slowIMEI: true},
	}
	v := verifier.New(testConfig(), reg)
	ctx := context.Background()
	now := time.Now()

	// 先把另一个设备打入黑名单，它的拒绝不需要任何注册表 IO
	blacklisted := "358276053333333"
	for i := 0; i < 4; i++ {
		v.Admit(ctx, blacklisted, now)
	}

	done := make(chan verifier.Decision, 1)
	go func() {
		done <- v.Admit(ctx, slowIMEI, now)
	}()
	<-reg.entered

	// 慢查询还挂着，其他设备的准入判定必须立即返回
	start := time.Now()
	d := v.Admit(ctx, blacklisted, now)
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.Equal(t, verifier.ReasonBlacklisted, d.Reason)

	start = time.Now()
	d = v.Admit(ctx, "358276055555555", now)
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.Equal(t, verifier.ReasonUnapproved, d.Reason)

	close(reg.release)
	d = <-done
	require.True(t, d.Accepted)
}
