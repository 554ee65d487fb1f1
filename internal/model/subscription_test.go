package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func ptrTime(t time.Time) *time.Time {
	return &t
}

func TestSubscription_NoEndDate(t *testing.T) {
	tests := []struct {
		name        string
		trialEndsAt *time.Time
		wantTrial   bool
	}{
		{name: "no trial", trialEndsAt: nil, wantTrial: false},
		{name: "trial in future", trialEndsAt: ptrTime(testNow.Add(24 * time.Hour)), wantTrial: true},
		{name: "trial expired", trialEndsAt: ptrTime(testNow.Add(-24 * time.Hour)), wantTrial: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &Subscription{TrialEndsAt: tt.trialEndsAt}

			assert.True(t, sub.ActiveAt(testNow))
			assert.False(t, sub.Cancelled())
			assert.False(t, sub.OnGracePeriodAt(testNow))
			assert.False(t, sub.EndedAt(testNow))
			assert.Equal(t, tt.wantTrial, sub.OnTrialAt(testNow))
			assert.Equal(t, !tt.wantTrial, sub.RecurringAt(testNow))
		})
	}
}

func TestSubscription_EndsInFuture(t *testing.T) {
	sub := &Subscription{EndsAt: ptrTime(testNow.Add(5 * 24 * time.Hour))}

	assert.True(t, sub.Cancelled())
	assert.True(t, sub.OnGracePeriodAt(testNow))
	assert.True(t, sub.ActiveAt(testNow))
	assert.False(t, sub.RecurringAt(testNow))
	assert.False(t, sub.EndedAt(testNow))
}

func TestSubscription_EndsInPast(t *testing.T) {
	sub := &Subscription{EndsAt: ptrTime(testNow.Add(-5 * 24 * time.Hour))}

	assert.False(t, sub.ActiveAt(testNow))
	assert.True(t, sub.Cancelled())
	assert.True(t, sub.EndedAt(testNow))
	assert.False(t, sub.OnGracePeriodAt(testNow))
	assert.False(t, sub.RecurringAt(testNow))
}

func TestSubscription_EndsExactlyNow(t *testing.T) {
	sub := &Subscription{EndsAt: ptrTime(testNow)}

	assert.True(t, sub.EndedAt(testNow))
	assert.False(t, sub.OnGracePeriodAt(testNow))
	assert.False(t, sub.ActiveAt(testNow))
}

func TestSubscription_TrialWinsOverEnded(t *testing.T) {
	// 取消后结束时间已过，但试用期还没到期
	sub := &Subscription{
		TrialEndsAt: ptrTime(testNow.Add(24 * time.Hour)),
		EndsAt:      ptrTime(testNow.Add(-time.Hour)),
	}

	assert.True(t, sub.ActiveAt(testNow))
	assert.True(t, sub.OnTrialAt(testNow))
	assert.True(t, sub.EndedAt(testNow))
	assert.False(t, sub.RecurringAt(testNow))
}

func TestSubscription_TrialAndGracePeriodTogether(t *testing.T) {
	sub := &Subscription{
		TrialEndsAt: ptrTime(testNow.Add(7 * 24 * time.Hour)),
		EndsAt:      ptrTime(testNow.Add(7 * 24 * time.Hour)),
	}

	assert.True(t, sub.ActiveAt(testNow))
	assert.True(t, sub.OnTrialAt(testNow))
	assert.True(t, sub.OnGracePeriodAt(testNow))
	assert.True(t, sub.Cancelled())
	assert.False(t, sub.RecurringAt(testNow))
}

func TestSubscription_StatusAt(t *testing.T) {
	sub := &Subscription{TrialEndsAt: ptrTime(testNow.Add(time.Hour))}

	status := sub.StatusAt(testNow)
	assert.Equal(t, Status{Active: true, OnTrial: true}, status)
}

func TestSubscription_NowVariants(t *testing.T) {
	sub := &Subscription{}

	assert.True(t, sub.Active())
	assert.True(t, sub.Recurring())
	assert.False(t, sub.OnTrial())
	assert.False(t, sub.OnGracePeriod())
	assert.False(t, sub.Ended())
}

func TestFilterSubscriptions(t *testing.T) {
	subs := []Subscription{
		{Name: "recurring"},
		{Name: "grace", EndsAt: ptrTime(testNow.Add(time.Hour))},
		{Name: "ended", EndsAt: ptrTime(testNow.Add(-time.Hour))},
	}

	active := FilterSubscriptions(subs, func(s *Subscription) bool { return s.ActiveAt(testNow) })
	assert.Len(t, active, 2)

	ended := FilterSubscriptions(subs, func(s *Subscription) bool { return s.EndedAt(testNow) })
	assert.Len(t, ended, 1)
	assert.Equal(t, "ended", ended[0].Name)

	assert.Empty(t, FilterSubscriptions(nil, func(*Subscription) bool { return true }))
}
