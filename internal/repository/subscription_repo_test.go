package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/qs3c/billing_go_server/internal/model"
	"github.com/qs3c/billing_go_server/internal/testutil"
)

func TestSubscriptionRepository_FindByUserAndName(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSubscriptionRepository(db)
	user := testutil.TestUser(t, db)
	now := time.Now()

	testutil.TestSubscription(t, db, user.ID, testutil.WithCreatedAt(now.Add(-48*time.Hour)))
	newest := testutil.TestSubscription(t, db, user.ID, testutil.WithCreatedAt(now))
	testutil.TestSubscription(t, db, user.ID, testutil.WithSubName("swimming"))

	found, err := repo.FindByUserAndName(user.ID, "main")
	require.NoError(t, err)
	assert.Equal(t, newest.ID, found.ID)

	_, err = repo.FindByUserAndName(user.ID, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSubscriptionRepository_GetByUserAndStripeID(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSubscriptionRepository(db)
	user := testutil.TestUser(t, db)
	other := testutil.TestUser(t, db)
	sub := testutil.TestSubscription(t, db, user.ID, testutil.WithSubStripeID("sub_1"))

	found, err := repo.GetByUserAndStripeID(user.ID, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, found.ID)

	// 属于别人的订阅 id 不能匹配
	_, err = repo.GetByUserAndStripeID(other.ID, "sub_1")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	found, err = repo.GetByStripeID("sub_1")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, found.ID)
}

func TestSubscriptionRepository_UpdateFields(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSubscriptionRepository(db)
	user := testutil.TestUser(t, db)
	sub := testutil.TestSubscription(t, db, user.ID)

	require.NoError(t, repo.UpdateFields(sub.ID, map[string]interface{}{"quantity": 3}))

	updated, err := repo.GetByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, updated.Quantity)
	assert.Equal(t, sub.StripePlan, updated.StripePlan)
}

// 每个 scope 的 SQL 结果必须和内存谓词一致
func TestSubscriptionScopes_MatchPredicates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	assertScopesMatchPredicates(t, db)
}

// MySQL 下日期比较的行为也要一致，需要 TEST_DATABASE_DSN
func TestSubscriptionScopes_MatchPredicatesMySQL(t *testing.T) {
	db := testutil.SetupTestDBWithMySQL(t)
	defer testutil.CleanupTestDB(t, db)
	defer testutil.TruncateTables(t, db)

	assertScopesMatchPredicates(t, db)
}

func assertScopesMatchPredicates(t *testing.T, db *gorm.DB) {
	t.Helper()

	repo := NewSubscriptionRepository(db)
	user := testutil.TestUser(t, db)
	now := time.Now().UTC().Truncate(time.Second)

	testutil.TestSubscription(t, db, user.ID, testutil.WithSubName("recurring"))
	testutil.TestSubscription(t, db, user.ID, testutil.WithSubName("trial"),
		testutil.WithTrialEndsAt(now.Add(24*time.Hour)))
	testutil.TestSubscription(t, db, user.ID, testutil.WithSubName("trial_expired"),
		testutil.WithTrialEndsAt(now.Add(-24*time.Hour)))
	testutil.TestSubscription(t, db, user.ID, testutil.WithSubName("grace"),
		testutil.WithEndsAt(now.Add(5*24*time.Hour)))
	testutil.TestSubscription(t, db, user.ID, testutil.WithSubName("ended"),
		testutil.WithEndsAt(now.Add(-5*24*time.Hour)))
	testutil.TestSubscription(t, db, user.ID, testutil.WithSubName("trial_grace"),
		testutil.WithTrialEndsAt(now.Add(7*24*time.Hour)), testutil.WithEndsAt(now.Add(7*24*time.Hour)))
	testutil.TestSubscription(t, db, user.ID, testutil.WithSubName("trial_ended"),
		testutil.WithTrialEndsAt(now.Add(24*time.Hour)), testutil.WithEndsAt(now.Add(-time.Hour)))

	all, err := repo.ListByUser(user.ID)
	require.NoError(t, err)
	require.Len(t, all, 7)

	tests := []struct {
		filter string
		pred   func(*model.Subscription) bool
	}{
		{"active", func(s *model.Subscription) bool { return s.ActiveAt(now) }},
		{"on_trial", func(s *model.Subscription) bool { return s.OnTrialAt(now) }},
		{"not_on_trial", func(s *model.Subscription) bool { return !s.OnTrialAt(now) }},
		{"recurring", func(s *model.Subscription) bool { return s.RecurringAt(now) }},
		{"cancelled", func(s *model.Subscription) bool { return s.Cancelled() }},
		{"not_cancelled", func(s *model.Subscription) bool { return !s.Cancelled() }},
		{"on_grace_period", func(s *model.Subscription) bool { return s.OnGracePeriodAt(now) }},
		{"not_on_grace_period", func(s *model.Subscription) bool { return !s.OnGracePeriodAt(now) }},
		{"ended", func(s *model.Subscription) bool { return s.EndedAt(now) }},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			scope, err := ScopeByName(tt.filter, now)
			require.NoError(t, err)

			got, err := repo.ListByUser(user.ID, scope)
			require.NoError(t, err)

			var want []string
			for _, s := range all {
				if tt.pred(s) {
					want = append(want, s.Name)
				}
			}
			assert.ElementsMatch(t, want, names(got))

			exists, err := repo.Exists(user.ID, scope)
			require.NoError(t, err)
			assert.Equal(t, len(want) > 0, exists)
		})
	}
}

func TestScopeByName_Unknown(t *testing.T) {
	_, err := ScopeByName("paused", time.Now())
	assert.ErrorIs(t, err, ErrUnknownScope)
}

func TestSubscriptionRepository_ListEndedBetween(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSubscriptionRepository(db)
	user := testutil.TestUser(t, db)
	now := time.Now().UTC().Truncate(time.Second)

	written := testutil.WithUpdatedAt(now.Add(-3 * time.Hour))

	testutil.TestSubscription(t, db, user.ID, testutil.WithSubName("old"), testutil.WithEndsAt(now.Add(-2*time.Hour)), written)
	testutil.TestSubscription(t, db, user.ID, testutil.WithSubName("edge"), testutil.WithEndsAt(now), written)
	testutil.TestSubscription(t, db, user.ID, testutil.WithSubName("recent"), testutil.WithEndsAt(now.Add(-10*time.Minute)), written)
	testutil.TestSubscription(t, db, user.ID, testutil.WithSubName("future"), testutil.WithEndsAt(now.Add(time.Hour)), written)
	testutil.TestSubscription(t, db, user.ID, testutil.WithSubName("open"), written)

	subs, err := repo.ListEndedBetween(now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"recent", "edge"}, names(subs))
}

func TestSubscriptionRepository_ListEndedBetween_LateWrite(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewSubscriptionRepository(db)
	user := testutil.TestUser(t, db)
	now := time.Now().UTC().Truncate(time.Second)

	// 结束时间早于窗口，但在窗口内才写入
	testutil.TestSubscription(t, db, user.ID, testutil.WithSubName("late"),
		testutil.WithEndsAt(now.Add(-3*time.Hour)), testutil.WithUpdatedAt(now.Add(-5*time.Minute)))
	// 窗口内写入，但结束时间还没到
	testutil.TestSubscription(t, db, user.ID, testutil.WithSubName("grace"),
		testutil.WithEndsAt(now.Add(24*time.Hour)), testutil.WithUpdatedAt(now.Add(-5*time.Minute)))
	// 早已写入并结束，上一轮已经处理过
	testutil.TestSubscription(t, db, user.ID, testutil.WithSubName("swept"),
		testutil.WithEndsAt(now.Add(-3*time.Hour)), testutil.WithUpdatedAt(now.Add(-3*time.Hour)))
	// 窗口之后才写入的留给下一轮
	testutil.TestSubscription(t, db, user.ID, testutil.WithSubName("next"),
		testutil.WithEndsAt(now.Add(-3*time.Hour)), testutil.WithUpdatedAt(now.Add(time.Minute)))

	subs, err := repo.ListEndedBetween(now.Add(-time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, names(subs))
}

func names(subs []*model.Subscription) []string {
	var result []string
	for _, s := range subs {
		result = append(result, s.Name)
	}
	return result
}
