package streak_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"minepool-gamification/services/badge"
	"minepool-gamification/services/ledger"
	"minepool-gamification/services/notify"
	"minepool-gamification/services/streak"
	"minepool-gamification/services/testutil"
	"minepool-gamification/services/trigger"
)

type fixture struct {
	db      *gorm.DB
	ledger  *ledger.Service
	badges  *badge.Service
	streaks *streak.Service
	rec     *notify.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.NewGamificationDB(t)
	node := testutil.NewSnowflakeNode(t)
	rec := &notify.Recorder{}

	badges := badge.NewService(badge.ServiceParams{DB: db})
	require.NoError(t, badges.Seed(context.Background()))

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node, Notifier: rec})
	triggers := trigger.NewService(trigger.ServiceParams{
		DB:       db,
		Node:     node,
		Notifier: rec,
		Badges:   badges,
		Ledger:   ledgerSvc,
	})
	streaks := streak.NewService(streak.ServiceParams{
		DB:       db,
		Node:     node,
		Notifier: rec,
		Ledger:   ledgerSvc,
		Triggers: triggers,
	})

	return &fixture{db: db, ledger: ledgerSvc, badges: badges, streaks: streaks, rec: rec}
}

// seedUser creates a projection row by granting some XP.
func (f *fixture) seedUser(t *testing.T, userID string) {
	t.Helper()
	_, err := f.ledger.GrantXP(context.Background(), userID, 10, ledger.SourceLesson, "seed")
	require.NoError(t, err)
}

func (f *fixture) setStreak(t *testing.T, userID string, current, longest int, lastWeek string) {
	t.Helper()
	err := f.db.Model(&ledger.UserProjection{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"current_streak":       current,
			"longest_streak":       longest,
			"last_active_week_key": lastWeek,
		}).Error
	require.NoError(t, err)
}

func TestRecordWeekActivityUpsert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC) // 2026-W12

	require.NoError(t, f.streaks.RecordWeekActivity(ctx, "user-1", at, 1, 5000))
	require.NoError(t, f.streaks.RecordWeekActivity(ctx, "user-1", at, 2, 80000))
	require.NoError(t, f.streaks.RecordWeekActivity(ctx, "user-1", at, 1, 300))

	var records []streak.WeekRecord
	require.NoError(t, f.db.Where("user_id = ?", "user-1").Find(&records).Error)
	require.Len(t, records, 1)

	record := records[0]
	require.Equal(t, "2026-W12", record.WeekKey)
	require.True(t, record.HasActivity)
	require.Equal(t, int64(4), record.ShareCount)
	require.Equal(t, float64(80000), record.BestDifficulty)
}

func TestRunWeeklyCheckExtendsStreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedUser(t, "user-1")

	now := time.Date(2026, 3, 23, 0, 5, 0, 0, time.UTC) // Monday of W13
	lastWeek := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)

	require.NoError(t, f.streaks.RecordWeekActivity(ctx, "user-1", lastWeek, 3, 100))

	processed, err := f.streaks.RunWeeklyCheck(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), processed)

	proj, err := f.ledger.Projection(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, proj.CurrentStreak)
	require.Equal(t, 1, proj.LongestStreak)
	require.Equal(t, "2026-W12", proj.LastActiveWeekKey)
	require.Equal(t, int64(10+streak.WeeklyXP), proj.TotalXP)

	require.Len(t, f.rec.Streaks, 1)
	require.Equal(t, "2026-W12", f.rec.Streaks[0].Event.WeekKey)
	require.False(t, f.rec.Streaks[0].Event.Broken)

	// the following week the streak continues
	thisWeek := time.Date(2026, 3, 25, 9, 0, 0, 0, time.UTC)
	require.NoError(t, f.streaks.RecordWeekActivity(ctx, "user-1", thisWeek, 1, 100))

	_, err = f.streaks.RunWeeklyCheck(ctx, now.AddDate(0, 0, 7))
	require.NoError(t, err)

	proj, err = f.ledger.Projection(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 2, proj.CurrentStreak)
	require.Equal(t, 2, proj.LongestStreak)
	require.Equal(t, "2026-W13", proj.LastActiveWeekKey)
}

func TestRunWeeklyCheckRerunIsSafe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedUser(t, "user-1")

	now := time.Date(2026, 3, 23, 0, 5, 0, 0, time.UTC)
	lastWeek := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.streaks.RecordWeekActivity(ctx, "user-1", lastWeek, 1, 100))

	for i := 0; i < 3; i++ {
		_, err := f.streaks.RunWeeklyCheck(ctx, now)
		require.NoError(t, err)
	}

	proj, err := f.ledger.Projection(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, proj.CurrentStreak)
	require.Equal(t, int64(10+streak.WeeklyXP), proj.TotalXP)

	// exactly one weekly grant in the ledger
	history, err := f.ledger.History(ctx, "user-1", 10, 0)
	require.NoError(t, err)
	var weekly int
	for _, entry := range history {
		if entry.Source == ledger.SourceStreak {
			weekly++
			require.Equal(t, "2026-W12", entry.Reference)
		}
	}
	require.Equal(t, 1, weekly)
}

func TestRunWeeklyCheckBreaksStreak(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedUser(t, "user-1")
	now := time.Date(2026, 3, 23, 0, 5, 0, 0, time.UTC)
	f.setStreak(t, "user-1", 5, 5, "2026-W11")

	// no activity recorded for 2026-W12
	_, err := f.streaks.RunWeeklyCheck(ctx, now)
	require.NoError(t, err)

	proj, err := f.ledger.Projection(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 0, proj.CurrentStreak)
	require.Equal(t, 5, proj.LongestStreak)
	require.Equal(t, int64(10), proj.TotalXP)

	require.Len(t, f.rec.Streaks, 1)
	require.True(t, f.rec.Streaks[0].Event.Broken)
	require.Equal(t, 5, f.rec.Streaks[0].Event.LongestStreak)

	// a second run must not announce the break again
	_, err = f.streaks.RunWeeklyCheck(ctx, now)
	require.NoError(t, err)
	require.Len(t, f.rec.Streaks, 1)
}

func TestRunWeeklyCheckGapResetsToOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedUser(t, "user-1")
	now := time.Date(2026, 3, 23, 0, 5, 0, 0, time.UTC)

	// last activity two weeks back; this week's settlement starts over at 1
	f.setStreak(t, "user-1", 3, 3, "2026-W10")
	lastWeek := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.streaks.RecordWeekActivity(ctx, "user-1", lastWeek, 1, 100))

	_, err := f.streaks.RunWeeklyCheck(ctx, now)
	require.NoError(t, err)

	proj, err := f.ledger.Projection(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 1, proj.CurrentStreak)
	require.Equal(t, 3, proj.LongestStreak)
}

func TestRunWeeklyCheckAwardsStreakBadge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedUser(t, "user-1")
	now := time.Date(2026, 3, 23, 0, 5, 0, 0, time.UTC)

	f.setStreak(t, "user-1", 3, 3, "2026-W11")
	lastWeek := time.Date(2026, 3, 18, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.streaks.RecordWeekActivity(ctx, "user-1", lastWeek, 1, 100))

	_, err := f.streaks.RunWeeklyCheck(ctx, now)
	require.NoError(t, err)

	proj, err := f.ledger.Projection(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 4, proj.CurrentStreak)

	held, err := f.badges.Held(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, held["streak_4"])

	// seed 10 + weekly 25 + badge 100
	total, err := f.ledger.LedgerTotal(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(135), total)
}

func TestCalendar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, f.streaks.RecordWeekActivity(ctx, "user-1", now, 2, 100))
	require.NoError(t, f.streaks.RecordWeekActivity(ctx, "user-1", now.AddDate(0, 0, -14), 1, 50))

	calendar, err := f.streaks.Calendar(ctx, "user-1", 4)
	require.NoError(t, err)
	require.Len(t, calendar, 4)

	keys := streak.WeekKeysBack(now, 4)
	for i, record := range calendar {
		require.Equal(t, keys[i], record.WeekKey)
	}

	require.False(t, calendar[0].HasActivity)
	require.True(t, calendar[1].HasActivity)
	require.False(t, calendar[2].HasActivity)
	require.True(t, calendar[3].HasActivity)
	require.Equal(t, int64(2), calendar[3].ShareCount)
}
