package trigger_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"minepool-gamification/pkg/config"
	"minepool-gamification/services/badge"
	"minepool-gamification/services/ledger"
	"minepool-gamification/services/notify"
	"minepool-gamification/services/testutil"
	"minepool-gamification/services/trigger"
)

type fixture struct {
	db       *gorm.DB
	badges   *badge.Service
	ledger   *ledger.Service
	triggers *trigger.Service
	rec      *notify.Recorder
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

	return &fixture{db: db, badges: badges, ledger: ledgerSvc, triggers: triggers, rec: rec}
}

func TestEvaluateShareAwardsEveryCrossedThreshold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// a first accepted share at 2e9 difficulty crosses three thresholds at once
	awarded, err := f.triggers.EvaluateShare(ctx, "user-1", 1, 2e9)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"first_share", "diff_1e6", "diff_1e9"}, awarded)

	held, err := f.badges.Held(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, held["first_share"])
	require.True(t, held["diff_1e6"])
	require.True(t, held["diff_1e9"])
	require.False(t, held["diff_1e12"])
	require.False(t, held["shares_100"])

	// 50 + 150 + 400 in badge rewards
	total, err := f.ledger.LedgerTotal(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(600), total)

	proj, err := f.ledger.Projection(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), proj.BadgesEarned)

	require.Len(t, f.rec.Badges, 3)
	require.Len(t, f.rec.XP, 3)
}

func TestEvaluateShareIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.triggers.EvaluateShare(ctx, "user-1", 150, 10)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"first_share", "shares_100"}, first)

	// the same observation replayed must award nothing more
	for i := 0; i < 3; i++ {
		again, err := f.triggers.EvaluateShare(ctx, "user-1", 150, 10)
		require.NoError(t, err)
		require.Empty(t, again)
	}

	awards, err := f.badges.Awards(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, awards, 2)

	history, err := f.ledger.History(ctx, "user-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
}

func TestEvaluateBlockFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	awarded, err := f.triggers.EvaluateBlockFound(ctx, "user-1", 850123, "000000000000000000021c0c")
	require.NoError(t, err)
	require.Equal(t, []string{"block_found"}, awarded)

	total, err := f.ledger.LedgerTotal(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(2500), total)

	// 2500 XP lands in the level 4 band, so the grant announces a level up
	require.Len(t, f.rec.Levels, 1)
	require.Equal(t, 4, f.rec.Levels[0].Event.NewLevel)

	// height and hash travel with the award
	awards, err := f.badges.Awards(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, awards, 1)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(awards[0].Metadata, &meta))
	require.Equal(t, float64(850123), meta["height"])
	require.Equal(t, "000000000000000000021c0c", meta["hash"])
}

func TestEvaluateStreakThresholds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	awarded, err := f.triggers.EvaluateStreak(ctx, "user-1", 12)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"streak_4", "streak_12"}, awarded)

	awarded, err = f.triggers.EvaluateStreak(ctx, "user-1", 52)
	require.NoError(t, err)
	require.Equal(t, []string{"streak_52"}, awarded)
}

func TestEvaluateNamedEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	awarded, err := f.triggers.EvaluateNamedEvent(ctx, "user-1", badge.EventEducationTrackComplete, map[string]any{"track_id": "btc-101"})
	require.NoError(t, err)
	require.Equal(t, []string{"track_scholar"}, awarded)

	// replay is a no-op
	awarded, err = f.triggers.EvaluateNamedEvent(ctx, "user-1", badge.EventEducationTrackComplete, map[string]any{"track_id": "btc-101"})
	require.NoError(t, err)
	require.Empty(t, awarded)
}

func TestEvaluateNamedEventUnknownKeyIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	awarded, err := f.triggers.EvaluateNamedEvent(ctx, "user-1", "made_up_key", nil)
	require.NoError(t, err)
	require.Empty(t, awarded)

	total, err := f.ledger.LedgerTotal(ctx, "user-1")
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestInactiveBadgeNeverAwarded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.db.Model(&badge.Definition{}).
		Where("slug = ?", "block_found").
		Update("active", false).Error
	require.NoError(t, err)

	awarded, err := f.triggers.EvaluateBlockFound(ctx, "user-1", 850123, "000000000000000000021c0c")
	require.NoError(t, err)
	require.Empty(t, awarded)
}

func TestEarnedCountIncrements(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, user := range []string{"user-1", "user-2"} {
		_, err := f.triggers.EvaluateBlockFound(ctx, user, 850123, "000000000000000000021c0c")
		require.NoError(t, err)
	}

	def, err := f.badges.BySlug(ctx, "block_found")
	require.NoError(t, err)
	require.Equal(t, int64(2), def.EarnedCount)
}

type failingEnqueuer struct{}

func (failingEnqueuer) Enqueue(context.Context, *asynq.Task, ...asynq.Option) (*asynq.TaskInfo, error) {
	return nil, errors.New("queue unavailable")
}

func TestNotifierFailureDoesNotFailAward(t *testing.T) {
	db := testutil.NewGamificationDB(t)
	node := testutil.NewSnowflakeNode(t)

	cfg := &config.Config{}
	cfg.Notify.Timeout = time.Second
	notifier := notify.NewAsynqNotifier(notify.AsynqParams{Enqueuer: failingEnqueuer{}, Config: cfg})

	badges := badge.NewService(badge.ServiceParams{DB: db})
	require.NoError(t, badges.Seed(context.Background()))

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node, Notifier: notifier})
	triggers := trigger.NewService(trigger.ServiceParams{
		DB:       db,
		Node:     node,
		Notifier: notifier,
		Badges:   badges,
		Ledger:   ledgerSvc,
	})

	awarded, err := triggers.EvaluateBlockFound(context.Background(), "user-1", 850123, "000000000000000000021c0c")
	require.NoError(t, err)
	require.Equal(t, []string{"block_found"}, awarded)

	total, err := ledgerSvc.LedgerTotal(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, int64(2500), total)
}
