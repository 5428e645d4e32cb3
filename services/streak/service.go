// Package streak tracks weekly mining activity and maintains consecutive-week
// streaks. Activity is recorded continuously; streak state only advances in
// the weekly batch, which evaluates the ISO week that just closed.
package streak

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"minepool-gamification/pkg/db/option"
	"minepool-gamification/pkg/errutil"
	"minepool-gamification/pkg/repository"
	"minepool-gamification/services/ledger"
	"minepool-gamification/services/notify"
	"minepool-gamification/services/trigger"
)

// WeeklyXP is the reward for each completed active week.
const WeeklyXP = 25

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	notifier notify.Notifier

	ledger   *ledger.Service
	triggers *trigger.Service
	weeks    repository.Repository[WeekRecord]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Notifier notify.Notifier
	Ledger   *ledger.Service
	Triggers *trigger.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		notifier: p.Notifier,
		ledger:   p.Ledger,
		triggers: p.Triggers,
		weeks:    repository.ProvideStore[WeekRecord](p.DB),
	}
}

// RecordWeekActivity marks the user active in the week containing at and
// folds the observation into the week's counters. Safe under concurrent
// writers: the row is upserted on (user_id, week_key) and best_difficulty
// only ever ratchets upward.
func (s *Service) RecordWeekActivity(ctx context.Context, userID string, at time.Time, shares int64, difficulty float64) error {
	if userID == "" {
		return errutil.BadRequest("user id is required", nil)
	}

	now := time.Now().UTC()
	record := &WeekRecord{
		ID:             s.node.Generate().String(),
		UserID:         userID,
		WeekKey:        WeekKeyAt(at),
		HasActivity:    true,
		ShareCount:     shares,
		BestDifficulty: difficulty,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "week_key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"has_activity": true,
			"share_count":  gorm.Expr("streak_week_records.share_count + ?", shares),
			"best_difficulty": gorm.Expr(
				"CASE WHEN excluded.best_difficulty > streak_week_records.best_difficulty THEN excluded.best_difficulty ELSE streak_week_records.best_difficulty END",
			),
			"updated_at": now,
		}),
	}).Create(record).Error
}

// RunWeeklyCheck settles streaks for the ISO week preceding now: active users
// get their streak extended and the weekly XP granted, inactive users with a
// running streak get it broken. The weekly grant's ledger reference is the
// week key, which doubles as the re-run guard; replaying the batch for an
// already-settled week changes nothing.
func (s *Service) RunWeeklyCheck(ctx context.Context, now time.Time) (int64, error) {
	weekKey := PreviousWeekKey(now)
	weekBefore := WeekKeyAt(now.UTC().AddDate(0, 0, -14))

	const pageSize = 500
	var processed atomic.Int64

	for offset := 0; ; offset += pageSize {
		page, err := s.ledger.ListProjections(ctx, pageSize, offset)
		if err != nil {
			return processed.Load(), err
		}
		if len(page) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(10)

		for _, proj := range page {
			proj := proj
			g.Go(func() error {
				if err := s.settleUser(gctx, proj, weekKey, weekBefore); err != nil {
					zap.L().Error("weekly streak settlement failed",
						zap.String("user_id", proj.UserID),
						zap.String("week_key", weekKey),
						zap.Error(err),
					)
					return nil
				}
				processed.Add(1)
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return processed.Load(), err
		}
	}

	zap.L().Info("weekly streak check complete",
		zap.String("week_key", weekKey),
		zap.Int64("processed", processed.Load()),
	)
	return processed.Load(), nil
}

func (s *Service) settleUser(ctx context.Context, proj *ledger.UserProjection, weekKey, weekBefore string) error {
	var (
		granted   *ledger.GrantResult
		newStreak int
		broken    bool
		longest   = proj.LongestStreak
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		done, err := s.ledger.HasGrantTx(ctx, tx, proj.UserID, ledger.SourceStreak, weekKey)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		record, err := s.weeks.WithTrx(tx).FindOne(ctx, &WeekRecord{UserID: proj.UserID, WeekKey: weekKey})
		if err != nil {
			return err
		}
		active := record != nil && record.HasActivity

		if !active {
			if proj.CurrentStreak == 0 {
				return nil
			}
			broken = true
			newStreak = 0
			return tx.Model(&ledger.UserProjection{}).
				Where("user_id = ?", proj.UserID).
				Updates(map[string]any{
					"current_streak": 0,
					"updated_at":     time.Now().UTC(),
				}).Error
		}

		newStreak = 1
		if proj.LastActiveWeekKey == weekBefore {
			newStreak = proj.CurrentStreak + 1
		}
		if newStreak > longest {
			longest = newStreak
		}

		granted, err = s.ledger.GrantXPTx(ctx, tx, proj.UserID, WeeklyXP, ledger.SourceStreak, weekKey)
		if err != nil {
			return err
		}

		return tx.Model(&ledger.UserProjection{}).
			Where("user_id = ?", proj.UserID).
			Updates(map[string]any{
				"current_streak":       newStreak,
				"longest_streak":       longest,
				"last_active_week_key": weekKey,
				"updated_at":           time.Now().UTC(),
			}).Error
	})
	if err != nil {
		return err
	}

	if granted != nil {
		s.ledger.EmitGrant(ctx, proj.UserID, WeeklyXP, ledger.SourceStreak, granted)
		if _, err := s.triggers.EvaluateStreak(ctx, proj.UserID, newStreak); err != nil {
			zap.L().Warn("streak badge evaluation failed",
				zap.String("user_id", proj.UserID),
				zap.Error(err),
			)
		}
	}

	if granted != nil || broken {
		s.notifier.StreakUpdate(ctx, proj.UserID, notify.StreakUpdateEvent{
			CurrentStreak: newStreak,
			LongestStreak: longest,
			WeekKey:       weekKey,
			Broken:        broken,
		})
	}
	return nil
}

// Calendar returns the user's activity for the last n weeks (current week
// included), oldest first. Weeks with no record come back with HasActivity
// false so callers always receive exactly n entries.
func (s *Service) Calendar(ctx context.Context, userID string, n int) ([]*WeekRecord, error) {
	if n <= 0 {
		return nil, errutil.BadRequest("weeks must be positive", nil)
	}

	keys := WeekKeysBack(time.Now(), n)

	records, err := s.weeks.Find(ctx, &WeekRecord{UserID: userID},
		option.ApplyOperator(option.Condition{Field: "week_key", Operator: option.GTE, Value: keys[0]}),
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "week_key",
			OrderBy: "asc",
			Allow:   map[string]bool{"week_key": true},
		}),
	)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*WeekRecord, len(records))
	for _, r := range records {
		byKey[r.WeekKey] = r
	}

	out := make([]*WeekRecord, 0, n)
	for _, key := range keys {
		if r, ok := byKey[key]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, &WeekRecord{UserID: userID, WeekKey: key})
	}
	return out, nil
}
