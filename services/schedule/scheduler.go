// Package schedule drives the periodic jobs: the weekly streak settlement
// and the projection reconciliation sweep.
package schedule

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"minepool-gamification/pkg/config"
	"minepool-gamification/services/ledger"
	"minepool-gamification/services/streak"
)

type Scheduler struct {
	streaks *streak.Service
	ledger  *ledger.Service
	rdb     *redis.Client

	weeklyOffset   time.Duration
	reconcileEvery time.Duration

	cancel context.CancelFunc
}

type SchedulerParams struct {
	fx.In
	Config  *config.Config
	Redis   *redis.Client
	Streaks *streak.Service
	Ledger  *ledger.Service
}

func NewScheduler(p SchedulerParams) *Scheduler {
	return &Scheduler{
		streaks:        p.Streaks,
		ledger:         p.Ledger,
		rdb:            p.Redis,
		weeklyOffset:   p.Config.Scheduler.WeeklyOffset,
		reconcileEvery: p.Config.Scheduler.ReconcileEvery,
	}
}

func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			go s.runWeekly(ctx)
			go s.runReconcile(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if s.cancel != nil {
				s.cancel()
			}
			return nil
		},
	})
}

// runWeekly fires shortly after each ISO week closes, Monday 00:00 UTC plus
// a small offset so late-arriving share events for the old week settle first.
func (s *Scheduler) runWeekly(ctx context.Context) {
	zap.L().Info("[Scheduler] started weekly streak scheduler",
		zap.Duration("offset", s.weeklyOffset),
	)

	for {
		now := time.Now().UTC()
		next := mondayOfWeek(now).Add(s.weeklyOffset)
		if !next.After(now) {
			next = next.AddDate(0, 0, 7)
		}

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next weekly run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)
		select {
		case <-time.After(sleepDuration):
			s.runWeeklyCheck(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] weekly scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) runWeeklyCheck(ctx context.Context) {
	start := time.Now()

	// advisory lock so only one worker replica runs the batch; the batch
	// itself is idempotent either way
	lockKey := "gamification:weekly_check:" + streak.PreviousWeekKey(start)
	acquired, err := s.rdb.SetNX(ctx, lockKey, "1", time.Hour).Result()
	if err != nil {
		zap.L().Warn("[Scheduler] weekly lock unavailable, running anyway", zap.Error(err))
	} else if !acquired {
		zap.L().Info("[Scheduler] weekly streak check already claimed by another worker",
			zap.String("lock_key", lockKey),
		)
		return
	}

	zap.L().Info("[Scheduler] Running weekly streak check")

	processed, err := s.streaks.RunWeeklyCheck(ctx, time.Now())
	if err != nil {
		zap.L().Error("[Scheduler] weekly streak check failed", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] Finished weekly streak check",
		zap.Int64("processed", processed),
		zap.Duration("duration", time.Since(start)),
	)
}

func (s *Scheduler) runReconcile(ctx context.Context) {
	ticker := time.NewTicker(s.reconcileEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			processed, repaired, err := s.ledger.ReconcileAll(ctx)
			if err != nil {
				zap.L().Error("[Scheduler] reconciliation sweep failed", zap.Error(err))
				continue
			}
			zap.L().Info("[Scheduler] Finished reconciliation sweep",
				zap.Int64("processed", processed),
				zap.Int64("repaired", repaired),
				zap.Duration("duration", time.Since(start)),
			)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] reconcile scheduler stopped")
			return
		}
	}
}

// mondayOfWeek returns Monday 00:00 UTC of the ISO week containing now.
func mondayOfWeek(now time.Time) time.Time {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := (int(now.Weekday()) - int(time.Monday) + 7) % 7
	return midnight.AddDate(0, 0, -days)
}

var Module = fx.Module("schedule",
	fx.Provide(NewScheduler),
	fx.Invoke(StartScheduler),
)
