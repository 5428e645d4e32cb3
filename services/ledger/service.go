package ledger

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"minepool-gamification/pkg/db/option"
	"minepool-gamification/pkg/errutil"
	"minepool-gamification/pkg/repository"
	"minepool-gamification/services/badge"
	"minepool-gamification/services/leveling"
	"minepool-gamification/services/notify"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	notifier notify.Notifier

	entries     repository.Repository[XPEntry]
	projections repository.Repository[UserProjection]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Notifier notify.Notifier
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		notifier: p.Notifier,

		entries:     repository.ProvideStore[XPEntry](p.DB),
		projections: repository.ProvideStore[UserProjection](p.DB),
	}
}

// GrantXP appends a ledger entry and updates the user's projection in one
// transaction, then emits the resulting notifications. Non-positive amounts
// are a no-op, not an error.
func (s *Service) GrantXP(ctx context.Context, userID string, amount int64, source Source, reference string) (*GrantResult, error) {
	var result *GrantResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = s.GrantXPTx(ctx, tx, userID, amount, source, reference)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	s.EmitGrant(ctx, userID, amount, source, result)
	return result, nil
}

// GrantXPTx is the transactional core of GrantXP, composable into a larger
// transaction (badge awards, the weekly streak batch). The caller owns commit
// and must emit notifications via EmitGrant only after the commit succeeds.
func (s *Service) GrantXPTx(ctx context.Context, tx *gorm.DB, userID string, amount int64, source Source, reference string) (*GrantResult, error) {
	if userID == "" {
		return nil, errutil.BadRequest("user id is required", nil)
	}
	if source == "" {
		return nil, errutil.BadRequest("grant source is required", nil)
	}

	if amount <= 0 {
		zap.L().Debug("ignoring non-positive xp grant",
			zap.String("user_id", userID),
			zap.Int64("amount", amount),
			zap.String("source", source.String()),
		)

		proj, err := s.projections.WithTrx(tx).FindOne(ctx, &UserProjection{UserID: userID})
		if err != nil {
			return nil, err
		}

		result := &GrantResult{}
		if proj != nil {
			result.NewTotal = proj.TotalXP
			result.OldLevel = proj.Level
			result.NewLevel = proj.Level
			result.LevelTitle = proj.LevelTitle
		}
		return result, nil
	}

	now := time.Now().UTC()

	entry := &XPEntry{
		ID:        s.node.Generate().String(),
		UserID:    userID,
		Amount:    amount,
		Source:    source,
		Reference: reference,
		CreatedAt: now,
	}
	if err := s.entries.WithTrx(tx).Create(ctx, entry); err != nil {
		return nil, err
	}

	proj, err := s.loadOrCreateProjectionTx(ctx, tx, userID, now)
	if err != nil {
		return nil, err
	}

	oldLevel := proj.Level
	newTotal := proj.TotalXP + amount
	standing := leveling.Compute(newTotal)

	if err := tx.WithContext(ctx).Model(&UserProjection{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"total_xp":         newTotal,
			"level":            standing.Level,
			"level_title":      standing.Title,
			"xp_to_next_level": standing.XPToNext,
			"updated_at":       now,
		}).Error; err != nil {
		return nil, err
	}

	return &GrantResult{
		Granted:    true,
		NewTotal:   newTotal,
		OldLevel:   oldLevel,
		NewLevel:   standing.Level,
		LevelTitle: standing.Title,
	}, nil
}

func (s *Service) loadOrCreateProjectionTx(ctx context.Context, tx *gorm.DB, userID string, now time.Time) (*UserProjection, error) {
	projections := s.projections.WithTrx(tx)

	proj, err := projections.FindOne(ctx, &UserProjection{UserID: userID}, option.WithLockingUpdate())
	if err != nil {
		return nil, err
	}
	if proj != nil {
		return proj, nil
	}

	standing := leveling.Compute(0)
	proj = &UserProjection{
		UserID:        userID,
		Level:         standing.Level,
		LevelTitle:    standing.Title,
		XPToNextLevel: standing.XPToNext,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := projections.Create(ctx, proj); err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		// lost the lazy-create race; reload under lock
		return projections.FindOne(ctx, &UserProjection{UserID: userID}, option.WithLockingUpdate())
	}

	return proj, nil
}

// EmitGrant publishes the notifications for a committed grant: always
// "xp gained", plus "level up" when the grant crossed a level boundary.
func (s *Service) EmitGrant(ctx context.Context, userID string, amount int64, source Source, result *GrantResult) {
	if result == nil || !result.Granted {
		return
	}

	s.notifier.XPGained(ctx, userID, notify.XPGainedEvent{
		Amount:   amount,
		Source:   source.String(),
		NewTotal: result.NewTotal,
		NewLevel: result.NewLevel,
	})

	if result.LeveledUp() {
		s.notifier.LevelUp(ctx, userID, notify.LevelUpEvent{
			OldLevel: result.OldLevel,
			NewLevel: result.NewLevel,
			Title:    result.LevelTitle,
			NewTotal: result.NewTotal,
		})
	}
}

// HasGrantTx reports whether a ledger entry with the given source and
// reference already exists for the user. The weekly streak batch keys its
// re-run guard on this.
func (s *Service) HasGrantTx(ctx context.Context, tx *gorm.DB, userID string, source Source, reference string) (bool, error) {
	entry, err := s.entries.WithTrx(tx).FindOne(ctx, &XPEntry{
		UserID:    userID,
		Source:    source,
		Reference: reference,
	})
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

// Projection returns the user's summary row, or nil if none exists yet.
func (s *Service) Projection(ctx context.Context, userID string) (*UserProjection, error) {
	return s.projections.FindOne(ctx, &UserProjection{UserID: userID})
}

// ListProjections pages through all user summary rows, ordered by user id.
func (s *Service) ListProjections(ctx context.Context, limit, offset int) ([]*UserProjection, error) {
	return s.projections.Find(ctx, nil,
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "user_id",
			OrderBy: "asc",
			Allow:   map[string]bool{"user_id": true},
		}),
		option.WithLimit(limit, offset),
	)
}

// History returns the user's ledger entries, most recent first.
func (s *Service) History(ctx context.Context, userID string, limit, offset int) ([]*XPEntry, error) {
	return s.entries.Find(ctx, &XPEntry{UserID: userID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "created_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"created_at": true},
		}),
		option.WithLimit(limit, offset),
	)
}

// LedgerTotal computes the authoritative XP total from the ledger.
func (s *Service) LedgerTotal(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&XPEntry{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

// VerifyAndRepair recomputes the user's total XP and badge count from the
// ledgers and overwrites the projection on drift. The ledger always wins.
// Returns true when a repair was applied.
func (s *Service) VerifyAndRepair(ctx context.Context, userID string) (bool, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	opts := []zap.Field{
		zap.String("trace_id", span.SpanContext().TraceID().String()),
		zap.String("user_id", userID),
	}

	total, err := s.LedgerTotal(ctx, userID)
	if err != nil {
		return false, err
	}

	var badgeCount int64
	if err := s.db.WithContext(ctx).Model(&badge.Award{}).
		Where("user_id = ?", userID).
		Count(&badgeCount).Error; err != nil {
		return false, err
	}

	proj, err := s.projections.FindOne(ctx, &UserProjection{UserID: userID})
	if err != nil {
		return false, err
	}
	if proj == nil {
		if total == 0 && badgeCount == 0 {
			return false, nil
		}
		now := time.Now().UTC()
		if _, err := s.loadOrCreateProjectionTx(ctx, s.db.WithContext(ctx), userID, now); err != nil {
			return false, err
		}
		proj = &UserProjection{UserID: userID}
	}

	if proj.TotalXP == total && proj.BadgesEarned == badgeCount {
		return false, nil
	}

	zap.L().Warn("projection drift detected, repairing from ledger",
		append(opts,
			zap.Int64("projection_total_xp", proj.TotalXP),
			zap.Int64("ledger_total_xp", total),
			zap.Int64("projection_badges", proj.BadgesEarned),
			zap.Int64("ledger_badges", badgeCount),
		)...,
	)

	standing := leveling.Compute(total)
	return true, s.db.WithContext(ctx).Model(&UserProjection{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"total_xp":         total,
			"level":            standing.Level,
			"level_title":      standing.Title,
			"xp_to_next_level": standing.XPToNext,
			"badges_earned":    badgeCount,
			"updated_at":       time.Now().UTC(),
		}).Error
}

// ReconcileAll sweeps every projection row. Per-user failures are logged and
// skipped; one bad user never aborts the run.
func (s *Service) ReconcileAll(ctx context.Context) (processed, repaired int64, err error) {
	const pageSize = 500

	var processedCount, repairedCount atomic.Int64

	for offset := 0; ; offset += pageSize {
		page, err := s.ListProjections(ctx, pageSize, offset)
		if err != nil {
			return processedCount.Load(), repairedCount.Load(), err
		}
		if len(page) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(10)
		for _, proj := range page {
			userID := proj.UserID
			g.Go(func() error {
				fixed, err := s.VerifyAndRepair(gctx, userID)
				if err != nil {
					zap.L().Error("reconcile failed for user", zap.String("user_id", userID), zap.Error(err))
					return nil
				}
				processedCount.Add(1)
				if fixed {
					repairedCount.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return processedCount.Load(), repairedCount.Load(), err
		}

		if len(page) < pageSize {
			break
		}
	}

	return processedCount.Load(), repairedCount.Load(), nil
}
