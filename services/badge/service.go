package badge

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"minepool-gamification/pkg/db/option"
	"minepool-gamification/pkg/repository"
)

type Service struct {
	db *gorm.DB

	definitions repository.Repository[Definition]
	awards      repository.Repository[Award]
}

type ServiceParams struct {
	fx.In
	DB *gorm.DB
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db: p.DB,

		definitions: repository.ProvideStore[Definition](p.DB),
		awards:      repository.ProvideStore[Award](p.DB),
	}
}

// Seed upserts the canonical catalog by slug. Display fields follow the
// catalog on re-seed; earned counters are left alone.
func (s *Service) Seed(ctx context.Context) error {
	for _, def := range Catalog() {
		existing, err := s.definitions.FindOne(ctx, &Definition{Slug: def.Slug})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if existing == nil {
			def.CreatedAt = now
			def.UpdatedAt = now
			if err := s.definitions.Create(ctx, def); err != nil {
				return err
			}
			continue
		}

		if err := s.db.WithContext(ctx).Model(&Definition{}).
			Where("slug = ?", def.Slug).
			Updates(map[string]any{
				"name":           def.Name,
				"description":    def.Description,
				"category":       def.Category,
				"rarity":         def.Rarity,
				"xp_reward":      def.XPReward,
				"trigger_type":   def.TriggerType,
				"trigger_config": def.TriggerConfig,
				"active":         def.Active,
				"updated_at":     now,
			}).Error; err != nil {
			return err
		}
	}

	zap.L().Info("badge catalog seeded", zap.Int("badges", len(Catalog())))
	return nil
}

// Definitions returns the full catalog, active and inactive.
func (s *Service) Definitions(ctx context.Context) ([]*Definition, error) {
	return s.definitions.Find(ctx, nil)
}

func (s *Service) BySlug(ctx context.Context, slug string) (*Definition, error) {
	return s.definitions.FindOne(ctx, &Definition{Slug: slug})
}

// ByTrigger returns the active definitions of one trigger family.
func (s *Service) ByTrigger(ctx context.Context, trigger TriggerType) ([]*Definition, error) {
	return s.definitions.Find(ctx, &Definition{TriggerType: trigger, Active: true})
}

// Held returns the set of badge slugs the user already holds.
func (s *Service) Held(ctx context.Context, userID string) (map[string]bool, error) {
	awards, err := s.awards.Find(ctx, &Award{UserID: userID})
	if err != nil {
		return nil, err
	}

	held := make(map[string]bool, len(awards))
	for _, a := range awards {
		held[a.BadgeSlug] = true
	}
	return held, nil
}

// Awards returns the user's earned badges, most recent first.
func (s *Service) Awards(ctx context.Context, userID string) ([]*Award, error) {
	return s.awards.Find(ctx, &Award{UserID: userID},
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "earned_at",
			OrderBy: "desc",
			Allow:   map[string]bool{"earned_at": true},
		}),
	)
}

// FindAwardTx looks up an award inside the caller's transaction.
func (s *Service) FindAwardTx(ctx context.Context, tx *gorm.DB, userID, slug string) (*Award, error) {
	return s.awards.WithTrx(tx).FindOne(ctx, &Award{UserID: userID, BadgeSlug: slug})
}

// CreateAwardTx inserts an award row. A unique violation on the
// (user_id, badge_slug) index surfaces as gorm.ErrDuplicatedKey; the caller
// treats it as "already held".
func (s *Service) CreateAwardTx(ctx context.Context, tx *gorm.DB, award *Award) error {
	return s.awards.WithTrx(tx).Create(ctx, award)
}

// IncrementEarnedCountTx bumps the denormalized per-badge earn counter.
// Best-effort: drift here is tolerated and corrected on recompute.
func (s *Service) IncrementEarnedCountTx(ctx context.Context, tx *gorm.DB, slug string) {
	if err := tx.WithContext(ctx).Model(&Definition{}).
		Where("slug = ?", slug).
		UpdateColumn("earned_count", gorm.Expr("earned_count + ?", 1)).Error; err != nil {
		zap.L().Warn("failed to bump badge earn counter", zap.String("badge_slug", slug), zap.Error(err))
	}
}
