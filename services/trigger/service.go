// Package trigger evaluates badge rules against observed user activity and
// awards any badge whose condition is met. Awarding is idempotent: the
// unique index on (user_id, badge_slug) guarantees at most one award per
// badge no matter how often the same activity is replayed.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"minepool-gamification/services/badge"
	"minepool-gamification/services/ledger"
	"minepool-gamification/services/notify"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	notifier notify.Notifier

	badges *badge.Service
	ledger *ledger.Service
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Notifier notify.Notifier
	Badges   *badge.Service
	Ledger   *ledger.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		notifier: p.Notifier,
		badges:   p.Badges,
		ledger:   p.Ledger,
	}
}

// EvaluateShare checks an accepted-share observation against the share-count
// and best-difficulty badge families. Every badge whose threshold the
// observation meets or exceeds is awarded, so a user jumping from 0 to 150
// accepted shares collects both the 1-share and 100-share badges at once.
func (s *Service) EvaluateShare(ctx context.Context, userID string, totalAccepted int64, difficulty float64) ([]string, error) {
	var awarded []string

	counts, err := s.badges.ByTrigger(ctx, badge.TriggerShareCount)
	if err != nil {
		return nil, err
	}
	for _, def := range counts {
		if totalAccepted < def.Threshold() {
			continue
		}
		ok, err := s.awardIfNew(ctx, userID, def, nil)
		if err != nil {
			return awarded, err
		}
		if ok {
			awarded = append(awarded, def.Slug)
		}
	}

	diffs, err := s.badges.ByTrigger(ctx, badge.TriggerBestDiff)
	if err != nil {
		return awarded, err
	}
	for _, def := range diffs {
		if difficulty < float64(def.Threshold()) {
			continue
		}
		ok, err := s.awardIfNew(ctx, userID, def, nil)
		if err != nil {
			return awarded, err
		}
		if ok {
			awarded = append(awarded, def.Slug)
		}
	}

	return awarded, nil
}

// EvaluateBlockFound awards the block-found badge family, recording the
// block's height and hash on the award.
func (s *Service) EvaluateBlockFound(ctx context.Context, userID string, height int64, hash string) ([]string, error) {
	defs, err := s.badges.ByTrigger(ctx, badge.TriggerBlockFound)
	if err != nil {
		return nil, err
	}

	metadata := mustJSON(map[string]any{"height": height, "hash": hash})

	var awarded []string
	for _, def := range defs {
		ok, err := s.awardIfNew(ctx, userID, def, metadata)
		if err != nil {
			return awarded, err
		}
		if ok {
			awarded = append(awarded, def.Slug)
		}
	}
	return awarded, nil
}

// EvaluateStreak checks a streak length against the streak badge family.
func (s *Service) EvaluateStreak(ctx context.Context, userID string, currentStreak int) ([]string, error) {
	defs, err := s.badges.ByTrigger(ctx, badge.TriggerStreak)
	if err != nil {
		return nil, err
	}

	var awarded []string
	for _, def := range defs {
		if int64(currentStreak) < def.Threshold() {
			continue
		}
		ok, err := s.awardIfNew(ctx, userID, def, nil)
		if err != nil {
			return awarded, err
		}
		if ok {
			awarded = append(awarded, def.Slug)
		}
	}
	return awarded, nil
}

// EvaluateNamedEvent awards event-triggered badges matching the given key.
// An unrecognized key is a silent no-op so producers can emit freely.
func (s *Service) EvaluateNamedEvent(ctx context.Context, userID, eventKey string, metadata map[string]any) ([]string, error) {
	defs, err := s.badges.ByTrigger(ctx, badge.TriggerEvent)
	if err != nil {
		return nil, err
	}

	var extra datatypes.JSON
	if len(metadata) > 0 {
		extra = mustJSON(metadata)
	}

	var awarded []string
	for _, def := range defs {
		if def.EventKey() != eventKey {
			continue
		}
		ok, err := s.awardIfNew(ctx, userID, def, extra)
		if err != nil {
			return awarded, err
		}
		if ok {
			awarded = append(awarded, def.Slug)
		}
	}

	if len(awarded) == 0 {
		zap.L().Debug("no badge bound to event key",
			zap.String("user_id", userID),
			zap.String("event_key", eventKey),
		)
	}
	return awarded, nil
}

// awardIfNew awards one badge and its XP reward in a single transaction.
// The award insert is the idempotency gate: losing the race to a concurrent
// worker surfaces as a duplicate-key error and downgrades to "already held".
func (s *Service) awardIfNew(ctx context.Context, userID string, def *badge.Definition, metadata datatypes.JSON) (bool, error) {
	now := time.Now().UTC()

	var grant *ledger.GrantResult
	award := &badge.Award{
		ID:        s.node.Generate().String(),
		UserID:    userID,
		BadgeSlug: def.Slug,
		EarnedAt:  now,
		Metadata:  metadata,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.badges.FindAwardTx(ctx, tx, userID, def.Slug)
		if err != nil {
			return err
		}
		if existing != nil {
			return errAlreadyHeld
		}

		if err := s.badges.CreateAwardTx(ctx, tx, award); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errAlreadyHeld
			}
			return err
		}

		grant, err = s.ledger.GrantXPTx(ctx, tx, userID, def.XPReward, ledger.SourceBadge, def.Slug)
		if err != nil {
			return err
		}

		s.badges.IncrementEarnedCountTx(ctx, tx, def.Slug)

		return tx.Model(&ledger.UserProjection{}).
			Where("user_id = ?", userID).
			UpdateColumn("badges_earned", gorm.Expr("badges_earned + ?", 1)).Error
	})
	if errors.Is(err, errAlreadyHeld) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	zap.L().Info("badge awarded",
		zap.String("user_id", userID),
		zap.String("badge_slug", def.Slug),
		zap.Int64("xp_reward", def.XPReward),
	)

	s.notifier.BadgeEarned(ctx, userID, notify.BadgeEarnedEvent{
		BadgeSlug:   def.Slug,
		Name:        def.Name,
		Description: def.Description,
		Category:    def.Category,
		Rarity:      def.Rarity,
		XPReward:    def.XPReward,
		EarnedAt:    now,
	})
	s.ledger.EmitGrant(ctx, userID, def.XPReward, ledger.SourceBadge, grant)

	return true, nil
}

var errAlreadyHeld = errors.New("badge already held")

func mustJSON(v map[string]any) datatypes.JSON {
	raw, _ := json.Marshal(v)
	return datatypes.JSON(raw)
}
