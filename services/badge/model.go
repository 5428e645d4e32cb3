package badge

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// TriggerType is the closed set of rule classes governing when a badge may be
// awarded. Adding a trigger type requires a code change.
type TriggerType string

const (
	TriggerShareCount TriggerType = "share_count"
	TriggerBestDiff   TriggerType = "best_diff"
	TriggerStreak     TriggerType = "streak"
	TriggerBlockFound TriggerType = "block_found"
	TriggerEvent      TriggerType = "event"
)

// Definition is reference data seeded at deploy time and never mutated by the
// engine, except for the best-effort earned counter.
type Definition struct {
	Slug          string         `gorm:"column:slug;primaryKey"`
	Name          string         `gorm:"column:name;not null"`
	Description   string         `gorm:"column:description"`
	Category      string         `gorm:"column:category;type:varchar(30)"`
	Rarity        string         `gorm:"column:rarity;type:varchar(20)"`
	XPReward      int64          `gorm:"column:xp_reward;not null"`
	TriggerType   TriggerType    `gorm:"column:trigger_type;type:varchar(20);index;not null"`
	TriggerConfig datatypes.JSON `gorm:"column:trigger_config"`
	Active        bool           `gorm:"column:active;default:true"`
	EarnedCount   int64          `gorm:"column:earned_count;not null;default:0"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at"`
}

func (Definition) TableName() string { return "badge_definitions" }

type triggerConfig struct {
	Threshold int64  `json:"threshold,omitempty"`
	EventKey  string `json:"event_key,omitempty"`
}

// Threshold decodes the numeric threshold from the trigger config, or 0.
func (d *Definition) Threshold() int64 {
	var cfg triggerConfig
	if err := json.Unmarshal(d.TriggerConfig, &cfg); err != nil {
		return 0
	}
	return cfg.Threshold
}

// EventKey decodes the application event key from the trigger config, or "".
func (d *Definition) EventKey() string {
	var cfg triggerConfig
	if err := json.Unmarshal(d.TriggerConfig, &cfg); err != nil {
		return ""
	}
	return cfg.EventKey
}

// Award records that a user holds a badge. The (user_id, badge_slug) pair is
// the idempotency key of the whole subsystem: rows are created exactly once
// and never updated or deleted.
type Award struct {
	ID        string         `gorm:"column:id;primaryKey"`
	UserID    string         `gorm:"column:user_id;uniqueIndex:idx_award_user_badge,priority:1;not null"`
	BadgeSlug string         `gorm:"column:badge_slug;uniqueIndex:idx_award_user_badge,priority:2;not null"`
	EarnedAt  time.Time      `gorm:"column:earned_at"`
	Metadata  datatypes.JSON `gorm:"column:metadata"`
}

func (Award) TableName() string { return "user_badge_awards" }
