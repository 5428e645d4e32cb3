package ledger

import (
	"time"
)

// Source tags the cause of an XP grant.
type Source string

const (
	SourceBadge        Source = "badge"
	SourceShare        Source = "share"
	SourcePersonalBest Source = "personal_best"
	SourceLesson       Source = "lesson"
	SourceTrack        Source = "track"
	SourceStreak       Source = "streak"
	SourceCompetition  Source = "competition"
)

func (s Source) String() string { return string(s) }

// XPEntry is an append-only ledger row. Entries are never updated or deleted;
// SUM(amount) per user is the source of truth for total XP.
type XPEntry struct {
	ID        string    `gorm:"column:id;primaryKey"`
	UserID    string    `gorm:"column:user_id;index;index:idx_xp_user_source_ref,priority:1;not null"`
	Amount    int64     `gorm:"column:amount;not null"`
	Source    Source    `gorm:"column:source;type:varchar(20);index:idx_xp_user_source_ref,priority:2;not null"`
	Reference string    `gorm:"column:reference;index:idx_xp_user_source_ref,priority:3"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (XPEntry) TableName() string { return "xp_ledger_entries" }

// UserProjection is the denormalized per-user summary used for fast reads.
// It is a cache over the XP ledger and the award store; the reconciler may
// rewrite it from the ledgers at any time.
type UserProjection struct {
	UserID            string    `gorm:"column:user_id;primaryKey"`
	TotalXP           int64     `gorm:"column:total_xp;not null"`
	Level             int       `gorm:"column:level;not null"`
	LevelTitle        string    `gorm:"column:level_title"`
	XPToNextLevel     int64     `gorm:"column:xp_to_next_level"`
	BadgesEarned      int64     `gorm:"column:badges_earned;not null"`
	CurrentStreak     int       `gorm:"column:current_streak;not null"`
	LongestStreak     int       `gorm:"column:longest_streak;not null"`
	LastActiveWeekKey string    `gorm:"column:last_active_week_key"`
	CreatedAt         time.Time `gorm:"column:created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

func (UserProjection) TableName() string { return "user_gamification" }

// GrantResult reports the outcome of a single XP grant.
type GrantResult struct {
	Granted    bool
	NewTotal   int64
	OldLevel   int
	NewLevel   int
	LevelTitle string
}

func (r *GrantResult) LeveledUp() bool {
	return r.Granted && r.NewLevel > r.OldLevel
}
