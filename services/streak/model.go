package streak

import "time"

// WeekRecord marks a user active in one ISO week. One row per (user, week);
// counters accumulate as more activity lands in the same week.
type WeekRecord struct {
	ID             string    `gorm:"column:id;primaryKey"`
	UserID         string    `gorm:"column:user_id;uniqueIndex:idx_week_user_week,priority:1;not null"`
	WeekKey        string    `gorm:"column:week_key;uniqueIndex:idx_week_user_week,priority:2;not null"`
	HasActivity    bool      `gorm:"column:has_activity;not null"`
	ShareCount     int64     `gorm:"column:share_count;not null"`
	BestDifficulty float64   `gorm:"column:best_difficulty;not null"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (WeekRecord) TableName() string { return "streak_week_records" }
