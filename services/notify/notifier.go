// Package notify carries state-change events to the external push transport.
//
// Emission is strictly best-effort: every implementation must be safe to call
// after the producing transaction has committed, and failures are logged,
// never returned to the caller.
package notify

import (
	"context"
	"time"
)

type BadgeEarnedEvent struct {
	BadgeSlug   string    `json:"badge_slug"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Rarity      string    `json:"rarity"`
	XPReward    int64     `json:"xp_reward"`
	EarnedAt    time.Time `json:"earned_at"`
}

type XPGainedEvent struct {
	Amount   int64  `json:"amount"`
	Source   string `json:"source"`
	NewTotal int64  `json:"new_total"`
	NewLevel int    `json:"new_level"`
}

type LevelUpEvent struct {
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
	Title    string `json:"title"`
	NewTotal int64  `json:"new_total"`
}

type StreakUpdateEvent struct {
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`
	WeekKey       string `json:"week_key"`
	Broken        bool   `json:"broken"`
}

// Notifier is the explicit dependency every service takes instead of a global
// transport handle. Implementations never block the caller beyond a short
// timeout and never report errors upward.
type Notifier interface {
	BadgeEarned(ctx context.Context, userID string, event BadgeEarnedEvent)
	XPGained(ctx context.Context, userID string, event XPGainedEvent)
	LevelUp(ctx context.Context, userID string, event LevelUpEvent)
	StreakUpdate(ctx context.Context, userID string, event StreakUpdateEvent)
}
