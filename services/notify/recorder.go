package notify

import (
	"context"
	"sync"
)

// Nop discards every notification. Used where no transport is wired.
type Nop struct{}

func (Nop) BadgeEarned(context.Context, string, BadgeEarnedEvent)   {}
func (Nop) XPGained(context.Context, string, XPGainedEvent)         {}
func (Nop) LevelUp(context.Context, string, LevelUpEvent)           {}
func (Nop) StreakUpdate(context.Context, string, StreakUpdateEvent) {}

// Recorder captures notifications in memory so tests can assert on emissions.
type Recorder struct {
	mu sync.Mutex

	Badges  []RecordedBadge
	XP      []RecordedXP
	Levels  []RecordedLevel
	Streaks []RecordedStreak
}

type RecordedBadge struct {
	UserID string
	Event  BadgeEarnedEvent
}

type RecordedXP struct {
	UserID string
	Event  XPGainedEvent
}

type RecordedLevel struct {
	UserID string
	Event  LevelUpEvent
}

type RecordedStreak struct {
	UserID string
	Event  StreakUpdateEvent
}

func (r *Recorder) BadgeEarned(_ context.Context, userID string, event BadgeEarnedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Badges = append(r.Badges, RecordedBadge{UserID: userID, Event: event})
}

func (r *Recorder) XPGained(_ context.Context, userID string, event XPGainedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.XP = append(r.XP, RecordedXP{UserID: userID, Event: event})
}

func (r *Recorder) LevelUp(_ context.Context, userID string, event LevelUpEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Levels = append(r.Levels, RecordedLevel{UserID: userID, Event: event})
}

func (r *Recorder) StreakUpdate(_ context.Context, userID string, event StreakUpdateEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Streaks = append(r.Streaks, RecordedStreak{UserID: userID, Event: event})
}
