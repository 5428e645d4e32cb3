package badge

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// Canonical event keys recognised by the event trigger family.
const (
	EventEducationTrackComplete = "education_track_complete"
	EventFirstLessonComplete    = "first_lesson_complete"
)

func thresholdCfg(n int64) datatypes.JSON {
	raw, _ := json.Marshal(triggerConfig{Threshold: n})
	return datatypes.JSON(raw)
}

func eventCfg(key string) datatypes.JSON {
	raw, _ := json.Marshal(triggerConfig{EventKey: key})
	return datatypes.JSON(raw)
}

// Catalog is the closed badge set. It is versioned reference data: the seeder
// upserts it by slug and the engine never writes to it beyond the earned
// counter.
func Catalog() []*Definition {
	return []*Definition{
		{
			Slug: "first_share", Name: "First Blood", Category: "mining", Rarity: "common",
			Description:   "Submit your first accepted share.",
			XPReward:      50,
			TriggerType:   TriggerShareCount,
			TriggerConfig: thresholdCfg(1),
			Active:        true,
		},
		{
			Slug: "shares_100", Name: "Century Club", Category: "mining", Rarity: "common",
			Description:   "Reach 100 accepted shares.",
			XPReward:      100,
			TriggerType:   TriggerShareCount,
			TriggerConfig: thresholdCfg(100),
			Active:        true,
		},
		{
			Slug: "shares_1000", Name: "Share Machine", Category: "mining", Rarity: "uncommon",
			Description:   "Reach 1,000 accepted shares.",
			XPReward:      250,
			TriggerType:   TriggerShareCount,
			TriggerConfig: thresholdCfg(1000),
			Active:        true,
		},
		{
			Slug: "shares_10000", Name: "Hash Furnace", Category: "mining", Rarity: "rare",
			Description:   "Reach 10,000 accepted shares.",
			XPReward:      500,
			TriggerType:   TriggerShareCount,
			TriggerConfig: thresholdCfg(10000),
			Active:        true,
		},
		{
			Slug: "diff_1e6", Name: "Megahash Moment", Category: "mining", Rarity: "uncommon",
			Description:   "Submit a share with difficulty of at least 1,000,000.",
			XPReward:      150,
			TriggerType:   TriggerBestDiff,
			TriggerConfig: thresholdCfg(1_000_000),
			Active:        true,
		},
		{
			Slug: "diff_1e9", Name: "Gigahash Glory", Category: "mining", Rarity: "rare",
			Description:   "Submit a share with difficulty of at least 1,000,000,000.",
			XPReward:      400,
			TriggerType:   TriggerBestDiff,
			TriggerConfig: thresholdCfg(1_000_000_000),
			Active:        true,
		},
		{
			Slug: "diff_1e12", Name: "Terahash Titan", Category: "mining", Rarity: "epic",
			Description:   "Submit a share with difficulty of at least 1,000,000,000,000.",
			XPReward:      1000,
			TriggerType:   TriggerBestDiff,
			TriggerConfig: thresholdCfg(1_000_000_000_000),
			Active:        true,
		},
		{
			Slug: "block_found", Name: "Block Finder", Category: "mining", Rarity: "legendary",
			Description:   "Find a block for the pool.",
			XPReward:      2500,
			TriggerType:   TriggerBlockFound,
			Active:        true,
		},
		{
			Slug: "streak_4", Name: "Month of Mondays", Category: "streak", Rarity: "common",
			Description:   "Mine in 4 consecutive weeks.",
			XPReward:      100,
			TriggerType:   TriggerStreak,
			TriggerConfig: thresholdCfg(4),
			Active:        true,
		},
		{
			Slug: "streak_12", Name: "Quarter Grinder", Category: "streak", Rarity: "uncommon",
			Description:   "Mine in 12 consecutive weeks.",
			XPReward:      300,
			TriggerType:   TriggerStreak,
			TriggerConfig: thresholdCfg(12),
			Active:        true,
		},
		{
			Slug: "streak_52", Name: "Year-Round Rig", Category: "streak", Rarity: "epic",
			Description:   "Mine in 52 consecutive weeks.",
			XPReward:      1500,
			TriggerType:   TriggerStreak,
			TriggerConfig: thresholdCfg(52),
			Active:        true,
		},
		{
			Slug: "track_scholar", Name: "Track Scholar", Category: "education", Rarity: "uncommon",
			Description:   "Complete an education track.",
			XPReward:      200,
			TriggerType:   TriggerEvent,
			TriggerConfig: eventCfg(EventEducationTrackComplete),
			Active:        true,
		},
		{
			Slug: "first_lesson", Name: "First Lesson", Category: "education", Rarity: "common",
			Description:   "Complete your first lesson.",
			XPReward:      25,
			TriggerType:   TriggerEvent,
			TriggerConfig: eventCfg(EventFirstLessonComplete),
			Active:        true,
		},
	}
}
