package leveling

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeFixtures(t *testing.T) {
	testcases := []struct {
		name     string
		totalXP  int64
		level    int
		title    string
		xpToNext int64
	}{
		{name: "zero xp starts at level one", totalXP: 0, level: 1, title: "Fresh Miner", xpToNext: 100},
		{name: "exactly at a threshold", totalXP: 100, level: 2, title: "Curious Cat", xpToNext: 500},
		{name: "one below a threshold", totalXP: 99, level: 1, title: "Fresh Miner", xpToNext: 1},
		{name: "mid band", totalXP: 10600, level: 7, title: "Hash Veteran", xpToNext: 4400},
		{name: "sparse jump band", totalXP: 32000, level: 10, title: "Solo Legend", xpToNext: 18000},
		{name: "inside sparse band", totalXP: 60000, level: 15, title: "Chain Elder", xpToNext: 15000},
		{name: "max level", totalXP: 75000, level: 20, title: "Genesis Ghost", xpToNext: 0},
		{name: "beyond max level", totalXP: 9000000, level: 20, title: "Genesis Ghost", xpToNext: 0},
		{name: "negative clamps to zero", totalXP: -50, level: 1, title: "Fresh Miner", xpToNext: 100},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			standing := Compute(tc.totalXP)
			require.Equal(t, tc.level, standing.Level)
			require.Equal(t, tc.title, standing.Title)
			require.Equal(t, tc.xpToNext, standing.XPToNext)
		})
	}
}

func TestComputeMonotonic(t *testing.T) {
	prev := Compute(0).Level
	for xp := int64(0); xp <= 80000; xp += 37 {
		level := Compute(xp).Level
		require.GreaterOrEqual(t, level, prev, "level regressed at xp=%d", xp)
		prev = level
	}
}

func TestTableOrdering(t *testing.T) {
	rows := Table()
	require.NotEmpty(t, rows)
	require.Equal(t, 1, rows[0].Level)
	require.Equal(t, int64(0), rows[0].Threshold)

	for i := 1; i < len(rows); i++ {
		require.Greater(t, rows[i].Level, rows[i-1].Level)
		require.Greater(t, rows[i].Threshold, rows[i-1].Threshold)
	}
}
