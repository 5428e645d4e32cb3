// Package leveling holds the level table and the pure XP → level calculator.
//
// The table is versioned reference data shared with client displays; it must
// never be re-derived by formula. Level numbers are allowed to be sparse
// (the sequence jumps from 10 to 15) and the calculator must not invent the
// missing levels.
package leveling

import "sort"

type Level struct {
	Level     int
	Title     string
	Threshold int64
}

// table is ordered by Threshold, strictly increasing, with level 1 at 0.
var table = []Level{
	{Level: 1, Title: "Fresh Miner", Threshold: 0},
	{Level: 2, Title: "Curious Cat", Threshold: 100},
	{Level: 3, Title: "Share Apprentice", Threshold: 600},
	{Level: 4, Title: "Nonce Hunter", Threshold: 1500},
	{Level: 5, Title: "Difficulty Rider", Threshold: 3000},
	{Level: 6, Title: "Block Chaser", Threshold: 6000},
	{Level: 7, Title: "Hash Veteran", Threshold: 10000},
	{Level: 8, Title: "Pool Regular", Threshold: 15000},
	{Level: 9, Title: "Terahash Tamer", Threshold: 22000},
	{Level: 10, Title: "Solo Legend", Threshold: 32000},
	{Level: 15, Title: "Chain Elder", Threshold: 50000},
	{Level: 20, Title: "Genesis Ghost", Threshold: 75000},
}

// Table returns a copy of the level table, ordered by threshold.
func Table() []Level {
	out := make([]Level, len(table))
	copy(out, table)
	return out
}

type Standing struct {
	Level    int
	Title    string
	XPToNext int64
}

// Compute returns the highest level whose threshold is at or below totalXP,
// together with the XP remaining to the next level. At or beyond the maximum
// level XPToNext is 0; the max level is terminal.
func Compute(totalXP int64) Standing {
	if totalXP < 0 {
		totalXP = 0
	}

	// first entry with threshold strictly above totalXP
	idx := sort.Search(len(table), func(i int) bool {
		return table[i].Threshold > totalXP
	})

	current := table[idx-1]
	standing := Standing{
		Level: current.Level,
		Title: current.Title,
	}

	if idx < len(table) {
		standing.XPToNext = table[idx].Threshold - totalXP
	}

	return standing
}
