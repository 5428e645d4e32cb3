package streak

import (
	"fmt"
	"time"
)

// WeekKeyAt formats the ISO 8601 week containing t, evaluated in UTC.
// Week boundaries fall on Monday 00:00 UTC.
func WeekKeyAt(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// PreviousWeekKey returns the key of the ISO week before the one containing t.
func PreviousWeekKey(t time.Time) string {
	return WeekKeyAt(t.UTC().AddDate(0, 0, -7))
}

// WeekKeysBack returns n week keys ending with the week containing t,
// oldest first.
func WeekKeysBack(t time.Time, n int) []string {
	keys := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		keys = append(keys, WeekKeyAt(t.UTC().AddDate(0, 0, -7*i)))
	}
	return keys
}
