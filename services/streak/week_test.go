package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWeekKeyAt(t *testing.T) {
	testcases := []struct {
		name string
		at   time.Time
		want string
	}{
		{
			name: "just before monday midnight utc",
			at:   time.Date(2026, 3, 22, 23, 59, 59, 0, time.UTC),
			want: "2026-W12",
		},
		{
			name: "monday midnight utc opens the next week",
			at:   time.Date(2026, 3, 23, 0, 0, 0, 0, time.UTC),
			want: "2026-W13",
		},
		{
			name: "single digit weeks are zero padded",
			at:   time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC),
			want: "2026-W02",
		},
		{
			name: "early january can belong to the previous iso year",
			at:   time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
			want: "2026-W53",
		},
		{
			name: "non utc input is evaluated in utc",
			at:   time.Date(2026, 3, 23, 1, 30, 0, 0, time.FixedZone("UTC+2", 2*3600)),
			want: "2026-W12",
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, WeekKeyAt(tc.at))
		})
	}
}

func TestPreviousWeekKey(t *testing.T) {
	at := time.Date(2026, 3, 23, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "2026-W12", PreviousWeekKey(at))

	// crosses the year boundary
	at = time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "2026-W01", PreviousWeekKey(at))
}

func TestWeekKeysBack(t *testing.T) {
	at := time.Date(2026, 3, 25, 10, 0, 0, 0, time.UTC)
	keys := WeekKeysBack(at, 3)
	require.Equal(t, []string{"2026-W11", "2026-W12", "2026-W13"}, keys)
}
