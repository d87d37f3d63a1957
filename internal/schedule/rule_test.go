package schedule

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, min int) time.Time {
	return time.Date(2026, time.March, 2, hour, min, 0, 0, time.UTC) // a Monday
}

func TestNextEveryNMinutes(t *testing.T) {
	t.Parallel()
	r := Rule{Kind: KindEveryNMinutes, N: 5}

	// From 12:00 the next boundary is 12:05 (strictly after).
	assert.Equal(t, at(12, 5), r.Next(at(12, 0)))
	// Mid-interval snaps forward to the divisible boundary.
	assert.Equal(t, at(12, 5), r.Next(at(12, 3)))
	assert.Equal(t, at(13, 0), r.Next(time.Date(2026, time.March, 2, 12, 57, 30, 0, time.UTC)))
}

func TestNextIsStrictlyAfter(t *testing.T) {
	t.Parallel()
	rules := []Rule{
		{Kind: KindEveryNMinutes, N: 1},
		{Kind: KindEveryNMinutes, N: 30},
		{Kind: KindHourly, Minute: 15},
		{Kind: KindDaily, Hour: 4, Minute: 30},
		{Kind: KindWeekly, Weekday: time.Friday, Hour: 23, Minute: 59},
	}
	times := []time.Time{
		at(0, 0), at(12, 0), at(23, 59),
		time.Date(2026, time.December, 31, 23, 59, 59, 0, time.UTC),
	}
	for _, r := range rules {
		for _, now := range times {
			next := r.Next(now)
			require.False(t, next.IsZero(), "rule %s", r)
			assert.True(t, next.After(now), "rule %s from %s gave %s", r, now, next)
		}
	}
}

func TestNextBoundaries(t *testing.T) {
	t.Parallel()

	hourly := Rule{Kind: KindHourly, Minute: 30}
	assert.Equal(t, at(12, 30), hourly.Next(at(12, 0)))
	assert.Equal(t, at(13, 30), hourly.Next(at(12, 30)))

	daily := Rule{Kind: KindDaily, Hour: 4, Minute: 0}
	assert.Equal(t, at(4, 0).AddDate(0, 0, 1), daily.Next(at(5, 0)))

	// March 2 2026 is a Monday; weekly Monday 12:00 from Monday 13:00 is +7d.
	weekly := Rule{Kind: KindWeekly, Weekday: time.Monday, Hour: 12, Minute: 0}
	assert.Equal(t, at(12, 0).AddDate(0, 0, 7), weekly.Next(at(13, 0)))
	assert.Equal(t, at(12, 0), weekly.Next(at(1, 0)))
}

func TestDue(t *testing.T) {
	t.Parallel()
	r := Rule{Kind: KindEveryNMinutes, N: 5}

	// Scheduled boundary crossed since last run.
	last := at(12, 0)
	assert.True(t, Due(r, &last, at(11, 0), at(12, 7)))

	// Immediately after a boundary run nothing is due.
	last = at(12, 5)
	assert.False(t, Due(r, &last, at(11, 0), at(12, 5)))
	// ...and due again once the next boundary passes.
	assert.True(t, Due(r, &last, at(11, 0), at(12, 10)))

	// No last run: baseline (process start) is the reference.
	assert.False(t, Due(r, nil, at(12, 4), at(12, 4)))
	assert.True(t, Due(r, nil, at(12, 4), at(12, 5)))
}

func TestValidate(t *testing.T) {
	t.Parallel()
	valid := []Rule{
		{Kind: KindEveryNMinutes, N: 1},
		{Kind: KindEveryNMinutes, N: 30},
		{Kind: KindHourly, Minute: 59},
		{Kind: KindDaily, Hour: 23, Minute: 59},
		{Kind: KindWeekly, Weekday: time.Sunday},
	}
	for _, r := range valid {
		assert.NoError(t, r.Validate(), "rule %+v", r)
	}

	invalid := []Rule{
		{},
		{Kind: "monthly"},
		{Kind: KindEveryNMinutes, N: 7},
		{Kind: KindHourly, Minute: 60},
		{Kind: KindDaily, Hour: 24},
		{Kind: KindWeekly, Weekday: 7},
	}
	for _, r := range invalid {
		assert.Error(t, r.Validate(), "rule %+v", r)
	}
}

func TestRuleJSONRoundTrip(t *testing.T) {
	t.Parallel()
	r := Rule{Kind: KindWeekly, Weekday: time.Monday, Hour: 4, Minute: 30}
	b, err := json.Marshal(r)
	require.NoError(t, err)

	var got Rule
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, r, got)
}

func TestRuleString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "every minute", Rule{Kind: KindEveryNMinutes, N: 1}.String())
	assert.Equal(t, "every 15 minutes", Rule{Kind: KindEveryNMinutes, N: 15}.String())
	assert.Equal(t, "hourly at :05", Rule{Kind: KindHourly, Minute: 5}.String())
	assert.Equal(t, "weekly on Monday at 12:00", Rule{Kind: KindWeekly, Weekday: time.Monday, Hour: 12}.String())
}
