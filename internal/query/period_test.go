package query_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statlens/internal/query"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolvePeriodWindows(t *testing.T) {
	// Fixed clock: March 15, 2024, 12:00 UTC
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name             string
		params           query.PeriodParams
		loc              *time.Location
		statsStart       time.Time
		expectedStart    time.Time
		expectedEnd      time.Time
		expectedInterval query.Interval
	}{
		{
			name:             "day defaults to today",
			params:           query.PeriodParams{Period: "day"},
			expectedStart:    day(2024, 3, 15),
			expectedEnd:      day(2024, 3, 15),
			expectedInterval: query.IntervalHour,
		},
		{
			name:             "day anchored on explicit date",
			params:           query.PeriodParams{Period: "day", Date: "2024-01-02"},
			expectedStart:    day(2024, 1, 2),
			expectedEnd:      day(2024, 1, 2),
			expectedInterval: query.IntervalHour,
		},
		{
			name:             "7d spans seven days ending today",
			params:           query.PeriodParams{Period: "7d"},
			expectedStart:    day(2024, 3, 9),
			expectedEnd:      day(2024, 3, 15),
			expectedInterval: query.IntervalDate,
		},
		{
			name:             "30d spans thirty-one days ending today",
			params:           query.PeriodParams{Period: "30d"},
			expectedStart:    day(2024, 2, 14),
			expectedEnd:      day(2024, 3, 15),
			expectedInterval: query.IntervalDate,
		},
		{
			name:             "empty period behaves like 30d",
			params:           query.PeriodParams{},
			expectedStart:    day(2024, 2, 14),
			expectedEnd:      day(2024, 3, 15),
			expectedInterval: query.IntervalDate,
		},
		{
			name:             "month covers the anchor's calendar month",
			params:           query.PeriodParams{Period: "month", Date: "2024-02-10"},
			expectedStart:    day(2024, 2, 1),
			expectedEnd:      day(2024, 2, 29),
			expectedInterval: query.IntervalDate,
		},
		{
			name:             "6mo ends at the anchor month's last day",
			params:           query.PeriodParams{Period: "6mo"},
			expectedStart:    day(2023, 10, 1),
			expectedEnd:      day(2024, 3, 31),
			expectedInterval: query.IntervalMonth,
		},
		{
			name:             "12mo covers twelve calendar months",
			params:           query.PeriodParams{Period: "12mo"},
			expectedStart:    day(2023, 4, 1),
			expectedEnd:      day(2024, 3, 31),
			expectedInterval: query.IntervalMonth,
		},
		{
			name:             "year covers the anchor's calendar year",
			params:           query.PeriodParams{Period: "year", Date: "2023-06-15"},
			expectedStart:    day(2023, 1, 1),
			expectedEnd:      day(2023, 12, 31),
			expectedInterval: query.IntervalMonth,
		},
		{
			name:             "custom takes explicit bounds",
			params:           query.PeriodParams{Period: "custom", From: "2021-09-06", To: "2021-12-13"},
			expectedStart:    day(2021, 9, 6),
			expectedEnd:      day(2021, 12, 13),
			expectedInterval: query.IntervalDate,
		},
		{
			name:             "all starts at the site's first recorded date",
			params:           query.PeriodParams{Period: "all"},
			statsStart:       day(2023, 11, 20),
			expectedStart:    day(2023, 11, 20),
			expectedEnd:      day(2024, 3, 15),
			expectedInterval: query.IntervalMonth,
		},
		{
			name:             "all without history collapses to today",
			params:           query.PeriodParams{Period: "all"},
			expectedStart:    day(2024, 3, 15),
			expectedEnd:      day(2024, 3, 15),
			expectedInterval: query.IntervalHour,
		},
		{
			name:             "realtime stores today",
			params:           query.PeriodParams{Period: "realtime"},
			expectedStart:    day(2024, 3, 15),
			expectedEnd:      day(2024, 3, 15),
			expectedInterval: query.IntervalMinute,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			loc := tc.loc
			if loc == nil {
				loc = time.UTC
			}
			resolved, err := query.ResolvePeriod(tc.params, loc, tc.statsStart, now)
			require.NoError(t, err)
			assert.Equal(t, tc.expectedStart, resolved.Range.Start, "range start")
			assert.Equal(t, tc.expectedEnd, resolved.Range.End, "range end")
			assert.Equal(t, tc.expectedInterval, resolved.Interval, "interval")
		})
	}
}

func TestResolvePeriodUsesSiteTimezone(t *testing.T) {
	auckland, err := time.LoadLocation("Pacific/Auckland")
	require.NoError(t, err)

	// 23:30 UTC on March 14 is already March 15 in Auckland
	now := time.Date(2024, 3, 14, 23, 30, 0, 0, time.UTC)

	resolved, err := query.ResolvePeriod(query.PeriodParams{Period: "day"}, auckland, time.Time{}, now)
	require.NoError(t, err)
	assert.Equal(t, day(2024, 3, 15), resolved.Range.Start)
	assert.Equal(t, day(2024, 3, 15), resolved.Range.End)
}

func TestResolvePeriodRejectsInvalidInput(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	testCases := []struct {
		name   string
		params query.PeriodParams
	}{
		{"unknown period keyword", query.PeriodParams{Period: "fortnight"}},
		{"malformed anchor date", query.PeriodParams{Period: "day", Date: "15-03-2024"}},
		{"custom without bounds", query.PeriodParams{Period: "custom"}},
		{"custom with inverted bounds", query.PeriodParams{Period: "custom", From: "2024-03-10", To: "2024-03-01"}},
		{"interval coarser than period", query.PeriodParams{Period: "day", Interval: "month"}},
		{"minute interval outside realtime and day", query.PeriodParams{Period: "7d", Interval: "minute"}},
		{"unrecognized interval", query.PeriodParams{Period: "7d", Interval: "fortnight"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := query.ResolvePeriod(tc.params, time.UTC, time.Time{}, now)
			require.Error(t, err)
			assert.True(t, query.IsValidationError(err), "expected a validation error, got %v", err)
		})
	}
}

func TestResolvePeriodInterval(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	t.Run("explicit valid interval overrides the default", func(t *testing.T) {
		resolved, err := query.ResolvePeriod(query.PeriodParams{Period: "30d", Interval: "week"}, time.UTC, time.Time{}, now)
		require.NoError(t, err)
		assert.Equal(t, query.IntervalWeek, resolved.Interval)
	})

	t.Run("custom range defaults to date buckets", func(t *testing.T) {
		resolved, err := query.ResolvePeriod(query.PeriodParams{Period: "custom", From: "2024-01-01", To: "2024-03-01"}, time.UTC, time.Time{}, now)
		require.NoError(t, err)
		assert.Equal(t, query.IntervalDate, resolved.Interval)
	})
}

func TestDateRangeArithmetic(t *testing.T) {
	rng := query.DateRange{Start: day(2024, 3, 10), End: day(2024, 3, 16)}

	assert.Equal(t, 7, rng.Days())

	shifted := rng.Shift(-7)
	assert.Equal(t, day(2024, 3, 3), shifted.Start)
	assert.Equal(t, day(2024, 3, 9), shifted.End)

	yearBack := rng.ShiftYears(-1)
	assert.Equal(t, day(2023, 3, 10), yearBack.Start)
	assert.Equal(t, day(2023, 3, 16), yearBack.End)

	assert.True(t, rng.Contains(day(2024, 3, 10)))
	assert.True(t, rng.Contains(day(2024, 3, 16)))
	assert.False(t, rng.Contains(day(2024, 3, 17)))
}

func TestStartOfWeek(t *testing.T) {
	// Monday stays put
	assert.Equal(t, day(2024, 3, 11), query.StartOfWeek(day(2024, 3, 11)))
	// Friday snaps back to Monday
	assert.Equal(t, day(2024, 3, 11), query.StartOfWeek(day(2024, 3, 15)))
	// Sunday belongs to the preceding Monday
	assert.Equal(t, day(2024, 3, 11), query.StartOfWeek(day(2024, 3, 17)))
}
