package query_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statlens/internal/query"
)

func TestBuildDefaults(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	q, err := query.Build(query.BuildParams{}, query.SiteContext{Timezone: time.UTC}, now)
	require.NoError(t, err)

	assert.Equal(t, query.Period30Days, q.Period)
	assert.Equal(t, query.IntervalDate, q.Interval)
	assert.Empty(t, q.Filters)
	assert.Equal(t, query.DefaultSampleThreshold, q.SampleThreshold)
	assert.False(t, q.IncludeImported, "no import window configured")
}

func TestBuildPropagatesValidationErrors(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	site := query.SiteContext{Timezone: time.UTC}

	_, err := query.Build(query.BuildParams{Period: "fortnight"}, site, now)
	assert.True(t, query.IsValidationError(err))

	_, err = query.Build(query.BuildParams{Filters: "flavour==vanilla"}, site, now)
	assert.True(t, query.IsValidationError(err))
}

func TestIncludeImported(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	importedSite := func(status string) query.SiteContext {
		return query.SiteContext{
			Timezone: time.UTC,
			Import: query.ImportWindow{
				Start:  day(2023, 1, 1),
				End:    day(2024, 6, 30),
				Status: status,
			},
		}
	}

	t.Run("merged when requested and overlapping", func(t *testing.T) {
		q, err := query.Build(query.BuildParams{Period: "30d", WithImported: true}, importedSite(query.ImportStatusOK), now)
		require.NoError(t, err)
		assert.True(t, q.IncludeImported)
	})

	t.Run("off when not requested", func(t *testing.T) {
		q, err := query.Build(query.BuildParams{Period: "30d"}, importedSite(query.ImportStatusOK), now)
		require.NoError(t, err)
		assert.False(t, q.IncludeImported)
	})

	t.Run("off when any filter is present", func(t *testing.T) {
		q, err := query.Build(query.BuildParams{Period: "30d", WithImported: true, Filters: "country==US"}, importedSite(query.ImportStatusOK), now)
		require.NoError(t, err)
		assert.False(t, q.IncludeImported)
	})

	t.Run("off when the import is unfinished", func(t *testing.T) {
		q, err := query.Build(query.BuildParams{Period: "30d", WithImported: true}, importedSite("importing"), now)
		require.NoError(t, err)
		assert.False(t, q.IncludeImported)
	})

	t.Run("off when the range starts after the import ends", func(t *testing.T) {
		site := query.SiteContext{
			Timezone: time.UTC,
			Import: query.ImportWindow{
				Start:  day(2023, 1, 1),
				End:    day(2023, 6, 30),
				Status: query.ImportStatusOK,
			},
		}
		q, err := query.Build(query.BuildParams{Period: "30d", WithImported: true}, site, now)
		require.NoError(t, err)
		assert.False(t, q.IncludeImported)
	})
}

func TestPutFilterLeavesOriginalUntouched(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	site := query.SiteContext{Timezone: time.UTC}

	q, err := query.Build(query.BuildParams{Period: "7d", Filters: "country==US"}, site, now)
	require.NoError(t, err)

	modified := q.PutFilter(query.Filter{Dimension: "visit:country", Kind: query.FilterIs, Values: []string{"DE"}})

	assert.Equal(t, "US", q.Filters[0].Value(), "original query unchanged")
	assert.Equal(t, "DE", modified.Filters[0].Value())
	assert.False(t, modified.IncludeImported)
}

func TestRemoveEventFilters(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	site := query.SiteContext{Timezone: time.UTC}

	q, err := query.Build(query.BuildParams{
		Period:  "7d",
		Filters: "goal==Signup;props:plan==pro;country==US",
	}, site, now)
	require.NoError(t, err)
	require.True(t, q.HasEventFilters())

	stripped := q.RemoveEventFilters(query.EventFilterGoal | query.EventFilterProps)
	require.Len(t, stripped.Filters, 1)
	assert.Equal(t, "visit:country", stripped.Filters[0].Dimension)
	assert.False(t, stripped.HasEventFilters())

	goalOnly := q.RemoveEventFilters(query.EventFilterProps)
	_, hasGoal := goalOnly.GoalFilter()
	assert.True(t, hasGoal)
	assert.Len(t, goalOnly.Filters, 2)

	assert.Len(t, q.Filters, 3, "original query unchanged")
}

func TestGoalFilter(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	site := query.SiteContext{Timezone: time.UTC}

	q, err := query.Build(query.BuildParams{Period: "7d", Filters: "goal==Signup"}, site, now)
	require.NoError(t, err)

	f, ok := q.GoalFilter()
	require.True(t, ok)
	assert.Equal(t, "Signup", f.Value())

	plain, err := query.Build(query.BuildParams{Period: "7d"}, site, now)
	require.NoError(t, err)
	_, ok = plain.GoalFilter()
	assert.False(t, ok)
}
