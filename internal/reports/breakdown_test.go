package reports_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statlens/internal/query"
	"statlens/internal/reports"
	"statlens/internal/store"
	"statlens/internal/testsupport"
)

func breakdownRows(metric store.Metric, pairs ...any) []store.Row {
	var rows []store.Row
	for i := 0; i < len(pairs); i += 2 {
		rows = append(rows, store.Row{
			Value:   pairs[i].(string),
			Metrics: map[store.Metric]float64{metric: float64(pairs[i+1].(int))},
		})
	}
	return rows
}

func TestBreakdownPercentages(t *testing.T) {
	fake := &testsupport.FakeStore{
		BreakdownFunc: func(q query.Query, dimension string, metrics []store.Metric) ([]store.Row, error) {
			return breakdownRows(store.MetricVisitors, "/", 500, "/blog", 300, "/about", 200), nil
		},
	}
	engine, site := newTestEngine(t, fake)
	q := buildTestQuery(t, site, query.BuildParams{Period: "7d"})

	result, err := engine.Breakdown(context.Background(), site, q, reports.BreakdownParams{Dimension: "page"})
	require.NoError(t, err)

	assert.Equal(t, "event:page", result.Dimension)
	require.Len(t, result.Results, 3)
	require.NotNil(t, result.Results[0].Percentage)
	assert.Equal(t, 50, *result.Results[0].Percentage)
	assert.Equal(t, 30, *result.Results[1].Percentage)
	assert.Equal(t, 20, *result.Results[2].Percentage)
}

func TestBreakdownGoalDimensionConversionRate(t *testing.T) {
	fake := &testsupport.FakeStore{
		BreakdownFunc: func(q query.Query, dimension string, metrics []store.Metric) ([]store.Row, error) {
			return breakdownRows(store.MetricVisitors, "Signup", 50, "Purchase", 10), nil
		},
		AggregateFunc: func(q query.Query, metrics []store.Metric) (map[store.Metric]store.AggregateValue, error) {
			return aggregates(map[store.Metric]float64{store.MetricVisitors: 200}), nil
		},
	}
	engine, site := newTestEngine(t, fake)
	q := buildTestQuery(t, site, query.BuildParams{Period: "7d"})

	result, err := engine.Breakdown(context.Background(), site, q, reports.BreakdownParams{Dimension: "goal"})
	require.NoError(t, err)

	require.Len(t, result.Results, 2)
	require.NotNil(t, result.Results[0].ConversionRate)
	assert.Equal(t, 25.0, *result.Results[0].ConversionRate)
	require.NotNil(t, result.Results[1].ConversionRate)
	assert.Equal(t, 5.0, *result.Results[1].ConversionRate)
	assert.Nil(t, result.Results[0].Percentage, "goal rows carry a rate, not a share")
}

func TestBreakdownGoalDisplayNames(t *testing.T) {
	fake := &testsupport.FakeStore{
		BreakdownFunc: func(q query.Query, dimension string, metrics []store.Metric) ([]store.Row, error) {
			return breakdownRows(store.MetricVisitors, "/register", 50), nil
		},
		AggregateFunc: func(q query.Query, metrics []store.Metric) (map[store.Metric]store.AggregateValue, error) {
			return aggregates(map[store.Metric]float64{store.MetricVisitors: 200}), nil
		},
	}
	engine, site := newTestEngine(t, fake)
	testsupport.CreateTestGoal(t, testsupport.SetupTestDB(t), site.ID, "", "/register")
	q := buildTestQuery(t, site, query.BuildParams{Period: "7d"})

	result, err := engine.Breakdown(context.Background(), site, q, reports.BreakdownParams{Dimension: "goal"})
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "/register", result.Results[0].Value)
	assert.Equal(t, "Visit /register", result.Results[0].Name)
}

func TestBreakdownUnderGoalFilter(t *testing.T) {
	fake := &testsupport.FakeStore{
		BreakdownFunc: func(q query.Query, dimension string, metrics []store.Metric) ([]store.Row, error) {
			if q.HasEventFilters() {
				return breakdownRows(store.MetricVisitors, "US", 40, "DE", 10), nil
			}
			// goal-free denominator per row value
			return breakdownRows(store.MetricVisitors, "US", 160, "DE", 100), nil
		},
	}
	engine, site := newTestEngine(t, fake)
	q := buildTestQuery(t, site, query.BuildParams{Period: "7d", Filters: "goal==Signup"})

	result, err := engine.Breakdown(context.Background(), site, q, reports.BreakdownParams{Dimension: "country"})
	require.NoError(t, err)

	require.Len(t, result.Results, 2)
	require.NotNil(t, result.Results[0].ConversionRate)
	assert.Equal(t, 25.0, *result.Results[0].ConversionRate)
	require.NotNil(t, result.Results[1].ConversionRate)
	assert.Equal(t, 10.0, *result.Results[1].ConversionRate)
}

func TestBreakdownExitPages(t *testing.T) {
	fake := &testsupport.FakeStore{
		BreakdownFunc: func(q query.Query, dimension string, metrics []store.Metric) ([]store.Row, error) {
			if dimension == "event:page" {
				return breakdownRows(store.MetricPageviews, "/checkout", 90, "/", 400), nil
			}
			return breakdownRows(store.MetricVisitors, "/checkout", 60, "/", 100), nil
		},
	}
	engine, site := newTestEngine(t, fake)
	q := buildTestQuery(t, site, query.BuildParams{Period: "7d"})

	result, err := engine.Breakdown(context.Background(), site, q, reports.BreakdownParams{Dimension: "exit_page"})
	require.NoError(t, err)

	require.Len(t, result.Results, 2)
	require.NotNil(t, result.Results[0].ExitRate)
	assert.Equal(t, 66, *result.Results[0].ExitRate, "floor of 60/90")
	require.NotNil(t, result.Results[1].ExitRate)
	assert.Equal(t, 25, *result.Results[1].ExitRate)
}

func TestBreakdownComparisonPairing(t *testing.T) {
	fake := &testsupport.FakeStore{
		BreakdownFunc: func(q query.Query, dimension string, metrics []store.Metric) ([]store.Row, error) {
			if q.Range.End.Before(day(2024, 3, 9)) {
				return breakdownRows(store.MetricVisitors, "google", 50, "bing", 20), nil
			}
			return breakdownRows(store.MetricVisitors, "google", 100, "duckduckgo", 30), nil
		},
	}
	engine, site := newTestEngine(t, fake)
	q := buildTestQuery(t, site, query.BuildParams{Period: "7d"})

	result, err := engine.Breakdown(context.Background(), site, q, reports.BreakdownParams{
		Dimension:  "source",
		Comparison: query.ComparisonDirective{Mode: query.ComparisonPreviousPeriod},
	})
	require.NoError(t, err)

	require.Len(t, result.Results, 2)
	google := result.Results[0]
	require.NotNil(t, google.Change)
	assert.Equal(t, 100, *google.Change)
	assert.Equal(t, 50.0, google.Comparison[store.MetricVisitors])

	ddg := result.Results[1]
	assert.Nil(t, ddg.Change, "no counterpart in the comparison window")
	assert.Nil(t, ddg.Comparison)
}

func TestBreakdownCountryNames(t *testing.T) {
	fake := &testsupport.FakeStore{
		BreakdownFunc: func(q query.Query, dimension string, metrics []store.Metric) ([]store.Row, error) {
			return breakdownRows(store.MetricVisitors, "US", 100, "ZZ", 5), nil
		},
	}
	engine, site := newTestEngine(t, fake)
	q := buildTestQuery(t, site, query.BuildParams{Period: "7d"})

	result, err := engine.Breakdown(context.Background(), site, q, reports.BreakdownParams{Dimension: "country"})
	require.NoError(t, err)

	require.Len(t, result.Results, 2)
	assert.Equal(t, "United States", result.Results[0].Name)
	assert.Equal(t, "ZZ", result.Results[1].Name, "lookup miss keeps the raw code")
}

func TestBreakdownRejectsUnknownDimension(t *testing.T) {
	engine, site := newTestEngine(t, &testsupport.FakeStore{})
	q := buildTestQuery(t, site, query.BuildParams{Period: "7d"})

	_, err := engine.Breakdown(context.Background(), site, q, reports.BreakdownParams{Dimension: "flavour"})
	assert.True(t, query.IsValidationError(err))
}

func TestBreakdownStoreFailure(t *testing.T) {
	boom := errors.New("query timeout")
	fake := &testsupport.FakeStore{
		BreakdownFunc: func(q query.Query, dimension string, metrics []store.Metric) ([]store.Row, error) {
			return nil, boom
		},
	}
	engine, site := newTestEngine(t, fake)
	q := buildTestQuery(t, site, query.BuildParams{Period: "7d"})

	result, err := engine.Breakdown(context.Background(), site, q, reports.BreakdownParams{Dimension: "page"})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, boom)
}
