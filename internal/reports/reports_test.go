package reports_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statlens/internal/query"
	"statlens/internal/reports"
	"statlens/internal/sites"
	"statlens/internal/store"
	"statlens/internal/testsupport"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, fake *testsupport.FakeStore) (*reports.Engine, *sites.Site) {
	t.Helper()

	db := testsupport.SetupTestDB(t)
	site := testsupport.CreateTestSite(t, db, "example.com", "UTC")
	engine := reports.NewEngine(fake, db, testsupport.NewTestLogger()).
		WithClock(func() time.Time { return testNow })
	return engine, site
}

func buildTestQuery(t *testing.T, site *sites.Site, params query.BuildParams) query.Query {
	t.Helper()
	q, err := query.Build(params, site.QueryContext(), testNow)
	require.NoError(t, err)
	return q
}

func aggregates(values map[store.Metric]float64) map[store.Metric]store.AggregateValue {
	out := make(map[store.Metric]store.AggregateValue, len(values))
	for m, v := range values {
		out[m] = store.AggregateValue{Value: v}
	}
	return out
}

func TestTopStats(t *testing.T) {
	fake := &testsupport.FakeStore{
		AggregateFunc: func(q query.Query, metrics []store.Metric) (map[store.Metric]store.AggregateValue, error) {
			return aggregates(map[store.Metric]float64{
				store.MetricVisitors:      100,
				store.MetricVisits:        120,
				store.MetricPageviews:     300,
				store.MetricViewsPerVisit: 2.5,
				store.MetricBounceRate:    40,
				store.MetricVisitDuration: 65,
				store.MetricSamplePercent: 100,
			}), nil
		},
	}
	engine, site := newTestEngine(t, fake)
	q := buildTestQuery(t, site, query.BuildParams{Period: "7d"})

	result, err := engine.TopStats(context.Background(), site, q, query.ComparisonDirective{})
	require.NoError(t, err)

	require.Len(t, result.TopStats, 6)
	assert.Equal(t, "Unique visitors", result.TopStats[0].Name)
	assert.Equal(t, 100.0, result.TopStats[0].Value)
	assert.Nil(t, result.TopStats[0].Change, "no comparison requested")
	assert.Nil(t, result.Compare)
	assert.Equal(t, "2024-03-09", result.Meta.From)
	assert.Equal(t, "2024-03-15", result.Meta.To)
}

func TestTopStatsWithComparison(t *testing.T) {
	fake := &testsupport.FakeStore{
		AggregateFunc: func(q query.Query, metrics []store.Metric) (map[store.Metric]store.AggregateValue, error) {
			// The comparison window lies before the base window.
			if q.Range.End.Before(day(2024, 3, 9)) {
				return aggregates(map[store.Metric]float64{
					store.MetricVisitors:   50,
					store.MetricBounceRate: 60,
				}), nil
			}
			return aggregates(map[store.Metric]float64{
				store.MetricVisitors:   100,
				store.MetricBounceRate: 40,
			}), nil
		},
	}
	engine, site := newTestEngine(t, fake)
	q := buildTestQuery(t, site, query.BuildParams{Period: "7d"})

	result, err := engine.TopStats(context.Background(), site, q, query.ComparisonDirective{
		Mode: query.ComparisonPreviousPeriod,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Compare)
	assert.Equal(t, "2024-03-02", result.Compare.From)
	assert.Equal(t, "2024-03-08", result.Compare.To)

	byName := make(map[string]reports.TopStat)
	for _, s := range result.TopStats {
		byName[s.Name] = s
	}

	visitors := byName["Unique visitors"]
	require.NotNil(t, visitors.Change)
	assert.Equal(t, 100, *visitors.Change, "50 to 100 doubles")

	bounce := byName["Bounce rate"]
	require.NotNil(t, bounce.Change)
	assert.Equal(t, -20, *bounce.Change, "bounce rate changes by points")
}

func TestTopStatsWithGoalFilter(t *testing.T) {
	fake := &testsupport.FakeStore{
		AggregateFunc: func(q query.Query, metrics []store.Metric) (map[store.Metric]store.AggregateValue, error) {
			if q.HasEventFilters() {
				return aggregates(map[store.Metric]float64{
					store.MetricVisitors: 50,
					store.MetricEvents:   80,
				}), nil
			}
			// goal-free denominator
			return aggregates(map[store.Metric]float64{
				store.MetricVisitors: 200,
			}), nil
		},
	}
	engine, site := newTestEngine(t, fake)
	q := buildTestQuery(t, site, query.BuildParams{Period: "7d", Filters: "goal==Signup"})

	result, err := engine.TopStats(context.Background(), site, q, query.ComparisonDirective{})
	require.NoError(t, err)

	require.Len(t, result.TopStats, 3)
	assert.Equal(t, "Unique conversions", result.TopStats[0].Name)
	assert.Equal(t, 50.0, result.TopStats[0].Value)
	assert.Equal(t, "Total conversions", result.TopStats[1].Name)
	assert.Equal(t, 80.0, result.TopStats[1].Value)
	assert.Equal(t, "Conversion rate", result.TopStats[2].Name)
	assert.Equal(t, 25.0, result.TopStats[2].Value)
}

func TestTopStatsRealtimeIncludesCurrentVisitors(t *testing.T) {
	fake := &testsupport.FakeStore{Visitors: 7}
	engine, site := newTestEngine(t, fake)
	q := buildTestQuery(t, site, query.BuildParams{Period: "realtime"})

	result, err := engine.TopStats(context.Background(), site, q, query.ComparisonDirective{})
	require.NoError(t, err)
	require.NotEmpty(t, result.TopStats)
	assert.Equal(t, "Current visitors", result.TopStats[0].Name)
	assert.Equal(t, 7.0, result.TopStats[0].Value)
}

func TestTopStatsStoreFailure(t *testing.T) {
	boom := errors.New("connection reset")
	fake := &testsupport.FakeStore{
		AggregateFunc: func(q query.Query, metrics []store.Metric) (map[store.Metric]store.AggregateValue, error) {
			return nil, boom
		},
	}
	engine, site := newTestEngine(t, fake)
	q := buildTestQuery(t, site, query.BuildParams{Period: "7d"})

	result, err := engine.TopStats(context.Background(), site, q, query.ComparisonDirective{
		Mode: query.ComparisonPreviousPeriod,
	})
	assert.Nil(t, result, "no partial results")
	assert.ErrorIs(t, err, boom)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
