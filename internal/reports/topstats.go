package reports

import (
	"context"

	"statlens/internal/pkg/async"
	"statlens/internal/query"
	"statlens/internal/sites"
	"statlens/internal/store"
)

// TopStat is one headline number, optionally paired with its comparison
// value and change.
type TopStat struct {
	Name       string       `json:"name"`
	Metric     store.Metric `json:"metric"`
	Value      float64      `json:"value"`
	Comparison *float64     `json:"comparison_value,omitempty"`
	Change     *int         `json:"change,omitempty"`
}

// TopStatsResult is the headline report payload.
type TopStatsResult struct {
	TopStats []TopStat   `json:"top_stats"`
	Meta     ReportMeta  `json:"meta"`
	Compare  *ReportMeta `json:"comparison_meta,omitempty"`
}

var defaultTopStatMetrics = []store.Metric{
	store.MetricVisitors,
	store.MetricVisits,
	store.MetricPageviews,
	store.MetricViewsPerVisit,
	store.MetricBounceRate,
	store.MetricVisitDuration,
	store.MetricSamplePercent,
}

var topStatLabels = map[store.Metric]string{
	store.MetricVisitors:      "Unique visitors",
	store.MetricVisits:        "Total visits",
	store.MetricPageviews:     "Total pageviews",
	store.MetricViewsPerVisit: "Views per visit",
	store.MetricBounceRate:    "Bounce rate",
	store.MetricVisitDuration: "Visit duration",
}

// TopStats runs the headline aggregate report. The primary and comparison
// aggregates, and the conversion-rate denominators under a goal filter, are
// independent store calls issued concurrently and joined before enrichment.
func (e *Engine) TopStats(ctx context.Context, site *sites.Site, q query.Query, directive query.ComparisonDirective) (*TopStatsResult, error) {
	siteCtx := site.QueryContext()
	cmp, hasCmp, err := compareOrSkip(q, siteCtx, directive)
	if err != nil {
		return nil, err
	}

	goalActive := q.HasEventFilters()
	metrics := defaultTopStatMetrics
	if goalActive {
		metrics = []store.Metric{store.MetricVisitors, store.MetricEvents, store.MetricSamplePercent}
	}
	st := storeSite(site)

	tasks := []async.Task{
		{Name: "aggregate", Execute: func(ctx context.Context) (any, error) {
			return e.store.Aggregate(ctx, st, q, metrics)
		}},
	}
	if hasCmp {
		tasks = append(tasks, async.Task{Name: "comparison", Execute: func(ctx context.Context) (any, error) {
			return e.store.Aggregate(ctx, st, cmp, metrics)
		}})
	}
	if goalActive {
		denom := q.RemoveEventFilters(query.EventFilterGoal | query.EventFilterProps)
		tasks = append(tasks, async.Task{Name: "denominator", Execute: func(ctx context.Context) (any, error) {
			return e.store.Aggregate(ctx, st, denom, []store.Metric{store.MetricVisitors})
		}})
		if hasCmp {
			cmpDenom := cmp.RemoveEventFilters(query.EventFilterGoal | query.EventFilterProps)
			tasks = append(tasks, async.Task{Name: "comparison_denominator", Execute: func(ctx context.Context) (any, error) {
				return e.store.Aggregate(ctx, st, cmpDenom, []store.Metric{store.MetricVisitors})
			}})
		}
	}
	if q.Period == query.PeriodRealtime {
		tasks = append(tasks, async.Task{Name: "current_visitors", Execute: func(ctx context.Context) (any, error) {
			return e.store.CurrentVisitors(ctx, st)
		}})
	}

	results := async.Run(ctx, tasks)
	if err := async.FirstError(results); err != nil {
		return nil, err
	}

	primary := async.Value[map[store.Metric]store.AggregateValue](results, "aggregate")
	var comparison map[store.Metric]store.AggregateValue
	if hasCmp {
		comparison = async.Value[map[store.Metric]store.AggregateValue](results, "comparison")
	}

	var stats []TopStat
	if q.Period == query.PeriodRealtime {
		stats = append(stats, TopStat{
			Name:  "Current visitors",
			Value: float64(async.Value[int64](results, "current_visitors")),
		})
	}

	if goalActive {
		stats = append(stats, e.goalTopStats(results, primary, comparison, hasCmp)...)
	} else {
		for _, m := range metrics {
			label, ok := topStatLabels[m]
			if !ok {
				continue
			}
			stats = append(stats, topStat(label, m, primary, comparison))
		}
	}

	result := &TopStatsResult{TopStats: stats, Meta: metaFor(q)}
	if hasCmp {
		cmpMeta := metaFor(cmp)
		result.Compare = &cmpMeta
	}
	return result, nil
}

func topStat(label string, m store.Metric, primary, comparison map[store.Metric]store.AggregateValue) TopStat {
	stat := TopStat{Name: label, Metric: m, Value: primary[m].Value}
	if comparison != nil {
		old := comparison[m].Value
		stat.Comparison = floatPtr(old)
		if m == store.MetricBounceRate {
			stat.Change = BounceRateChange(&old, stat.Value)
		} else {
			stat.Change = PercentChange(&old, stat.Value)
		}
	}
	return stat
}

// goalTopStats assembles the conversion-flavored headline set: unique and
// total conversions plus the conversion rate against the goal-free
// denominator.
func (e *Engine) goalTopStats(results map[string]async.Result, primary, comparison map[store.Metric]store.AggregateValue, hasCmp bool) []TopStat {
	stats := []TopStat{
		topStat("Unique conversions", store.MetricVisitors, primary, comparison),
		topStat("Total conversions", store.MetricEvents, primary, comparison),
	}

	denom := async.Value[map[store.Metric]store.AggregateValue](results, "denominator")
	total := denom[store.MetricVisitors].Value
	rate := CalculateCR(&total, primary[store.MetricVisitors].Value)

	crStat := TopStat{Name: "Conversion rate", Metric: store.MetricVisitors, Value: *rate}
	if hasCmp {
		cmpDenom := async.Value[map[store.Metric]store.AggregateValue](results, "comparison_denominator")
		cmpTotal := cmpDenom[store.MetricVisitors].Value
		if oldRate := CalculateCR(&cmpTotal, comparison[store.MetricVisitors].Value); oldRate != nil {
			crStat.Comparison = oldRate
			crStat.Change = PercentChange(oldRate, crStat.Value)
		}
	}
	return append(stats, crStat)
}
