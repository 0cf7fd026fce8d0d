package reports

import (
	"context"
	"strings"

	"statlens/internal/geo"
	"statlens/internal/pkg/async"
	"statlens/internal/query"
	"statlens/internal/sites"
	"statlens/internal/store"
)

// BreakdownParams selects the dimension, metrics and page of a breakdown
// report.
type BreakdownParams struct {
	Dimension  string
	Metrics    []store.Metric
	Pagination store.Pagination
	Comparison query.ComparisonDirective
}

// BreakdownRow is one enriched result row. Derived fields are filled in
// before formatting and never mutated afterwards.
type BreakdownRow struct {
	Value          string                   `json:"value"`
	Name           string                   `json:"name,omitempty"`
	Metrics        map[store.Metric]float64 `json:"metrics"`
	ConversionRate *float64                 `json:"conversion_rate,omitempty"`
	Percentage     *int                     `json:"percentage,omitempty"`
	ExitRate       *int                     `json:"exit_rate,omitempty"`
	Comparison     map[store.Metric]float64 `json:"comparison,omitempty"`
	Change         *int                     `json:"change,omitempty"`
}

// BreakdownResult is the grouped report payload.
type BreakdownResult struct {
	Dimension string         `json:"dimension"`
	Results   []BreakdownRow `json:"results"`
	Meta      ReportMeta     `json:"meta"`
}

// Breakdown runs a single-dimension grouped report: the primary rows, the
// optional comparison rows, and any secondary queries the enrichment needs
// (conversion-rate denominator, exit-page pageviews). Secondary calls run
// concurrently once the primary page of rows is known.
func (e *Engine) Breakdown(ctx context.Context, site *sites.Site, q query.Query, params BreakdownParams) (*BreakdownResult, error) {
	dimension, err := query.NormalizeDimension(params.Dimension)
	if err != nil {
		return nil, err
	}

	goalActive := q.HasEventFilters()
	metrics := params.Metrics
	if len(metrics) == 0 {
		metrics = []store.Metric{store.MetricVisitors}
	}
	st := storeSite(site)

	siteCtx := site.QueryContext()
	cmp, hasCmp, err := compareOrSkip(q, siteCtx, params.Comparison)
	if err != nil {
		return nil, err
	}

	primaryTasks := []async.Task{
		{Name: "rows", Execute: func(ctx context.Context) (any, error) {
			return e.store.Breakdown(ctx, st, q, dimension, metrics, params.Pagination)
		}},
	}
	if hasCmp {
		primaryTasks = append(primaryTasks, async.Task{Name: "comparison", Execute: func(ctx context.Context) (any, error) {
			return e.store.Breakdown(ctx, st, cmp, dimension, metrics, params.Pagination)
		}})
	}

	results := async.Run(ctx, primaryTasks)
	if err := async.FirstError(results); err != nil {
		return nil, err
	}
	rawRows := async.Value[[]store.Row](results, "rows")

	rows := make([]BreakdownRow, len(rawRows))
	values := make([]string, len(rawRows))
	for i, r := range rawRows {
		rows[i] = BreakdownRow{Value: r.Value, Metrics: r.Metrics}
		values[i] = r.Value
	}

	if len(rows) > 0 {
		if err := e.enrichBreakdown(ctx, st, q, dimension, rows, values, goalActive); err != nil {
			return nil, err
		}
	}

	if hasCmp {
		pairComparison(rows, async.Value[[]store.Row](results, "comparison"), metrics[0])
	}
	e.applyDisplayNames(dimension, rows, site)

	return &BreakdownResult{Dimension: dimension, Results: rows, Meta: metaFor(q)}, nil
}

// enrichBreakdown issues the secondary store calls the returned page of rows
// requires and computes the derived fields. Skipped entirely on an empty
// page.
func (e *Engine) enrichBreakdown(ctx context.Context, st store.Site, q query.Query, dimension string, rows []BreakdownRow, values []string, goalActive bool) error {
	var tasks []async.Task
	memberFilter := query.Filter{Dimension: dimension, Kind: query.FilterMember, Values: values}

	switch {
	case dimension == "event:goal":
		denom := q.RemoveEventFilters(query.EventFilterGoal | query.EventFilterProps)
		tasks = append(tasks, async.Task{Name: "denominator", Execute: func(ctx context.Context) (any, error) {
			return e.store.Aggregate(ctx, st, denom, []store.Metric{store.MetricVisitors})
		}})
	case goalActive:
		denom := q.RemoveEventFilters(query.EventFilterGoal | query.EventFilterProps).PutFilter(memberFilter)
		tasks = append(tasks, async.Task{Name: "denominator_rows", Execute: func(ctx context.Context) (any, error) {
			return e.store.Breakdown(ctx, st, denom, dimension, []store.Metric{store.MetricVisitors}, store.Pagination{Limit: len(values), Page: 1})
		}})
	}

	if dimension == "visit:exit_page" {
		pageQuery := q.PutFilter(query.Filter{Dimension: "event:page", Kind: query.FilterMember, Values: values})
		tasks = append(tasks, async.Task{Name: "pageviews", Execute: func(ctx context.Context) (any, error) {
			return e.store.Breakdown(ctx, st, pageQuery, "event:page", []store.Metric{store.MetricPageviews}, store.Pagination{Limit: len(values), Page: 1})
		}})
	}

	var results map[string]async.Result
	if len(tasks) > 0 {
		results = async.Run(ctx, tasks)
		if err := async.FirstError(results); err != nil {
			return err
		}
	}

	switch {
	case dimension == "event:goal":
		denom := async.Value[map[store.Metric]store.AggregateValue](results, "denominator")
		total := denom[store.MetricVisitors].Value
		for i := range rows {
			rows[i].ConversionRate = CalculateCR(&total, rows[i].Metrics[store.MetricVisitors])
		}
	case goalActive:
		totals := rowValueIndex(async.Value[[]store.Row](results, "denominator_rows"), store.MetricVisitors)
		for i := range rows {
			total := totals[rows[i].Value]
			rows[i].ConversionRate = CalculateCR(&total, rows[i].Metrics[store.MetricVisitors])
		}
	default:
		visitors := make([]float64, len(rows))
		for i := range rows {
			visitors[i] = rows[i].Metrics[store.MetricVisitors]
		}
		for i, share := range PercentageOfTotal(visitors) {
			s := share
			rows[i].Percentage = &s
		}
	}

	if dimension == "visit:exit_page" {
		pageviews := rowValueIndex(async.Value[[]store.Row](results, "pageviews"), store.MetricPageviews)
		for i := range rows {
			rows[i].ExitRate = ExitRate(rows[i].Metrics[store.MetricVisitors], pageviews[rows[i].Value])
		}
	}
	return nil
}

// pairComparison matches comparison rows to primary rows by dimension value.
// Rows with no counterpart keep a nil change.
func pairComparison(rows []BreakdownRow, cmpRows []store.Row, primaryMetric store.Metric) {
	index := make(map[string]store.Row, len(cmpRows))
	for _, r := range cmpRows {
		index[r.Value] = r
	}
	for i := range rows {
		old, ok := index[rows[i].Value]
		if !ok {
			continue
		}
		rows[i].Comparison = old.Metrics
		oldValue := old.Metrics[primaryMetric]
		rows[i].Change = PercentChange(&oldValue, rows[i].Metrics[primaryMetric])
	}
}

// applyDisplayNames resolves geo codes and goal identifiers into display
// labels. A lookup miss keeps the raw value; it never aborts the report.
func (e *Engine) applyDisplayNames(dimension string, rows []BreakdownRow, site *sites.Site) {
	switch dimension {
	case "visit:country":
		for i := range rows {
			rows[i].Name = geo.CountryName(rows[i].Value).Name
		}
	case "visit:region", "visit:city":
		for i := range rows {
			rows[i].Name = geo.PlaceName(rows[i].Value).Name
		}
	case "event:goal":
		names, err := sites.GoalDisplayNames(e.db, site.ID)
		if err != nil {
			e.logger.Warn("goal display names unavailable", "error", err)
			return
		}
		for i := range rows {
			if name, ok := names[rows[i].Value]; ok {
				rows[i].Name = name
			}
		}
	}
}

// rowValueIndex flattens breakdown rows into a value -> metric lookup.
func rowValueIndex(rows []store.Row, m store.Metric) map[string]float64 {
	index := make(map[string]float64, len(rows))
	for _, r := range rows {
		index[r.Value] = r.Metric(m)
	}
	return index
}

// ExitRate computes the floor percentage of exits over raw pageviews.
func ExitRate(exits, pageviews float64) *int {
	if pageviews <= 0 {
		return nil
	}
	rate := int(exits / pageviews * 100)
	return &rate
}

// DimensionShortName strips the namespace prefix for display and CSV
// headers.
func DimensionShortName(dimension string) string {
	if name, ok := strings.CutPrefix(dimension, "event:props:"); ok {
		return name
	}
	if _, after, found := strings.Cut(dimension, ":"); found {
		return after
	}
	return dimension
}
