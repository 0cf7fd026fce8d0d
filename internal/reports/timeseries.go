package reports

import (
	"context"

	"statlens/internal/pkg/async"
	"statlens/internal/query"
	"statlens/internal/sites"
	"statlens/internal/store"
)

// TimeseriesParams selects the plotted metric and comparison directive.
type TimeseriesParams struct {
	Metric     store.Metric
	Comparison query.ComparisonDirective
}

// TimeseriesResult is the main-graph payload: one value per bucket label,
// plus the indexing and flags the UI needs to render partial data honestly.
type TimeseriesResult struct {
	Metric           store.Metric    `json:"metric"`
	Labels           []string        `json:"labels"`
	Plot             []float64       `json:"plot"`
	PresentIndex     *int            `json:"present_index,omitempty"`
	FullIntervals    map[string]bool `json:"full_intervals,omitempty"`
	ComparisonLabels []string        `json:"comparison_labels,omitempty"`
	ComparisonPlot   []float64       `json:"comparison_plot,omitempty"`
	Meta             ReportMeta      `json:"meta"`
}

// Timeseries runs the main-graph report. The primary and comparison series
// are independent store calls issued concurrently; buckets the store returned
// no data for plot as zero.
func (e *Engine) Timeseries(ctx context.Context, site *sites.Site, q query.Query, params TimeseriesParams) (*TimeseriesResult, error) {
	metric := params.Metric
	if metric == "" {
		metric = store.MetricVisitors
	}
	st := storeSite(site)

	siteCtx := site.QueryContext()
	cmp, hasCmp, err := compareOrSkip(q, siteCtx, params.Comparison)
	if err != nil {
		return nil, err
	}

	tasks := []async.Task{
		{Name: "series", Execute: func(ctx context.Context) (any, error) {
			return e.store.Timeseries(ctx, st, q, []store.Metric{metric})
		}},
	}
	if hasCmp {
		tasks = append(tasks, async.Task{Name: "comparison", Execute: func(ctx context.Context) (any, error) {
			return e.store.Timeseries(ctx, st, cmp, []store.Metric{metric})
		}})
	}

	results := async.Run(ctx, tasks)
	if err := async.FirstError(results); err != nil {
		return nil, err
	}

	now := e.now()
	labels := q.Labels(now)
	result := &TimeseriesResult{
		Metric:        metric,
		Labels:        labels,
		Plot:          plotSeries(labels, async.Value[[]store.TimePoint](results, "series"), metric),
		FullIntervals: q.FullIntervalFlags(labels),
		Meta:          metaFor(q),
	}
	if idx, ok := q.CurrentLabelIndex(labels, now); ok {
		result.PresentIndex = &idx
	}

	if hasCmp {
		cmpLabels := cmp.Labels(now)
		result.ComparisonLabels = cmpLabels
		result.ComparisonPlot = plotSeries(cmpLabels, async.Value[[]store.TimePoint](results, "comparison"), metric)
		// Inclusive boundaries can leave the two sequences different lengths;
		// the primary side is padded, never the comparison truncated.
		if len(result.Labels) < len(cmpLabels) {
			result.Labels = PadLabels(result.Labels, cmpLabels)
			result.Plot = append(result.Plot, make([]float64, len(cmpLabels)-len(result.Plot))...)
		}
	}

	return result, nil
}

// plotSeries aligns store buckets to the full label sequence, zero-filling
// buckets with no data.
func plotSeries(labels []string, points []store.TimePoint, metric store.Metric) []float64 {
	index := make(map[string]float64, len(points))
	for _, p := range points {
		index[p.Date] = p.Metrics[metric]
	}

	plot := make([]float64, len(labels))
	for i, label := range labels {
		plot[i] = index[label]
	}
	return plot
}
