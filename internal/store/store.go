// Package store defines the contract the query engine consumes from the
// underlying event/session store. Execution details such as columnar layout
// or sampling are the implementation's concern.
package store

import (
	"context"
	"fmt"

	"statlens/internal/query"
)

// Metric names the first-class aggregates a store computes. The engine treats
// each as opaque beyond its name.
type Metric string

const (
	MetricVisitors      Metric = "visitors"
	MetricVisits        Metric = "visits"
	MetricPageviews     Metric = "pageviews"
	MetricEvents        Metric = "events"
	MetricBounceRate    Metric = "bounce_rate"
	MetricVisitDuration Metric = "visit_duration"
	MetricTimeOnPage    Metric = "time_on_page"
	MetricViewsPerVisit Metric = "views_per_visit"
	MetricSamplePercent Metric = "sample_percent"
)

// AggregateValue is a single computed metric value.
type AggregateValue struct {
	Value float64 `json:"value"`
}

// Row is one breakdown result: a dimension value plus the requested metrics.
type Row struct {
	Value   string             `json:"value"`
	Metrics map[Metric]float64 `json:"metrics"`
}

// Metric returns a row metric, zero when the store did not produce it.
func (r Row) Metric(m Metric) float64 {
	return r.Metrics[m]
}

// TimePoint is one timeseries bucket, keyed by its formatted label.
type TimePoint struct {
	Date    string             `json:"date"`
	Metrics map[Metric]float64 `json:"metrics"`
}

// Pagination is a (limit, page) pair; pages start at 1.
type Pagination struct {
	Limit int
	Page  int
}

// Offset converts the pair into a row offset.
func (p Pagination) Offset() int {
	page := p.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * p.Limit
}

// Site identifies the tenant a store call executes for.
type Site struct {
	ID     int64
	Domain string
}

// Store is the synchronous, per-request interface the orchestrator issues
// calls against. Every call may fail with an opaque store-level error; the
// engine never retries.
type Store interface {
	Aggregate(ctx context.Context, site Site, q query.Query, metrics []Metric) (map[Metric]AggregateValue, error)
	Breakdown(ctx context.Context, site Site, q query.Query, dimension string, metrics []Metric, pagination Pagination) ([]Row, error)
	Timeseries(ctx context.Context, site Site, q query.Query, metrics []Metric) ([]TimePoint, error)
	CurrentVisitors(ctx context.Context, site Site) (int64, error)
	Props(ctx context.Context, site Site, q query.Query) (map[string][]string, error)
	FilterSuggestions(ctx context.Context, site Site, q query.Query, filterName, partial string) ([]string, error)
}

// Error wraps any failure from the store so report code can surface it as a
// single report-level outcome.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WrapError tags an underlying store failure with the operation that hit it.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
